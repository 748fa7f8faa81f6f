package process

import _ "unsafe" // for go:linkname

// These hooks are what package syscall uses around its own fork. Before
// blocks signals and poisons the stack guard so the child cannot grow its
// stack; After undoes that; AfterForkInChild resets every signal handler
// the Go runtime installed to its default action, so a fault in the child
// kills it instead of entering the parent's handler state.

//go:linkname runtimeBeforeFork syscall.runtime_BeforeFork
func runtimeBeforeFork()

//go:linkname runtimeAfterFork syscall.runtime_AfterFork
func runtimeAfterFork()

//go:linkname runtimeAfterForkInChild syscall.runtime_AfterForkInChild
func runtimeAfterForkInChild()
