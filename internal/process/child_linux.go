package process

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

// execFailedStatus is the exit status of a child that could not install
// its descriptors or replace its image.
const execFailedStatus = 253

// childParams is everything the forked child needs, prepared by the
// parent so the child only dereferences memory that already exists.
type childParams struct {
	path   *byte
	argv   **byte
	envv   **byte
	stdio  [3]int
	notify int
}

// forkExec duplicates the process and, in the child, installs stdio and
// replaces the image. It returns only in the parent.
//
// Between rawFork and execve the child runs with a poisoned stack guard
// and a copy of an address space whose other threads are gone: only raw
// system calls on prepared memory are allowed, hence nosplit throughout.
//
//go:norace
//go:nosplit
func forkExec(p *childParams) (uintptr, unix.Errno) {
	pid, errno := rawFork()
	if errno != 0 || pid != 0 {
		return pid, errno
	}

	runtimeAfterForkInChild()
	errno = installStdio(&p.stdio)
	if errno == 0 {
		_, _, errno = unix.RawSyscall(unix.SYS_EXECVE,
			uintptr(unsafe.Pointer(p.path)),
			uintptr(unsafe.Pointer(p.argv)),
			uintptr(unsafe.Pointer(p.envv)))
	}

	code := uint32(errno)
	unix.RawSyscall(unix.SYS_WRITE, uintptr(p.notify), uintptr(unsafe.Pointer(&code)), unsafe.Sizeof(code))
	exitChild()
	return 0, 0
}

// forkOnly duplicates the process and, in the child, installs stdio.
// It returns in both processes; pid is 0 in the child.
//
//go:norace
//go:nosplit
func forkOnly(stdio *[3]int) (uintptr, unix.Errno) {
	pid, errno := rawFork()
	if errno != 0 || pid != 0 {
		return pid, errno
	}

	runtimeAfterForkInChild()
	if installStdio(stdio) != 0 {
		exitChild()
	}
	return 0, 0
}

// installStdio dups each prepared descriptor onto its slot. The sources
// are all above 2, so no slot clobbers a later source.
//
//go:norace
//go:nosplit
func installStdio(stdio *[3]int) unix.Errno {
	for slot := 0; slot < 3; slot++ {
		if stdio[slot] < 0 {
			continue
		}
		_, _, errno := unix.RawSyscall(unix.SYS_DUP3, uintptr(stdio[slot]), uintptr(slot), 0)
		if errno != 0 {
			return errno
		}
	}
	return 0
}

// exitChild terminates the child without running any deferred or
// registered cleanup that belongs to the parent.
//
//go:norace
//go:nosplit
func exitChild() {
	for {
		unix.RawSyscall(unix.SYS_EXIT_GROUP, execFailedStatus, 0, 0)
	}
}
