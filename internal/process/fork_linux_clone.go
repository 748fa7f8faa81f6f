//go:build linux && (arm64 || riscv64 || loong64)

package process

import "golang.org/x/sys/unix"

// These architectures have no fork(2); clone with only SIGCHLD is the
// equivalent.
//
//go:norace
//go:nosplit
func rawFork() (uintptr, unix.Errno) {
	pid, _, errno := unix.RawSyscall(unix.SYS_CLONE, uintptr(unix.SIGCHLD), 0, 0)
	return pid, errno
}
