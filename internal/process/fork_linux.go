//go:build linux && !arm64 && !riscv64 && !loong64

package process

import "golang.org/x/sys/unix"

//go:norace
//go:nosplit
func rawFork() (uintptr, unix.Errno) {
	pid, _, errno := unix.RawSyscall(unix.SYS_FORK, 0, 0, 0)
	return pid, errno
}
