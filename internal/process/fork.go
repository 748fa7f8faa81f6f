package process

import (
	"fmt"
	"log/slog"
	"syscall"

	"golang.org/x/sys/unix"
)

// Fork duplicates the calling process without replacing its image. Both
// processes return from Spawn and carry on running the same program.
//
// The child starts with a single thread and with the runtime's signal
// handlers reset to their defaults, so a fault kills it outright. It
// should do as little as possible, allocate sparingly, and leave through
// unix.Exit rather than returning into code that expects the parent's
// goroutines to exist.
type Fork struct {
	Stdin  Stdio
	Stdout Stdio
	Stderr Stdio

	Logger *slog.Logger
}

// Spawn forks. The parent gets the child's handle; the child gets a nil
// handle and a nil error.
func (f *Fork) Spawn() (*Child, error) {
	s, err := resolveStreams(f.Stdin, f.Stdout, f.Stderr)
	if err != nil {
		return nil, err
	}
	stdio := s.theirFds()

	syscall.ForkLock.Lock()
	runtimeBeforeFork()
	pid, errno := forkOnly(&stdio)
	runtimeAfterFork()
	syscall.ForkLock.Unlock()

	if errno != 0 {
		s.closeOurs()
		s.closeTheirs()
		return nil, fmt.Errorf("process: fork: %w", errno)
	}

	if pid == 0 {
		// The parent-side ends and the originals of what now sits on 0..2
		// belong to the parent.
		s.closeOurs()
		s.closeTheirs()
		return nil, nil
	}

	s.closeTheirs()
	child := newChild(int(pid), s)
	f.logger().Debug("forked", "pid", child.Pid())
	return child, nil
}

func (f *Fork) logger() *slog.Logger {
	if f.Logger != nil {
		return f.Logger
	}
	return discardLogger
}

// ExitChild ends a process returned from Fork.Spawn as the child with
// the given status, skipping deferred functions and atexit-style cleanup
// that belong to the parent.
func ExitChild(code int) {
	unix.Exit(code)
}
