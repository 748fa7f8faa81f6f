package process

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"golang.org/x/sys/unix"

	"github.com/kahiteam/childproc/internal/fd"
)

// ErrAlreadyWaited is returned by operations on a child that has already
// been reaped. Its pid may belong to another process by now.
var ErrAlreadyWaited = errors.New("process: child already waited on")

// Output is the result of running a child to completion.
type Output struct {
	Status unix.WaitStatus // raw wait status; see ExitCode
	Stdout []byte
	Stderr []byte
}

// Child is a spawned process and the parent-side ends of its piped
// streams. Every stream is consumed at most once: closing or draining it
// empties the slot, so a later Close never touches a reused descriptor.
//
// A Child is used by one goroutine, except that Kill and Signal may be
// called while another goroutine is blocked in Wait, WaitWithOutput or
// Communicate.
type Child struct {
	pid    int
	stdin  fd.FD
	stdout fd.FD
	stderr fd.FD

	// mu orders reaping against signalling, so a signal never reaches a
	// pid the kernel has handed out again.
	mu     sync.Mutex
	waited atomic.Bool
}

// newChild takes the parent-side ends out of s.
func newChild(pid int, s *streams) *Child {
	return &Child{
		pid:    pid,
		stdin:  s[0].ours.Take(),
		stdout: s[1].ours.Take(),
		stderr: s[2].ours.Take(),
	}
}

// Pid returns the child's process id.
func (c *Child) Pid() int { return c.pid }

// Waited reports whether the child has been reaped.
func (c *Child) Waited() bool { return c.waited.Load() }

// StdinPipe returns the write end of the child's stdin, or nil when stdin
// is not piped or was already closed.
func (c *Child) StdinPipe() io.WriteCloser {
	if s := fd.NewStream(&c.stdin); s != nil {
		return s
	}
	return nil
}

// StdoutPipe returns the read end of the child's stdout, or nil.
func (c *Child) StdoutPipe() io.ReadCloser {
	if s := fd.NewStream(&c.stdout); s != nil {
		return s
	}
	return nil
}

// StderrPipe returns the read end of the child's stderr, or nil.
func (c *Child) StderrPipe() io.ReadCloser {
	if s := fd.NewStream(&c.stderr); s != nil {
		return s
	}
	return nil
}

// Wait closes stdin, so a child reading it sees end of input, then blocks
// until the child terminates and returns its raw status.
func (c *Child) Wait() (unix.WaitStatus, error) {
	if c.waited.Load() {
		return 0, ErrAlreadyWaited
	}
	if err := c.stdin.Close(); err != nil {
		return 0, fmt.Errorf("process: stdin: %w", err)
	}

	// Block until the child has exited but leave it a zombie: its pid
	// stays reserved until the reap below, which runs under mu.
	var info unix.Siginfo
	for {
		err := unix.Waitid(unix.P_PID, c.pid, &info, unix.WEXITED|unix.WNOWAIT, nil)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return 0, fmt.Errorf("process: wait %d: %w", c.pid, err)
		}
		break
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.waited.Load() {
		return 0, ErrAlreadyWaited
	}
	var ws unix.WaitStatus
	for {
		_, err := unix.Wait4(c.pid, &ws, 0, nil)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return 0, fmt.Errorf("process: wait %d: %w", c.pid, err)
		}
		break
	}
	c.waited.Store(true)
	return ws, nil
}

// WaitWithOutput closes stdin, reads stdout and stderr to end of stream,
// then waits. Draining happens before the blocking wait so a child with
// more output than a pipe holds cannot stall against it.
//
// If draining fails, stdout and stderr stay open in the handle and the
// child is not waited on; the caller can retry, or Close and Wait.
func (c *Child) WaitWithOutput() (*Output, error) {
	if c.waited.Load() {
		return nil, ErrAlreadyWaited
	}
	if err := c.stdin.Close(); err != nil {
		return nil, fmt.Errorf("process: stdin: %w", err)
	}

	stdout, stderr, err := drain(&c.stdout, &c.stderr)
	if err != nil {
		return nil, err
	}
	return c.finish(stdout, stderr)
}

// Communicate writes input to the child's stdin while draining stdout and
// stderr, then waits. stdin is closed once input is written; a child that
// exits or closes stdin without reading everything is not an error.
// Failures leave the handle as WaitWithOutput does.
func (c *Child) Communicate(input []byte) (*Output, error) {
	if c.waited.Load() {
		return nil, ErrAlreadyWaited
	}
	if len(input) > 0 && !c.stdin.Valid() {
		return nil, errors.New("process: communicate: stdin is not piped")
	}

	stdout, stderr, err := communicate(&c.stdin, input, &c.stdout, &c.stderr)
	if err != nil {
		return nil, err
	}
	return c.finish(stdout, stderr)
}

// finish closes the drained output descriptors and reaps the child.
func (c *Child) finish(stdout, stderr []byte) (*Output, error) {
	closeErr := errors.Join(c.stdout.Close(), c.stderr.Close())

	status, err := c.Wait()
	if err != nil {
		return nil, err
	}
	out := &Output{Status: status, Stdout: stdout, Stderr: stderr}
	if closeErr != nil {
		return out, fmt.Errorf("process: close output: %w", closeErr)
	}
	return out, nil
}

// Kill sends SIGKILL to the child. It does not wait; the caller still has
// to Wait to reap it.
func (c *Child) Kill() error {
	return c.Signal(unix.SIGKILL)
}

// Signal sends sig to the child.
func (c *Child) Signal(sig unix.Signal) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.waited.Load() {
		return ErrAlreadyWaited
	}
	if err := unix.Kill(c.pid, sig); err != nil {
		return fmt.Errorf("process: kill %d: %w", c.pid, err)
	}
	return nil
}

// Close closes whichever of stdin, stderr and stdout are still held, in
// that order, and returns the first error.
func (c *Child) Close() error {
	var first error
	for _, slot := range []*fd.FD{&c.stdin, &c.stderr, &c.stdout} {
		if err := slot.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// ExitCode decodes a raw status: the exit code for a normal exit, or
// 128 plus the signal number when the child was killed by a signal.
func ExitCode(ws unix.WaitStatus) int {
	switch {
	case ws.Exited():
		return ws.ExitStatus()
	case ws.Signaled():
		return 128 + int(ws.Signal())
	default:
		return -1
	}
}
