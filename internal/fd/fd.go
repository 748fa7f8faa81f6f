// Package fd provides exclusively owned file descriptors and the pipe,
// discard-device and non-blocking primitives the process layer builds on.
//
// An FD has exactly one owner. Take moves the descriptor out and leaves
// the source empty, so a descriptor handed from one owner to the next is
// never closed twice.
package fd

import (
	"errors"
	"fmt"
	"io"

	"golang.org/x/sys/unix"
)

// ErrClosed is returned when using an FD whose descriptor was already
// taken or closed.
var ErrClosed = errors.New("fd: descriptor already consumed")

// DevNull is the discard device opened for Null redirection.
const DevNull = "/dev/null"

// FD is an optional, exclusively owned descriptor. The zero value is empty.
type FD struct {
	n    int
	live bool
}

// Own wraps a raw descriptor number. The caller gives up ownership of n.
func Own(n int) FD {
	return FD{n: n, live: true}
}

// Valid reports whether f holds a descriptor.
func (f *FD) Valid() bool { return f.live }

// Int returns the descriptor number, or -1 when f is empty.
func (f *FD) Int() int {
	if !f.live {
		return -1
	}
	return f.n
}

// Take moves the descriptor out of f. f is empty afterwards.
func (f *FD) Take() FD {
	t := *f
	*f = FD{}
	return t
}

// Close takes and closes the descriptor. Closing an empty FD is a no-op.
// EINTR is not retried: on Linux the descriptor is released regardless.
func (f *FD) Close() error {
	t := f.Take()
	if !t.live {
		return nil
	}
	if err := unix.Close(t.n); err != nil && err != unix.EINTR {
		return fmt.Errorf("fd: close %d: %w", t.n, err)
	}
	return nil
}

// Read reads once into p. It returns io.EOF at end of stream and
// unix.EAGAIN when the descriptor is non-blocking and nothing is available.
func (f *FD) Read(p []byte) (int, error) {
	if !f.live {
		return 0, ErrClosed
	}
	if len(p) == 0 {
		return 0, nil
	}
	for {
		n, err := unix.Read(f.n, p)
		switch {
		case err == unix.EINTR:
			continue
		case err != nil:
			return 0, err
		case n == 0:
			return 0, io.EOF
		}
		return n, nil
	}
}

// Write writes all of p, looping over short writes.
func (f *FD) Write(p []byte) (int, error) {
	if !f.live {
		return 0, ErrClosed
	}
	written := 0
	for written < len(p) {
		n, err := unix.Write(f.n, p[written:])
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return written, err
		}
		written += n
	}
	return written, nil
}

// WriteAvailable writes as much of p as the descriptor accepts without
// blocking. A full pipe ends the call early without an error.
func (f *FD) WriteAvailable(p []byte) (int, error) {
	if !f.live {
		return 0, ErrClosed
	}
	written := 0
	for written < len(p) {
		n, err := unix.Write(f.n, p[written:])
		switch {
		case err == unix.EINTR:
			continue
		case err == unix.EAGAIN:
			return written, nil
		case err != nil:
			return written, err
		}
		written += n
	}
	return written, nil
}

// SetNonblock switches the descriptor between blocking and non-blocking mode.
func (f *FD) SetNonblock(nonblocking bool) error {
	if !f.live {
		return ErrClosed
	}
	if err := unix.SetNonblock(f.n, nonblocking); err != nil {
		return fmt.Errorf("fd: set nonblock %d: %w", f.n, err)
	}
	return nil
}

// ReadAll appends everything up to end of stream to dst. The descriptor
// must be in blocking mode.
func (f *FD) ReadAll(dst []byte, chunk int) ([]byte, error) {
	for {
		dst = grow(dst, chunk)
		n, err := f.Read(dst[len(dst):cap(dst)])
		dst = dst[:len(dst)+n]
		if err == io.EOF {
			return dst, nil
		}
		if err != nil {
			return dst, err
		}
	}
}

// ReadAvailable appends whatever can be read without blocking to dst.
// The boolean result is true once the writer side has gone away.
func (f *FD) ReadAvailable(dst []byte, chunk int) ([]byte, bool, error) {
	for {
		dst = grow(dst, chunk)
		n, err := f.Read(dst[len(dst):cap(dst)])
		dst = dst[:len(dst)+n]
		switch {
		case err == io.EOF:
			return dst, true, nil
		case err == unix.EAGAIN:
			return dst, false, nil
		case err != nil:
			return dst, false, err
		}
	}
}

// MoveAbove re-homes the descriptor to a number >= lowest, keeping
// close-on-exec set. Descriptors already at or above lowest are untouched.
func (f *FD) MoveAbove(lowest int) error {
	if !f.live {
		return ErrClosed
	}
	if f.n >= lowest {
		return nil
	}
	nfd, err := unix.FcntlInt(uintptr(f.n), unix.F_DUPFD_CLOEXEC, lowest)
	if err != nil {
		return fmt.Errorf("fd: dupfd %d: %w", f.n, err)
	}
	old := f.n
	f.n = nfd
	_ = unix.Close(old)
	return nil
}

// Pipe creates an anonymous pipe with close-on-exec set on both ends.
func Pipe() (r, w FD, err error) {
	var p [2]int
	if err := unix.Pipe2(p[:], unix.O_CLOEXEC); err != nil {
		return FD{}, FD{}, fmt.Errorf("pipe: %w", err)
	}
	return Own(p[0]), Own(p[1]), nil
}

// OpenNull opens the discard device read-only, or write-only when write
// is set.
func OpenNull(write bool) (FD, error) {
	mode := unix.O_RDONLY
	if write {
		mode = unix.O_WRONLY
	}
	for {
		n, err := unix.Open(DevNull, mode|unix.O_CLOEXEC, 0)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return FD{}, fmt.Errorf("open %s: %w", DevNull, err)
		}
		return Own(n), nil
	}
}

func grow(b []byte, chunk int) []byte {
	if chunk <= 0 {
		chunk = 4096
	}
	if cap(b)-len(b) >= chunk {
		return b
	}
	nb := make([]byte, len(b), 2*cap(b)+chunk)
	copy(nb, b)
	return nb
}
