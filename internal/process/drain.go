package process

import (
	"fmt"

	"golang.org/x/sys/unix"

	"github.com/kahiteam/childproc/internal/fd"
)

// readChunk is how much buffer space is added per read.
const readChunk = 16 * 1024

// drain reads stdout and stderr to end of stream without letting either
// stall the other: a child blocked writing a full stderr pipe while we
// sit in a blocking stdout read would never finish. Both descriptors go
// non-blocking and are polled from this goroutine. Once one stream ends,
// the other is switched back to blocking and read to completion.
//
// Descriptors are read but not closed. Whatever the outcome they are
// left in blocking mode.
func drain(stdout, stderr *fd.FD) ([]byte, []byte, error) {
	switch {
	case !stdout.Valid() && !stderr.Valid():
		return nil, nil, nil
	case !stderr.Valid():
		out, err := stdout.ReadAll(nil, readChunk)
		if err != nil {
			return nil, nil, fmt.Errorf("process: read stdout: %w", err)
		}
		return out, nil, nil
	case !stdout.Valid():
		errOut, err := stderr.ReadAll(nil, readChunk)
		if err != nil {
			return nil, nil, fmt.Errorf("process: read stderr: %w", err)
		}
		return nil, errOut, nil
	}

	src := [2]*fd.FD{stdout, stderr}
	defer restoreBlocking(stdout, stderr)

	var bufs [2][]byte
	for _, f := range src {
		if err := f.SetNonblock(true); err != nil {
			return nil, nil, fmt.Errorf("process: %w", err)
		}
	}
	pfds := []unix.PollFd{
		{Fd: int32(stdout.Int()), Events: unix.POLLIN},
		{Fd: int32(stderr.Int()), Events: unix.POLLIN},
	}

	for {
		if err := poll(pfds); err != nil {
			return nil, nil, err
		}

		for i := range pfds {
			if pfds[i].Revents == 0 {
				continue
			}
			var (
				eof bool
				err error
			)
			bufs[i], eof, err = src[i].ReadAvailable(bufs[i], readChunk)
			if err != nil {
				return nil, nil, fmt.Errorf("process: read %s: %w", streamNames[i+1], err)
			}
			if !eof {
				continue
			}

			other := 1 - i
			if err := src[other].SetNonblock(false); err != nil {
				return nil, nil, fmt.Errorf("process: %w", err)
			}
			bufs[other], err = src[other].ReadAll(bufs[other], readChunk)
			if err != nil {
				return nil, nil, fmt.Errorf("process: read %s: %w", streamNames[other+1], err)
			}
			return bufs[0], bufs[1], nil
		}
	}
}

// communicate writes input to stdin while reading stdout and stderr, so
// neither side can fill a pipe the other is waiting on. stdin is closed
// once input is written, or as soon as the child closes its end. Output
// descriptors are read but not closed, and are left in blocking mode.
func communicate(stdin *fd.FD, input []byte, stdout, stderr *fd.FD) ([]byte, []byte, error) {
	defer restoreBlocking(stdin, stdout, stderr)

	slots := [3]*fd.FD{stdin, stdout, stderr}
	pfds := make([]unix.PollFd, 3)
	for i, f := range slots {
		pfds[i].Fd = -1
		if !f.Valid() {
			continue
		}
		if i == 0 && len(input) == 0 {
			if err := stdin.Close(); err != nil {
				return nil, nil, fmt.Errorf("process: stdin: %w", err)
			}
			continue
		}
		if err := f.SetNonblock(true); err != nil {
			return nil, nil, fmt.Errorf("process: %w", err)
		}
		pfds[i].Fd = int32(f.Int())
		pfds[i].Events = unix.POLLIN
		if i == 0 {
			pfds[i].Events = unix.POLLOUT
		}
	}

	var bufs [2][]byte
	for pending(pfds) {
		if err := poll(pfds); err != nil {
			return nil, nil, err
		}

		if pfds[0].Fd >= 0 && pfds[0].Revents != 0 {
			n, err := stdin.WriteAvailable(input)
			input = input[n:]
			if err != nil && err != unix.EPIPE {
				return nil, nil, fmt.Errorf("process: write stdin: %w", err)
			}
			// A child that exits or closes stdin early leaves the rest unread.
			if err == unix.EPIPE || len(input) == 0 {
				pfds[0].Fd = -1
				if err := stdin.Close(); err != nil {
					return nil, nil, fmt.Errorf("process: stdin: %w", err)
				}
			}
		}

		for i := 1; i < 3; i++ {
			if pfds[i].Fd < 0 || pfds[i].Revents == 0 {
				continue
			}
			var (
				eof bool
				err error
			)
			bufs[i-1], eof, err = slots[i].ReadAvailable(bufs[i-1], readChunk)
			if err != nil {
				return nil, nil, fmt.Errorf("process: read %s: %w", streamNames[i], err)
			}
			if eof {
				pfds[i].Fd = -1
			}
		}
	}
	return bufs[0], bufs[1], nil
}

// poll waits without a timeout until an entry is ready, retrying EINTR.
// Entries with a negative descriptor are ignored by the kernel.
func poll(pfds []unix.PollFd) error {
	for {
		_, err := unix.Poll(pfds, -1)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return fmt.Errorf("process: poll: %w", err)
		}
		return nil
	}
}

func pending(pfds []unix.PollFd) bool {
	for _, p := range pfds {
		if p.Fd >= 0 {
			return true
		}
	}
	return false
}

// restoreBlocking puts still-held descriptors back in blocking mode so a
// caller reading them through the handle's pipes does not see EAGAIN.
func restoreBlocking(fds ...*fd.FD) {
	for _, f := range fds {
		if f.Valid() {
			_ = f.SetNonblock(false)
		}
	}
}
