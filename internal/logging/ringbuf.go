package logging

import "sync"

// RingBuffer keeps the most recent bytes written to it, up to a fixed size.
type RingBuffer struct {
	mu   sync.Mutex
	buf  []byte
	pos  int
	full bool
}

// NewRingBuffer creates a ring buffer with the given capacity.
func NewRingBuffer(size int) *RingBuffer {
	return &RingBuffer{buf: make([]byte, size)}
}

// Write implements io.Writer. It never fails; older bytes are overwritten.
func (rb *RingBuffer) Write(p []byte) (int, error) {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	n := len(p)
	size := len(rb.buf)
	if size == 0 {
		return n, nil
	}
	if len(p) >= size {
		copy(rb.buf, p[len(p)-size:])
		rb.pos = 0
		rb.full = true
		return n, nil
	}
	for len(p) > 0 {
		c := copy(rb.buf[rb.pos:], p)
		p = p[c:]
		rb.pos += c
		if rb.pos == size {
			rb.pos = 0
			rb.full = true
		}
	}
	return n, nil
}

// Read returns the last n bytes from the buffer, or all of them when
// fewer are held.
func (rb *RingBuffer) Read(n int) []byte {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	if avail := rb.len(); n > avail {
		n = avail
	}
	if n <= 0 {
		return nil
	}

	out := make([]byte, n)
	start := rb.pos - n
	if start >= 0 {
		copy(out, rb.buf[start:rb.pos])
		return out
	}
	start += len(rb.buf)
	c := copy(out, rb.buf[start:])
	copy(out[c:], rb.buf[:rb.pos])
	return out
}

// Len returns the number of bytes stored.
func (rb *RingBuffer) Len() int {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	return rb.len()
}

func (rb *RingBuffer) len() int {
	if rb.full {
		return len(rb.buf)
	}
	return rb.pos
}

// Reset clears the buffer.
func (rb *RingBuffer) Reset() {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	rb.pos = 0
	rb.full = false
}
