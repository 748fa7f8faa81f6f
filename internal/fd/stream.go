package fd

// Stream exposes a descriptor slot owned by someone else as an
// io.ReadWriteCloser. Closing the stream empties the slot, so the owner
// sees the descriptor as already consumed.
type Stream struct {
	slot *FD
}

// NewStream returns a stream over slot, or nil when the slot is empty.
func NewStream(slot *FD) *Stream {
	if slot == nil || !slot.Valid() {
		return nil
	}
	return &Stream{slot: slot}
}

func (s *Stream) Read(p []byte) (int, error)  { return s.slot.Read(p) }
func (s *Stream) Write(p []byte) (int, error) { return s.slot.Write(p) }
func (s *Stream) Close() error                { return s.slot.Close() }

// Fd returns the underlying descriptor number, or -1 once closed.
func (s *Stream) Fd() int { return s.slot.Int() }
