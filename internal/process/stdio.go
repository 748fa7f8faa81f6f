package process

import (
	"fmt"
	"strings"

	"github.com/kahiteam/childproc/internal/fd"
)

// Stdio selects how one of the child's standard streams is connected.
type Stdio int

const (
	// Inherit leaves the parent's descriptor in place.
	Inherit Stdio = iota
	// Piped connects the stream to a new pipe whose other end the parent keeps.
	Piped
	// Null connects the stream to the discard device.
	Null
)

func (s Stdio) String() string {
	switch s {
	case Inherit:
		return "inherit"
	case Piped:
		return "piped"
	case Null:
		return "null"
	default:
		return fmt.Sprintf("Stdio(%d)", int(s))
	}
}

// ParseStdio converts a mode name (inherit, piped, null) to a Stdio.
// The empty string means Inherit.
func ParseStdio(name string) (Stdio, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "inherit":
		return Inherit, nil
	case "piped", "pipe":
		return Piped, nil
	case "null", "devnull":
		return Null, nil
	default:
		return Inherit, fmt.Errorf("unknown stdio mode %q", name)
	}
}

// resolution is the outcome of resolving one stream: ours stays with the
// parent, theirs is installed in the child and closed in the parent.
type resolution struct {
	ours   fd.FD
	theirs fd.FD
}

// resolve builds the descriptor pair for one stream. For stdin the parent
// writes and the child reads; for stdout and stderr the other way round.
func resolve(mode Stdio, isStdin bool) (resolution, error) {
	switch mode {
	case Inherit:
		return resolution{}, nil
	case Piped:
		r, w, err := fd.Pipe()
		if err != nil {
			return resolution{}, err
		}
		if isStdin {
			return resolution{ours: w, theirs: r}, nil
		}
		return resolution{ours: r, theirs: w}, nil
	case Null:
		n, err := fd.OpenNull(!isStdin)
		if err != nil {
			return resolution{}, err
		}
		return resolution{theirs: n}, nil
	default:
		return resolution{}, fmt.Errorf("unknown stdio mode %d", int(mode))
	}
}

var streamNames = [3]string{"stdin", "stdout", "stderr"}

// streams holds the resolutions for stdin, stdout and stderr in slot order.
type streams [3]resolution

// resolveStreams resolves all three streams. On failure every descriptor
// created so far is closed.
func resolveStreams(stdin, stdout, stderr Stdio) (*streams, error) {
	var s streams
	for slot, mode := range [3]Stdio{stdin, stdout, stderr} {
		res, err := resolve(mode, slot == 0)
		if err != nil {
			s.closeOurs()
			s.closeTheirs()
			return nil, fmt.Errorf("process: %s: %w", streamNames[slot], err)
		}
		s[slot] = res
	}
	// A child-side descriptor sitting on 0..2 could be overwritten while
	// installing an earlier slot.
	for slot := range s {
		if !s[slot].theirs.Valid() {
			continue
		}
		if err := s[slot].theirs.MoveAbove(3); err != nil {
			s.closeOurs()
			s.closeTheirs()
			return nil, fmt.Errorf("process: %s: %w", streamNames[slot], err)
		}
	}
	return &s, nil
}

// theirFds returns the descriptors to install on 0, 1 and 2, with -1 for
// slots that are inherited.
func (s *streams) theirFds() [3]int {
	return [3]int{s[0].theirs.Int(), s[1].theirs.Int(), s[2].theirs.Int()}
}

func (s *streams) closeTheirs() {
	for slot := range s {
		_ = s[slot].theirs.Close()
	}
}

func (s *streams) closeOurs() {
	for slot := range s {
		_ = s[slot].ours.Close()
	}
}
