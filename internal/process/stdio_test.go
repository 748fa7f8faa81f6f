package process

import (
	"io"
	"testing"
)

func TestParseStdio(t *testing.T) {
	cases := map[string]Stdio{
		"":        Inherit,
		"inherit": Inherit,
		"Piped":   Piped,
		"pipe":    Piped,
		" null ":  Null,
	}
	for in, want := range cases {
		got, err := ParseStdio(in)
		if err != nil {
			t.Fatalf("ParseStdio(%q): %v", in, err)
		}
		if got != want {
			t.Fatalf("ParseStdio(%q) = %v, want %v", in, got, want)
		}
	}
	if _, err := ParseStdio("pty"); err == nil {
		t.Fatal("expected error for unknown mode")
	}
}

func TestStdioString(t *testing.T) {
	if Piped.String() != "piped" || Null.String() != "null" || Inherit.String() != "inherit" {
		t.Fatal("unexpected mode names")
	}
	if Stdio(9).String() != "Stdio(9)" {
		t.Fatalf("String() = %q", Stdio(9).String())
	}
}

func TestResolveInherit(t *testing.T) {
	for _, isStdin := range []bool{true, false} {
		res, err := resolve(Inherit, isStdin)
		if err != nil {
			t.Fatal(err)
		}
		if res.ours.Valid() || res.theirs.Valid() {
			t.Fatal("inherit should leave both sides empty")
		}
	}
}

func TestResolvePipedStdin(t *testing.T) {
	res, err := resolve(Piped, true)
	if err != nil {
		t.Fatal(err)
	}
	defer res.ours.Close()
	defer res.theirs.Close()

	// Parent writes, child reads.
	if _, err := res.ours.Write([]byte("in")); err != nil {
		t.Fatal(err)
	}
	buf := make([]byte, 2)
	if _, err := io.ReadFull(&res.theirs, buf); err != nil {
		t.Fatal(err)
	}
	if string(buf) != "in" {
		t.Fatalf("got %q", buf)
	}
}

func TestResolvePipedOutput(t *testing.T) {
	res, err := resolve(Piped, false)
	if err != nil {
		t.Fatal(err)
	}
	defer res.ours.Close()
	defer res.theirs.Close()

	// Child writes, parent reads.
	if _, err := res.theirs.Write([]byte("out")); err != nil {
		t.Fatal(err)
	}
	buf := make([]byte, 3)
	if _, err := io.ReadFull(&res.ours, buf); err != nil {
		t.Fatal(err)
	}
	if string(buf) != "out" {
		t.Fatalf("got %q", buf)
	}
}

func TestResolveNull(t *testing.T) {
	in, err := resolve(Null, true)
	if err != nil {
		t.Fatal(err)
	}
	defer in.theirs.Close()
	if in.ours.Valid() || !in.theirs.Valid() {
		t.Fatal("null should only set theirs")
	}
	if _, err := in.theirs.Read(make([]byte, 1)); err != io.EOF {
		t.Fatalf("null stdin read = %v, want EOF", err)
	}

	out, err := resolve(Null, false)
	if err != nil {
		t.Fatal(err)
	}
	defer out.theirs.Close()
	if _, err := out.theirs.Write([]byte("gone")); err != nil {
		t.Fatalf("null stdout write: %v", err)
	}
}

func TestResolveStreamsAboveStdio(t *testing.T) {
	s, err := resolveStreams(Piped, Null, Piped)
	if err != nil {
		t.Fatal(err)
	}
	defer s.closeOurs()
	defer s.closeTheirs()

	for slot, n := range s.theirFds() {
		if n < 3 {
			t.Fatalf("slot %d source fd = %d, want >= 3", slot, n)
		}
	}
	if !s[0].ours.Valid() || s[1].ours.Valid() || !s[2].ours.Valid() {
		t.Fatal("unexpected parent-side descriptors")
	}
}

func TestResolveStreamsInheritAll(t *testing.T) {
	s, err := resolveStreams(Inherit, Inherit, Inherit)
	if err != nil {
		t.Fatal(err)
	}
	if s.theirFds() != [3]int{-1, -1, -1} {
		t.Fatalf("theirFds = %v, want all -1", s.theirFds())
	}
}

func TestResolveStreamsMixedInherit(t *testing.T) {
	s, err := resolveStreams(Inherit, Piped, Inherit)
	if err != nil {
		t.Fatal(err)
	}
	defer s.closeOurs()
	defer s.closeTheirs()

	fds := s.theirFds()
	if fds[0] != -1 || fds[2] != -1 {
		t.Fatalf("inherited slots = %v, want -1", fds)
	}
	if fds[1] < 3 {
		t.Fatalf("stdout source = %d, want >= 3", fds[1])
	}
}

func TestResolveStreamsUnknownMode(t *testing.T) {
	if _, err := resolveStreams(Piped, Stdio(7), Inherit); err == nil {
		t.Fatal("expected error for unknown mode")
	}
}
