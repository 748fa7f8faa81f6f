package process

import (
	"io"
	"log/slog"
	"os"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// requireBinary skips the test when path is not an executable file.
func requireBinary(t *testing.T, path string) {
	t.Helper()
	info, err := os.Stat(path)
	if err != nil || info.Mode()&0111 == 0 {
		t.Skipf("%s not available", path)
	}
}

// within fails the test if fn does not return before timeout.
func within(t *testing.T, timeout time.Duration, fn func()) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		defer close(done)
		fn()
	}()
	select {
	case <-done:
	case <-time.After(timeout):
		t.Fatalf("did not finish within %s", timeout)
	}
}
