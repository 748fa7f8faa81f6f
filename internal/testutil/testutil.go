// Package testutil provides shared test helpers for the childproc test suite.
package testutil

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/kahiteam/childproc/internal/config"
)

// TempDir creates a temporary directory for testing and registers cleanup.
func TempDir(t *testing.T) string {
	t.Helper()
	dir, err := os.MkdirTemp("", "childproc-test-*")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.RemoveAll(dir) })
	return dir
}

// MustParseConfig parses a TOML string into a Config struct, failing the
// test on error. Intended for concise test setup.
func MustParseConfig(t *testing.T, toml string) *config.Config {
	t.Helper()
	cfg, warnings, err := config.LoadBytes([]byte(toml), "test.toml")
	if err != nil {
		t.Fatalf("MustParseConfig: %v", err)
	}
	for _, w := range warnings {
		t.Logf("config warning: %s", w)
	}
	return cfg
}

// WaitFor polls a condition function until it returns true or the timeout
// expires, failing the test on timeout.
func WaitFor(t *testing.T, condition func() bool, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	interval := 50 * time.Millisecond

	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(interval)
	}
	t.Fatal("WaitFor: condition not met within timeout")
}

// WriteFile writes content to a file in the given directory.
func WriteFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("cannot write %s: %v", path, err)
	}
	return path
}

// WriteScript writes an executable /bin/sh script to dir.
func WriteScript(t *testing.T, dir, name, body string) string {
	t.Helper()
	RequireBinary(t, "/bin/sh")
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0755); err != nil {
		t.Fatalf("cannot write %s: %v", path, err)
	}
	return path
}

// RequireBinary skips the test unless path exists and is executable.
func RequireBinary(t *testing.T, path string) {
	t.Helper()
	info, err := os.Stat(path)
	if err != nil || info.IsDir() || info.Mode()&0111 == 0 {
		t.Skipf("%s not available", path)
	}
}

// Logger returns a debug-level text logger writing to the test's output.
func Logger(t *testing.T) *slog.Logger {
	t.Helper()
	return slog.New(slog.NewTextHandler(t.Output(), &slog.HandlerOptions{Level: slog.LevelDebug}))
}
