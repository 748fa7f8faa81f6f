//go:build e2e

package testutil

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"
)

// DefaultE2ETimeout is the maximum time a single CLI invocation may run.
const DefaultE2ETimeout = 30 * time.Second

// BuildBinary compiles the childproc command into dir and returns its path.
// It prefers a pre-built ./bin/childproc when CHILDPROC_BINARY is unset.
func BuildBinary(dir string) (string, error) {
	if p := os.Getenv("CHILDPROC_BINARY"); p != "" {
		return p, nil
	}
	bin := filepath.Join(dir, "childproc")
	cmd := exec.Command("go", "build", "-o", bin, "github.com/kahiteam/childproc/cmd/childproc")
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return "", err
	}
	return bin, nil
}

// CLIResult is the outcome of one CLI invocation.
type CLIResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// RunCLI runs binary with args and stdin, in dir, and waits for it.
func RunCLI(t *testing.T, binary, dir, stdin string, args ...string) CLIResult {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), DefaultE2ETimeout)
	defer cancel()

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, binary, args...)
	cmd.Dir = dir
	cmd.Stdin = bytes.NewBufferString(stdin)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	res := CLIResult{Stdout: stdout.String(), Stderr: stderr.String()}
	var exitErr *exec.ExitError
	switch {
	case err == nil:
	case errors.As(err, &exitErr):
		res.ExitCode = exitErr.ExitCode()
	default:
		t.Fatalf("run %s: %v", binary, err)
	}
	return res
}
