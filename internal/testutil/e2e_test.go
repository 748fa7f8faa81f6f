//go:build e2e

package testutil

import (
	"strings"
	"testing"
)

func TestRunCLIExitCode(t *testing.T) {
	RequireBinary(t, "/bin/sh")
	res := RunCLI(t, "/bin/sh", TempDir(t), "in", "-c", "cat; echo err >&2; exit 4")
	if res.ExitCode != 4 {
		t.Fatalf("exit = %d, want 4", res.ExitCode)
	}
	if res.Stdout != "in" || strings.TrimSpace(res.Stderr) != "err" {
		t.Fatalf("stdout = %q, stderr = %q", res.Stdout, res.Stderr)
	}
}
