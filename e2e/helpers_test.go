//go:build e2e

package e2e

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/kahiteam/childproc/internal/testutil"
)

// childprocBinary is the path to the built childproc binary, set by TestMain.
var childprocBinary string

func TestMain(m *testing.M) {
	tmpDir, err := os.MkdirTemp("", "childproc-e2e-bin-*")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create temp dir: %v\n", err)
		os.Exit(1)
	}

	childprocBinary, err = testutil.BuildBinary(tmpDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build childproc binary: %v\n", err)
		os.RemoveAll(tmpDir)
		os.Exit(1)
	}

	// Suite-wide timeout fallback.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	go func() {
		<-ctx.Done()
		if ctx.Err() == context.DeadlineExceeded {
			fmt.Fprintln(os.Stderr, "E2E suite timeout exceeded (5 minutes)")
			os.Exit(2)
		}
	}()

	code := m.Run()
	cancel()
	os.RemoveAll(tmpDir)
	os.Exit(code)
}

// childproc runs the binary in a fresh directory.
func childproc(t *testing.T, stdin string, args ...string) testutil.CLIResult {
	t.Helper()
	return testutil.RunCLI(t, childprocBinary, t.TempDir(), stdin, args...)
}
