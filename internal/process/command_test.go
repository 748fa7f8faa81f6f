package process

import (
	"bytes"
	"errors"
	"io"
	"io/fs"
	"strconv"
	"strings"
	"testing"
	"time"

	"golang.org/x/sys/unix"

	"github.com/kahiteam/childproc/internal/fd"
)

func TestCommandExitStatusInherited(t *testing.T) {
	requireBinary(t, "/bin/sh")

	for _, code := range []int{0, 1, 7, 255} {
		cmd := NewCommand("/bin/sh", "-c", "exit "+strconv.Itoa(code))
		child, err := cmd.Spawn()
		if err != nil {
			t.Fatal(err)
		}
		ws, err := child.Wait()
		if err != nil {
			t.Fatal(err)
		}
		if !ws.Exited() || ws.ExitStatus() != code {
			t.Fatalf("status = %#x, want exit %d", uint32(ws), code)
		}
		if ExitCode(ws) != code {
			t.Fatalf("ExitCode = %d, want %d", ExitCode(ws), code)
		}
	}
}

func TestCommandAllInherited(t *testing.T) {
	requireBinary(t, "/bin/true")

	child, err := NewCommand("/bin/true").Spawn()
	if err != nil {
		t.Fatalf("Spawn = %v", err)
	}
	ws, err := child.Wait()
	if err != nil {
		t.Fatal(err)
	}
	if ws != 0 {
		t.Fatalf("status = %#x, want 0", uint32(ws))
	}
}

func TestCommandEcho(t *testing.T) {
	requireBinary(t, "/bin/echo")

	cmd := NewCommand("/bin/echo", "Hello, World!").
		WithStdout(Piped).
		WithStderr(Piped).
		WithLogger(testLogger())
	child, err := cmd.Spawn()
	if err != nil {
		t.Fatal(err)
	}
	out, err := child.WaitWithOutput()
	if err != nil {
		t.Fatal(err)
	}
	if out.Status != 0 {
		t.Fatalf("status = %#x, want 0", uint32(out.Status))
	}
	if string(out.Stdout) != "Hello, World!\n" {
		t.Fatalf("stdout = %q", out.Stdout)
	}
	if len(out.Stderr) != 0 {
		t.Fatalf("stderr = %q, want empty", out.Stderr)
	}
}

func TestCommandEnvReplaces(t *testing.T) {
	requireBinary(t, "/usr/bin/env")
	t.Setenv("CHILDPROC_SHOULD_NOT_LEAK", "1")

	out, err := NewCommand("/usr/bin/env").
		WithEnvMap(map[string]string{"HELLO": "world", "FOO": "bar"}).
		Output()
	if err != nil {
		t.Fatal(err)
	}
	if string(out.Stdout) != "FOO=bar\nHELLO=world\n" {
		t.Fatalf("child environment = %q", out.Stdout)
	}
}

func TestCommandEnvInherited(t *testing.T) {
	requireBinary(t, "/usr/bin/env")
	t.Setenv("CHILDPROC_INHERITED", "yes")

	out, err := NewCommand("/usr/bin/env").Output()
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Contains(out.Stdout, []byte("CHILDPROC_INHERITED=yes\n")) {
		t.Fatalf("inherited variable missing from %q", out.Stdout)
	}
}

func TestCommandNotFound(t *testing.T) {
	child, err := NewCommand("/nonexistent/program").WithStdout(Piped).Spawn()
	if err == nil {
		t.Fatal("expected error for missing program")
	}
	if child != nil {
		t.Fatal("no handle should be returned on failure")
	}
	if !errors.Is(err, unix.ENOENT) {
		t.Fatalf("err = %v, want ENOENT", err)
	}
	if !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("err = %v, want fs.ErrNotExist", err)
	}
}

func TestCommandNotExecutable(t *testing.T) {
	dir := t.TempDir()
	_, err := NewCommand(dir).Spawn()
	if !errors.Is(err, unix.EACCES) {
		t.Fatalf("err = %v, want EACCES", err)
	}
}

func TestCommandKill(t *testing.T) {
	requireBinary(t, "/bin/sleep")

	child, err := NewCommand("/bin/sleep", "30").Spawn()
	if err != nil {
		t.Fatal(err)
	}
	if err := child.Kill(); err != nil {
		t.Fatal(err)
	}

	var ws unix.WaitStatus
	within(t, 10*time.Second, func() {
		ws, err = child.Wait()
	})
	if err != nil {
		t.Fatal(err)
	}
	if !ws.Signaled() || ws.Signal() != unix.SIGKILL {
		t.Fatalf("status = %#x, want killed by SIGKILL", uint32(ws))
	}
	if ExitCode(ws) != 128+int(unix.SIGKILL) {
		t.Fatalf("ExitCode = %d", ExitCode(ws))
	}
}

func TestCommandStdinPiped(t *testing.T) {
	requireBinary(t, "/bin/cat")

	child, err := NewCommand("/bin/cat").
		WithStdin(Piped).
		WithStdout(Piped).
		Spawn()
	if err != nil {
		t.Fatal(err)
	}
	in := child.StdinPipe()
	if in == nil {
		t.Fatal("expected stdin pipe")
	}
	if _, err := io.WriteString(in, "fed through stdin"); err != nil {
		t.Fatal(err)
	}
	// WaitWithOutput closes stdin; cat must see EOF and exit.
	var out *Output
	within(t, 10*time.Second, func() {
		out, err = child.WaitWithOutput()
	})
	if err != nil {
		t.Fatal(err)
	}
	if string(out.Stdout) != "fed through stdin" {
		t.Fatalf("stdout = %q", out.Stdout)
	}
	if out.Stderr != nil {
		t.Fatalf("stderr was not piped, got %q", out.Stderr)
	}
}

func TestCommandNullStreams(t *testing.T) {
	requireBinary(t, "/bin/sh")

	out, err := NewCommand("/bin/sh", "-c", "cat; echo done; echo hidden >&2").
		WithStdin(Null).
		WithStderr(Null).
		WithStdout(Piped).
		Output()
	if err != nil {
		t.Fatal(err)
	}
	if string(out.Stdout) != "done\n" {
		t.Fatalf("stdout = %q", out.Stdout)
	}
	if len(out.Stderr) != 0 {
		t.Fatalf("stderr should be discarded, got %q", out.Stderr)
	}
}

// TestCommandLargeOutputNoDeadlock has the child fill stdout and then
// stderr with far more than a pipe buffer each. Reading stdout to the end
// before touching stderr would hang.
func TestCommandLargeOutputNoDeadlock(t *testing.T) {
	requireBinary(t, "/bin/sh")
	requireBinary(t, "/usr/bin/head")

	const size = 1 << 20
	script := "head -c " + strconv.Itoa(size) + " /dev/zero; head -c " + strconv.Itoa(size) + " /dev/zero >&2; head -c 10 /dev/zero"
	child, err := NewCommand("/bin/sh", "-c", script).
		WithStdout(Piped).
		WithStderr(Piped).
		Spawn()
	if err != nil {
		t.Fatal(err)
	}

	var out *Output
	within(t, 60*time.Second, func() {
		out, err = child.WaitWithOutput()
	})
	if err != nil {
		t.Fatal(err)
	}
	if out.Status != 0 {
		t.Fatalf("status = %#x", uint32(out.Status))
	}
	if len(out.Stdout) != size+10 {
		t.Fatalf("stdout = %d bytes, want %d", len(out.Stdout), size+10)
	}
	if len(out.Stderr) != size {
		t.Fatalf("stderr = %d bytes, want %d", len(out.Stderr), size)
	}
}

func TestChildCloseAfterWaitWithOutput(t *testing.T) {
	requireBinary(t, "/bin/echo")

	child, err := NewCommand("/bin/echo", "x").
		WithStdin(Piped).
		WithStdout(Piped).
		WithStderr(Piped).
		Spawn()
	if err != nil {
		t.Fatal(err)
	}
	if _, err := child.WaitWithOutput(); err != nil {
		t.Fatal(err)
	}

	// Freed descriptor numbers are handed out again; Close must not
	// reach these.
	r, w, err := fd.Pipe()
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()
	defer w.Close()

	if err := child.Close(); err != nil {
		t.Fatalf("Close after WaitWithOutput: %v", err)
	}
	if _, err := w.Write([]byte("k")); err != nil {
		t.Fatalf("new pipe damaged by Close: %v", err)
	}
	buf := make([]byte, 1)
	if _, err := r.Read(buf); err != nil || buf[0] != 'k' {
		t.Fatalf("read = %q, %v", buf, err)
	}
}

func TestChildWaitTwice(t *testing.T) {
	requireBinary(t, "/bin/true")

	child, err := NewCommand("/bin/true").Spawn()
	if err != nil {
		t.Fatal(err)
	}
	if _, err := child.Wait(); err != nil {
		t.Fatal(err)
	}
	if !child.Waited() {
		t.Fatal("Waited() = false after Wait")
	}
	if _, err := child.Wait(); !errors.Is(err, ErrAlreadyWaited) {
		t.Fatalf("second Wait = %v, want ErrAlreadyWaited", err)
	}
	if _, err := child.WaitWithOutput(); !errors.Is(err, ErrAlreadyWaited) {
		t.Fatalf("WaitWithOutput after Wait = %v, want ErrAlreadyWaited", err)
	}
	if err := child.Kill(); !errors.Is(err, ErrAlreadyWaited) {
		t.Fatalf("Kill after Wait = %v, want ErrAlreadyWaited", err)
	}
}

func TestChildCommunicateLargeInput(t *testing.T) {
	requireBinary(t, "/bin/cat")

	child, err := NewCommand("/bin/cat").
		WithStdin(Piped).
		WithStdout(Piped).
		WithStderr(Piped).
		Spawn()
	if err != nil {
		t.Fatal(err)
	}
	input := bytes.Repeat([]byte("communicate"), 1<<17)

	var out *Output
	within(t, 30*time.Second, func() {
		out, err = child.Communicate(input)
	})
	if err != nil {
		t.Fatal(err)
	}
	if out.Status != 0 {
		t.Fatalf("status = %#x, want 0", uint32(out.Status))
	}
	if !bytes.Equal(out.Stdout, input) {
		t.Fatalf("stdout = %d bytes, want %d", len(out.Stdout), len(input))
	}
	if err := child.Close(); err != nil {
		t.Fatalf("Close after Communicate = %v", err)
	}
}

func TestChildCommunicateIgnoredInput(t *testing.T) {
	requireBinary(t, "/bin/true")

	child, err := NewCommand("/bin/true").WithStdin(Piped).WithStdout(Piped).Spawn()
	if err != nil {
		t.Fatal(err)
	}
	var out *Output
	within(t, 30*time.Second, func() {
		out, err = child.Communicate(bytes.Repeat([]byte("x"), 1<<20))
	})
	if err != nil {
		t.Fatalf("Communicate = %v, want unread input tolerated", err)
	}
	if out.Status != 0 {
		t.Fatalf("status = %#x, want 0", uint32(out.Status))
	}
}

func TestChildCommunicateNeedsPipedStdin(t *testing.T) {
	requireBinary(t, "/bin/true")

	child, err := NewCommand("/bin/true").Spawn()
	if err != nil {
		t.Fatal(err)
	}
	defer child.Wait()
	if _, err := child.Communicate([]byte("lost")); err == nil {
		t.Fatal("expected error with inherited stdin")
	}
}

// TestChildSignalWhileWaiting signals continuously while another goroutine
// reaps the child. Every signal must land on the live or zombie child, or
// be refused once it is reaped; none may fail with ESRCH.
func TestChildSignalWhileWaiting(t *testing.T) {
	requireBinary(t, "/bin/true")

	for i := 0; i < 20; i++ {
		child, err := NewCommand("/bin/true").Spawn()
		if err != nil {
			t.Fatal(err)
		}
		done := make(chan error, 1)
		go func() {
			_, err := child.Wait()
			done <- err
		}()

		for {
			err := child.Signal(unix.Signal(0))
			if errors.Is(err, ErrAlreadyWaited) {
				break
			}
			if err != nil {
				t.Fatalf("Signal = %v, want nil or ErrAlreadyWaited", err)
			}
		}
		if err := <-done; err != nil {
			t.Fatal(err)
		}
	}
}

func TestChildCloseOrderTolerant(t *testing.T) {
	requireBinary(t, "/bin/cat")

	child, err := NewCommand("/bin/cat").WithStdin(Piped).WithStdout(Piped).Spawn()
	if err != nil {
		t.Fatal(err)
	}
	if err := child.StdinPipe().Close(); err != nil {
		t.Fatal(err)
	}
	if child.StdinPipe() != nil {
		t.Fatal("stdin slot should be empty after closing its stream")
	}
	if child.StderrPipe() != nil {
		t.Fatal("stderr was never piped")
	}
	if err := child.Close(); err != nil {
		t.Fatal(err)
	}
	if child.StdoutPipe() != nil {
		t.Fatal("stdout slot should be empty after Close")
	}
	if _, err := child.Wait(); err != nil {
		t.Fatal(err)
	}
}

func TestCommandRun(t *testing.T) {
	requireBinary(t, "/bin/false")

	ws, err := NewCommand("/bin/false").Run()
	if err != nil {
		t.Fatal(err)
	}
	if ws.ExitStatus() != 1 {
		t.Fatalf("exit = %d, want 1", ws.ExitStatus())
	}
}

func TestCommandString(t *testing.T) {
	if got := NewCommand("/bin/echo", "a", "b").String(); got != "/bin/echo a b" {
		t.Fatalf("String() = %q", got)
	}
	if got := NewCommand("/bin/true").String(); got != "/bin/true" {
		t.Fatalf("String() = %q", got)
	}
}

func TestEnvFromMap(t *testing.T) {
	env := EnvFromMap(map[string]string{"B": "2", "A": "1"})
	if len(env) != 2 || env[0] != "A=1" || env[1] != "B=2" {
		t.Fatalf("env = %v", env)
	}
	if cmd := NewCommand("/bin/true").WithEnv(nil); cmd.Env == nil {
		t.Fatal("WithEnv(nil) should request an empty environment")
	}
}

func TestMergeEnv(t *testing.T) {
	got := MergeEnv([]string{"PATH=/bin", "HOME=/root", "broken"}, map[string]string{"HOME": "/tmp", "A": "x=y"})
	want := []string{"A=x=y", "HOME=/tmp", "PATH=/bin"}
	if strings.Join(got, " ") != strings.Join(want, " ") {
		t.Fatalf("MergeEnv = %v, want %v", got, want)
	}
}

func TestStatusHelpers(t *testing.T) {
	if ws := ExitStatus(42); !ws.Exited() || ws.ExitStatus() != 42 || uint32(ws)>>8 != 42 {
		t.Fatalf("ExitStatus(42) = %#x", uint32(ws))
	}
	if ws := SignalStatus(unix.SIGTERM); !ws.Signaled() || ws.Signal() != unix.SIGTERM {
		t.Fatalf("SignalStatus(TERM) = %#x", uint32(ws))
	}
}
