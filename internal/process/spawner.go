package process

import (
	"bytes"
	"io"
	"log/slog"
	"sync"

	"golang.org/x/sys/unix"
)

// SpawnConfig holds the parameters needed to spawn a child process.
type SpawnConfig struct {
	Path   string   // program path, used as is
	Args   []string // command arguments (not including argv[0])
	Env    []string // KEY=VALUE entries; nil inherits the environment
	Stdin  Stdio
	Stdout Stdio
	Stderr Stdio
}

// Command builds the Command described by cfg.
func (cfg SpawnConfig) Command() *Command {
	return &Command{
		Path:   cfg.Path,
		Args:   cfg.Args,
		Env:    cfg.Env,
		Stdin:  cfg.Stdin,
		Stdout: cfg.Stdout,
		Stderr: cfg.Stderr,
	}
}

// SpawnedProcess represents a running child process.
type SpawnedProcess interface {
	Pid() int
	Wait() (unix.WaitStatus, error)
	WaitWithOutput() (*Output, error)
	Communicate(input []byte) (*Output, error)
	Kill() error
	Close() error
	StdinPipe() io.WriteCloser
}

// ProcessSpawner creates child processes. Implementations include
// ExecSpawner (real) and MockSpawner (testing).
type ProcessSpawner interface {
	Spawn(cfg SpawnConfig) (SpawnedProcess, error)
}

// ExecSpawner spawns real OS processes through Command.
type ExecSpawner struct {
	Logger *slog.Logger
}

// Spawn starts a real child process with the given config.
func (s *ExecSpawner) Spawn(cfg SpawnConfig) (SpawnedProcess, error) {
	cmd := cfg.Command()
	cmd.Logger = s.Logger
	child, err := cmd.Spawn()
	if err != nil {
		return nil, err
	}
	return child, nil
}

// MockSpawner is a test double for ProcessSpawner.
type MockSpawner struct {
	mu         sync.Mutex
	SpawnFn    func(cfg SpawnConfig) (SpawnedProcess, error)
	SpawnCalls []SpawnConfig
}

// Spawn records the call and delegates to SpawnFn.
func (m *MockSpawner) Spawn(cfg SpawnConfig) (SpawnedProcess, error) {
	m.mu.Lock()
	m.SpawnCalls = append(m.SpawnCalls, cfg)
	n := len(m.SpawnCalls)
	m.mu.Unlock()

	if m.SpawnFn != nil {
		return m.SpawnFn(cfg)
	}
	return NewMockProcess(1000 + n), nil
}

// Calls returns a copy of the recorded spawn configs.
func (m *MockSpawner) Calls() []SpawnConfig {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]SpawnConfig(nil), m.SpawnCalls...)
}

// MockProcess is a test double for SpawnedProcess. By default it exits
// with status 0 and no output.
type MockProcess struct {
	mu     sync.Mutex
	pid    int
	stdin  bytes.Buffer
	killed bool
	closed bool

	Result *Output
	Err    error
	// WaitFn, when set, replaces Result/Err. It runs without the mock's
	// lock held, so it may block until Kill is called.
	WaitFn func() (*Output, error)
	KillFn func() error
}

// NewMockProcess creates a MockProcess with the given PID.
func NewMockProcess(pid int) *MockProcess {
	return &MockProcess{pid: pid, Result: &Output{}}
}

func (p *MockProcess) Pid() int { return p.pid }

func (p *MockProcess) Wait() (unix.WaitStatus, error) {
	out, err := p.WaitWithOutput()
	if err != nil {
		return 0, err
	}
	return out.Status, nil
}

func (p *MockProcess) WaitWithOutput() (*Output, error) {
	if p.WaitFn != nil {
		return p.WaitFn()
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Err != nil {
		return nil, p.Err
	}
	out := *p.Result
	return &out, nil
}

// Communicate records input as stdin data, then behaves like
// WaitWithOutput.
func (p *MockProcess) Communicate(input []byte) (*Output, error) {
	p.mu.Lock()
	p.stdin.Write(input)
	p.mu.Unlock()
	return p.WaitWithOutput()
}

func (p *MockProcess) Kill() error {
	p.mu.Lock()
	p.killed = true
	fn := p.KillFn
	p.mu.Unlock()
	if fn != nil {
		return fn()
	}
	return nil
}

func (p *MockProcess) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

func (p *MockProcess) StdinPipe() io.WriteCloser { return mockStdin{p} }

// Killed reports whether Kill was called.
func (p *MockProcess) Killed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.killed
}

// Closed reports whether Close was called.
func (p *MockProcess) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// StdinData returns what was written to the mock's stdin.
func (p *MockProcess) StdinData() []byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]byte(nil), p.stdin.Bytes()...)
}

type mockStdin struct{ p *MockProcess }

func (w mockStdin) Write(b []byte) (int, error) {
	w.p.mu.Lock()
	defer w.p.mu.Unlock()
	return w.p.stdin.Write(b)
}

func (w mockStdin) Close() error { return nil }

// ExitStatus builds the raw status of a normal exit with code, for tests
// and mocks.
func ExitStatus(code int) unix.WaitStatus {
	return unix.WaitStatus((code & 0xff) << 8)
}

// SignalStatus builds the raw status of a death by sig.
func SignalStatus(sig unix.Signal) unix.WaitStatus {
	return unix.WaitStatus(uint32(sig) & 0x7f)
}
