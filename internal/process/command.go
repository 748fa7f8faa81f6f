package process

import (
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"
	"runtime"
	"sort"
	"strings"
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/kahiteam/childproc/internal/fd"
)

// Command describes a program to run in a new process. It replaces the
// image of a forked child with Path.
type Command struct {
	Path string   // program to execute, used as is (no $PATH search)
	Args []string // arguments, not including argv[0]
	Env  []string // KEY=VALUE entries; nil inherits, non-nil replaces

	Stdin  Stdio
	Stdout Stdio
	Stderr Stdio

	Logger *slog.Logger
}

// NewCommand returns a Command for path with the given arguments and all
// streams inherited.
func NewCommand(path string, args ...string) *Command {
	return &Command{Path: path, Args: args}
}

// WithEnv replaces the child's environment with env.
func (c *Command) WithEnv(env []string) *Command {
	if env == nil {
		env = []string{}
	}
	c.Env = env
	return c
}

// WithEnvMap replaces the child's environment with the pairs in m,
// ordered by key.
func (c *Command) WithEnvMap(m map[string]string) *Command {
	return c.WithEnv(EnvFromMap(m))
}

func (c *Command) WithStdin(s Stdio) *Command  { c.Stdin = s; return c }
func (c *Command) WithStdout(s Stdio) *Command { c.Stdout = s; return c }
func (c *Command) WithStderr(s Stdio) *Command { c.Stderr = s; return c }

func (c *Command) WithLogger(l *slog.Logger) *Command { c.Logger = l; return c }

func (c *Command) String() string {
	if len(c.Args) == 0 {
		return c.Path
	}
	return c.Path + " " + strings.Join(c.Args, " ")
}

// Spawn forks and executes the command. A failure to execute the program
// is reported here, with the errno the child saw, exactly like a failure
// to set up the process.
func (c *Command) Spawn() (*Child, error) {
	params, err := marshalExec(c.Path, c.Args, c.Env)
	if err != nil {
		return nil, fmt.Errorf("process: %s: %w", c.Path, err)
	}
	envv := params.envv()
	if envv == nil {
		inherited, err := marshalExec(c.Path, nil, syscall.Environ())
		if err != nil {
			return nil, fmt.Errorf("process: %s: environment: %w", c.Path, err)
		}
		envv = inherited.envv()
	}
	argv := params.argv()

	s, err := resolveStreams(c.Stdin, c.Stdout, c.Stderr)
	if err != nil {
		return nil, err
	}

	notifyR, notifyW, err := fd.Pipe()
	if err != nil {
		s.closeOurs()
		s.closeTheirs()
		return nil, fmt.Errorf("process: notify %w", err)
	}
	// The notify write end must stay clear of 0..2 for the same reason
	// as the stdio sources.
	if err := notifyW.MoveAbove(3); err != nil {
		s.closeOurs()
		s.closeTheirs()
		_ = notifyR.Close()
		_ = notifyW.Close()
		return nil, fmt.Errorf("process: notify %w", err)
	}

	cp := &childParams{
		path:   params.path(),
		argv:   &argv[0],
		envv:   &envv[0],
		stdio:  s.theirFds(),
		notify: notifyW.Int(),
	}

	syscall.ForkLock.Lock()
	runtimeBeforeFork()
	pid, errno := forkExec(cp)
	runtimeAfterFork()
	syscall.ForkLock.Unlock()

	runtime.KeepAlive(params)
	runtime.KeepAlive(envv)

	_ = notifyW.Close()
	s.closeTheirs()
	defer notifyR.Close()

	if errno != 0 {
		s.closeOurs()
		return nil, fmt.Errorf("process: fork: %w", errno)
	}

	if err := readExecStatus(&notifyR); err != nil {
		reap(int(pid))
		s.closeOurs()
		c.logger().Debug("exec failed", "path", c.Path, "pid", int(pid), "error", err)
		return nil, fmt.Errorf("process: exec %s: %w", c.Path, err)
	}

	child := newChild(int(pid), s)
	c.logger().Debug("spawned", "path", c.Path, "pid", child.Pid())
	return child, nil
}

// Output runs the command to completion and captures stdout and stderr.
// Streams left as Inherit are piped so they can be captured.
func (c *Command) Output() (*Output, error) {
	cc := *c
	if cc.Stdout == Inherit {
		cc.Stdout = Piped
	}
	if cc.Stderr == Inherit {
		cc.Stderr = Piped
	}
	child, err := cc.Spawn()
	if err != nil {
		return nil, err
	}
	out, err := child.WaitWithOutput()
	if err != nil {
		_ = child.Close()
		if !child.Waited() {
			_, _ = child.Wait()
		}
		return nil, err
	}
	return out, nil
}

// Run spawns the command and waits for it, returning the raw status.
func (c *Command) Run() (unix.WaitStatus, error) {
	child, err := c.Spawn()
	if err != nil {
		return 0, err
	}
	defer child.Close()
	return child.Wait()
}

func (c *Command) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return discardLogger
}

var discardLogger = slog.New(slog.DiscardHandler)

// readExecStatus reads the child's errno report. A closed pipe with no
// data means execve succeeded and close-on-exec closed the write end.
func readExecStatus(r *fd.FD) error {
	var blob [4]byte
	n := 0
	for n < len(blob) {
		m, err := r.Read(blob[n:])
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("read notify pipe: %w", err)
		}
		n += m
	}
	switch n {
	case 0:
		return nil
	case len(blob):
		return unix.Errno(binary.NativeEndian.Uint32(blob[:]))
	default:
		return fmt.Errorf("short read on notify pipe: %d bytes", n)
	}
}

// reap collects a child that failed before exec so it does not linger as
// a zombie.
func reap(pid int) {
	var ws unix.WaitStatus
	for {
		_, err := unix.Wait4(pid, &ws, 0, nil)
		if err != unix.EINTR {
			return
		}
	}
}

// EnvFromMap converts a map to KEY=VALUE entries sorted by key.
func EnvFromMap(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	env := make([]string, 0, len(keys))
	for _, k := range keys {
		env = append(env, k+"="+m[k])
	}
	return env
}

// MergeEnv overlays overrides on base, a list of KEY=VALUE entries, and
// returns the result sorted by key. Entries of base without '=' are dropped.
func MergeEnv(base []string, overrides map[string]string) []string {
	merged := make(map[string]string, len(base)+len(overrides))
	for _, kv := range base {
		k, v, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		merged[k] = v
	}
	for k, v := range overrides {
		merged[k] = v
	}
	return EnvFromMap(merged)
}
