package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sys/unix"

	"github.com/kahiteam/childproc/internal/process"
)

var (
	runStdin    string
	runStdout   string
	runStderr   string
	runEnv      []string
	runCleanEnv bool
	runCapture  bool
)

var runCmd = &cobra.Command{
	Use:   "run [flags] [--] PATH [ARGS...]",
	Short: "Spawn one program and wait for it",
	Long: `Spawn PATH (used as given, no $PATH search) with ARGS and wait for it.

Piped stdin is read from childproc's own stdin up to end of input, then
fed to the program while its piped stdout and stderr are drained. The
captured output is written out once the program exits. childproc exits with the program's exit code, or 128 plus
the signal number when the program was killed.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := buildCommand(args)
		if err != nil {
			return err
		}
		logger, _ := newLogger(cmd, "", "")
		c.WithLogger(logger)

		child, err := c.Spawn()
		if err != nil {
			return err
		}
		defer child.Close()

		stop := forwardSignals(child, logger)
		defer stop()

		var input []byte
		if c.Stdin == process.Piped {
			if input, err = io.ReadAll(cmd.InOrStdin()); err != nil {
				logger.Warn("reading stdin failed", "pid", child.Pid(), "error", err)
			}
		}

		out, err := child.Communicate(input)
		if err != nil {
			if !child.Waited() {
				_ = child.Close()
				_, _ = child.Wait()
			}
			return err
		}

		if _, err := cmd.OutOrStdout().Write(out.Stdout); err != nil {
			return err
		}
		if _, err := cmd.ErrOrStderr().Write(out.Stderr); err != nil {
			return err
		}
		if runCapture {
			fmt.Fprintln(cmd.ErrOrStderr(), describeStatus(out.Status))
		}
		logger.Debug("child exited", "pid", child.Pid(), "status", describeStatus(out.Status))

		if code := process.ExitCode(out.Status); code != 0 {
			return &exitError{code: code}
		}
		return nil
	},
}

func buildCommand(args []string) (*process.Command, error) {
	var modes [3]process.Stdio
	for i, s := range []string{runStdin, runStdout, runStderr} {
		m, err := process.ParseStdio(s)
		if err != nil {
			return nil, err
		}
		modes[i] = m
	}
	if runCapture {
		for i := 1; i < 3; i++ {
			if modes[i] == process.Inherit {
				modes[i] = process.Piped
			}
		}
	}

	c := process.NewCommand(args[0], args[1:]...).
		WithStdin(modes[0]).
		WithStdout(modes[1]).
		WithStderr(modes[2])

	env, err := runEnvironment(runEnv, runCleanEnv, os.Environ())
	if err != nil {
		return nil, err
	}
	if env != nil {
		c.WithEnv(env)
	}
	return c, nil
}

// runEnvironment computes the child environment from --env pairs. nil
// means inherit unchanged.
func runEnvironment(pairs []string, clean bool, base []string) ([]string, error) {
	overrides := make(map[string]string, len(pairs))
	for _, kv := range pairs {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid --env %q: want KEY=VALUE", kv)
		}
		overrides[k] = v
	}
	switch {
	case clean:
		return process.EnvFromMap(overrides), nil
	case len(overrides) == 0:
		return nil, nil
	default:
		return process.MergeEnv(base, overrides), nil
	}
}

// forwardSignals relays termination signals received by childproc to the
// child until the returned function is called.
func forwardSignals(child *process.Child, logger *slog.Logger) func() {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP, syscall.SIGQUIT)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for sig := range ch {
			s := sig.(syscall.Signal)
			logger.Debug("forwarding signal", "pid", child.Pid(), "signal", unix.SignalName(s))
			if err := child.Signal(s); err != nil {
				logger.Warn("signal forward failed", "pid", child.Pid(), "error", err)
			}
		}
	}()
	return func() {
		signal.Stop(ch)
		close(ch)
		<-done
	}
}

func describeStatus(ws unix.WaitStatus) string {
	if ws.Signaled() {
		return fmt.Sprintf("killed by %s", unix.SignalName(ws.Signal()))
	}
	return fmt.Sprintf("exit status %d", ws.ExitStatus())
}

func init() {
	f := runCmd.Flags()
	f.SetInterspersed(false)
	f.StringVar(&runStdin, "stdin", "inherit", "stdin mode (inherit, piped, null)")
	f.StringVar(&runStdout, "stdout", "inherit", "stdout mode (inherit, piped, null)")
	f.StringVar(&runStderr, "stderr", "inherit", "stderr mode (inherit, piped, null)")
	f.StringArrayVarP(&runEnv, "env", "e", nil, "set KEY=VALUE in the child environment (repeatable)")
	f.BoolVar(&runCleanEnv, "clean-env", false, "start from an empty environment instead of childproc's own")
	f.BoolVar(&runCapture, "capture", false, "pipe inherited stdout/stderr, print them after exit with the decoded status")
	rootCmd.AddCommand(runCmd)
}
