// Package runner executes the jobs of a childproc job file one at a time
// through the spawn layer and reports how each one ended.
package runner

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"golang.org/x/sys/unix"

	"github.com/kahiteam/childproc/internal/config"
	"github.com/kahiteam/childproc/internal/logging"
	"github.com/kahiteam/childproc/internal/metrics"
	"github.com/kahiteam/childproc/internal/process"
)

// DefaultTailBytes is how much of each captured stream a Result keeps.
const DefaultTailBytes = 1024

// Job outcomes.
const (
	OutcomeSuccess    = "success"
	OutcomeFailure    = "failure"
	OutcomeSignal     = "signal"
	OutcomeSpawnError = "spawn_error"
	OutcomeCanceled   = "canceled"
	OutcomeSkipped    = "skipped"
)

// Job is a named job from the config.
type Job struct {
	Name   string
	Config config.JobConfig
}

// Runner runs configured jobs in priority order.
type Runner struct {
	cfg     *config.Config
	spawner process.ProcessSpawner
	metrics *metrics.Collector
	logger  *slog.Logger

	// TailBytes bounds the output tail kept per stream in each Result.
	TailBytes int
}

// New creates a Runner. collector may be nil.
func New(cfg *config.Config, spawner process.ProcessSpawner, collector *metrics.Collector, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Runner{
		cfg:       cfg,
		spawner:   spawner,
		metrics:   collector,
		logger:    logger,
		TailBytes: DefaultTailBytes,
	}
}

// Jobs returns the configured jobs sorted by priority, then name.
func (r *Runner) Jobs() []Job {
	jobs := make([]Job, 0, len(r.cfg.Jobs))
	for name, jc := range r.cfg.Jobs {
		jobs = append(jobs, Job{Name: name, Config: jc})
	}
	sort.Slice(jobs, func(i, j int) bool {
		if jobs[i].Config.Priority != jobs[j].Config.Priority {
			return jobs[i].Config.Priority < jobs[j].Config.Priority
		}
		return jobs[i].Name < jobs[j].Name
	})
	return jobs
}

// Run executes every job and returns the report. Cancelling ctx kills the
// running child; the remaining jobs are marked canceled and ctx's error is
// returned alongside the partial report.
func (r *Runner) Run(ctx context.Context) (*Report, error) {
	report := &Report{
		RunID:   ulid.MustNew(ulid.Timestamp(time.Now()), rand.Reader).String(),
		Started: time.Now().UTC(),
	}
	logger := r.logger.With("run_id", report.RunID)
	logger.Info("run started", "jobs", len(r.cfg.Jobs))

	failed := false
	for _, job := range r.Jobs() {
		switch {
		case ctx.Err() != nil:
			report.Results = append(report.Results, Result{Job: job.Name, Outcome: OutcomeCanceled})
			continue
		case failed && r.cfg.Runner.StopOnFailure:
			report.Results = append(report.Results, Result{Job: job.Name, Outcome: OutcomeSkipped})
			continue
		}

		res := r.runJob(ctx, job, logger.With("job", job.Name))
		report.Results = append(report.Results, res)
		if !res.OK() {
			failed = true
		}
	}

	report.Finished = time.Now().UTC()
	logger.Info("run finished", "failed", report.Failed(), "duration", report.Finished.Sub(report.Started))

	if path := r.cfg.Runner.MetricsFile; path != "" {
		if err := r.metrics.WriteTextfile(path); err != nil {
			logger.Error("cannot write metrics", "error", err)
		}
	}

	return report, ctx.Err()
}

func (r *Runner) runJob(ctx context.Context, job Job, logger *slog.Logger) Result {
	jc := job.Config
	res := Result{Job: job.Name, Description: jc.Description, Started: time.Now().UTC()}

	spawnCfg, err := spawnConfig(jc)
	if err != nil {
		return r.spawnFailed(res, err, logger)
	}

	stdout, stderr, err := r.captureWriters(job, spawnCfg, logger)
	if err != nil {
		return r.spawnFailed(res, err, logger)
	}
	defer closeAll(stdout, stderr)

	proc, err := r.spawner.Spawn(spawnCfg)
	if err != nil {
		return r.spawnFailed(res, err, logger)
	}
	r.metrics.IncSpawn(job.Name)
	res.Pid = proc.Pid()
	logger.Info("job started", "pid", res.Pid, "path", jc.Path)

	killed := watchContext(ctx, proc, logger)
	var out *process.Output
	if jc.Input != "" && spawnCfg.Stdin == process.Piped {
		out, err = proc.Communicate([]byte(jc.Input))
	} else {
		out, err = proc.WaitWithOutput()
	}
	canceled := killed()
	res.Duration = time.Since(res.Started)

	if err != nil {
		_ = proc.Close()
		if _, werr := proc.Wait(); werr != nil && !errors.Is(werr, process.ErrAlreadyWaited) {
			logger.Error("cannot reap child", "pid", res.Pid, "error", werr)
		}
		res.Outcome = OutcomeFailure
		res.ExitCode = -1
		res.Error = err.Error()
		r.metrics.IncExit(job.Name, metrics.OutcomeFailure, res.Duration.Seconds())
		logger.Error("job wait failed", "pid", res.Pid, "error", err)
		return res
	}

	if stdout != nil {
		_, _ = stdout.Write(out.Stdout)
		res.StdoutBytes = stdout.Total()
		res.StdoutTail = string(stdout.ReadTail(r.TailBytes))
	}
	if stderr != nil {
		_, _ = stderr.Write(out.Stderr)
		res.StderrBytes = stderr.Total()
		res.StderrTail = string(stderr.ReadTail(r.TailBytes))
	}

	r.classify(&res, out.Status, jc.Exitcodes)
	metricOutcome := res.Outcome
	if canceled {
		res.Outcome = OutcomeCanceled
	}
	r.metrics.IncExit(job.Name, metricOutcome, res.Duration.Seconds())

	attrs := []any{"pid", res.Pid, "exit_code", res.ExitCode, "outcome", res.Outcome, "duration", res.Duration}
	if res.Signal != "" {
		attrs = append(attrs, "signal", res.Signal)
	}
	if res.OK() {
		logger.Info("job exited", attrs...)
	} else {
		logger.Warn("job exited", attrs...)
	}
	return res
}

func (r *Runner) spawnFailed(res Result, err error, logger *slog.Logger) Result {
	r.metrics.IncSpawnError(res.Job)
	res.Outcome = OutcomeSpawnError
	res.ExitCode = -1
	res.Error = err.Error()
	logger.Error("job spawn failed", "error", err)
	return res
}

func (r *Runner) classify(res *Result, ws unix.WaitStatus, expected []int) {
	res.ExitCode = process.ExitCode(ws)
	if ws.Signaled() {
		res.Outcome = OutcomeSignal
		res.Signal = unix.SignalName(ws.Signal())
		return
	}
	res.Outcome = OutcomeFailure
	for _, code := range expected {
		if code == res.ExitCode {
			res.Outcome = OutcomeSuccess
			return
		}
	}
}

// captureWriters creates writers for the piped output streams. Streams
// that are not piped get nil.
func (r *Runner) captureWriters(job Job, cfg process.SpawnConfig, logger *slog.Logger) (stdout, stderr *logging.CaptureWriter, err error) {
	jc := job.Config
	mk := func(stream, logfile string) (*logging.CaptureWriter, error) {
		cw, err := logging.NewCaptureWriter(logging.CaptureConfig{
			Job:       job.Name,
			Stream:    stream,
			Logfile:   logfile,
			StripAnsi: jc.StripAnsi,
			MaxBytes:  jc.LogfileMaxbytes,
			Backups:   jc.LogfileBackups,
			Logger:    logger,
		})
		if err != nil {
			return nil, err
		}
		cw.AddHandler(func(job, stream string, data []byte) {
			r.metrics.AddCapturedBytes(job, stream, len(data))
		})
		return cw, nil
	}

	if cfg.Stdout == process.Piped {
		if stdout, err = mk("stdout", jc.StdoutLogfile); err != nil {
			return nil, nil, err
		}
	}
	if cfg.Stderr == process.Piped {
		if stderr, err = mk("stderr", jc.StderrLogfile); err != nil {
			closeAll(stdout)
			return nil, nil, err
		}
	}
	return stdout, stderr, nil
}

func closeAll(writers ...*logging.CaptureWriter) {
	for _, w := range writers {
		if w != nil {
			_ = w.Close()
		}
	}
}

// spawnConfig translates a job into spawn parameters.
func spawnConfig(jc config.JobConfig) (process.SpawnConfig, error) {
	var cfg process.SpawnConfig
	var err error
	if cfg.Stdin, err = process.ParseStdio(jc.Stdin); err != nil {
		return cfg, fmt.Errorf("stdin: %w", err)
	}
	if cfg.Stdout, err = process.ParseStdio(jc.Stdout); err != nil {
		return cfg, fmt.Errorf("stdout: %w", err)
	}
	if cfg.Stderr, err = process.ParseStdio(jc.Stderr); err != nil {
		return cfg, fmt.Errorf("stderr: %w", err)
	}
	cfg.Path = jc.Path
	cfg.Args = jc.Args
	cfg.Env = jobEnv(jc, os.Environ())
	return cfg, nil
}

// jobEnv computes the child environment. nil means the child inherits the
// runner's environment unchanged.
func jobEnv(jc config.JobConfig, base []string) []string {
	if !jc.Inherits() {
		return process.EnvFromMap(jc.Environment)
	}
	if len(jc.Environment) == 0 {
		return nil
	}
	return process.MergeEnv(base, jc.Environment)
}

// watchContext kills proc if ctx is cancelled before the returned function
// is called. The function stops the watch and reports whether a kill was
// sent.
func watchContext(ctx context.Context, proc process.SpawnedProcess, logger *slog.Logger) func() bool {
	done := make(chan struct{})
	var (
		killed bool
		wg     sync.WaitGroup
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		select {
		case <-ctx.Done():
			logger.Info("killing job", "pid", proc.Pid(), "reason", context.Cause(ctx))
			if err := proc.Kill(); err != nil && !errors.Is(err, process.ErrAlreadyWaited) {
				logger.Warn("kill failed", "pid", proc.Pid(), "error", err)
				return
			}
			killed = true
		case <-done:
		}
	}()
	return func() bool {
		close(done)
		wg.Wait()
		return killed
	}
}
