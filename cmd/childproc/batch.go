package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/oklog/run"
	"github.com/spf13/cobra"

	"github.com/kahiteam/childproc/internal/config"
	"github.com/kahiteam/childproc/internal/metrics"
	"github.com/kahiteam/childproc/internal/process"
	"github.com/kahiteam/childproc/internal/runner"
	"github.com/kahiteam/childproc/internal/version"
)

var (
	batchConfig        string
	batchReport        string
	batchMetricsListen string
)

var errInterrupted = errors.New("interrupted")

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Run every job in a job file and report the outcomes",
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := config.Resolve(batchConfig)
		if err != nil {
			return err
		}
		cfg, warnings, err := config.LoadWithIncludes(path)
		if err != nil {
			return err
		}

		logger, level := newLogger(cmd, cfg.Runner.LogLevel, cfg.Runner.LogFormat)
		for _, w := range warnings {
			logger.Warn("config warning", "file", path, "warning", w)
		}

		format := cfg.Runner.ReportFormat
		if cmd.Flags().Changed("report") {
			format = batchReport
		}

		collector := metrics.New()
		collector.SetBuildInfo(version.Version, version.Go())
		r := runner.New(cfg, &process.ExecSpawner{Logger: logger}, collector, logger)

		var report *runner.Report
		var g run.Group

		// OS signals.
		{
			signalCtx, signalCancel := signal.NotifyContext(cmd.Context(), syscall.SIGTERM, syscall.SIGINT)
			defer signalCancel()
			stopped := make(chan struct{})

			g.Add(
				func() error {
					select {
					case <-signalCtx.Done():
						logger.Info("termination signal received")
						return errInterrupted
					case <-stopped:
						return nil
					}
				},
				func(_ error) {
					close(stopped)
				},
			)
		}

		// SIGUSR1 switches debug logging on and off while jobs run.
		{
			usr1 := make(chan os.Signal, 1)
			signal.Notify(usr1, syscall.SIGUSR1)
			stopped := make(chan struct{})

			g.Add(
				func() error {
					for {
						select {
						case <-usr1:
							logger.Warn("log level changed", "level", level.ToggleDebug().String())
						case <-stopped:
							return nil
						}
					}
				},
				func(_ error) {
					signal.Stop(usr1)
					close(stopped)
				},
			)
		}

		// Metrics endpoint.
		if batchMetricsListen != "" {
			ln, err := net.Listen("tcp", batchMetricsListen)
			if err != nil {
				return fmt.Errorf("cannot listen for metrics: %w", err)
			}
			mux := http.NewServeMux()
			mux.Handle("/metrics", collector.Handler())
			srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

			g.Add(
				func() error {
					logger.Info("serving metrics", "addr", ln.Addr().String())
					if err := srv.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
						return err
					}
					return nil
				},
				func(_ error) {
					_ = srv.Close()
				},
			)
		}

		// Job runner.
		{
			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			g.Add(
				func() error {
					rep, err := r.Run(ctx)
					report = rep
					if err != nil && ctx.Err() == nil {
						return err
					}
					return nil
				},
				func(_ error) {
					cancel()
				},
			)
		}

		runErr := g.Run()

		if report != nil {
			if err := report.Encode(cmd.OutOrStdout(), format, isTerminal(cmd.OutOrStdout())); err != nil {
				return err
			}
		}

		switch {
		case errors.Is(runErr, errInterrupted):
			return &exitError{code: 130}
		case runErr != nil:
			return runErr
		case report != nil && !report.OK():
			return &exitError{code: 1}
		}
		return nil
	},
}

func init() {
	batchCmd.Flags().StringVarP(&batchConfig, "config", "c", "", "job file (default: $CHILDPROC_CONFIG, then the standard search paths)")
	batchCmd.Flags().StringVar(&batchReport, "report", "text", "report format (text, json, yaml)")
	batchCmd.Flags().StringVar(&batchMetricsListen, "metrics-listen", "", "serve Prometheus metrics on this address while jobs run")
	rootCmd.AddCommand(batchCmd)
}
