// Package metrics collects and exports Prometheus metrics for childproc.
package metrics

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Exit outcomes recorded by IncExit.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeSignal  = "signal"
)

// Collector holds the childproc Prometheus metrics on a private registry.
// A nil *Collector is valid and records nothing.
type Collector struct {
	registry *prometheus.Registry

	// Per-job metrics.
	SpawnTotal         *prometheus.CounterVec
	SpawnErrorsTotal   *prometheus.CounterVec
	ExitTotal          *prometheus.CounterVec
	CapturedBytesTotal *prometheus.CounterVec
	JobDuration        *prometheus.HistogramVec

	// Runner-level metrics.
	RunningJobs prometheus.Gauge
	BuildInfo   *prometheus.GaugeVec
}

// New creates and registers all childproc metrics.
func New() *Collector {
	reg := prometheus.NewRegistry()

	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	c := &Collector{
		registry: reg,

		SpawnTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "childproc_spawn_total",
				Help: "Total number of successful spawns per job.",
			},
			[]string{"job"},
		),

		SpawnErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "childproc_spawn_errors_total",
				Help: "Total number of spawns that failed before the program ran.",
			},
			[]string{"job"},
		),

		ExitTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "childproc_exit_total",
				Help: "Total number of job exits by outcome.",
			},
			[]string{"job", "outcome"},
		),

		CapturedBytesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "childproc_captured_bytes_total",
				Help: "Bytes captured from piped child output.",
			},
			[]string{"job", "stream"},
		),

		JobDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "childproc_job_duration_seconds",
				Help:    "Wall time from spawn to reap.",
				Buckets: prometheus.ExponentialBuckets(0.005, 4, 10),
			},
			[]string{"job"},
		),

		RunningJobs: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "childproc_running_jobs",
				Help: "Number of children spawned and not yet reaped.",
			},
		),

		BuildInfo: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "childproc_info",
				Help: "Build information about childproc.",
			},
			[]string{"version", "go_version"},
		),
	}

	reg.MustRegister(
		c.SpawnTotal,
		c.SpawnErrorsTotal,
		c.ExitTotal,
		c.CapturedBytesTotal,
		c.JobDuration,
		c.RunningJobs,
		c.BuildInfo,
	)

	return c
}

// Handler returns an http.Handler that serves the /metrics endpoint.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// WriteTextfile writes the current metrics in the text exposition format
// to path, for node_exporter's textfile collector. The file is replaced
// atomically.
func (c *Collector) WriteTextfile(path string) error {
	if c == nil {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, c.registry); err != nil {
		return fmt.Errorf("metrics: write %s: %w", path, err)
	}
	return nil
}

// SetBuildInfo sets the constant build info gauge.
func (c *Collector) SetBuildInfo(version, goVersion string) {
	if c == nil {
		return
	}
	c.BuildInfo.WithLabelValues(version, goVersion).Set(1)
}

// IncSpawn records a successful spawn and marks the job running.
func (c *Collector) IncSpawn(job string) {
	if c == nil {
		return
	}
	c.SpawnTotal.WithLabelValues(job).Inc()
	c.RunningJobs.Inc()
}

// IncSpawnError records a failed spawn.
func (c *Collector) IncSpawnError(job string) {
	if c == nil {
		return
	}
	c.SpawnErrorsTotal.WithLabelValues(job).Inc()
}

// IncExit records a reaped child with its outcome and how long it ran.
func (c *Collector) IncExit(job, outcome string, seconds float64) {
	if c == nil {
		return
	}
	c.ExitTotal.WithLabelValues(job, outcome).Inc()
	c.JobDuration.WithLabelValues(job).Observe(seconds)
	c.RunningJobs.Dec()
}

// AddCapturedBytes adds n captured bytes for a job stream.
func (c *Collector) AddCapturedBytes(job, stream string, n int) {
	if c == nil || n <= 0 {
		return
	}
	c.CapturedBytesTotal.WithLabelValues(job, stream).Add(float64(n))
}
