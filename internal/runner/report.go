package runner

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"gopkg.in/yaml.v3"
)

// Result is the outcome of one job.
type Result struct {
	Job         string        `json:"job" yaml:"job"`
	Description string        `json:"description,omitempty" yaml:"description,omitempty"`
	Pid         int           `json:"pid,omitempty" yaml:"pid,omitempty"`
	Outcome     string        `json:"outcome" yaml:"outcome"`
	ExitCode    int           `json:"exit_code" yaml:"exit_code"`
	Signal      string        `json:"signal,omitempty" yaml:"signal,omitempty"`
	Error       string        `json:"error,omitempty" yaml:"error,omitempty"`
	Started     time.Time     `json:"started,omitzero" yaml:"started,omitempty"`
	Duration    time.Duration `json:"duration_ns" yaml:"duration"`
	StdoutBytes int64         `json:"stdout_bytes" yaml:"stdout_bytes"`
	StderrBytes int64         `json:"stderr_bytes" yaml:"stderr_bytes"`
	StdoutTail  string        `json:"stdout_tail,omitempty" yaml:"stdout_tail,omitempty"`
	StderrTail  string        `json:"stderr_tail,omitempty" yaml:"stderr_tail,omitempty"`
}

// OK reports whether the job exited with an expected code.
func (r Result) OK() bool { return r.Outcome == OutcomeSuccess }

// Report summarises a run.
type Report struct {
	RunID    string    `json:"run_id" yaml:"run_id"`
	Started  time.Time `json:"started" yaml:"started"`
	Finished time.Time `json:"finished" yaml:"finished"`
	Results  []Result  `json:"results" yaml:"results"`
}

// Failed returns the number of jobs that did not succeed.
func (r *Report) Failed() int {
	n := 0
	for _, res := range r.Results {
		if !res.OK() {
			n++
		}
	}
	return n
}

// OK reports whether every job succeeded.
func (r *Report) OK() bool { return r.Failed() == 0 }

// Encode writes the report to w as "text", "json" or "yaml". Text output
// colors outcomes when color is set.
func (r *Report) Encode(w io.Writer, format string, color bool) error {
	switch strings.ToLower(format) {
	case "", "text":
		return r.encodeText(w, color)
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(r)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(r); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unknown report format %q", format)
	}
}

func (r *Report) encodeText(w io.Writer, color bool) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "JOB\tOUTCOME\tPID\tEXIT\tDURATION\tDETAIL\n")

	for _, res := range r.Results {
		outcome := res.Outcome
		if color {
			outcome = colorOutcome(res.Outcome)
		}

		pid := "-"
		if res.Pid > 0 {
			pid = fmt.Sprintf("%d", res.Pid)
		}

		exit := "-"
		if res.Pid > 0 {
			exit = fmt.Sprintf("%d", res.ExitCode)
		}

		duration := "-"
		if res.Duration > 0 {
			duration = formatDuration(res.Duration)
		}

		detail := res.Description
		switch {
		case res.Error != "":
			detail = res.Error
		case res.Signal != "":
			detail = "killed by " + res.Signal
		}

		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n", res.Job, outcome, pid, exit, duration, detail)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "run %s: %d of %d jobs failed\n", r.RunID, r.Failed(), len(r.Results))
	return err
}

func colorOutcome(outcome string) string {
	switch outcome {
	case OutcomeSuccess:
		return "\033[32m" + outcome + "\033[0m"
	case OutcomeFailure, OutcomeSpawnError, OutcomeSignal:
		return "\033[31m" + outcome + "\033[0m"
	case OutcomeCanceled, OutcomeSkipped:
		return "\033[33m" + outcome + "\033[0m"
	default:
		return outcome
	}
}

func formatDuration(d time.Duration) string {
	switch {
	case d < time.Second:
		return d.Round(time.Millisecond).String()
	case d < time.Minute:
		return d.Round(10 * time.Millisecond).String()
	default:
		return d.Round(time.Second).String()
	}
}
