package config

import (
	"fmt"
	"strings"

	"github.com/kahiteam/childproc/internal/logging"
)

var validStdio = map[string]bool{
	"inherit": true, "piped": true, "pipe": true, "null": true, "devnull": true,
}

var validReportFormats = map[string]bool{
	"text": true, "json": true, "yaml": true,
}

// Validate checks the config for semantic errors and returns all of them.
func Validate(cfg *Config) []error {
	var errs []error

	if err := logging.ValidateLevel(cfg.Runner.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("runner: %w", err))
	}
	if f := strings.ToLower(cfg.Runner.LogFormat); f != "json" && f != "text" {
		errs = append(errs, fmt.Errorf("runner: log_format must be json or text, got %q", cfg.Runner.LogFormat))
	}
	if !validReportFormats[strings.ToLower(cfg.Runner.ReportFormat)] {
		errs = append(errs, fmt.Errorf("runner: report_format must be text, json, or yaml, got %q", cfg.Runner.ReportFormat))
	}

	for name, j := range cfg.Jobs {
		prefix := fmt.Sprintf("jobs.%s", name)

		if strings.TrimSpace(j.Path) == "" {
			errs = append(errs, fmt.Errorf("%s: path is required", prefix))
		}

		for stream, mode := range map[string]string{"stdin": j.Stdin, "stdout": j.Stdout, "stderr": j.Stderr} {
			if !validStdio[strings.ToLower(mode)] {
				errs = append(errs, fmt.Errorf("%s: %s must be inherit, piped, or null, got %q", prefix, stream, mode))
			}
		}

		if j.Input != "" && !isPiped(j.Stdin) {
			errs = append(errs, fmt.Errorf("%s: input requires stdin = \"piped\"", prefix))
		}
		if j.StdoutLogfile != "" && !isPiped(j.Stdout) {
			errs = append(errs, fmt.Errorf("%s: stdout_logfile requires stdout = \"piped\"", prefix))
		}
		if j.StderrLogfile != "" && !isPiped(j.Stderr) {
			errs = append(errs, fmt.Errorf("%s: stderr_logfile requires stderr = \"piped\"", prefix))
		}

		if j.Priority < 0 || j.Priority > 999 {
			errs = append(errs, fmt.Errorf("%s: priority must be between 0 and 999, got %d", prefix, j.Priority))
		}

		if err := logging.ValidateSize(j.LogfileMaxbytes); err != nil {
			errs = append(errs, fmt.Errorf("%s: logfile_maxbytes: %w", prefix, err))
		}
		if j.LogfileBackups < 0 {
			errs = append(errs, fmt.Errorf("%s: logfile_backups must not be negative", prefix))
		}

		for _, code := range j.Exitcodes {
			if code < 0 || code > 255 {
				errs = append(errs, fmt.Errorf("%s: exit code %d out of range 0-255", prefix, code))
			}
		}

		for k := range j.Environment {
			if k == "" || strings.ContainsAny(k, "=\x00") {
				errs = append(errs, fmt.Errorf("%s: invalid environment key %q", prefix, k))
			}
		}
	}

	return errs
}

func isPiped(mode string) bool {
	m := strings.ToLower(mode)
	return m == "piped" || m == "pipe"
}
