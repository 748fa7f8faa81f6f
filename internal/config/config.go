// Package config handles loading and validating childproc job files.
package config

// Config is the top-level job file.
type Config struct {
	Runner  RunnerConfig         `toml:"runner"`
	Jobs    map[string]JobConfig `toml:"jobs"`
	Include []string             `toml:"include"`
}

// RunnerConfig holds batch-level settings.
type RunnerConfig struct {
	LogLevel      string `toml:"log_level"`
	LogFormat     string `toml:"log_format"`
	MetricsFile   string `toml:"metrics_file"`
	ReportFormat  string `toml:"report_format"`
	StopOnFailure bool   `toml:"stop_on_failure"`
}

// JobConfig describes one program to run.
type JobConfig struct {
	Path               string            `toml:"path"`
	Args               []string          `toml:"args"`
	Environment        map[string]string `toml:"environment"`
	InheritEnvironment *bool             `toml:"inherit_environment"`
	Stdin              string            `toml:"stdin"`
	Stdout             string            `toml:"stdout"`
	Stderr             string            `toml:"stderr"`
	Input              string            `toml:"input"`
	Priority           int               `toml:"priority"`
	Exitcodes          []int             `toml:"exitcodes"`
	StdoutLogfile      string            `toml:"stdout_logfile"`
	StderrLogfile      string            `toml:"stderr_logfile"`
	StripAnsi          bool              `toml:"strip_ansi"`
	LogfileMaxbytes    string            `toml:"logfile_maxbytes"`
	LogfileBackups     int               `toml:"logfile_backups"`
	Description        string            `toml:"description"`
}

// Inherits reports whether the job starts from the runner's environment.
func (j JobConfig) Inherits() bool {
	return j.InheritEnvironment == nil || *j.InheritEnvironment
}
