package config

// ApplyDefaults fills in zero-value fields with their default values.
func ApplyDefaults(cfg *Config) {
	if cfg.Runner.LogLevel == "" {
		cfg.Runner.LogLevel = "info"
	}
	if cfg.Runner.LogFormat == "" {
		cfg.Runner.LogFormat = "json"
	}
	if cfg.Runner.ReportFormat == "" {
		cfg.Runner.ReportFormat = "text"
	}

	for name, j := range cfg.Jobs {
		if j.Stdin == "" {
			j.Stdin = "null"
		}
		if j.Stdout == "" {
			j.Stdout = "piped"
		}
		if j.Stderr == "" {
			j.Stderr = "piped"
		}
		if j.Priority == 0 {
			j.Priority = 999
		}
		if len(j.Exitcodes) == 0 {
			j.Exitcodes = []int{0}
		}
		if j.InheritEnvironment == nil {
			t := true
			j.InheritEnvironment = &t
		}
		cfg.Jobs[name] = j
	}
}
