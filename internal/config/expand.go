package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ExpandContext holds variables available for expansion.
type ExpandContext struct {
	Here    string // directory of the config file
	JobName string
}

// ExpandVariables expands %(here)s, %(job_name)s and ${ENV} references in
// the path-like and environment fields of cfg.
func ExpandVariables(cfg *Config, configPath string) error {
	ctx := ExpandContext{
		Here: filepath.Dir(configPath),
	}

	var err error
	cfg.Runner.MetricsFile, err = expandString(cfg.Runner.MetricsFile, ctx)
	if err != nil {
		return fmt.Errorf("runner.metrics_file: %w", err)
	}

	for name, j := range cfg.Jobs {
		jCtx := ctx
		jCtx.JobName = name

		j.Path, err = expandString(j.Path, jCtx)
		if err != nil {
			return fmt.Errorf("jobs.%s.path: %w", name, err)
		}
		args := make([]string, len(j.Args))
		for i, a := range j.Args {
			args[i], err = expandString(a, jCtx)
			if err != nil {
				return fmt.Errorf("jobs.%s.args[%d]: %w", name, i, err)
			}
		}
		j.Args = args
		j.StdoutLogfile, err = expandString(j.StdoutLogfile, jCtx)
		if err != nil {
			return fmt.Errorf("jobs.%s.stdout_logfile: %w", name, err)
		}
		j.StderrLogfile, err = expandString(j.StderrLogfile, jCtx)
		if err != nil {
			return fmt.Errorf("jobs.%s.stderr_logfile: %w", name, err)
		}

		env := make(map[string]string, len(j.Environment))
		for k, v := range j.Environment {
			env[k], err = expandString(v, jCtx)
			if err != nil {
				return fmt.Errorf("jobs.%s.environment.%s: %w", name, k, err)
			}
		}
		if j.Environment != nil {
			j.Environment = env
		}

		cfg.Jobs[name] = j
	}

	return nil
}

// expandString expands all template variables and env references in a single string.
func expandString(s string, ctx ExpandContext) (string, error) {
	if s == "" {
		return s, nil
	}

	// Phase 1: Expand %(variable)s patterns.
	result, err := expandTemplateVars(s, ctx)
	if err != nil {
		return "", err
	}

	// Phase 2: Expand ${ENV_VAR} references.
	result, err = expandEnvVars(result)
	if err != nil {
		return "", err
	}

	// Phase 3: Unescape %% -> % and $$ -> $.
	result = strings.ReplaceAll(result, "%%", "%")
	result = strings.ReplaceAll(result, "$$", "$")

	return result, nil
}

func expandTemplateVars(s string, ctx ExpandContext) (string, error) {
	var result strings.Builder
	i := 0
	for i < len(s) {
		if i+1 < len(s) && s[i] == '%' && s[i+1] == '%' {
			// Escaped percent, preserve for later unescaping.
			result.WriteString("%%")
			i += 2
			continue
		}

		if i+1 < len(s) && s[i] == '%' && s[i+1] == '(' {
			end := strings.Index(s[i:], ")s")
			if end < 0 {
				return "", fmt.Errorf("unclosed template variable at position %d in %q", i, s)
			}

			val, err := resolveTemplateVar(s[i+2:i+end], ctx)
			if err != nil {
				return "", err
			}
			result.WriteString(val)
			i += end + 2
			continue
		}

		result.WriteByte(s[i])
		i++
	}

	return result.String(), nil
}

func resolveTemplateVar(name string, ctx ExpandContext) (string, error) {
	switch name {
	case "here":
		return ctx.Here, nil
	case "job_name":
		return ctx.JobName, nil
	default:
		return "", fmt.Errorf("unknown template variable: %%(%s)s", name)
	}
}

func expandEnvVars(s string) (string, error) {
	var result strings.Builder
	i := 0
	for i < len(s) {
		if i+1 < len(s) && s[i] == '$' && s[i+1] == '$' {
			// Escaped dollar, preserve for later unescaping.
			result.WriteString("$$")
			i += 2
			continue
		}

		if i+1 < len(s) && s[i] == '$' && s[i+1] == '{' {
			end := strings.Index(s[i:], "}")
			if end < 0 {
				return "", fmt.Errorf("unclosed environment variable reference at position %d in %q", i, s)
			}

			varName := s[i+2 : i+end]
			val, ok := os.LookupEnv(varName)
			if !ok {
				return "", fmt.Errorf("undefined environment variable: ${%s}", varName)
			}
			result.WriteString(val)
			i += end + 1
			continue
		}

		result.WriteByte(s[i])
		i++
	}

	return result.String(), nil
}

// ExpandString is exported for use by other packages needing single-value expansion.
func ExpandString(s string, ctx ExpandContext) (string, error) {
	return expandString(s, ctx)
}
