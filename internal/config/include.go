package config

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
)

// ResolveIncludes processes the include directive in the config,
// loading and merging all matched files. Returns warnings for patterns
// that match no files. The configDir is the directory of the main config file.
func ResolveIncludes(cfg *Config, configDir string) ([]string, error) {
	if len(cfg.Include) == 0 {
		return nil, nil
	}

	var warnings []string
	seen := make(map[string]bool)

	for _, pattern := range cfg.Include {
		if !filepath.IsAbs(pattern) {
			pattern = filepath.Join(configDir, pattern)
		}

		matches, err := filepath.Glob(pattern)
		if err != nil {
			return warnings, fmt.Errorf("invalid include pattern %q: %w", pattern, err)
		}

		if len(matches) == 0 {
			warnings = append(warnings, fmt.Sprintf("include pattern %q matched no files", pattern))
			continue
		}

		// Sort for deterministic merge order.
		sort.Strings(matches)

		for _, path := range matches {
			absPath, err := filepath.Abs(path)
			if err != nil {
				return warnings, fmt.Errorf("cannot resolve include path %q: %w", path, err)
			}

			if seen[absPath] {
				return warnings, fmt.Errorf("circular include detected: %s", absPath)
			}
			seen[absPath] = true

			included, incWarnings, err := Load(absPath)
			if err != nil {
				return warnings, fmt.Errorf("include %s: %w", absPath, err)
			}
			warnings = append(warnings, incWarnings...)

			// Each included file expands against its own directory.
			if err := ExpandVariables(included, absPath); err != nil {
				return warnings, fmt.Errorf("include %s: %w", absPath, err)
			}

			if err := mergeJobs(cfg, included, absPath); err != nil {
				return warnings, err
			}
		}
	}

	// Clear includes to prevent re-processing.
	cfg.Include = nil

	return warnings, nil
}

func mergeJobs(dst, src *Config, srcPath string) error {
	for name, job := range src.Jobs {
		if _, ok := dst.Jobs[name]; ok {
			return fmt.Errorf("duplicate job name %q: defined in both main config and %s", name, srcPath)
		}
		if dst.Jobs == nil {
			dst.Jobs = make(map[string]JobConfig)
		}
		dst.Jobs[name] = job
	}
	return nil
}

// LoadWithIncludes loads a job file, expands variables and resolves all
// includes.
func LoadWithIncludes(path string) (*Config, []string, error) {
	cfg, warnings, err := Load(path)
	if err != nil {
		return nil, warnings, err
	}

	if err := ExpandVariables(cfg, path); err != nil {
		return nil, warnings, fmt.Errorf("variable expansion failed: %w", err)
	}

	incWarnings, err := ResolveIncludes(cfg, filepath.Dir(path))
	warnings = append(warnings, incWarnings...)
	if err != nil {
		return nil, warnings, err
	}

	if errs := validateExpanded(cfg); len(errs) > 0 {
		return nil, warnings, fmt.Errorf("config validation failed:\n  %s", joinErrors(errs))
	}
	if len(cfg.Jobs) == 0 {
		warnings = append(warnings, "no jobs defined")
	}

	return cfg, warnings, nil
}

// validateExpanded checks what can only be judged once variables are
// expanded.
func validateExpanded(cfg *Config) []error {
	var errs []error
	for name, j := range cfg.Jobs {
		if !filepath.IsAbs(j.Path) {
			errs = append(errs, fmt.Errorf("jobs.%s: path must be absolute, got %q", name, j.Path))
		}
		for k, v := range j.Environment {
			if strings.IndexByte(v, 0) >= 0 {
				errs = append(errs, fmt.Errorf("jobs.%s: environment.%s contains a NUL byte", name, k))
			}
		}
	}
	return errs
}
