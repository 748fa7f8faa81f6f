package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
)

// Load parses the job file at path. Keys the decoder does not recognise
// are returned as warnings rather than rejected, so a job file written for
// a newer childproc still runs. Defaults are filled in before validation.
func Load(path string) (*Config, []string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("job file %s: %w", path, err)
	}
	return LoadBytes(data, path)
}

// LoadBytes is Load for a job file already in memory; name labels errors.
func LoadBytes(data []byte, name string) (*Config, []string, error) {
	cfg := &Config{}
	md, err := toml.Decode(string(data), cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("job file %s: %w", name, err)
	}

	warnings := undecodedKeys(md)
	ApplyDefaults(cfg)
	if errs := Validate(cfg); len(errs) > 0 {
		return nil, warnings, fmt.Errorf("job file %s is invalid:\n  %s", name, joinErrors(errs))
	}
	return cfg, warnings, nil
}

func undecodedKeys(md toml.MetaData) []string {
	keys := md.Undecoded()
	if len(keys) == 0 {
		return nil
	}
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = "unknown key " + k.String()
	}
	return out
}

func joinErrors(errs []error) string {
	msgs := make([]string, len(errs))
	for i, e := range errs {
		msgs[i] = e.Error()
	}
	return strings.Join(msgs, "\n  ")
}
