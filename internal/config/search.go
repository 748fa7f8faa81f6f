package config

import (
	"errors"
	"fmt"
	"os"
)

// EnvJobFile names the environment variable that points at a job file.
const EnvJobFile = "CHILDPROC_CONFIG"

// DefaultSearchPaths are tried, first match wins, when neither a -c flag
// nor $CHILDPROC_CONFIG names a job file.
var DefaultSearchPaths = []string{
	"./childproc.toml",
	"/etc/childproc/childproc.toml",
}

// Resolve picks the job file to load. A path given explicitly, or through
// $CHILDPROC_CONFIG, must exist; the search paths are only tried when
// both are empty.
func Resolve(explicit string) (string, error) {
	for _, named := range []string{explicit, os.Getenv(EnvJobFile)} {
		if named == "" {
			continue
		}
		if _, err := os.Stat(named); err != nil {
			return "", fmt.Errorf("job file %s: %w", named, err)
		}
		return named, nil
	}

	for _, candidate := range DefaultSearchPaths {
		_, err := os.Stat(candidate)
		if err == nil {
			return candidate, nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("job file %s: %w", candidate, err)
		}
	}
	return "", fmt.Errorf("no job file given and none found in %v", DefaultSearchPaths)
}
