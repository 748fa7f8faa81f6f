package logging

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// rotateFile shifts path to path.1, path.1 to path.2 and so on, dropping
// the oldest. With no backups the file is truncated instead.
func rotateFile(path string, backups int) error {
	if backups <= 0 {
		return os.Truncate(path, 0)
	}

	_ = os.Remove(fmt.Sprintf("%s.%d", path, backups))
	// Missing intermediates are expected.
	for i := backups - 1; i >= 1; i-- {
		_ = os.Rename(fmt.Sprintf("%s.%d", path, i), fmt.Sprintf("%s.%d", path, i+1))
	}
	return os.Rename(path, path+".1")
}

// ParseSize parses a human-readable size such as "10MB" to bytes.
// Supports B, KB, MB and GB suffixes; a bare number is bytes. Empty,
// "0" and malformed values return 0, meaning unlimited.
func ParseSize(s string) int64 {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" || s == "0" {
		return 0
	}

	var multiplier int64 = 1
	for _, u := range []struct {
		suffix string
		mult   int64
	}{
		{"GB", 1 << 30},
		{"MB", 1 << 20},
		{"KB", 1 << 10},
		{"B", 1},
	} {
		if strings.HasSuffix(s, u.suffix) {
			multiplier = u.mult
			s = strings.TrimSuffix(s, u.suffix)
			break
		}
	}

	val, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil || val < 0 {
		return 0
	}
	return val * multiplier
}

// ValidateSize reports whether s is a size ParseSize understands.
func ValidateSize(s string) error {
	t := strings.TrimSpace(s)
	if t == "" || t == "0" || ParseSize(t) > 0 {
		return nil
	}
	return fmt.Errorf("invalid size %q: want a number with an optional B, KB, MB or GB suffix", s)
}
