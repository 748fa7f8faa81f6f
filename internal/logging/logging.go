// Package logging provides structured logging for childproc using stdlib
// slog, and the writers that record captured child output.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

// LogConfig controls logger creation.
type LogConfig struct {
	Level   string       // "debug", "info", "warn", "error"
	Format  string       // "json" (default), "text"
	Output  io.Writer    // defaults to os.Stderr
	Leveler slog.Leveler // overrides Level when set
}

// New creates a configured *slog.Logger.
func New(cfg LogConfig) *slog.Logger {
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}

	var level slog.Leveler = parseLevel(cfg.Level)
	if cfg.Leveler != nil {
		level = cfg.Leveler
	}
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if strings.EqualFold(cfg.Format, "text") {
		handler = slog.NewTextHandler(out, opts)
	} else {
		handler = slog.NewJSONHandler(out, opts)
	}

	return slog.New(handler)
}

// WithFields returns a child logger with additional context fields.
func WithFields(logger *slog.Logger, fields ...any) *slog.Logger {
	return logger.With(fields...)
}

// ValidateLevel reports whether s names a known level.
func ValidateLevel(s string) error {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug", "info", "warn", "error":
		return nil
	}
	return fmt.Errorf("invalid log level %q: must be debug, info, warn, or error", s)
}

// LevelVar is a level that can be changed while loggers use it. It
// remembers the last level Set so ToggleDebug can return to it.
type LevelVar struct {
	mu   sync.Mutex
	v    slog.LevelVar
	base slog.Level
}

// NewLevelVar returns a LevelVar set to the named level.
func NewLevelVar(s string) *LevelVar {
	lv := &LevelVar{}
	lv.Set(s)
	return lv
}

// Set changes the level. Unknown names select info.
func (lv *LevelVar) Set(s string) {
	lv.mu.Lock()
	defer lv.mu.Unlock()
	lv.base = parseLevel(s)
	lv.v.Set(lv.base)
}

// ToggleDebug switches to debug, or back to the last level Set when debug
// is already active. It returns the level now in effect.
func (lv *LevelVar) ToggleDebug() slog.Level {
	lv.mu.Lock()
	defer lv.mu.Unlock()
	if lv.v.Level() == slog.LevelDebug {
		lv.v.Set(lv.base)
	} else {
		lv.v.Set(slog.LevelDebug)
	}
	return lv.v.Level()
}

// Level implements slog.Leveler.
func (lv *LevelVar) Level() slog.Level { return lv.v.Level() }

func parseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
