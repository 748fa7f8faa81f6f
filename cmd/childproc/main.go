package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/kahiteam/childproc/internal/logging"
)

var (
	logLevel  string
	logFormat string
)

var rootCmd = &cobra.Command{
	Use:           "childproc",
	Short:         "childproc -- spawn programs with explicit stdio wiring",
	Long:          "childproc forks and executes programs with inherited, piped or discarded standard streams, and runs batches of them from a job file.",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := logging.ValidateLevel(logLevel); err != nil {
			return err
		}
		switch logFormat {
		case "auto", "json", "text":
			return nil
		}
		return fmt.Errorf("invalid log format %q: must be auto, json, or text", logFormat)
	},
}

// exitError carries a process exit code out of a command.
type exitError struct {
	code int
}

func (e *exitError) Error() string { return fmt.Sprintf("exit status %d", e.code) }

func main() {
	if err := rootCmd.Execute(); err != nil {
		var ee *exitError
		if errors.As(err, &ee) {
			os.Exit(ee.code)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// newLogger builds the command logger on stderr. With --log-format=auto it
// is text on a terminal and JSON otherwise. cfgLevel and cfgFormat apply
// when the flags were left at their defaults. The returned level can be
// changed while the logger is in use.
func newLogger(cmd *cobra.Command, cfgLevel, cfgFormat string) (*slog.Logger, *logging.LevelVar) {
	level := logLevel
	if !cmd.Flags().Changed("log-level") && cfgLevel != "" {
		level = cfgLevel
	}
	format := logFormat
	if !cmd.Flags().Changed("log-format") && cfgFormat != "" {
		format = cfgFormat
	}
	w := cmd.ErrOrStderr()
	if format == "auto" {
		format = "json"
		if isTerminal(w) {
			format = "text"
		}
	}
	lv := logging.NewLevelVar(level)
	return logging.New(logging.LogConfig{Format: format, Output: w, Leveler: lv}), lv
}

func isTerminal(w any) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "auto", "log format (auto, json, text)")
}
