package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/spf13/cobra"

	"github.com/kahiteam/childproc/internal/config"
)

var (
	initOutput string
	initStdout bool
	initForce  bool
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a commented sample job file to start from",
	RunE: func(cmd *cobra.Command, args []string) error {
		if initStdout {
			_, err := fmt.Fprint(cmd.OutOrStdout(), config.DefaultConfigTOML)
			return err
		}

		if err := writeJobFile(initOutput, initForce); err != nil {
			return err
		}
		_, err := fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", initOutput)
		return err
	},
}

// writeJobFile creates path with the sample job file. Without force an
// existing file is left untouched.
func writeJobFile(path string, force bool) error {
	flags := os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	if !force {
		flags = os.O_WRONLY | os.O_CREATE | os.O_EXCL
	}
	f, err := os.OpenFile(path, flags, 0o644)
	if errors.Is(err, fs.ErrExist) {
		return fmt.Errorf("%s already exists; pass --force to replace it", path)
	}
	if err != nil {
		return fmt.Errorf("init: %w", err)
	}
	if _, err := f.WriteString(config.DefaultConfigTOML); err != nil {
		f.Close()
		return fmt.Errorf("init: write %s: %w", path, err)
	}
	return f.Close()
}

func init() {
	initCmd.Flags().StringVarP(&initOutput, "output", "o", "childproc.toml", "job file to create")
	initCmd.Flags().BoolVar(&initStdout, "stdout", false, "print the sample instead of writing a file")
	initCmd.Flags().BoolVar(&initForce, "force", false, "replace an existing file")
	rootCmd.AddCommand(initCmd)
}
