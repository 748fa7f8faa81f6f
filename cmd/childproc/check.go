package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/kahiteam/childproc/internal/config"
	"github.com/kahiteam/childproc/internal/process"
	"github.com/kahiteam/childproc/internal/runner"
)

var checkConfig string

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Validate a job file and show the jobs in run order",
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := config.Resolve(checkConfig)
		if err != nil {
			return err
		}
		cfg, warnings, err := config.LoadWithIncludes(path)
		if err != nil {
			return err
		}
		w := cmd.OutOrStdout()
		for _, warn := range warnings {
			fmt.Fprintf(cmd.ErrOrStderr(), "warning: %s\n", warn)
		}

		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		fmt.Fprintf(tw, "PRIORITY\tJOB\tSTDIO\tCOMMAND\n")
		for _, job := range runner.New(cfg, nil, nil, nil).Jobs() {
			jc := job.Config
			c := process.NewCommand(jc.Path, jc.Args...)
			stdio := strings.Join([]string{jc.Stdin, jc.Stdout, jc.Stderr}, "/")
			fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", jc.Priority, job.Name, stdio, c)
		}
		if err := tw.Flush(); err != nil {
			return err
		}
		_, err = fmt.Fprintf(w, "%s: ok\n", path)
		return err
	},
}

func init() {
	checkCmd.Flags().StringVarP(&checkConfig, "config", "c", "", "job file to validate")
	rootCmd.AddCommand(checkCmd)
}
