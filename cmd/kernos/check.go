package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"kernos/pkg/check"
	"kernos/pkg/programs"
)

func newCheckCommand() *cobra.Command {
	var (
		verbose bool
		list    bool
		timeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "check [CASE...]",
		Short: "Run the built-in check suite",
		Long: `Run the check suite, or the named cases. Every case boots a fresh
machine with an in-memory disk. Cases run on check_workers workers.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if list {
				for _, c := range programs.Suite() {
					fmt.Fprintf(cmd.OutOrStdout(), "%-20s %s\n", c.Name, c.CmdLine)
				}
				return nil
			}

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			cases, err := programs.Select(programs.Suite(), args)
			if err != nil {
				return err
			}

			runner := check.NewRunner(cfg, programs.Registry(), newLogger(cfg))
			runner.SetTimeout(timeout)

			results := runner.Run(cmd.Context(), cases)
			if s := check.Report(cmd.OutOrStdout(), results, verbose); s.Failed > 0 {
				fmt.Fprintf(os.Stderr, "%d checks failed\n", s.Failed)
				return &exitError{code: 1}
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "list passing cases too")
	cmd.Flags().BoolVarP(&list, "list", "l", false, "list cases without running them")
	cmd.Flags().DurationVar(&timeout, "timeout", check.DefaultTimeout, "deadline for each case")
	return cmd
}
