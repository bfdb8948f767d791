package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"kernos/pkg/programs"
)

func newProgramsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "programs",
		Short: "List the built-in user programs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			registry := programs.Registry()

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tPROMISES\tDESCRIPTION")
			for _, name := range registry.Names() {
				prog, err := registry.Lookup(name)
				if err != nil {
					return err
				}
				fmt.Fprintf(w, "%s\t%s\t%s\n", prog.Name, prog.Pledged(), prog.Description)
			}
			return w.Flush()
		},
	}
}

func newConfigCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), cfg.ToJSON())
			return nil
		},
	}
}
