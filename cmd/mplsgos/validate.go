package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/iti/mplsgos"
)

func newValidate(pather CommandPather) *cobra.Command {
	var cmd = &cobra.Command{
		Use:     "validate <scenario>",
		Short:   "Check a scenario without running it",
		Example: fmt.Sprintf(`  %[1]s validate scenario.toml`, pather.CommandPath()),
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sd, err := mplsgos.ReadScenarioDesc(args[0], nil)
			if err != nil {
				return err
			}
			cmd.SilenceUsage = true
			if err := sd.Validate(); err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s: %d nodes, %d links\n", sd.Name, len(sd.Nodes), len(sd.Links))
			return err
		},
	}
	return cmd
}
