package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/iti/mplsgos"
)

func newExample(pather CommandPather) *cobra.Command {
	var cmd = &cobra.Command{
		Use:   "example <file>",
		Short: "Write a small protected scenario, format chosen by the file extension",
		Long: `'example' writes a scenario with a sender, an active ingress LER, two
disjoint paths to an egress LER and a receiver.  The primary path breaks halfway
through the run so the flow moves to its backup LSP.`,
		Example: fmt.Sprintf(`  %[1]s example scenario.yaml`, pather.CommandPath()),
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			return mplsgos.ExampleScenario().WriteToFile(args[0])
		},
	}
	return cmd
}
