package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// newSinksCommand lists sink types and what auto resolves to on this machine
func newSinksCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "sinks",
		Short: "List output sinks and the detected default",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cli, err := requireCLI(cmd)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			detected := cli.sinkFactory.DetectOptimal()
			for _, t := range cli.sinkFactory.SupportedTypes() {
				marker := " "
				if t == detected {
					marker = "*"
				}
				fmt.Fprintf(out, "%s %s\n", marker, t)
			}
			if player := cli.sinkFactory.PreferredCommand(); player != "" {
				fmt.Fprintf(out, "command sink player: %s\n", player)
			}
			return nil
		},
	}
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			printVersion(cmd.OutOrStdout())
		},
	}
}
