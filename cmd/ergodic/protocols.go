package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"github.com/zoobzio/ergodic"
)

var protocolsCmd = &cobra.Command{
	Use:   "protocols",
	Short: "List the escape protocol catalog",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return printProtocols(cmd.OutOrStdout(), ergodic.Protocols())
	},
}

func init() {
	rootCmd.AddCommand(protocolsCmd)
}

func printProtocols(w io.Writer, protocols []ergodic.EscapeProtocol) error {
	for _, p := range protocols {
		confirm := ""
		if p.RequiresConfirmation() {
			confirm = " (requires confirmation)"
		}
		if _, err := fmt.Fprintf(w, "%d. %s%s\n   needs flexibility %.2f, gains ~%.2f, succeeds %.0f%%\n   %s\n",
			p.Level, p.Name, confirm, p.RequiredFlexibility, p.EstimatedFlexibilityGain,
			p.SuccessProbability*100, p.Description); err != nil {
			return err
		}
		for _, step := range p.Steps {
			if _, err := fmt.Fprintf(w, "   - %s\n", step); err != nil {
				return err
			}
		}
		if _, err := fmt.Fprintf(w, "   risks: %s\n", strings.Join(p.Risks, ", ")); err != nil {
			return err
		}
	}
	return nil
}
