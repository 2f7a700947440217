// Command ergodic replays recorded thinking sessions through the early
// warning system and lists the escape protocol catalog.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "ergodic",
	Short: "Irreversibility early warning for thinking sessions",
	Long: `ergodic tracks how much flexibility a multi-step thinking session has
left, warns before it commits itself into a corner, and recommends escape
protocols.

Examples:
  ergodic replay session.yaml
  ergodic replay session.yaml --auto-escape --seed 7
  ergodic protocols`,
	SilenceUsage: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
