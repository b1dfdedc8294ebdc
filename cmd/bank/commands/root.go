package commands

import (
	"github.com/spf13/cobra"
)

// configPath points at an rtconfig file; empty means auto-discover or fall
// back to defaults.
var configPath string

var rootCmd = &cobra.Command{
	Use:   "bank",
	Short: "Demonstrates a supervised bank account actor",
	Long: `bank spawns a single Account actor on a Stage and drives it through
a scripted sequence of deposits, withdrawals, and one deliberate overdraft,
to show supervision restarting the actor in place.`,
}

// Execute runs the CLI.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "",
		"path to a bank config file (defaults to auto-discovery, then built-in defaults)")

	rootCmd.AddCommand(serveCmd)
}
