// Command almanac is the calendar/task sync client daemon and its
// companion maintenance commands.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "0.3.0"

var configPath string

var rootCmd = &cobra.Command{
	Use:   "almanac",
	Short: "Client-side calendar/task sync engine",
	Long: `almanac keeps a local, year-partitioned cache of calendar events and
tasks consistent with the remote service under optimistic local edits,
a real-time push stream, and periodic full resynchronization.`,
	Version: version,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "",
		"config file (default: ./almanac.yaml, $HOME/.almanac/almanac.yaml)")

	rootCmd.AddCommand(daemonCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(refreshCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
