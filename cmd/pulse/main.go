// Command pulse runs the heartbeat engine against the local database.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	configPath string
	logLevel   string
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "pulse",
		Short: "pulse - context-aware periodic checks",
		Long: `pulse wakes up on a schedule, looks at the current situation, asks an
LLM which registered checks are worth running, runs them in isolation and
forwards anything that needs attention.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "pulse.toml", "Path to the TOML config file")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override log level (debug, info, warn, error)")

	root.AddCommand(runCmd(), historyCmd(), breakersCmd(), checksCmd())
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
