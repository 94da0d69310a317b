package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/outflowhq/outflow/cmd/outflow/commands"
	"github.com/outflowhq/outflow/logger"
)

var jsonLogs bool

var rootCmd = &cobra.Command{
	Use:   "outflow",
	Short: "Outflow - background dispatch and queue engine",
	Long: `Outflow background dispatch core: fair workspace scheduling,
durable webhook event processing, and maintenance sweeps.

Available commands:
  serve       - Start the trigger server with internal tickers
  dispatch    - Run one dispatch cycle
  queue       - Manage the webhook event queue
  maintenance - Run one maintenance sweep
  version     - Show version information

Examples:
  outflow serve                 # Run the full service
  outflow dispatch              # One-shot dispatch cycle (for cron)
  outflow queue run             # One-shot queue pass
  outflow maintenance           # One-shot maintenance sweep`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := logger.Initialize(jsonLogs); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&commands.ConfigPath, "config", "", "Config file path (default: outflow.toml, env OUTFLOW_*)")
	rootCmd.PersistentFlags().BoolVar(&jsonLogs, "json-logs", false, "Emit logs as JSON instead of console format")

	rootCmd.AddCommand(commands.ServeCmd)
	rootCmd.AddCommand(commands.DispatchCmd)
	rootCmd.AddCommand(commands.QueueCmd)
	rootCmd.AddCommand(commands.MaintenanceCmd)
	rootCmd.AddCommand(commands.VersionCmd)
}

func main() {
	defer logger.Sync()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
