package commands

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

// QueueCmd groups webhook event queue operations.
var QueueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Manage the webhook event queue",
}

var queueRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one queue pass",
	Long: `Run a single webhook queue pass: release stale locks, claim due
events, dispatch them to registered handlers, and schedule retries with
exponential backoff. Safe to invoke concurrently with serve mode.`,
	RunE: runQueuePass,
}

var queueStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show queue backlog",
	RunE:  runQueueStatus,
}

func init() {
	QueueCmd.AddCommand(queueRunCmd)
	QueueCmd.AddCommand(queueStatusCmd)
}

func runQueuePass(cmd *cobra.Command, args []string) error {
	a, err := buildApp()
	if err != nil {
		return err
	}
	defer a.Close()

	summary, err := a.runner.RunPass(cmd.Context())
	if err != nil {
		return err
	}

	output, _ := json.MarshalIndent(summary, "", "  ")
	fmt.Println(string(output))
	return nil
}

func runQueueStatus(cmd *cobra.Command, args []string) error {
	a, err := buildApp()
	if err != nil {
		return err
	}
	defer a.Close()

	status, err := a.runner.Status()
	if err != nil {
		return err
	}

	output, _ := json.MarshalIndent(status, "", "  ")
	fmt.Println(string(output))
	return nil
}
