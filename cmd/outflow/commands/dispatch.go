package commands

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var dispatchSource string

// DispatchCmd runs one dispatch cycle and prints the summary.
var DispatchCmd = &cobra.Command{
	Use:   "dispatch",
	Short: "Run one dispatch cycle",
	Long: `Run a single dispatch cycle: register the dispatch window, fair-order
the pending backlog, claim under workspace quotas, and hand claimed jobs to
execution. Duplicate invocations inside the same window exit cleanly.`,
	RunE: runDispatch,
}

func init() {
	DispatchCmd.Flags().StringVar(&dispatchSource, "source", "cli", "Trigger source recorded in the dispatch window")
}

func runDispatch(cmd *cobra.Command, args []string) error {
	a, err := buildApp()
	if err != nil {
		return err
	}
	defer a.Close()

	summary, err := a.dispatcher.RunCycle(cmd.Context(), dispatchSource)
	if err != nil {
		return err
	}

	output, _ := json.MarshalIndent(summary, "", "  ")
	fmt.Println(string(output))
	return nil
}
