package commands

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

// MaintenanceCmd runs one maintenance sweep and prints the report.
var MaintenanceCmd = &cobra.Command{
	Use:   "maintenance",
	Short: "Run one maintenance sweep",
	Long: `Run a single maintenance sweep: staleness alerts for the queue and
function runs, stale job recovery, and retention pruning. Sections run
independently; the report carries per-section errors.`,
	RunE: runMaintenance,
}

func runMaintenance(cmd *cobra.Command, args []string) error {
	a, err := buildApp()
	if err != nil {
		return err
	}
	defer a.Close()

	report := a.sweeper.Sweep(cmd.Context())
	output, _ := json.MarshalIndent(report, "", "  ")
	fmt.Println(string(output))

	if report.HasErrors() {
		return fmt.Errorf("maintenance sweep finished with section errors")
	}
	return nil
}
