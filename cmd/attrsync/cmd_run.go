package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one full reconciliation",
	Long: `Run one full reconciliation across all devices in the cloud
identity directory.

This command will:
1. Validate the mapping configuration
2. Page through all device identity records
3. Resolve each mapped attribute from its source
4. Write back values that differ, recording every decision in the audit trail

Examples:
  # Run with the default config file
  attrsync run

  # Use a specific config file
  attrsync run --config ./attrsync.yaml`,
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	a, err := buildApp()
	if err != nil {
		return err
	}
	defer a.Close()

	fmt.Println("🔄 Starting reconciliation...")
	result, err := a.orch.RunReconciliation(context.Background())
	if err != nil {
		return fmt.Errorf("reconciliation failed: %w", err)
	}

	stats := result.Stats
	fmt.Printf("\n✅ Run %s complete\n", stats.RunID)
	fmt.Printf("   Devices:   %d\n", stats.TotalDevices)
	fmt.Printf("   Processed: %d\n", stats.ProcessedCount)
	fmt.Printf("   Failed:    %d\n", stats.FailedCount)
	fmt.Printf("   Elapsed:   %dms\n", stats.ElapsedMs)

	if stats.FailedCount > 0 {
		return fmt.Errorf("%d device(s) failed", stats.FailedCount)
	}
	return nil
}
