package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/attrsync/attrsync/reconciler"
)

var deviceByID bool

var deviceCmd = &cobra.Command{
	Use:   "device <name|id>",
	Short: "Reconcile a single device",
	Long: `Reconcile every mapped attribute for one device, looked up by
display name (default) or by record ID.

Examples:
  # Sync one device by display name
  attrsync device LAPTOP-042

  # Sync one device by cloud directory record ID
  attrsync device --id 7f3c21aa-1b9e-4e0f-9a81-c1d2e3f4a5b6`,
	Args: cobra.ExactArgs(1),
	RunE: runDevice,
}

func init() {
	rootCmd.AddCommand(deviceCmd)

	deviceCmd.Flags().BoolVar(&deviceByID, "id", false, "Look up by record ID instead of display name")
}

func runDevice(cmd *cobra.Command, args []string) error {
	a, err := buildApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := context.Background()
	var dr *reconciler.DeviceResult
	if deviceByID {
		dr, err = a.orch.ProcessSingleByID(ctx, args[0])
	} else {
		dr, err = a.orch.ProcessSingleByName(ctx, args[0])
	}
	if err != nil {
		return err
	}

	fmt.Printf("Device %s (%s)\n", dr.DeviceName, dr.DeviceID)
	for _, out := range dr.Outcomes {
		line := fmt.Sprintf("  %-24s %s", out.Attribute, out.Result)
		if out.Result == reconciler.ResultUpdated {
			line += fmt.Sprintf("  %q -> %q", out.OldValue, out.NewValue)
		}
		if out.Error != "" {
			line += "  (" + out.Error + ")"
		}
		fmt.Println(line)
	}

	if !dr.Success {
		return fmt.Errorf("device %s had failures", dr.DeviceName)
	}
	return nil
}
