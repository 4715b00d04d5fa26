package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/attrsync/attrsync/audit"
)

var (
	auditFrom   string
	auditTo     string
	auditType   string
	auditDevice string
	auditLimit  int
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Inspect the audit trail",
}

var auditLogsCmd = &cobra.Command{
	Use:   "logs",
	Short: "Print audit entries, newest first",
	Example: `  attrsync audit logs --limit 50
  attrsync audit logs --type mapping_update --device LAPTOP-042
  attrsync audit logs --from 2026-08-01T00:00:00Z`,
	RunE: runAuditLogs,
}

var auditSummaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Summarize audit activity",
	RunE:  runAuditSummary,
}

var auditExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export audit entries to CSV",
	RunE:  runAuditExport,
}

func init() {
	rootCmd.AddCommand(auditCmd)
	auditCmd.AddCommand(auditLogsCmd, auditSummaryCmd, auditExportCmd)

	auditCmd.PersistentFlags().StringVar(&auditFrom, "from", "", "Start of time range (RFC3339)")
	auditCmd.PersistentFlags().StringVar(&auditTo, "to", "", "End of time range (RFC3339)")
	auditCmd.PersistentFlags().StringVar(&auditType, "type", "", "Filter by event type")
	auditCmd.PersistentFlags().StringVar(&auditDevice, "device", "", "Filter by device name")
	auditLogsCmd.Flags().IntVar(&auditLimit, "limit", 100, "Maximum entries to print")
}

func auditFilter() (audit.Filter, error) {
	f := audit.Filter{
		Type:   audit.EventType(auditType),
		Device: auditDevice,
		Limit:  auditLimit,
	}
	if auditFrom != "" {
		from, err := time.Parse(time.RFC3339, auditFrom)
		if err != nil {
			return f, fmt.Errorf("invalid --from: %w", err)
		}
		f.From = from
	}
	if auditTo != "" {
		to, err := time.Parse(time.RFC3339, auditTo)
		if err != nil {
			return f, fmt.Errorf("invalid --to: %w", err)
		}
		f.To = to
	}
	return f, nil
}

func runAuditLogs(cmd *cobra.Command, args []string) error {
	a, err := buildApp()
	if err != nil {
		return err
	}
	defer a.Close()

	f, err := auditFilter()
	if err != nil {
		return err
	}
	entries, err := a.auditor.Query(f)
	if err != nil {
		return err
	}

	for _, e := range entries {
		line := fmt.Sprintf("%s  %-18s %-8s", e.Timestamp.Format(time.RFC3339), e.Type, e.Severity)
		if e.Device != "" {
			line += "  " + e.Device
		}
		if e.Attribute != "" {
			line += "  " + e.Attribute
		}
		if e.Type == audit.EventMappingUpdate {
			line += fmt.Sprintf("  %q -> %q", e.OldValue, e.NewValue)
		}
		if e.Error != "" {
			line += "  error=" + e.Error
		}
		fmt.Println(line)
	}
	fmt.Printf("\n%d entries\n", len(entries))
	return nil
}

func runAuditSummary(cmd *cobra.Command, args []string) error {
	a, err := buildApp()
	if err != nil {
		return err
	}
	defer a.Close()

	f, err := auditFilter()
	if err != nil {
		return err
	}
	summary, err := a.auditor.Summarize(f.From, f.To)
	if err != nil {
		return err
	}

	fmt.Printf("Total entries:    %d\n", summary.Total)
	fmt.Printf("Distinct devices: %d\n", summary.DistinctDevices)
	fmt.Printf("Success rate:     %.1f%%\n", summary.SuccessRate*100)
	fmt.Printf("Avg duration:     %.1fms\n", summary.AvgDurationMs)
	fmt.Println("\nBy type:")
	for typ, n := range summary.ByType {
		fmt.Printf("  %-20s %d\n", typ, n)
	}
	return nil
}

func runAuditExport(cmd *cobra.Command, args []string) error {
	a, err := buildApp()
	if err != nil {
		return err
	}
	defer a.Close()

	f, err := auditFilter()
	if err != nil {
		return err
	}
	prefix := a.cfg.Export.Prefix
	if prefix == "" {
		prefix = "audit"
	}
	path, err := a.auditor.Export(a.cfg.Export.Dir, prefix, f)
	if err != nil {
		return err
	}
	fmt.Printf("📄 Exported to %s\n", path)
	return nil
}
