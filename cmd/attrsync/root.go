package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var (
	version = "0.1.0"

	configPath string
	dataDir    string
	debug      bool

	rootCmd = &cobra.Command{
		Use:   "attrsync",
		Short: "Extension Attribute Reconciliation Engine",
		Long: `Attrsync - Extension Attribute Reconciliation Engine

Attrsync keeps extension attributes on cloud device identity records in
sync with authoritative sources: the on-prem directory service and the
endpoint-management service. Values are resolved per mapping, compared
against the current state, and written back only when they differ.

Run one-shot reconciliations, sync single devices, inspect the audit
trail, or run continuously in daemon mode.`,
		Version: version,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if debug {
				zerolog.SetGlobalLevel(zerolog.DebugLevel)
			} else {
				zerolog.SetGlobalLevel(zerolog.InfoLevel)
			}
		},
	}
)

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.SetVersionTemplate(`Attrsync {{.Version}} - Extension Attribute Reconciliation Engine
`)
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "attrsync.yaml", "Config file path")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", ".", "Directory for the run history database")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")
}
