package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/attrsync/attrsync/internal/daemon"
	"github.com/attrsync/attrsync/telemetry"
)

var (
	daemonInterval   time.Duration
	daemonOTELTarget string
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run continuous reconciliation",
	Long: `Run attrsync in daemon mode for continuous reconciliation.

The daemon reconciles all devices at the configured interval, serves the
operational API, and exports Prometheus metrics. Ticks that arrive while
a run is still in flight are skipped. Shuts down gracefully on
SIGTERM/SIGINT.`,
	Example: `  attrsync daemon                       # interval from config
  attrsync daemon --interval 30m        # override interval
  attrsync daemon --otel localhost:4317 # also push OTLP telemetry`,
	RunE: runDaemon,
}

func init() {
	rootCmd.AddCommand(daemonCmd)

	daemonCmd.Flags().DurationVar(&daemonInterval, "interval", 0, "Reconciliation interval (overrides config)")
	daemonCmd.Flags().StringVar(&daemonOTELTarget, "otel", "", "OTLP endpoint for traces and metrics")
}

func runDaemon(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	shutdown, err := telemetry.InitOTEL(ctx, telemetry.Config{
		ServiceName:    "attrsync",
		ServiceVersion: version,
		OTELEndpoint:   daemonOTELTarget,
		Insecure:       true,
	})
	if err != nil {
		return fmt.Errorf("failed to init telemetry: %w", err)
	}
	defer func() {
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdown(shutCtx)
	}()

	a, err := buildApp()
	if err != nil {
		return err
	}
	defer a.Close()

	interval := a.cfg.Reconcile.Interval
	if daemonInterval > 0 {
		interval = daemonInterval
	}

	fmt.Printf("🚀 Starting attrsync daemon...\n")
	fmt.Printf("   Interval: %s\n", interval)
	fmt.Printf("   API:      %s\n", a.cfg.API.Addr)
	fmt.Printf("   Metrics:  %s\n", a.cfg.Metrics.Addr)

	d, err := daemon.NewDaemon(daemon.Config{
		Interval:    interval,
		APIAddr:     a.cfg.API.Addr,
		MetricsAddr: a.cfg.Metrics.Addr,
	}, a.orch, a.api, a.logger)
	if err != nil {
		return fmt.Errorf("failed to create daemon: %w", err)
	}

	return d.Run(ctx)
}
