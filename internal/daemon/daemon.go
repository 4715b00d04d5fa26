// Package daemon runs continuous reconciliation: an interval loop, the
// operational API, and a metrics endpoint, supervised as one group.
package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/oklog/run"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/attrsync/attrsync/internal/api"
	"github.com/attrsync/attrsync/orchestrator"
	"github.com/attrsync/attrsync/telemetry"
)

// Config holds daemon configuration.
type Config struct {
	Interval    time.Duration
	APIAddr     string
	MetricsAddr string
}

// Daemon manages continuous reconciliation.
type Daemon struct {
	orch        *orchestrator.Orchestrator
	api         *api.Server
	interval    time.Duration
	apiAddr     string
	metricsAddr string
	metrics     *Metrics
	logger      *telemetry.Logger
	startTime   time.Time

	running   atomic.Bool
	inFlight  sync.WaitGroup
	runCount  atomic.Int64
	skipCount atomic.Int64
	lastRun   atomic.Int64 // unix seconds, 0 until first run
}

// NewDaemon creates a new daemon instance.
func NewDaemon(cfg Config, orch *orchestrator.Orchestrator, apiServer *api.Server, logger *telemetry.Logger) (*Daemon, error) {
	metrics, err := NewMetrics()
	if err != nil {
		return nil, err
	}
	return &Daemon{
		orch:        orch,
		api:         apiServer,
		interval:    cfg.Interval,
		apiAddr:     cfg.APIAddr,
		metricsAddr: cfg.MetricsAddr,
		metrics:     metrics,
		logger:      logger,
		startTime:   time.Now(),
	}, nil
}

// Run blocks until the context is cancelled, a signal arrives, or one
// of the daemon's actors fails.
func (d *Daemon) Run(ctx context.Context) error {
	var g run.Group

	g.Add(run.SignalHandler(ctx, syscall.SIGINT, syscall.SIGTERM))

	loopCtx, cancelLoop := context.WithCancel(ctx)
	g.Add(func() error {
		return d.loop(loopCtx)
	}, func(error) {
		cancelLoop()
	})

	if d.api != nil && d.apiAddr != "" {
		g.Add(func() error {
			d.logger.Info().Str("addr", d.apiAddr).Msg("api server listening")
			return d.api.Listen(d.apiAddr)
		}, func(error) {
			_ = d.api.Shutdown()
		})
	}

	if d.metricsAddr != "" {
		srv := d.metricsServer()
		g.Add(func() error {
			d.logger.Info().Str("addr", d.metricsAddr).Msg("metrics server listening")
			return srv.ListenAndServe()
		}, func(error) {
			shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutCtx)
		})
	}

	err := g.Run()
	if _, ok := err.(run.SignalError); ok {
		d.logger.Info().Msg("shutting down on signal")
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	return err
}

// loop reconciles once at start, then on every tick. A tick that
// arrives while the previous run is still in flight is skipped. On
// shutdown the loop waits for the in-flight run to finish before
// returning, so stores stay open until the run has drained.
func (d *Daemon) loop(ctx context.Context) error {
	d.dispatch(ctx)

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			d.inFlight.Wait()
			return ctx.Err()
		case <-ticker.C:
			d.dispatch(ctx)
		}
	}
}

func (d *Daemon) dispatch(ctx context.Context) {
	d.inFlight.Add(1)
	go func() {
		defer d.inFlight.Done()
		d.runOnce(ctx)
	}()
}

func (d *Daemon) runOnce(ctx context.Context) {
	if !d.running.CompareAndSwap(false, true) {
		d.skipCount.Add(1)
		d.metrics.RecordSkipped(ctx)
		d.logger.Warn().Msg("previous run still in flight, skipping tick")
		return
	}
	defer d.running.Store(false)

	start := time.Now()
	result, err := d.orch.RunReconciliation(ctx)

	d.runCount.Add(1)
	d.lastRun.Store(time.Now().Unix())

	status := "success"
	switch {
	case err != nil:
		status = "error"
	case result != nil && result.Stats.Cancelled:
		status = "cancelled"
	case result != nil && result.Stats.FailedCount > 0:
		status = "partial"
	}
	d.metrics.RecordRun(ctx, status)
	d.metrics.RecordRunDuration(ctx, time.Since(start).Seconds(), status)
	if result != nil {
		d.metrics.RecordDevicesSeen(ctx, int64(result.Stats.TotalDevices))
	}

	if err != nil {
		d.logger.Error().Err(err).Msg("scheduled run failed")
	}
}

func (d *Daemon) metricsServer() *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(telemetry.PrometheusRegistry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(d.Health())
	})
	return &http.Server{Addr: d.metricsAddr, Handler: mux}
}

// HealthStatus represents daemon health.
type HealthStatus struct {
	Status        string `json:"status"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	Runs          int64  `json:"runs"`
	SkippedTicks  int64  `json:"skipped_ticks"`
	LastRunUnix   int64  `json:"last_run_unix,omitempty"`
}

// Health returns daemon health status.
func (d *Daemon) Health() HealthStatus {
	return HealthStatus{
		Status:        "healthy",
		UptimeSeconds: int64(time.Since(d.startTime).Seconds()),
		Runs:          d.runCount.Load(),
		SkippedTicks:  d.skipCount.Load(),
		LastRunUnix:   d.lastRun.Load(),
	}
}

// RunCount returns total scheduled runs completed.
func (d *Daemon) RunCount() int64 {
	return d.runCount.Load()
}
