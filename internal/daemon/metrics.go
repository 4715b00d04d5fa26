package daemon

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds operational metrics for the reconciliation loop.
type Metrics struct {
	runs        metric.Int64Counter
	runDuration metric.Float64Histogram
	devicesSeen metric.Int64Gauge
	skipped     metric.Int64Counter
}

// NewMetrics creates daemon metrics following OTEL semantic conventions.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter("attrsync.daemon")

	runs, err := meter.Int64Counter(
		"attrsync.daemon.runs",
		metric.WithDescription("Number of scheduled reconciliation runs"),
		metric.WithUnit("{run}"),
	)
	if err != nil {
		return nil, err
	}

	runDuration, err := meter.Float64Histogram(
		"attrsync.daemon.run.duration",
		metric.WithDescription("Duration of scheduled reconciliation runs"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	devicesSeen, err := meter.Int64Gauge(
		"attrsync.devices.seen",
		metric.WithDescription("Number of devices listed in the last run"),
		metric.WithUnit("{device}"),
	)
	if err != nil {
		return nil, err
	}

	skipped, err := meter.Int64Counter(
		"attrsync.daemon.skipped_ticks",
		metric.WithDescription("Ticks skipped because the previous run was still in flight"),
		metric.WithUnit("{tick}"),
	)
	if err != nil {
		return nil, err
	}

	return &Metrics{
		runs:        runs,
		runDuration: runDuration,
		devicesSeen: devicesSeen,
		skipped:     skipped,
	}, nil
}

// RecordRun records a completed scheduled run with its status.
func (m *Metrics) RecordRun(ctx context.Context, status string) {
	m.runs.Add(ctx, 1,
		metric.WithAttributes(attribute.String("status", status)),
	)
}

// RecordRunDuration records how long a scheduled run took.
func (m *Metrics) RecordRunDuration(ctx context.Context, durationSeconds float64, status string) {
	m.runDuration.Record(ctx, durationSeconds,
		metric.WithAttributes(attribute.String("status", status)),
	)
}

// RecordDevicesSeen records the device count of the last run.
func (m *Metrics) RecordDevicesSeen(ctx context.Context, count int64) {
	m.devicesSeen.Record(ctx, count)
}

// RecordSkipped records a skipped tick.
func (m *Metrics) RecordSkipped(ctx context.Context) {
	m.skipped.Add(ctx, 1)
}
