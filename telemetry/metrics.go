package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/metric"
)

// Engine metrics, following OTEL naming conventions
var (
	DevicesProcessed   metric.Int64Counter
	DevicesFailed      metric.Int64Counter
	AttributeUpdates   metric.Int64Counter
	UnresolvedMappings metric.Int64Counter
	WritebackRetries   metric.Int64Counter
	BreakerOpens       metric.Int64Counter
	RunDuration        metric.Float64Histogram
)

func initMetrics() error {
	var err error

	DevicesProcessed, err = Meter.Int64Counter(
		"attrsync.devices.processed",
		metric.WithDescription("Number of device identities processed"),
		metric.WithUnit("{device}"),
	)
	if err != nil {
		return err
	}

	DevicesFailed, err = Meter.Int64Counter(
		"attrsync.devices.failed",
		metric.WithDescription("Number of device identities that ended partially failed"),
		metric.WithUnit("{device}"),
	)
	if err != nil {
		return err
	}

	AttributeUpdates, err = Meter.Int64Counter(
		"attrsync.attributes.updated",
		metric.WithDescription("Number of extension attribute write-backs applied"),
		metric.WithUnit("{attribute}"),
	)
	if err != nil {
		return err
	}

	UnresolvedMappings, err = Meter.Int64Counter(
		"attrsync.mappings.unresolved",
		metric.WithDescription("Number of mappings that produced no value and no default"),
		metric.WithUnit("{mapping}"),
	)
	if err != nil {
		return err
	}

	WritebackRetries, err = Meter.Int64Counter(
		"attrsync.writeback.retries",
		metric.WithDescription("Number of retried cloud directory calls"),
		metric.WithUnit("{retry}"),
	)
	if err != nil {
		return err
	}

	BreakerOpens, err = Meter.Int64Counter(
		"attrsync.breaker.rejections",
		metric.WithDescription("Number of calls rejected by the open circuit breaker"),
		metric.WithUnit("{call}"),
	)
	if err != nil {
		return err
	}

	RunDuration, err = Meter.Float64Histogram(
		"attrsync.run.duration",
		metric.WithDescription("Duration of reconciliation runs"),
		metric.WithUnit("s"),
	)
	return err
}

// Count and Observe are nil-safe so the engine can be used as a library
// without InitOTEL having run.

// Count increments a counter if it has been initialized.
func Count(ctx context.Context, counter metric.Int64Counter, n int64) {
	if counter != nil {
		counter.Add(ctx, n)
	}
}

// Observe records a histogram sample if it has been initialized.
func Observe(ctx context.Context, histogram metric.Float64Histogram, v float64) {
	if histogram != nil {
		histogram.Record(ctx, v)
	}
}
