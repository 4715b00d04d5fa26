// Package observer provides consumers of the live audit stream:
// OTEL metrics and failure notifiers.
package observer

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/attrsync/attrsync/audit"
)

// AuditMetrics records audit entries as OTEL metrics.
type AuditMetrics struct {
	meter       metric.Meter
	entriesSeen metric.Int64Counter
	errorsSeen  metric.Int64Counter
}

// NewAuditMetrics creates the metrics observer.
func NewAuditMetrics() (*AuditMetrics, error) {
	meter := otel.Meter("attrsync")

	entries, err := meter.Int64Counter(
		"attrsync_audit_entries_total",
		metric.WithDescription("Total audit entries observed"),
		metric.WithUnit("{entry}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create counter: %w", err)
	}

	errors, err := meter.Int64Counter(
		"attrsync_audit_errors_total",
		metric.WithDescription("Total error-severity audit entries observed"),
		metric.WithUnit("{entry}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create counter: %w", err)
	}

	return &AuditMetrics{
		meter:       meter,
		entriesSeen: entries,
		errorsSeen:  errors,
	}, nil
}

// Notify implements audit.Observer.
func (m *AuditMetrics) Notify(e audit.Entry) {
	ctx := context.Background()

	attrs := metric.WithAttributes(
		attribute.String("type", string(e.Type)),
		attribute.String("severity", string(e.Severity)),
	)
	m.entriesSeen.Add(ctx, 1, attrs)

	if e.Severity == audit.SeverityError {
		m.errorsSeen.Add(ctx, 1, attrs)
	}
}
