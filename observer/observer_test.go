package observer

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/attrsync/attrsync/audit"
	"github.com/attrsync/attrsync/types"
)

func TestAuditMetricsCountsByTypeAndSeverity(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	prev := otel.GetMeterProvider()
	otel.SetMeterProvider(provider)
	t.Cleanup(func() { otel.SetMeterProvider(prev) })

	m, err := NewAuditMetrics()
	require.NoError(t, err)

	m.Notify(audit.Entry{Type: audit.EventMappingUpdate, Severity: audit.SeverityInfo})
	m.Notify(audit.Entry{Type: audit.EventMappingUpdate, Severity: audit.SeverityInfo})
	m.Notify(audit.Entry{Type: audit.EventMappingError, Severity: audit.SeverityError})

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	byName := map[string]metricdata.Metrics{}
	for _, scope := range rm.ScopeMetrics {
		for _, metric := range scope.Metrics {
			byName[metric.Name] = metric
		}
	}

	entries, ok := byName["attrsync_audit_entries_total"].Data.(metricdata.Sum[int64])
	require.True(t, ok)
	assert.Len(t, entries.DataPoints, 2, "one series per type/severity pair")

	errors, ok := byName["attrsync_audit_errors_total"].Data.(metricdata.Sum[int64])
	require.True(t, ok)
	require.Len(t, errors.DataPoints, 1)
	assert.Equal(t, int64(1), errors.DataPoints[0].Value)
}

func TestWebhookNotifierPostsStats(t *testing.T) {
	var got webhookPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	n := NewWebhookNotifier(srv.URL, zerolog.Nop())
	err := n.Notify(context.Background(), types.BatchRunStats{RunID: "r1", FailedCount: 12, TotalDevices: 100})
	require.NoError(t, err)

	assert.Equal(t, "run_failure_threshold", got.Event)
	assert.Equal(t, "r1", got.Stats.RunID)
	assert.Equal(t, 12, got.Stats.FailedCount)
}

func TestWebhookNotifierRejectedStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	n := NewWebhookNotifier(srv.URL, zerolog.Nop())
	err := n.Notify(context.Background(), types.BatchRunStats{RunID: "r1"})
	require.Error(t, err)
}

func TestLogNotifier(t *testing.T) {
	n := NewLogNotifier(zerolog.Nop())
	assert.NoError(t, n.Notify(context.Background(), types.BatchRunStats{RunID: "r1"}))
}
