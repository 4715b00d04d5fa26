package observer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/attrsync/attrsync/types"
)

// LogNotifier reports threshold breaches to the log only.
type LogNotifier struct {
	log zerolog.Logger
}

// NewLogNotifier creates a log-backed notifier.
func NewLogNotifier(log zerolog.Logger) *LogNotifier {
	return &LogNotifier{log: log}
}

// Notify implements orchestrator.Notifier.
func (n *LogNotifier) Notify(ctx context.Context, stats types.BatchRunStats) error {
	n.log.Warn().
		Str("run_id", stats.RunID).
		Int("failed", stats.FailedCount).
		Int("total", stats.TotalDevices).
		Msg("run failure threshold crossed")
	return nil
}

// WebhookNotifier posts run stats to an HTTP endpoint when the failure
// threshold is crossed.
type WebhookNotifier struct {
	url    string
	client *http.Client
	log    zerolog.Logger
}

// NewWebhookNotifier creates a webhook notifier for url.
func NewWebhookNotifier(url string, log zerolog.Logger) *WebhookNotifier {
	return &WebhookNotifier{
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
		log:    log,
	}
}

type webhookPayload struct {
	Event string              `json:"event"`
	Stats types.BatchRunStats `json:"stats"`
}

// Notify implements orchestrator.Notifier.
func (n *WebhookNotifier) Notify(ctx context.Context, stats types.BatchRunStats) error {
	body, err := json.Marshal(webhookPayload{
		Event: "run_failure_threshold",
		Stats: stats,
	})
	if err != nil {
		return fmt.Errorf("encoding notification: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building notification request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("posting notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("notification rejected: status %d", resp.StatusCode)
	}

	n.log.Info().
		Str("run_id", stats.RunID).
		Str("url", n.url).
		Msg("failure notification delivered")
	return nil
}
