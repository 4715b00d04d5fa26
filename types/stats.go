package types

import "time"

// BatchRunStats aggregates one full reconciliation run.
type BatchRunStats struct {
	RunID          string    `json:"run_id"`
	TotalDevices   int       `json:"total_devices"`
	ProcessedCount int       `json:"processed_count"`
	FailedCount    int       `json:"failed_count"`
	StartedAt      time.Time `json:"started_at"`
	ElapsedMs      int64     `json:"elapsed_ms"`
	Cancelled      bool      `json:"cancelled,omitempty"`
}

// Succeeded reports whether the run completed with no device failures.
func (s BatchRunStats) Succeeded() bool {
	return !s.Cancelled && s.FailedCount == 0
}
