// Package audit provides the durable, append-only record of every
// mapping decision and system event the engine produces.
package audit

import "time"

// EventType defines the type of audit entry
type EventType string

const (
	EventRunStart          EventType = "run_start"
	EventRunComplete       EventType = "run_complete"
	EventRunCancelled      EventType = "run_cancelled"
	EventConfigError       EventType = "config_error"
	EventDeviceStart       EventType = "device_start"
	EventDeviceEnd         EventType = "device_end"
	EventMappingNoOp       EventType = "mapping_noop"
	EventMappingUpdate     EventType = "mapping_update"
	EventMappingUnresolved EventType = "mapping_unresolved"
	EventMappingError      EventType = "mapping_error"
	EventSystem            EventType = "system"
)

// Severity grades an audit entry.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Entry is a single audit record. Entries are append-only and never
// mutated after creation.
type Entry struct {
	EventID       string    `json:"event_id"`
	Sequence      int64     `json:"sequence"`
	Timestamp     time.Time `json:"timestamp"`
	Type          EventType `json:"type"`
	Severity      Severity  `json:"severity"`
	Device        string    `json:"device,omitempty"`
	Attribute     string    `json:"attribute,omitempty"`
	OldValue      string    `json:"old_value,omitempty"`
	NewValue      string    `json:"new_value,omitempty"`
	Success       bool      `json:"success"`
	DurationMs    int64     `json:"duration_ms,omitempty"`
	Error         string    `json:"error,omitempty"`
	CorrelationID string    `json:"correlation_id,omitempty"`
	Message       string    `json:"message,omitempty"`
}

// Filter selects audit entries. Zero fields match everything.
type Filter struct {
	From   time.Time
	To     time.Time
	Type   EventType
	Device string
	Limit  int
	Offset int
}

func (f Filter) matches(e Entry) bool {
	if !f.From.IsZero() && e.Timestamp.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && e.Timestamp.After(f.To) {
		return false
	}
	if f.Type != "" && e.Type != f.Type {
		return false
	}
	if f.Device != "" && e.Device != f.Device {
		return false
	}
	return true
}

// Summary aggregates audit entries over a window.
type Summary struct {
	Total           int               `json:"total"`
	ByType          map[EventType]int `json:"by_type"`
	BySeverity      map[Severity]int  `json:"by_severity"`
	SuccessRate     float64           `json:"success_rate"`
	DistinctDevices int               `json:"distinct_devices"`
	AvgDurationMs   float64           `json:"avg_duration_ms"`
	From            time.Time         `json:"from,omitempty"`
	To              time.Time         `json:"to,omitempty"`
}

// mappingEvent reports whether the entry records a per-mapping outcome.
// The success rate is computed over these.
func mappingEvent(t EventType) bool {
	switch t {
	case EventMappingNoOp, EventMappingUpdate, EventMappingUnresolved, EventMappingError:
		return true
	}
	return false
}

// Summarize computes aggregate stats for a set of entries.
func Summarize(entries []Entry) Summary {
	s := Summary{
		ByType:     make(map[EventType]int),
		BySeverity: make(map[Severity]int),
	}

	devices := make(map[string]bool)
	var mappingTotal, mappingSuccess int
	var durationTotal int64
	var durationCount int

	for _, e := range entries {
		s.Total++
		s.ByType[e.Type]++
		s.BySeverity[e.Severity]++

		if e.Device != "" {
			devices[e.Device] = true
		}
		if mappingEvent(e.Type) {
			mappingTotal++
			if e.Success {
				mappingSuccess++
			}
		}
		if e.DurationMs > 0 {
			durationTotal += e.DurationMs
			durationCount++
		}

		if s.From.IsZero() || e.Timestamp.Before(s.From) {
			s.From = e.Timestamp
		}
		if e.Timestamp.After(s.To) {
			s.To = e.Timestamp
		}
	}

	s.DistinctDevices = len(devices)
	if mappingTotal > 0 {
		s.SuccessRate = float64(mappingSuccess) / float64(mappingTotal)
	}
	if durationCount > 0 {
		s.AvgDurationMs = float64(durationTotal) / float64(durationCount)
	}
	return s
}
