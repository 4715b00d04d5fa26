package reconciler

import (
	"context"

	"github.com/attrsync/attrsync/resolver"
	"github.com/attrsync/attrsync/types"
)

// AttributeWriter writes extension attributes back to the cloud
// identity directory. Satisfied by the resilience-wrapped client.
type AttributeWriter interface {
	SetExtensionAttribute(ctx context.Context, deviceID, name, value string) (*string, error)
}

// ValueResolver resolves one mapping's value for one device.
type ValueResolver interface {
	Resolve(ctx context.Context, device types.DeviceIdentity, mapping types.AttributeMapping) resolver.Resolution
}

// MappingResult is the kind of outcome one mapping evaluation ended in.
type MappingResult string

const (
	ResultNoOp       MappingResult = "noop"
	ResultUpdated    MappingResult = "updated"
	ResultUnresolved MappingResult = "unresolved"
	ResultFailed     MappingResult = "failed"
	ResultCancelled  MappingResult = "cancelled"
)

// Failed reports whether the result counts against the device.
func (r MappingResult) Failed() bool {
	return r == ResultUnresolved || r == ResultFailed || r == ResultCancelled
}

// MappingOutcome records how one mapping evaluation went.
type MappingOutcome struct {
	Attribute  string        `json:"attribute"`
	Result     MappingResult `json:"result"`
	OldValue   string        `json:"old_value,omitempty"`
	NewValue   string        `json:"new_value,omitempty"`
	Error      string        `json:"error,omitempty"`
	DurationMs int64         `json:"duration_ms"`
}

// DeviceResult aggregates one device's reconciliation.
type DeviceResult struct {
	DeviceID      string           `json:"device_id"`
	DeviceName    string           `json:"device_name"`
	CorrelationID string           `json:"correlation_id"`
	Outcomes      []MappingOutcome `json:"outcomes"`
	Success       bool             `json:"success"`
	Cancelled     bool             `json:"cancelled,omitempty"`
}
