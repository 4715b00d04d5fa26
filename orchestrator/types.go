package orchestrator

import (
	"context"

	"github.com/attrsync/attrsync/reconciler"
	"github.com/attrsync/attrsync/types"
)

// Lister pages through device identity records in the cloud directory.
type Lister interface {
	ListDevices(ctx context.Context, pageSize int, pageToken string) (types.DevicePage, error)
	GetDevice(ctx context.Context, id string) (*types.DeviceIdentity, error)
	GetDeviceByName(ctx context.Context, displayName string) (*types.DeviceIdentity, error)
}

// DeviceProcessor reconciles all mappings for one device.
type DeviceProcessor interface {
	ProcessDevice(ctx context.Context, device types.DeviceIdentity) reconciler.DeviceResult
}

// Notifier is told about runs whose failure count crossed the
// configured threshold.
type Notifier interface {
	Notify(ctx context.Context, stats types.BatchRunStats) error
}

// RunResult contains the outcome of one reconciliation run.
type RunResult struct {
	Stats   types.BatchRunStats      `json:"stats"`
	Devices []reconciler.DeviceResult `json:"devices,omitempty"`
}
