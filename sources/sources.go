// Package sources defines the clients for the three external systems
// the engine consumes: the on-prem directory service, the
// endpoint-management service, and the cloud identity directory.
package sources

import (
	"context"
	"fmt"
	"time"

	"github.com/attrsync/attrsync/types"
)

// CloudDirectoryClient reads and writes device identities in the cloud
// identity directory. Lookups return (nil, nil) for not-found.
type CloudDirectoryClient interface {
	ListDevices(ctx context.Context, pageSize int, pageToken string) (types.DevicePage, error)
	GetDevice(ctx context.Context, id string) (*types.DeviceIdentity, error)
	GetDeviceByName(ctx context.Context, displayName string) (*types.DeviceIdentity, error)
	GetExtensionAttribute(ctx context.Context, deviceID, name string) (string, error)
	// SetExtensionAttribute writes an extension attribute and returns
	// the stored value. A nil return signals the write failed.
	SetExtensionAttribute(ctx context.Context, deviceID, name, value string) (*string, error)
}

// DirectoryClient reads attributes from the on-prem directory service.
type DirectoryClient interface {
	// GetComputerAttribute returns the named attribute of a computer
	// object. Returns "" when the attribute is not present; errors on
	// malformed input or transport failure.
	GetComputerAttribute(ctx context.Context, computerName, attribute string) (string, error)
}

// EndpointClient reads managed-device records from the
// endpoint-management service. Lookups return (nil, nil) for not-found.
type EndpointClient interface {
	GetDeviceByExternalID(ctx context.Context, externalID string) (*types.ManagedDevice, error)
	GetDeviceByName(ctx context.Context, name string) (*types.ManagedDevice, error)
	// GetHardwareInfo returns hardware properties keyed by lower-cased
	// property name.
	GetHardwareInfo(ctx context.Context, deviceID string) (map[string]string, error)
}

// StatusError carries the HTTP status of a failed outbound call so the
// resilience layer can classify it.
type StatusError struct {
	Code       int
	RetryAfter time.Duration // from a 429 Retry-After header, if present
	Op         string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: status %d", e.Op, e.Code)
}

// Transient reports whether the failure is worth retrying.
func (e *StatusError) Transient() bool {
	return e.Code == 408 || e.Code == 429 || e.Code >= 500
}
