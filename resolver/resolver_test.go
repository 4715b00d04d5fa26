package resolver

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/attrsync/attrsync/types"
)

type fakeDirectory struct {
	attrs map[string]string
	err   error
}

func (f *fakeDirectory) GetComputerAttribute(ctx context.Context, computerName, attribute string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.attrs[attribute], nil
}

type fakeEndpoint struct {
	byExternalID map[string]*types.ManagedDevice
	byName       map[string]*types.ManagedDevice
	hardware     map[string]map[string]string
	err          error
}

func (f *fakeEndpoint) GetDeviceByExternalID(ctx context.Context, externalID string) (*types.ManagedDevice, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.byExternalID[externalID], nil
}

func (f *fakeEndpoint) GetDeviceByName(ctx context.Context, name string) (*types.ManagedDevice, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.byName[name], nil
}

func (f *fakeEndpoint) GetHardwareInfo(ctx context.Context, deviceID string) (map[string]string, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.hardware[deviceID], nil
}

func newResolver(t *testing.T, directory *fakeDirectory, endpoint *fakeEndpoint, mappings ...types.AttributeMapping) *Resolver {
	t.Helper()
	r, err := New(directory, endpoint, mappings, zerolog.Nop())
	require.NoError(t, err)
	return r
}

var testDevice = types.DeviceIdentity{
	ID:          "dev-1",
	DisplayName: "LAPTOP-01",
	DeviceID:    "ext-1",
}

func TestResolveDirectorySource(t *testing.T) {
	mapping := types.AttributeMapping{
		TargetAttribute: "extensionAttribute7",
		SourceAttribute: "department",
		DataSource:      types.SourceDirectory,
	}
	directory := &fakeDirectory{attrs: map[string]string{"department": "Engineering"}}
	r := newResolver(t, directory, &fakeEndpoint{}, mapping)

	res := r.Resolve(context.Background(), testDevice, mapping)
	require.Equal(t, StatusFound, res.Status)
	assert.Equal(t, "Engineering", res.Value)
	assert.Equal(t, types.SourceDirectory, res.Source)
}

func TestResolveEndpointFallsBackToNameLookup(t *testing.T) {
	mapping := types.AttributeMapping{
		TargetAttribute: "extensionAttribute1",
		SourceAttribute: "serialNumber",
		DataSource:      types.SourceEndpoint,
	}
	endpoint := &fakeEndpoint{
		byExternalID: map[string]*types.ManagedDevice{},
		byName: map[string]*types.ManagedDevice{
			"LAPTOP-01": {ID: "md-1", SerialNumber: "C02XK1ZZ"},
		},
	}
	r := newResolver(t, &fakeDirectory{}, endpoint, mapping)

	res := r.Resolve(context.Background(), testDevice, mapping)
	require.Equal(t, StatusFound, res.Status)
	assert.Equal(t, "C02XK1ZZ", res.Value)
}

func TestResolveHardwareInfo(t *testing.T) {
	mapping := types.AttributeMapping{
		TargetAttribute: "extensionAttribute5",
		SourceAttribute: "totalStorage",
		DataSource:      types.SourceEndpoint,
		UseHardwareInfo: true,
	}
	endpoint := &fakeEndpoint{
		byExternalID: map[string]*types.ManagedDevice{"ext-1": {ID: "md-1"}},
		hardware: map[string]map[string]string{
			"md-1": {"totalstorage": "512GB"},
		},
	}
	r := newResolver(t, &fakeDirectory{}, endpoint, mapping)

	res := r.Resolve(context.Background(), testDevice, mapping)
	require.Equal(t, StatusFound, res.Status)
	assert.Equal(t, "512GB", res.Value)
}

func TestRegexWholeMatchAndGroup(t *testing.T) {
	wholeMatch := types.AttributeMapping{
		TargetAttribute: "extensionAttribute2",
		SourceAttribute: "osVersion",
		DataSource:      types.SourceEndpoint,
		Regex:           `\d+\.\d+\.\d+`,
	}
	group := types.AttributeMapping{
		TargetAttribute: "extensionAttribute3",
		SourceAttribute: "osVersion",
		DataSource:      types.SourceEndpoint,
		Regex:           `(\d+\.\d+\.\d+)\.(\d+)`,
	}
	endpoint := &fakeEndpoint{
		byExternalID: map[string]*types.ManagedDevice{"ext-1": {ID: "md-1", OSVersion: "10.0.19045.3393"}},
	}
	r := newResolver(t, &fakeDirectory{}, endpoint, wholeMatch, group)

	res := r.Resolve(context.Background(), testDevice, wholeMatch)
	assert.Equal(t, "10.0.19045", res.Value)

	res = r.Resolve(context.Background(), testDevice, group)
	assert.Equal(t, "10.0.19045", res.Value, "first capture group wins")
}

func TestRegexNoMatchFallsBackToDefault(t *testing.T) {
	mapping := types.AttributeMapping{
		TargetAttribute: "extensionAttribute3",
		SourceAttribute: "osVersion",
		DataSource:      types.SourceEndpoint,
		Regex:           `^macOS (\d+)`,
		DefaultValue:    "Unknown",
	}
	endpoint := &fakeEndpoint{
		byExternalID: map[string]*types.ManagedDevice{"ext-1": {ID: "md-1", OSVersion: "10.0.19045"}},
	}
	r := newResolver(t, &fakeDirectory{}, endpoint, mapping)

	res := r.Resolve(context.Background(), testDevice, mapping)
	require.Equal(t, StatusFound, res.Status)
	assert.Equal(t, "Unknown", res.Value, "match failure must not yield the unmatched raw value")
}

func TestDefaultFallback(t *testing.T) {
	mapping := types.AttributeMapping{
		TargetAttribute: "extensionAttribute4",
		SourceAttribute: "department",
		DataSource:      types.SourceDirectory,
		DefaultValue:    "Unknown",
	}
	r := newResolver(t, &fakeDirectory{attrs: map[string]string{}}, &fakeEndpoint{}, mapping)

	res := r.Resolve(context.Background(), testDevice, mapping)
	require.Equal(t, StatusFound, res.Status, "a default must not be flagged unresolved")
	assert.Equal(t, "Unknown", res.Value)
}

func TestUnavailableWithoutDefault(t *testing.T) {
	mapping := types.AttributeMapping{
		TargetAttribute: "extensionAttribute4",
		SourceAttribute: "department",
		DataSource:      types.SourceDirectory,
	}
	r := newResolver(t, &fakeDirectory{attrs: map[string]string{}}, &fakeEndpoint{}, mapping)

	res := r.Resolve(context.Background(), testDevice, mapping)
	assert.Equal(t, StatusNotFound, res.Status)
	assert.Equal(t, "", res.Value)
}

func TestLookupErrorDegradesToDefault(t *testing.T) {
	mapping := types.AttributeMapping{
		TargetAttribute: "extensionAttribute4",
		SourceAttribute: "department",
		DataSource:      types.SourceDirectory,
		DefaultValue:    "Unknown",
	}
	r := newResolver(t, &fakeDirectory{err: errors.New("ldap unreachable")}, &fakeEndpoint{}, mapping)

	res := r.Resolve(context.Background(), testDevice, mapping)
	require.Equal(t, StatusFound, res.Status)
	assert.Equal(t, "Unknown", res.Value)
}

func TestLookupErrorWithoutDefault(t *testing.T) {
	mapping := types.AttributeMapping{
		TargetAttribute: "extensionAttribute4",
		SourceAttribute: "department",
		DataSource:      types.SourceDirectory,
	}
	r := newResolver(t, &fakeDirectory{err: errors.New("ldap unreachable")}, &fakeEndpoint{}, mapping)

	res := r.Resolve(context.Background(), testDevice, mapping)
	assert.Equal(t, StatusError, res.Status)
	assert.Error(t, res.Err)
}
