package orchestrator

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/attrsync/attrsync/audit"
	"github.com/attrsync/attrsync/config"
	"github.com/attrsync/attrsync/reconciler"
	"github.com/attrsync/attrsync/telemetry"
	"github.com/attrsync/attrsync/types"
)

// fakeLister serves a fixed device set in pages.
type fakeLister struct {
	devices []types.DeviceIdentity
	listErr error
	calls   atomic.Int64
}

func (f *fakeLister) ListDevices(ctx context.Context, pageSize int, pageToken string) (types.DevicePage, error) {
	f.calls.Add(1)
	if f.listErr != nil {
		return types.DevicePage{}, f.listErr
	}
	start := 0
	if pageToken != "" {
		fmt.Sscanf(pageToken, "%d", &start)
	}
	end := start + pageSize
	if end > len(f.devices) {
		end = len(f.devices)
	}
	page := types.DevicePage{Devices: f.devices[start:end]}
	if end < len(f.devices) {
		page.NextPageToken = fmt.Sprintf("%d", end)
	}
	return page, nil
}

func (f *fakeLister) GetDevice(ctx context.Context, id string) (*types.DeviceIdentity, error) {
	for i := range f.devices {
		if f.devices[i].ID == id {
			return &f.devices[i], nil
		}
	}
	return nil, nil
}

func (f *fakeLister) GetDeviceByName(ctx context.Context, displayName string) (*types.DeviceIdentity, error) {
	for i := range f.devices {
		if f.devices[i].DisplayName == displayName {
			return &f.devices[i], nil
		}
	}
	return nil, nil
}

// countingProcessor tracks the number of concurrently running devices.
type countingProcessor struct {
	mu       sync.Mutex
	inFlight int
	maxSeen  int
	failIDs  map[string]bool
	delay    time.Duration
	panicIDs map[string]bool
}

func (p *countingProcessor) ProcessDevice(ctx context.Context, device types.DeviceIdentity) reconciler.DeviceResult {
	p.mu.Lock()
	p.inFlight++
	if p.inFlight > p.maxSeen {
		p.maxSeen = p.inFlight
	}
	p.mu.Unlock()

	if p.delay > 0 {
		time.Sleep(p.delay)
	}

	p.mu.Lock()
	p.inFlight--
	p.mu.Unlock()

	if p.panicIDs[device.ID] {
		panic("device task exploded")
	}
	return reconciler.DeviceResult{
		DeviceID:   device.ID,
		DeviceName: device.DisplayName,
		Success:    !p.failIDs[device.ID],
	}
}

func testConfig() *config.Config {
	cfg := &config.Config{
		Version: "1",
		Mappings: []types.AttributeMapping{{
			TargetAttribute: "extensionAttribute1",
			SourceAttribute: "serialNumber",
			DataSource:      types.SourceEndpoint,
		}},
		Sources: config.SourcesConfig{EndpointEnabled: true},
	}
	cfg.ApplyDefaults()
	return cfg
}

func makeDevices(n int) []types.DeviceIdentity {
	devices := make([]types.DeviceIdentity, n)
	for i := range devices {
		devices[i] = types.DeviceIdentity{
			ID:          fmt.Sprintf("dev-%04d", i),
			DisplayName: fmt.Sprintf("LAPTOP-%04d", i),
		}
	}
	return devices
}

func testLogger() *telemetry.Logger {
	return &telemetry.Logger{Logger: zerolog.Nop()}
}

func openAudit(t *testing.T) *audit.Store {
	t.Helper()
	store, err := audit.Open(audit.Options{Dir: t.TempDir()}, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestRunReconciliationBoundedConcurrency(t *testing.T) {
	cfg := testConfig()
	cfg.Reconcile.MaxConcurrency = 8
	cfg.Reconcile.PageSize = 100

	lister := &fakeLister{devices: makeDevices(1000)}
	proc := &countingProcessor{delay: time.Millisecond}

	o := NewOrchestrator(lister, proc, cfg, openAudit(t), testLogger())
	result, err := o.RunReconciliation(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1000, result.Stats.TotalDevices)
	assert.Equal(t, 1000, result.Stats.ProcessedCount)
	assert.Equal(t, 0, result.Stats.FailedCount)
	assert.True(t, result.Stats.Succeeded())
	assert.LessOrEqual(t, proc.maxSeen, 8, "worker pool exceeded its bound")
	assert.GreaterOrEqual(t, int(lister.calls.Load()), 10, "expected paged listing")
}

func TestRunReconciliationValidatesBeforeListing(t *testing.T) {
	cfg := testConfig()
	cfg.Mappings = nil // invalid

	lister := &fakeLister{devices: makeDevices(3)}
	auditor := openAudit(t)

	o := NewOrchestrator(lister, &countingProcessor{}, cfg, auditor, testLogger())
	_, err := o.RunReconciliation(context.Background())
	require.Error(t, err)
	assert.Equal(t, int64(0), lister.calls.Load(), "no network call on invalid config")

	entries, qerr := auditor.Query(audit.Filter{Type: audit.EventConfigError})
	require.NoError(t, qerr)
	assert.Len(t, entries, 1)
}

func TestRunReconciliationCountsFailures(t *testing.T) {
	cfg := testConfig()
	lister := &fakeLister{devices: makeDevices(10)}
	proc := &countingProcessor{failIDs: map[string]bool{"dev-0002": true, "dev-0007": true}}

	o := NewOrchestrator(lister, proc, cfg, openAudit(t), testLogger())
	result, err := o.RunReconciliation(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 10, result.Stats.ProcessedCount)
	assert.Equal(t, 2, result.Stats.FailedCount)
	assert.False(t, result.Stats.Succeeded())
}

func TestRunReconciliationPanicDoesNotKillRun(t *testing.T) {
	cfg := testConfig()
	lister := &fakeLister{devices: makeDevices(5)}
	proc := &countingProcessor{panicIDs: map[string]bool{"dev-0001": true}}

	o := NewOrchestrator(lister, proc, cfg, openAudit(t), testLogger())
	result, err := o.RunReconciliation(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 5, result.Stats.ProcessedCount)
	assert.Equal(t, 1, result.Stats.FailedCount)
}

func TestRunReconciliationCancellation(t *testing.T) {
	cfg := testConfig()
	cfg.Reconcile.MaxConcurrency = 2
	cfg.Reconcile.PageSize = 10

	lister := &fakeLister{devices: makeDevices(200)}
	proc := &countingProcessor{delay: 5 * time.Millisecond}
	auditor := openAudit(t)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	o := NewOrchestrator(lister, proc, cfg, auditor, testLogger())
	result, err := o.RunReconciliation(ctx)
	require.NoError(t, err)

	assert.True(t, result.Stats.Cancelled)
	assert.Less(t, result.Stats.ProcessedCount, 200, "cancellation should stop admission")

	entries, qerr := auditor.Query(audit.Filter{Type: audit.EventRunCancelled})
	require.NoError(t, qerr)
	assert.Len(t, entries, 1)
}

func TestRunReconciliationNotifiesOnThreshold(t *testing.T) {
	cfg := testConfig()
	cfg.Reconcile.FailureThreshold = 2

	lister := &fakeLister{devices: makeDevices(5)}
	proc := &countingProcessor{failIDs: map[string]bool{"dev-0000": true, "dev-0001": true}}

	var notified atomic.Int64
	notifier := notifierFunc(func(ctx context.Context, stats types.BatchRunStats) error {
		notified.Add(1)
		return nil
	})

	o := NewOrchestrator(lister, proc, cfg, openAudit(t), testLogger()).WithNotifier(notifier)
	_, err := o.RunReconciliation(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), notified.Load())

	// Below threshold: no notification.
	proc.failIDs = map[string]bool{"dev-0000": true}
	_, err = o.RunReconciliation(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), notified.Load())
}

type notifierFunc func(ctx context.Context, stats types.BatchRunStats) error

func (f notifierFunc) Notify(ctx context.Context, stats types.BatchRunStats) error {
	return f(ctx, stats)
}

// outcomeProcessor returns one updated mapping per device.
type outcomeProcessor struct{}

func (outcomeProcessor) ProcessDevice(ctx context.Context, device types.DeviceIdentity) reconciler.DeviceResult {
	return reconciler.DeviceResult{
		DeviceID:   device.ID,
		DeviceName: device.DisplayName,
		Success:    true,
		Outcomes: []reconciler.MappingOutcome{{
			Attribute: "extensionAttribute1",
			Result:    reconciler.ResultUpdated,
			OldValue:  "old",
			NewValue:  "new",
		}},
	}
}

func TestRunReconciliationExportsCSV(t *testing.T) {
	cfg := testConfig()
	cfg.Export.Enabled = true
	cfg.Export.Dir = t.TempDir()
	cfg.Export.Prefix = "sync"

	lister := &fakeLister{devices: makeDevices(2)}

	o := NewOrchestrator(lister, outcomeProcessor{}, cfg, openAudit(t), testLogger())
	result, err := o.RunReconciliation(context.Background())
	require.NoError(t, err)

	path := fmt.Sprintf("%s/sync-%s.csv", cfg.Export.Dir, result.Stats.RunID)
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3, "header plus one row per outcome")
	assert.Equal(t, "run_id", rows[0][0])
	assert.Equal(t, "updated", rows[1][4])
}

func TestProcessSingleByName(t *testing.T) {
	cfg := testConfig()
	lister := &fakeLister{devices: makeDevices(3)}

	o := NewOrchestrator(lister, &countingProcessor{}, cfg, openAudit(t), testLogger())

	dr, err := o.ProcessSingleByName(context.Background(), "LAPTOP-0001")
	require.NoError(t, err)
	assert.Equal(t, "dev-0001", dr.DeviceID)

	_, err = o.ProcessSingleByName(context.Background(), "GHOST")
	require.Error(t, err)
}

func TestProcessSingleByID(t *testing.T) {
	cfg := testConfig()
	lister := &fakeLister{devices: makeDevices(3)}

	o := NewOrchestrator(lister, &countingProcessor{}, cfg, openAudit(t), testLogger())

	dr, err := o.ProcessSingleByID(context.Background(), "dev-0002")
	require.NoError(t, err)
	assert.Equal(t, "LAPTOP-0002", dr.DeviceName)

	_, err = o.ProcessSingleByID(context.Background(), "ghost")
	require.Error(t, err)
}
