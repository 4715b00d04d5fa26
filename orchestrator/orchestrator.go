package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/attrsync/attrsync/audit"
	"github.com/attrsync/attrsync/config"
	"github.com/attrsync/attrsync/reconciler"
	"github.com/attrsync/attrsync/storage"
	"github.com/attrsync/attrsync/telemetry"
	"github.com/attrsync/attrsync/types"
)

// Orchestrator coordinates list → reconcile → report for a full run.
type Orchestrator struct {
	cloud     Lister
	processor DeviceProcessor
	cfg       *config.Config
	auditor   *audit.Store
	runs      *storage.RunStore
	notifier  Notifier
	logger    *telemetry.Logger
}

// NewOrchestrator creates a new orchestrator.
func NewOrchestrator(cloud Lister, processor DeviceProcessor, cfg *config.Config, auditor *audit.Store, logger *telemetry.Logger) *Orchestrator {
	return &Orchestrator{
		cloud:     cloud,
		processor: processor,
		cfg:       cfg,
		auditor:   auditor,
		logger:    logger,
	}
}

// WithRunStore sets the run history store.
func (o *Orchestrator) WithRunStore(runs *storage.RunStore) *Orchestrator {
	o.runs = runs
	return o
}

// WithNotifier sets the failure notifier.
func (o *Orchestrator) WithNotifier(n Notifier) *Orchestrator {
	o.notifier = n
	return o
}

// RunReconciliation runs one full reconciliation across all devices in
// the cloud directory. Configuration is validated before any network
// call. Devices are processed with bounded concurrency; one device
// failing never stops the run.
func (o *Orchestrator) RunReconciliation(ctx context.Context) (*RunResult, error) {
	if err := o.cfg.Validate(); err != nil {
		o.auditor.Log(audit.Entry{
			Type:     audit.EventConfigError,
			Severity: audit.SeverityError,
			Error:    err.Error(),
			Message:  "configuration rejected, run aborted",
		})
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	ctx, span := telemetry.Tracer.Start(ctx, "reconciliation.run")
	defer span.End()

	runID := uuid.NewString()
	span.SetAttributes(attribute.String("run.id", runID))
	start := time.Now()

	o.logger.WithContext(ctx).Info().
		Str("run_id", runID).
		Int("mappings", len(o.cfg.EnabledMappings())).
		Int("max_concurrency", o.cfg.Reconcile.MaxConcurrency).
		Msg("starting reconciliation run")
	o.auditor.Log(audit.Entry{
		Type:          audit.EventRunStart,
		Severity:      audit.SeverityInfo,
		Success:       true,
		CorrelationID: runID,
		Message:       "reconciliation run started",
	})

	result, listErr := o.fanOut(ctx, runID)

	result.Stats.RunID = runID
	result.Stats.StartedAt = start
	result.Stats.ElapsedMs = time.Since(start).Milliseconds()
	result.Stats.Cancelled = ctx.Err() != nil

	o.finishRun(ctx, result, listErr)

	if listErr != nil {
		return result, fmt.Errorf("listing devices: %w", listErr)
	}
	return result, nil
}

// fanOut pages through the directory and dispatches each device to a
// bounded worker pool.
func (o *Orchestrator) fanOut(ctx context.Context, runID string) (*RunResult, error) {
	var (
		mu        sync.Mutex
		wg        sync.WaitGroup
		processed atomic.Int64
		failed    atomic.Int64
		total     int
	)
	result := &RunResult{}
	sem := make(chan struct{}, o.cfg.Reconcile.MaxConcurrency)

	var listErr error
	pageToken := ""
	for {
		page, err := o.cloud.ListDevices(ctx, o.cfg.Reconcile.PageSize, pageToken)
		if err != nil {
			listErr = err
			break
		}
		total += len(page.Devices)

		for _, device := range page.Devices {
			if ctx.Err() != nil {
				break
			}
			wg.Add(1)
			sem <- struct{}{}
			go func(device types.DeviceIdentity) {
				defer wg.Done()
				defer func() { <-sem }()

				dr := o.processOne(ctx, device)
				processed.Add(1)
				if !dr.Success {
					failed.Add(1)
				}
				mu.Lock()
				result.Devices = append(result.Devices, dr)
				mu.Unlock()
			}(device)
		}

		if page.NextPageToken == "" || ctx.Err() != nil {
			break
		}
		pageToken = page.NextPageToken
	}

	wg.Wait()

	result.Stats.TotalDevices = total
	result.Stats.ProcessedCount = int(processed.Load())
	result.Stats.FailedCount = int(failed.Load())
	return result, listErr
}

// processOne shields the pool from a panicking device task.
func (o *Orchestrator) processOne(ctx context.Context, device types.DeviceIdentity) (dr reconciler.DeviceResult) {
	ctx, span := telemetry.Tracer.Start(ctx, "reconciliation.device")
	span.SetAttributes(attribute.String("device.name", device.DisplayName))
	defer span.End()
	defer func() {
		if r := recover(); r != nil {
			o.logger.WithContext(ctx).Error().
				Str("device", device.DisplayName).
				Interface("panic", r).
				Msg("device task panicked")
			dr = reconciler.DeviceResult{
				DeviceID:   device.ID,
				DeviceName: device.DisplayName,
				Success:    false,
			}
		}
	}()
	return o.processor.ProcessDevice(ctx, device)
}

func (o *Orchestrator) finishRun(ctx context.Context, result *RunResult, listErr error) {
	stats := result.Stats

	telemetry.Count(ctx, telemetry.DevicesProcessed, int64(stats.ProcessedCount))
	telemetry.Count(ctx, telemetry.DevicesFailed, int64(stats.FailedCount))
	telemetry.Observe(ctx, telemetry.RunDuration, float64(stats.ElapsedMs)/1000.0)

	eventType := audit.EventRunComplete
	severity := audit.SeverityInfo
	message := "reconciliation run complete"
	if stats.Cancelled {
		eventType = audit.EventRunCancelled
		severity = audit.SeverityWarning
		message = "reconciliation run cancelled"
	}
	entry := audit.Entry{
		Type:          eventType,
		Severity:      severity,
		Success:       stats.Succeeded() && listErr == nil,
		DurationMs:    stats.ElapsedMs,
		CorrelationID: stats.RunID,
		Message:       message,
	}
	if listErr != nil {
		entry.Severity = audit.SeverityError
		entry.Error = listErr.Error()
	}
	o.auditor.Log(entry)

	o.logger.LogRunComplete(ctx, stats.RunID, stats.ProcessedCount, stats.FailedCount, stats.ElapsedMs)

	if o.runs != nil {
		if err := o.runs.Record(stats); err != nil {
			o.logger.Error().Err(err).Msg("failed to record run history")
		}
	}

	if o.cfg.Export.Enabled {
		if path, err := o.exportRun(result); err != nil {
			o.logger.Error().Err(err).Msg("run export failed")
		} else {
			o.logger.Info().Str("path", path).Msg("run exported")
		}
	}

	threshold := o.cfg.Reconcile.FailureThreshold
	if o.notifier != nil && threshold > 0 && stats.FailedCount >= threshold {
		if err := o.notifier.Notify(ctx, stats); err != nil {
			o.logger.Error().Err(err).Msg("failure notification failed")
		}
	}
}

// ProcessSingleByName reconciles one device looked up by display name.
func (o *Orchestrator) ProcessSingleByName(ctx context.Context, displayName string) (*reconciler.DeviceResult, error) {
	device, err := o.cloud.GetDeviceByName(ctx, displayName)
	if err != nil {
		return nil, fmt.Errorf("looking up device %q: %w", displayName, err)
	}
	if device == nil {
		return nil, fmt.Errorf("device %q not found", displayName)
	}
	dr := o.processOne(ctx, *device)
	return &dr, nil
}

// ProcessSingleByID reconciles one device looked up by record ID.
func (o *Orchestrator) ProcessSingleByID(ctx context.Context, id string) (*reconciler.DeviceResult, error) {
	device, err := o.cloud.GetDevice(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("looking up device %s: %w", id, err)
	}
	if device == nil {
		return nil, fmt.Errorf("device %s not found", id)
	}
	dr := o.processOne(ctx, *device)
	return &dr, nil
}
