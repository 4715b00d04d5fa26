package reconciler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/attrsync/attrsync/audit"
	"github.com/attrsync/attrsync/telemetry"
	"github.com/attrsync/attrsync/types"
)

// Processor drives the per-device lifecycle: resolve every enabled
// mapping, apply the decisions, and record one audit entry per mapping
// outcome. Mappings are evaluated sequentially in configuration order;
// the audit entry for a mapping is written before the next one starts.
type Processor struct {
	resolver ValueResolver
	writer   AttributeWriter
	auditor  *audit.Store
	mappings []types.AttributeMapping // enabled subset, configuration order
	logger   *telemetry.Logger
}

// NewProcessor creates a device processor over the enabled mappings.
func NewProcessor(resolver ValueResolver, writer AttributeWriter, auditor *audit.Store, mappings []types.AttributeMapping, logger *telemetry.Logger) *Processor {
	return &Processor{
		resolver: resolver,
		writer:   writer,
		auditor:  auditor,
		mappings: mappings,
		logger:   logger,
	}
}

// ProcessDevice reconciles one device against every enabled mapping.
// A mapping failure is contained to that mapping; it never aborts the
// siblings. Cancellation is honored between mappings only: a mapping
// already started always completes.
func (p *Processor) ProcessDevice(ctx context.Context, device types.DeviceIdentity) DeviceResult {
	result := DeviceResult{
		DeviceID:      device.ID,
		DeviceName:    device.DisplayName,
		CorrelationID: uuid.NewString(),
		Success:       true,
	}

	if len(p.mappings) == 0 {
		return result
	}

	p.auditor.Log(audit.Entry{
		Type:          audit.EventDeviceStart,
		Device:        device.DisplayName,
		Success:       true,
		CorrelationID: result.CorrelationID,
	})

	start := time.Now()
	for i, mapping := range p.mappings {
		if ctx.Err() != nil {
			result.Cancelled = true
			result.Success = false
			for _, skipped := range p.mappings[i:] {
				outcome := MappingOutcome{
					Attribute: skipped.TargetAttribute,
					Result:    ResultCancelled,
					Error:     "run cancelled before evaluation",
				}
				result.Outcomes = append(result.Outcomes, outcome)
				p.auditMapping(device, outcome, result.CorrelationID)
			}
			break
		}

		outcome := p.processMapping(ctx, device, mapping, result.CorrelationID)
		result.Outcomes = append(result.Outcomes, outcome)
		if outcome.Result.Failed() {
			result.Success = false
		}
	}

	p.auditor.Log(audit.Entry{
		Type:          audit.EventDeviceEnd,
		Device:        device.DisplayName,
		Success:       result.Success,
		DurationMs:    time.Since(start).Milliseconds(),
		CorrelationID: result.CorrelationID,
	})

	return result
}

// processMapping evaluates one mapping end to end. Its audit entry is
// emitted on every branch, including internal errors.
func (p *Processor) processMapping(ctx context.Context, device types.DeviceIdentity, mapping types.AttributeMapping, correlationID string) (outcome MappingOutcome) {
	start := time.Now()
	outcome = MappingOutcome{Attribute: mapping.TargetAttribute}

	defer func() {
		if r := recover(); r != nil {
			outcome.Result = ResultFailed
			outcome.Error = fmt.Sprintf("panic: %v", r)
		}
		outcome.DurationMs = time.Since(start).Milliseconds()
		p.auditMapping(device, outcome, correlationID)
	}()

	// A mapping that has started always completes: its calls are
	// detached from run cancellation and bounded by the resilience
	// per-attempt timeout instead.
	callCtx := context.WithoutCancel(ctx)

	current := device.ExtensionAttribute(mapping.TargetAttribute)
	outcome.OldValue = current

	resolution := p.resolver.Resolve(callCtx, device, mapping)
	decision := Decide(current, resolution)

	switch decision.Outcome {
	case types.OutcomeNoOp:
		outcome.Result = ResultNoOp

	case types.OutcomeUnresolved:
		outcome.Result = ResultUnresolved
		if resolution.Err != nil {
			outcome.Result = ResultFailed
			outcome.Error = resolution.Err.Error()
		}
		telemetry.Count(ctx, telemetry.UnresolvedMappings, 1)

	case types.OutcomeUpdate:
		outcome.NewValue = decision.NewValue
		if err := p.writeBack(callCtx, device, mapping, decision.NewValue); err != nil {
			outcome.Result = ResultFailed
			outcome.Error = err.Error()
			break
		}
		outcome.Result = ResultUpdated
		telemetry.Count(ctx, telemetry.AttributeUpdates, 1)
		p.logger.LogAttributeUpdate(ctx, device.DisplayName, mapping.TargetAttribute, current, decision.NewValue)
	}

	return outcome
}

// writeBack writes the attribute through the resilience wrapper and
// verifies the write by its return value.
func (p *Processor) writeBack(ctx context.Context, device types.DeviceIdentity, mapping types.AttributeMapping, value string) error {
	stored, err := p.writer.SetExtensionAttribute(ctx, device.ID, mapping.TargetAttribute, value)
	if err != nil {
		return fmt.Errorf("write-back failed: %w", err)
	}
	if stored == nil {
		return fmt.Errorf("write-back rejected for %s", mapping.TargetAttribute)
	}
	if !strings.EqualFold(*stored, value) {
		return fmt.Errorf("write-back verification failed: stored %q, wanted %q", *stored, value)
	}
	return nil
}

func (p *Processor) auditMapping(device types.DeviceIdentity, outcome MappingOutcome, correlationID string) {
	entry := audit.Entry{
		Device:        device.DisplayName,
		Attribute:     outcome.Attribute,
		OldValue:      outcome.OldValue,
		NewValue:      outcome.NewValue,
		DurationMs:    outcome.DurationMs,
		Error:         outcome.Error,
		CorrelationID: correlationID,
	}

	switch outcome.Result {
	case ResultNoOp:
		entry.Type = audit.EventMappingNoOp
		entry.Success = true
	case ResultUpdated:
		entry.Type = audit.EventMappingUpdate
		entry.Success = true
	case ResultUnresolved:
		entry.Type = audit.EventMappingUnresolved
		entry.Severity = audit.SeverityWarning
	case ResultCancelled:
		entry.Type = audit.EventMappingError
		entry.Severity = audit.SeverityWarning
	default:
		entry.Type = audit.EventMappingError
		entry.Severity = audit.SeverityError
	}

	p.auditor.Log(entry)
}
