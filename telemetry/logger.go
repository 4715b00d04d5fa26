package telemetry

import (
	"context"
	"os"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// OTELHook adds trace and span IDs to every log entry
type OTELHook struct{}

func (h OTELHook) Run(e *zerolog.Event, level zerolog.Level, msg string) {
	ctx := e.GetCtx()
	if ctx == nil {
		return
	}

	span := trace.SpanFromContext(ctx)
	if !span.SpanContext().IsValid() {
		return
	}

	e.Str("trace_id", span.SpanContext().TraceID().String())
	e.Str("span_id", span.SpanContext().SpanID().String())

	if level == zerolog.ErrorLevel {
		span.SetStatus(codes.Error, msg)
	}
}

// Logger wraps zerolog with OTEL integration
type Logger struct {
	zerolog.Logger
}

// NewLogger creates a new logger with OTEL hooks
func NewLogger(component string) *Logger {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMs

	logger := zerolog.New(os.Stdout).
		With().
		Timestamp().
		Str("component", component).
		Logger().
		Hook(OTELHook{})

	return &Logger{Logger: logger}
}

// WithContext returns a logger with context (for trace propagation)
func (l *Logger) WithContext(ctx context.Context) *zerolog.Logger {
	logger := l.Logger.With().Ctx(ctx).Logger()
	return &logger
}

// Convenience methods for the reconciliation path

func (l *Logger) LogRunStart(ctx context.Context, runID string, mappings int) {
	l.WithContext(ctx).Info().
		Str("run_id", runID).
		Int("mappings", mappings).
		Msg("starting reconciliation run")
}

func (l *Logger) LogRunComplete(ctx context.Context, runID string, processed, failed int, durationMs int64) {
	l.WithContext(ctx).Info().
		Str("run_id", runID).
		Int("processed", processed).
		Int("failed", failed).
		Int64("duration_ms", durationMs).
		Msg("reconciliation run complete")
}

func (l *Logger) LogDeviceFailure(ctx context.Context, device string, err error) {
	l.WithContext(ctx).Error().
		Err(err).
		Str("device", device).
		Msg("device processing failed")
}

func (l *Logger) LogAttributeUpdate(ctx context.Context, device, attribute, oldValue, newValue string) {
	l.WithContext(ctx).Info().
		Str("device", device).
		Str("attribute", attribute).
		Str("old_value", oldValue).
		Str("new_value", newValue).
		Msg("extension attribute updated")
}
