package logging

import (
	"context"
	"log/slog"
)

const (
	// FieldComponent identifies the subsystem emitting the log line.
	FieldComponent = "component"
	// FieldJobID is the queue job identifier.
	FieldJobID = "job_id"
	// FieldStage is the pipeline stage name.
	FieldStage = "stage"
	// FieldEventType tags machine-parsable lifecycle events.
	FieldEventType = "event_type"
	// FieldErrorHint suggests an operator next step after a failure.
	FieldErrorHint = "error_hint"
	// FieldCorrelationID ties log lines from one dispatch together.
	FieldCorrelationID = "correlation_id"
	// FieldAlert marks lines that should surface in notification channels.
	FieldAlert = "alert"
)

type contextKey struct{ name string }

var (
	jobIDKey = contextKey{"job_id"}
	stageKey = contextKey{"stage"}
)

// WithJobID stores a job identifier on the context for log enrichment.
func WithJobID(ctx context.Context, id int64) context.Context {
	return context.WithValue(ctx, jobIDKey, id)
}

// WithStage stores a stage name on the context for log enrichment.
func WithStage(ctx context.Context, stage string) context.Context {
	return context.WithValue(ctx, stageKey, stage)
}

// WithContext returns a logger enriched with any job/stage values on ctx.
func WithContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	if id, ok := ctx.Value(jobIDKey).(int64); ok {
		logger = logger.With(Int64(FieldJobID, id))
	}
	if stage, ok := ctx.Value(stageKey).(string); ok && stage != "" {
		logger = logger.With(String(FieldStage, stage))
	}
	return logger
}
