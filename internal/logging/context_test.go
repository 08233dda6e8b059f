package logging_test

import (
	"context"
	"log/slog"
	"testing"

	"clipflow/internal/logging"
)

// captureHandler records attributes attached via Logger.With.
type captureHandler struct {
	attrs map[string]slog.Value
}

func newCaptureHandler() *captureHandler {
	return &captureHandler{attrs: map[string]slog.Value{}}
}

func (h *captureHandler) Enabled(context.Context, slog.Level) bool { return true }

func (h *captureHandler) Handle(context.Context, slog.Record) error { return nil }

func (h *captureHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	for _, attr := range attrs {
		h.attrs[attr.Key] = attr.Value
	}
	return h
}

func (h *captureHandler) WithGroup(string) slog.Handler { return h }

func TestWithContextEnrichesLogger(t *testing.T) {
	handler := newCaptureHandler()

	ctx := logging.WithStage(logging.WithJobID(context.Background(), 42), "analyze")
	logging.WithContext(ctx, slog.New(handler)).Info("stage started")

	jobID, ok := handler.attrs[logging.FieldJobID]
	if !ok || jobID.Int64() != 42 {
		t.Fatalf("expected job_id=42, got %v", handler.attrs)
	}
	stage, ok := handler.attrs[logging.FieldStage]
	if !ok || stage.String() != "analyze" {
		t.Fatalf("expected stage=analyze, got %v", handler.attrs)
	}
}

func TestWithContextBareContext(t *testing.T) {
	handler := newCaptureHandler()

	logging.WithContext(context.Background(), slog.New(handler)).Info("hello")
	if len(handler.attrs) != 0 {
		t.Fatalf("expected no enrichment, got %v", handler.attrs)
	}

	if logging.WithContext(context.Background(), nil) == nil {
		t.Fatal("expected a usable logger for a nil input")
	}
}
