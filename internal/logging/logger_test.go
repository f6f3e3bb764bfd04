package logging_test

import (
	"context"
	"testing"

	"podforge/internal/logging"
	"podforge/internal/services"
)

func TestNewRejectsUnknownFormat(t *testing.T) {
	_, err := logging.New(logging.Options{Format: "xml"})
	if err == nil {
		t.Fatal("expected error for unsupported format")
	}
}

func TestNewConsoleAndJSON(t *testing.T) {
	for _, format := range []string{"console", "json"} {
		logger, err := logging.New(logging.Options{Level: "debug", Format: format})
		if err != nil {
			t.Fatalf("New(%s) failed: %v", format, err)
		}
		if logger == nil {
			t.Fatalf("New(%s) returned nil logger", format)
		}
	}
}

func TestWithContextAddsFields(t *testing.T) {
	ctx := services.WithTaskID(context.Background(), "task-123")
	ctx = services.WithStep(ctx, "fetch")

	fields := logging.ContextFields(ctx)
	if len(fields) != 2 {
		t.Fatalf("expected 2 context fields, got %d", len(fields))
	}
	keys := map[string]bool{}
	for _, f := range fields {
		keys[f.Key] = true
	}
	if !keys[logging.FieldTaskID] || !keys[logging.FieldStep] {
		t.Fatalf("missing expected field keys: %v", keys)
	}
}

func TestWithContextNilLogger(t *testing.T) {
	logger := logging.WithContext(context.Background(), nil)
	if logger == nil {
		t.Fatal("expected fallback logger")
	}
	logger.Info("no-op")
}
