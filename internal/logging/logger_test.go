package logging_test

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"storyforge/internal/logging"
	"storyforge/internal/services"
)

func TestWithContextAddsTaskFields(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	ctx := services.WithTaskID(context.Background(), 7)
	ctx = services.WithStage(ctx, "compositing")
	ctx = services.WithLane(ctx, "render")

	logging.WithContext(ctx, logger).Info("stitched")

	out := buf.String()
	for _, fragment := range []string{"task_id=7", "stage=compositing", "lane=render"} {
		if !strings.Contains(out, fragment) {
			t.Fatalf("expected %q in output %q", fragment, out)
		}
	}
}

func TestWithContextNilLoggerIsSafe(t *testing.T) {
	logger := logging.WithContext(context.Background(), nil)
	logger.Info("ignored")
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	if _, err := logging.New(logging.Options{Format: "yaml"}); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}

func TestPrettyFormatPromotesComponent(t *testing.T) {
	logger, err := logging.New(logging.Options{Level: "debug", Format: "console", OutputPaths: []string{"stdout"}})
	if err != nil {
		t.Fatalf("logging.New: %v", err)
	}
	logging.NewComponentLogger(logger, "test-component").Debug("hello")
}

func TestWarnWithContextInjectsDefaults(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	logging.WarnWithContext(logger, "something odd", "odd_event")
	out := buf.String()
	if !strings.Contains(out, "event_type=odd_event") {
		t.Fatalf("expected event_type in %q", out)
	}
	if !strings.Contains(out, "error_hint=") {
		t.Fatalf("expected error_hint in %q", out)
	}
}
