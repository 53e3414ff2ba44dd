package services_test

import (
	"context"
	"testing"

	"storyforge/internal/services"
)

func TestContextRoundTrip(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithTaskID(ctx, 42)
	ctx = services.WithStage(ctx, "generating")
	ctx = services.WithLane(ctx, "generation")
	ctx = services.WithRequestID(ctx, "req-1")

	if id, ok := services.TaskIDFromContext(ctx); !ok || id != 42 {
		t.Fatalf("task id = %d, %v", id, ok)
	}
	if stage, ok := services.StageFromContext(ctx); !ok || stage != "generating" {
		t.Fatalf("stage = %q, %v", stage, ok)
	}
	if lane, ok := services.LaneFromContext(ctx); !ok || lane != "generation" {
		t.Fatalf("lane = %q, %v", lane, ok)
	}
	if rid, ok := services.RequestIDFromContext(ctx); !ok || rid != "req-1" {
		t.Fatalf("request id = %q, %v", rid, ok)
	}
}

func TestContextEmptyValuesIgnored(t *testing.T) {
	ctx := services.WithStage(context.Background(), "")
	if _, ok := services.StageFromContext(ctx); ok {
		t.Fatal("expected empty stage to be dropped")
	}
	if _, ok := services.TaskIDFromContext(context.Background()); ok {
		t.Fatal("expected missing task id")
	}
}
