package planning

import (
	"context"
	"errors"
	"strings"
	"testing"

	"storyforge/internal/config"
	"storyforge/internal/logging"
	"storyforge/internal/queue"
	"storyforge/internal/script"
	"storyforge/internal/services"
	"storyforge/internal/stage"
)

func twoSceneScript() *script.Script {
	return &script.Script{
		Title: "Lighthouse",
		Style: "watercolor",
		Characters: []script.CharacterProfile{
			{ID: "keeper", Name: "The Keeper", Description: "an old sailor in a wool coat"},
		},
		Scenes: []script.Scene{
			{
				Index: 1, Narration: "Waves crash.", VisualPrompt: "a lighthouse at dusk",
				MotionPrompt: "slow push in", DurationSeconds: 6,
				CharacterIDs: []string{"keeper"}, TransitionOut: script.TransitionFade,
			},
			{
				Index: 2, Narration: "The keeper climbs.", VisualPrompt: "spiral staircase",
				DurationSeconds: 4,
			},
		},
		MusicCues: []script.MusicCue{
			{Prompt: "calm piano", SceneStart: 1, SceneEnd: 2},
		},
	}
}

func TestBuildResolvesPromptsAndDurations(t *testing.T) {
	plan, err := Build(twoSceneScript(), "")
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if plan.Style != "watercolor" {
		t.Fatalf("style = %q", plan.Style)
	}
	if len(plan.Scenes) != 2 || len(plan.Characters) != 1 || len(plan.Music) != 1 {
		t.Fatalf("plan shape = %d scenes, %d characters, %d music", len(plan.Scenes), len(plan.Characters), len(plan.Music))
	}

	first := plan.Scenes[0]
	if !strings.Contains(first.ImagePrompt, "an old sailor in a wool coat") {
		t.Fatalf("character description not folded into prompt: %q", first.ImagePrompt)
	}
	if !strings.Contains(first.ImagePrompt, "watercolor style") {
		t.Fatalf("style not folded into prompt: %q", first.ImagePrompt)
	}
	if first.TransitionOut != script.TransitionFade {
		t.Fatalf("transition = %q", first.TransitionOut)
	}

	if plan.Music[0].DurationSeconds != 10 {
		t.Fatalf("music duration = %v, want 10", plan.Music[0].DurationSeconds)
	}
	if plan.TotalDuration() != 10 {
		t.Fatalf("total duration = %v, want 10", plan.TotalDuration())
	}
}

func TestBuildTaskStyleOverridesScriptStyle(t *testing.T) {
	plan, err := Build(twoSceneScript(), "pixel art")
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if plan.Style != "pixel art" {
		t.Fatalf("style = %q, want pixel art", plan.Style)
	}
	if !strings.Contains(plan.Scenes[1].ImagePrompt, "pixel art style") {
		t.Fatalf("prompt = %q", plan.Scenes[1].ImagePrompt)
	}
}

func TestBuildRejectsInvalidScript(t *testing.T) {
	bad := twoSceneScript()
	bad.Scenes[1].Index = 5
	if _, err := Build(bad, ""); err == nil {
		t.Fatal("expected error for gapped scene indexes")
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	plan, err := Build(twoSceneScript(), "")
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	data, err := Encode(plan)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	restored, err := Decode(string(data))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if restored.Title != plan.Title || len(restored.Scenes) != len(plan.Scenes) {
		t.Fatalf("round trip = %+v", restored)
	}
	scene, ok := restored.Scene(2)
	if !ok || scene.NarrationText != "The keeper climbs." {
		t.Fatalf("scene lookup = %+v, %v", scene, ok)
	}
}

func TestDecodeRejectsEmptyPayload(t *testing.T) {
	if _, err := Decode("  "); err == nil {
		t.Fatal("expected error for empty payload")
	}
	if _, err := Decode(`{"title":"x"}`); err == nil {
		t.Fatal("expected error for plan without scenes")
	}
}

func TestPlannerExecutePersistsPlanOnTask(t *testing.T) {
	encoded, err := script.Encode(twoSceneScript())
	if err != nil {
		t.Fatalf("encode script: %v", err)
	}
	planner := NewPlanner(config.Default(), nil, logging.NewNop())
	task := &queue.Task{ID: 7, Status: queue.StatusPlanning, ScriptJSON: string(encoded)}

	if err := planner.Prepare(context.Background(), task); err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if err := planner.Execute(context.Background(), task); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if task.PlanJSON == "" {
		t.Fatal("expected plan json on task")
	}
	if task.ProgressStage != stage.LabelSceneBreakdown {
		t.Fatalf("progress stage = %q", task.ProgressStage)
	}
	if task.ProgressPercent != 10 {
		t.Fatalf("progress percent = %v, want 10", task.ProgressPercent)
	}
}

func TestPlannerPrepareRequiresScript(t *testing.T) {
	planner := NewPlanner(config.Default(), nil, logging.NewNop())
	task := &queue.Task{ID: 8, Status: queue.StatusPlanning}
	if err := planner.Prepare(context.Background(), task); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("Prepare error = %v", err)
	}
}
