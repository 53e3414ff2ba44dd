package script_test

import (
	"strings"
	"testing"

	"storyforge/internal/script"
)

const validPayload = `{
  "title": "The Lighthouse Keeper",
  "style": "watercolor",
  "characters": [
    {"id": "keeper", "name": "Elias", "description": "weathered old keeper in a wool coat"}
  ],
  "scenes": [
    {"index": 1, "narration": "Every night the lamp turned.", "visual_prompt": "lighthouse at dusk", "duration_seconds": 5, "character_ids": ["keeper"], "transition_out": "fade"},
    {"index": 2, "narration": "Until one night it did not.", "visual_prompt": "dark tower, storm", "duration_seconds": 5, "transition_out": "slideLeft"},
    {"index": 3, "narration": "He climbed the stairs alone.", "visual_prompt": "spiral staircase, lantern light", "duration_seconds": 5}
  ],
  "music_cues": [
    {"prompt": "slow ambient piano", "scene_start": 1, "scene_end": 3}
  ]
}`

func TestParseValidScript(t *testing.T) {
	s, err := script.Parse(validPayload)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if s.Title != "The Lighthouse Keeper" {
		t.Fatalf("title = %q", s.Title)
	}
	if len(s.Scenes) != 3 {
		t.Fatalf("scenes = %d", len(s.Scenes))
	}
	if s.TotalDuration() != 15 {
		t.Fatalf("total duration = %v", s.TotalDuration())
	}
	if s.Scenes[0].TransitionOut != script.TransitionFade {
		t.Fatalf("transition = %q", s.Scenes[0].TransitionOut)
	}
	if _, ok := s.Character("keeper"); !ok {
		t.Fatal("expected keeper character")
	}
}

func TestParseStripsCodeFence(t *testing.T) {
	fenced := "```json\n" + validPayload + "\n```"
	if _, err := script.Parse(fenced); err != nil {
		t.Fatalf("Parse fenced: %v", err)
	}
}

func TestParseExtractsObjectFromProse(t *testing.T) {
	wrapped := "Here is your script:\n" + validPayload + "\nLet me know if you need changes."
	if _, err := script.Parse(wrapped); err != nil {
		t.Fatalf("Parse wrapped: %v", err)
	}
}

func TestParseRejectsEmptyPayload(t *testing.T) {
	if _, err := script.Parse("   "); err == nil {
		t.Fatal("expected error for empty payload")
	}
}

func TestValidateRejectsGappedIndexes(t *testing.T) {
	payload := strings.Replace(validPayload, `"index": 2`, `"index": 4`, 1)
	if _, err := script.Parse(payload); err == nil {
		t.Fatal("expected error for non-contiguous scene indexes")
	}
}

func TestValidateRejectsZeroDuration(t *testing.T) {
	payload := strings.Replace(validPayload, `"duration_seconds": 5, "character_ids"`, `"duration_seconds": 0, "character_ids"`, 1)
	if _, err := script.Parse(payload); err == nil {
		t.Fatal("expected error for zero duration")
	}
}

func TestValidateRejectsUnknownCharacterReference(t *testing.T) {
	payload := strings.Replace(validPayload, `"character_ids": ["keeper"]`, `"character_ids": ["ghost"]`, 1)
	if _, err := script.Parse(payload); err == nil {
		t.Fatal("expected error for unknown character reference")
	}
}

func TestValidateRejectsMusicCueOutOfRange(t *testing.T) {
	payload := strings.Replace(validPayload, `"scene_end": 3`, `"scene_end": 9`, 1)
	if _, err := script.Parse(payload); err == nil {
		t.Fatal("expected error for music cue past final scene")
	}
}

func TestKnownTransition(t *testing.T) {
	for _, kind := range []script.TransitionKind{
		script.TransitionFade,
		script.TransitionSlideLeft,
		script.TransitionSlideRight,
		script.TransitionZoomIn,
		script.TransitionZoomOut,
		script.TransitionFadeToBlack,
		script.TransitionCrossfade,
	} {
		if !script.KnownTransition(kind) {
			t.Fatalf("expected %q to be known", kind)
		}
	}
	if script.KnownTransition("spin") {
		t.Fatal("expected spin to be unknown")
	}
}
