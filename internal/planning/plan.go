// Package planning expands a screenplay into a concrete production plan:
// resolved image prompts, narration assignments, music clip boundaries, and
// the transition between every pair of adjacent scenes.
package planning

import (
	"encoding/json"
	"fmt"
	"strings"

	"storyforge/internal/script"
)

// CharacterPlan is one reference image to generate before any scene art, so
// a character's look stays consistent across the scenes that feature them.
type CharacterPlan struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	ImagePrompt string `json:"image_prompt"`
}

// ScenePlan is one scene with fully resolved generation inputs.
// NarrationDurationSeconds is filled in after voice synthesis with the
// measured length of the narration track; it is zero until then and for
// scenes without narration.
type ScenePlan struct {
	Index                    int                   `json:"index"`
	ImagePrompt              string                `json:"image_prompt"`
	MotionPrompt             string                `json:"motion_prompt,omitempty"`
	NarrationText            string                `json:"narration_text"`
	DurationSeconds          float64               `json:"duration_seconds"`
	NarrationDurationSeconds float64               `json:"narration_duration_seconds,omitempty"`
	CharacterIDs             []string              `json:"character_ids,omitempty"`
	TransitionOut            script.TransitionKind `json:"transition_out,omitempty"`
}

// EffectiveDurationSeconds is the clip length the scene should actually run
// for: the scripted duration, extended when the narration runs longer so the
// voice track is never cut off.
func (s ScenePlan) EffectiveDurationSeconds() float64 {
	if s.NarrationDurationSeconds > s.DurationSeconds {
		return s.NarrationDurationSeconds
	}
	return s.DurationSeconds
}

// MusicPlan is one background track spanning a contiguous scene range. The
// duration is the sum of the covered scenes' target durations.
type MusicPlan struct {
	Prompt          string  `json:"prompt"`
	SceneStart      int     `json:"scene_start"`
	SceneEnd        int     `json:"scene_end"`
	DurationSeconds float64 `json:"duration_seconds"`
}

// Plan is the production document the asset, synthesis, and compositing
// stages work from.
type Plan struct {
	Title      string          `json:"title"`
	Style      string          `json:"style,omitempty"`
	Characters []CharacterPlan `json:"characters,omitempty"`
	Scenes     []ScenePlan     `json:"scenes"`
	Music      []MusicPlan     `json:"music,omitempty"`
}

// Build derives the production plan from a validated script. Style and
// character descriptions are folded into every image prompt here so the
// downstream stages never re-derive prompt text.
func Build(src *script.Script, style string) (*Plan, error) {
	if err := src.Validate(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(style) == "" {
		style = src.Style
	}

	plan := &Plan{Title: src.Title, Style: style}

	for _, ch := range src.Characters {
		plan.Characters = append(plan.Characters, CharacterPlan{
			ID:          ch.ID,
			Name:        ch.Name,
			ImagePrompt: composePrompt(ch.Description, style),
		})
	}

	for _, scene := range src.Scenes {
		prompt := scene.VisualPrompt
		for _, id := range scene.CharacterIDs {
			if ch, ok := src.Character(id); ok && strings.TrimSpace(ch.Description) != "" {
				prompt = prompt + ". " + ch.Name + ": " + ch.Description
			}
		}
		plan.Scenes = append(plan.Scenes, ScenePlan{
			Index:           scene.Index,
			ImagePrompt:     composePrompt(prompt, style),
			MotionPrompt:    scene.MotionPrompt,
			NarrationText:   scene.Narration,
			DurationSeconds: scene.DurationSeconds,
			CharacterIDs:    scene.CharacterIDs,
			TransitionOut:   scene.TransitionOut,
		})
	}

	for _, cue := range src.MusicCues {
		var duration float64
		for i := cue.SceneStart; i <= cue.SceneEnd; i++ {
			duration += src.Scenes[i-1].DurationSeconds
		}
		plan.Music = append(plan.Music, MusicPlan{
			Prompt:          cue.Prompt,
			SceneStart:      cue.SceneStart,
			SceneEnd:        cue.SceneEnd,
			DurationSeconds: duration,
		})
	}

	return plan, nil
}

// TotalDuration returns the planned runtime in seconds.
func (p *Plan) TotalDuration() float64 {
	var total float64
	for _, scene := range p.Scenes {
		total += scene.DurationSeconds
	}
	return total
}

// Scene returns the plan for a scene index, if present.
func (p *Plan) Scene(index int) (ScenePlan, bool) {
	for _, scene := range p.Scenes {
		if scene.Index == index {
			return scene, true
		}
	}
	return ScenePlan{}, false
}

// Encode serializes the plan for persistence on the task record.
func Encode(p *Plan) ([]byte, error) {
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("planning: encode: %w", err)
	}
	return data, nil
}

// Decode restores a plan persisted by Encode.
func Decode(raw string) (*Plan, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, fmt.Errorf("planning: empty plan payload")
	}
	var plan Plan
	if err := json.Unmarshal([]byte(raw), &plan); err != nil {
		return nil, fmt.Errorf("planning: decode: %w", err)
	}
	if len(plan.Scenes) == 0 {
		return nil, fmt.Errorf("planning: plan has no scenes")
	}
	return &plan, nil
}

func composePrompt(base, style string) string {
	base = strings.TrimSpace(base)
	style = strings.TrimSpace(style)
	if style == "" {
		return base
	}
	return base + ", in " + style + " style"
}
