// Package script defines the structured screenplay produced by the script
// provider and consumed by the rest of the pipeline.
package script

import (
	"fmt"
	"strings"
)

// TransitionKind names the visual transition between two adjacent scenes.
type TransitionKind string

const (
	TransitionFade        TransitionKind = "fade"
	TransitionSlideLeft   TransitionKind = "slideLeft"
	TransitionSlideRight  TransitionKind = "slideRight"
	TransitionZoomIn      TransitionKind = "zoomIn"
	TransitionZoomOut     TransitionKind = "zoomOut"
	TransitionFadeToBlack TransitionKind = "fadeToBlack"
	TransitionCrossfade   TransitionKind = "crossfade"
)

// KnownTransition reports whether kind is one of the supported transitions.
// Unknown kinds are tolerated downstream and rendered as hard cuts.
func KnownTransition(kind TransitionKind) bool {
	switch kind {
	case TransitionFade, TransitionSlideLeft, TransitionSlideRight,
		TransitionZoomIn, TransitionZoomOut, TransitionFadeToBlack,
		TransitionCrossfade:
		return true
	default:
		return false
	}
}

// CharacterProfile describes a recurring character so image generation stays
// visually consistent across scenes.
type CharacterProfile struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Scene is one shot of the final video.
type Scene struct {
	Index           int            `json:"index"`
	Narration       string         `json:"narration"`
	VisualPrompt    string         `json:"visual_prompt"`
	MotionPrompt    string         `json:"motion_prompt,omitempty"`
	DurationSeconds float64        `json:"duration_seconds"`
	CharacterIDs    []string       `json:"character_ids,omitempty"`
	TransitionOut   TransitionKind `json:"transition_out,omitempty"`
}

// MusicCue covers a contiguous run of scenes with one background track.
type MusicCue struct {
	Prompt     string `json:"prompt"`
	SceneStart int    `json:"scene_start"`
	SceneEnd   int    `json:"scene_end"`
}

// Script is the full structured screenplay for one task.
type Script struct {
	Title      string             `json:"title"`
	Style      string             `json:"style,omitempty"`
	Characters []CharacterProfile `json:"characters,omitempty"`
	Scenes     []Scene            `json:"scenes"`
	MusicCues  []MusicCue         `json:"music_cues,omitempty"`
}

// Validate checks structural invariants before the script drives any
// asset generation.
func (s *Script) Validate() error {
	if s == nil {
		return fmt.Errorf("script: nil")
	}
	if len(s.Scenes) == 0 {
		return fmt.Errorf("script: no scenes")
	}
	characterIDs := make(map[string]struct{}, len(s.Characters))
	for _, ch := range s.Characters {
		id := strings.TrimSpace(ch.ID)
		if id == "" {
			return fmt.Errorf("script: character %q missing id", ch.Name)
		}
		if _, dup := characterIDs[id]; dup {
			return fmt.Errorf("script: duplicate character id %q", id)
		}
		characterIDs[id] = struct{}{}
	}
	for i, scene := range s.Scenes {
		want := i + 1
		if scene.Index != want {
			return fmt.Errorf("script: scene %d has index %d, indexes must be contiguous from 1", want, scene.Index)
		}
		if scene.DurationSeconds <= 0 {
			return fmt.Errorf("script: scene %d duration must be positive", scene.Index)
		}
		if strings.TrimSpace(scene.VisualPrompt) == "" {
			return fmt.Errorf("script: scene %d missing visual prompt", scene.Index)
		}
		for _, id := range scene.CharacterIDs {
			if _, ok := characterIDs[id]; !ok {
				return fmt.Errorf("script: scene %d references unknown character %q", scene.Index, id)
			}
		}
	}
	for _, cue := range s.MusicCues {
		if strings.TrimSpace(cue.Prompt) == "" {
			return fmt.Errorf("script: music cue for scenes %d-%d missing prompt", cue.SceneStart, cue.SceneEnd)
		}
		if cue.SceneStart < 1 || cue.SceneEnd > len(s.Scenes) || cue.SceneStart > cue.SceneEnd {
			return fmt.Errorf("script: music cue range %d-%d outside scenes 1-%d", cue.SceneStart, cue.SceneEnd, len(s.Scenes))
		}
	}
	return nil
}

// TotalDuration returns the sum of scene target durations in seconds.
func (s *Script) TotalDuration() float64 {
	var total float64
	for _, scene := range s.Scenes {
		total += scene.DurationSeconds
	}
	return total
}

// Character returns the profile for id, if declared.
func (s *Script) Character(id string) (CharacterProfile, bool) {
	for _, ch := range s.Characters {
		if ch.ID == id {
			return ch, true
		}
	}
	return CharacterProfile{}, false
}
