// Package providers contains the HTTP adapters for the generation backends.
//
// Each adapter is single-shot: it issues one request and translates the
// outcome into the shared error taxonomy. Retry scheduling belongs to the
// caller, which wraps adapter calls in a retry.Policy.
package providers

import (
	"context"

	"storyforge/internal/script"
)

// ScriptProvider turns a natural-language prompt into a structured script.
type ScriptProvider interface {
	GenerateScript(ctx context.Context, prompt, style string) (*script.Script, error)
}

// ImageRequest describes one still image to generate.
type ImageRequest struct {
	Prompt string
	Style  string
	Width  int
	Height int
}

// ImageProvider renders a still image from a text prompt.
type ImageProvider interface {
	GenerateImage(ctx context.Context, req ImageRequest) ([]byte, error)
}

// VoiceProvider synthesizes narration audio from text. voiceRef selects a
// narrator voice and may be empty for the provider default. The returned
// duration is in seconds; providers that do not report it return zero and the
// caller measures the audio itself.
type VoiceProvider interface {
	GenerateVoice(ctx context.Context, text, voiceRef string) ([]byte, float64, error)
}

// MusicProvider composes a background music clip.
type MusicProvider interface {
	Compose(ctx context.Context, prompt string, durationSeconds float64) ([]byte, error)
}

// MotionRequest describes an image-to-video render.
type MotionRequest struct {
	ImagePath       string
	MotionPrompt    string
	DurationSeconds float64
}

// MotionProvider animates a still image into a short video clip.
type MotionProvider interface {
	Animate(ctx context.Context, req MotionRequest) ([]byte, error)
}

// HealthChecker is implemented by providers that can verify connectivity.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}
