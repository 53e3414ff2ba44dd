package providers

import (
	"context"
	"encoding/base64"
	"net/http"
	"strings"

	"storyforge/internal/config"
	"storyforge/internal/services"
)

// MusicGen composes background music clips through a text-to-music endpoint.
type MusicGen struct {
	cfg        config.Provider
	httpClient *http.Client
}

// NewMusicGen constructs the music provider adapter.
func NewMusicGen(cfg config.Provider) *MusicGen {
	return &MusicGen{cfg: cfg, httpClient: newHTTPClient(cfg)}
}

type musicRequestPayload struct {
	Model           string  `json:"model,omitempty"`
	Prompt          string  `json:"prompt"`
	DurationSeconds float64 `json:"duration_seconds"`
}

type musicResponsePayload struct {
	AudioB64 string `json:"audio_b64"`
	URL      string `json:"url"`
}

// Compose implements MusicProvider.
func (m *MusicGen) Compose(ctx context.Context, prompt string, durationSeconds float64) ([]byte, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return nil, services.Wrap(services.ErrValidation, "generating", "compose music", "prompt required", nil)
	}
	if durationSeconds <= 0 {
		return nil, services.Wrap(services.ErrValidation, "generating", "compose music", "duration must be positive", nil)
	}
	if strings.TrimSpace(m.cfg.BaseURL) == "" {
		return nil, services.Wrap(services.ErrConfiguration, "generating", "compose music", "music provider base url required", nil)
	}

	payload := musicRequestPayload{Model: m.cfg.Model, Prompt: prompt, DurationSeconds: durationSeconds}
	var resp musicResponsePayload
	if err := postJSON(ctx, m.httpClient, m.cfg.APIKey, m.cfg.BaseURL, payload, &resp); err != nil {
		return nil, translateError("generating", "compose music", err)
	}

	if resp.AudioB64 != "" {
		decoded, err := base64.StdEncoding.DecodeString(resp.AudioB64)
		if err != nil {
			return nil, services.Wrap(services.ErrTransient, "generating", "compose music", "invalid base64 payload", err)
		}
		return decoded, nil
	}
	if resp.URL != "" {
		data, err := download(ctx, m.httpClient, resp.URL)
		if err != nil {
			return nil, translateError("generating", "download music", err)
		}
		return data, nil
	}
	return nil, services.Wrap(services.ErrTransient, "generating", "compose music", "response carried neither audio nor url", nil)
}

var _ MusicProvider = (*MusicGen)(nil)
