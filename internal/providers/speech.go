package providers

import (
	"context"
	"encoding/base64"
	"net/http"
	"strings"

	"storyforge/internal/config"
	"storyforge/internal/services"
)

// Speech synthesizes narration audio through a text-to-speech endpoint.
type Speech struct {
	cfg        config.Provider
	httpClient *http.Client
}

// NewSpeech constructs the voice provider adapter.
func NewSpeech(cfg config.Provider) *Speech {
	return &Speech{cfg: cfg, httpClient: newHTTPClient(cfg)}
}

type speechRequestPayload struct {
	Model string `json:"model,omitempty"`
	Input string `json:"input"`
	Voice string `json:"voice,omitempty"`
}

type speechResponsePayload struct {
	AudioB64        string  `json:"audio_b64"`
	URL             string  `json:"url"`
	DurationSeconds float64 `json:"duration_seconds"`
}

// GenerateVoice implements VoiceProvider. A zero duration means the endpoint
// did not report one; the caller measures the returned audio itself.
func (s *Speech) GenerateVoice(ctx context.Context, text, voiceRef string) ([]byte, float64, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, 0, services.Wrap(services.ErrValidation, "generating", "synthesize voice", "text required", nil)
	}
	if strings.TrimSpace(s.cfg.BaseURL) == "" {
		return nil, 0, services.Wrap(services.ErrConfiguration, "generating", "synthesize voice", "voice provider base url required", nil)
	}

	payload := speechRequestPayload{Model: s.cfg.Model, Input: text, Voice: strings.TrimSpace(voiceRef)}
	var resp speechResponsePayload
	if err := postJSON(ctx, s.httpClient, s.cfg.APIKey, s.cfg.BaseURL, payload, &resp); err != nil {
		return nil, 0, translateError("generating", "synthesize voice", err)
	}

	duration := resp.DurationSeconds
	if duration < 0 {
		duration = 0
	}
	if resp.AudioB64 != "" {
		decoded, err := base64.StdEncoding.DecodeString(resp.AudioB64)
		if err != nil {
			return nil, 0, services.Wrap(services.ErrTransient, "generating", "synthesize voice", "invalid base64 payload", err)
		}
		return decoded, duration, nil
	}
	if resp.URL != "" {
		data, err := download(ctx, s.httpClient, resp.URL)
		if err != nil {
			return nil, 0, translateError("generating", "download voice", err)
		}
		return data, duration, nil
	}
	return nil, 0, services.Wrap(services.ErrTransient, "generating", "synthesize voice", "response carried neither audio nor url", nil)
}

var _ VoiceProvider = (*Speech)(nil)
