package providers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"storyforge/internal/config"
	"storyforge/internal/script"
	"storyforge/internal/services"
)

const scriptSystemPrompt = `You are a short-form video screenwriter. Given a story premise, respond with JSON only:
{
  "title": string,
  "style": string,
  "characters": [{"id": string, "name": string, "description": string}],
  "scenes": [{
    "index": int (1-based, contiguous),
    "narration": string,
    "visual_prompt": string,
    "motion_prompt": string,
    "duration_seconds": number (> 0),
    "character_ids": [string],
    "transition_out": one of "fade", "slideLeft", "slideRight", "zoomIn", "zoomOut", "fadeToBlack", "crossfade"
  }],
  "music_cues": [{"prompt": string, "scene_start": int, "scene_end": int}]
}
Keep narration tight enough to speak within each scene's duration. Reuse character ids so characters stay visually consistent.`

// Scripter generates structured scripts through an OpenAI-compatible chat
// completion endpoint.
type Scripter struct {
	cfg        config.Provider
	httpClient *http.Client
}

// NewScripter constructs the script provider adapter.
func NewScripter(cfg config.Provider) *Scripter {
	return &Scripter{cfg: cfg, httpClient: newHTTPClient(cfg)}
}

type chatRequest struct {
	Model          string            `json:"model"`
	Messages       []chatMessage     `json:"messages"`
	Temperature    float64           `json:"temperature"`
	ResponseFormat map[string]string `json:"response_format"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
			Refusal string `json:"refusal"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// GenerateScript implements ScriptProvider.
func (s *Scripter) GenerateScript(ctx context.Context, prompt, style string) (*script.Script, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return nil, services.Wrap(services.ErrValidation, "scripting", "generate script", "prompt required", nil)
	}
	if strings.TrimSpace(s.cfg.APIKey) == "" {
		return nil, services.Wrap(services.ErrConfiguration, "scripting", "generate script", "script provider api key required", nil)
	}

	userPrompt := prompt
	if style = strings.TrimSpace(style); style != "" {
		userPrompt = fmt.Sprintf("%s\n\nVisual style: %s", prompt, style)
	}

	payload := chatRequest{
		Model: s.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: scriptSystemPrompt},
			{Role: "user", Content: userPrompt},
		},
		Temperature:    0.7,
		ResponseFormat: map[string]string{"type": "json_object"},
	}

	var completion chatResponse
	if err := postJSON(ctx, s.httpClient, s.cfg.APIKey, s.cfg.BaseURL, payload, &completion); err != nil {
		return nil, translateError("scripting", "generate script", err)
	}
	if completion.Error != nil {
		return nil, services.Wrap(services.ErrProviderFatal, "scripting", "generate script",
			"api error: "+strings.TrimSpace(completion.Error.Message), nil)
	}

	content := ""
	for _, choice := range completion.Choices {
		if trimmed := strings.TrimSpace(choice.Message.Content); trimmed != "" {
			content = trimmed
			break
		}
	}
	if content == "" {
		refusal := ""
		if len(completion.Choices) > 0 {
			refusal = strings.TrimSpace(completion.Choices[0].Message.Refusal)
		}
		if refusal != "" {
			return nil, services.Wrap(services.ErrProviderFatal, "scripting", "generate script", "model refused: "+refusal, nil)
		}
		return nil, services.Wrap(services.ErrTransient, "scripting", "generate script", "empty completion", nil)
	}

	parsed, err := script.Parse(content)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "scripting", "generate script", "malformed script payload", err)
	}
	return parsed, nil
}

// HealthCheck verifies the API key and endpoint respond.
func (s *Scripter) HealthCheck(ctx context.Context) error {
	if strings.TrimSpace(s.cfg.APIKey) == "" {
		return errors.New("script provider api key required")
	}
	payload := chatRequest{
		Model: s.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: "You must respond with JSON only."},
			{Role: "user", Content: `Respond with {"ok":true}`},
		},
		Temperature:    0,
		ResponseFormat: map[string]string{"type": "json_object"},
	}
	var completion chatResponse
	if err := postJSON(ctx, s.httpClient, s.cfg.APIKey, s.cfg.BaseURL, payload, &completion); err != nil {
		return err
	}
	return nil
}

var _ ScriptProvider = (*Scripter)(nil)
