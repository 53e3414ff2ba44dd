package providers

import (
	"context"
	"encoding/base64"
	"net/http"
	"strings"

	"storyforge/internal/config"
	"storyforge/internal/services"
)

// Imagen renders still images through a text-to-image HTTP endpoint that
// returns either inline base64 data or a download URL.
type Imagen struct {
	cfg        config.Provider
	httpClient *http.Client
}

// NewImagen constructs the image provider adapter.
func NewImagen(cfg config.Provider) *Imagen {
	return &Imagen{cfg: cfg, httpClient: newHTTPClient(cfg)}
}

type imageRequestPayload struct {
	Model  string `json:"model,omitempty"`
	Prompt string `json:"prompt"`
	Width  int    `json:"width,omitempty"`
	Height int    `json:"height,omitempty"`
}

type imageResponsePayload struct {
	Data []struct {
		B64JSON string `json:"b64_json"`
		URL     string `json:"url"`
	} `json:"data"`
}

// GenerateImage implements ImageProvider.
func (g *Imagen) GenerateImage(ctx context.Context, req ImageRequest) ([]byte, error) {
	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		return nil, services.Wrap(services.ErrValidation, "generating", "generate image", "prompt required", nil)
	}
	if strings.TrimSpace(g.cfg.BaseURL) == "" {
		return nil, services.Wrap(services.ErrConfiguration, "generating", "generate image", "image provider base url required", nil)
	}
	if style := strings.TrimSpace(req.Style); style != "" {
		prompt = prompt + ", " + style
	}

	payload := imageRequestPayload{
		Model:  g.cfg.Model,
		Prompt: prompt,
		Width:  req.Width,
		Height: req.Height,
	}
	var resp imageResponsePayload
	if err := postJSON(ctx, g.httpClient, g.cfg.APIKey, g.cfg.BaseURL, payload, &resp); err != nil {
		return nil, translateError("generating", "generate image", err)
	}
	if len(resp.Data) == 0 {
		return nil, services.Wrap(services.ErrTransient, "generating", "generate image", "empty image response", nil)
	}

	entry := resp.Data[0]
	if entry.B64JSON != "" {
		decoded, err := base64.StdEncoding.DecodeString(entry.B64JSON)
		if err != nil {
			return nil, services.Wrap(services.ErrTransient, "generating", "generate image", "invalid base64 payload", err)
		}
		return decoded, nil
	}
	if entry.URL != "" {
		data, err := download(ctx, g.httpClient, entry.URL)
		if err != nil {
			return nil, translateError("generating", "download image", err)
		}
		return data, nil
	}
	return nil, services.Wrap(services.ErrTransient, "generating", "generate image", "response carried neither data nor url", nil)
}

var _ ImageProvider = (*Imagen)(nil)
