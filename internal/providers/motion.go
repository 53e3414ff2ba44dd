package providers

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"storyforge/internal/config"
	"storyforge/internal/services"
)

// pollRequestTimeout bounds each status poll. The render deadline from the
// provider config covers the whole job, not a single HTTP round trip.
const pollRequestTimeout = 30 * time.Second

// Motion animates still images into video clips through an asynchronous
// submit/poll endpoint. Submit returns a job ID; the adapter polls until the
// render succeeds, fails, or the configured timeout lapses.
type Motion struct {
	cfg        config.Provider
	httpClient *http.Client
	pollClient *http.Client

	pollInterval time.Duration
}

// MotionOption customizes the motion adapter.
type MotionOption func(*Motion)

// WithPollInterval overrides the status poll cadence (useful for tests).
func WithPollInterval(d time.Duration) MotionOption {
	return func(m *Motion) {
		if d > 0 {
			m.pollInterval = d
		}
	}
}

// NewMotion constructs the motion provider adapter.
func NewMotion(cfg config.Provider, opts ...MotionOption) *Motion {
	m := &Motion{
		cfg:          cfg,
		httpClient:   newHTTPClient(cfg),
		pollClient:   &http.Client{Timeout: pollRequestTimeout},
		pollInterval: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

type motionSubmitPayload struct {
	Model           string  `json:"model,omitempty"`
	ImageB64        string  `json:"image_b64"`
	MotionPrompt    string  `json:"motion_prompt,omitempty"`
	DurationSeconds float64 `json:"duration_seconds"`
}

type motionJobPayload struct {
	ID       string `json:"id"`
	Status   string `json:"status"`
	VideoURL string `json:"video_url"`
	Error    string `json:"error"`
}

// Animate implements MotionProvider.
func (m *Motion) Animate(ctx context.Context, req MotionRequest) ([]byte, error) {
	if strings.TrimSpace(req.ImagePath) == "" {
		return nil, services.Wrap(services.ErrValidation, "synthesizing", "animate scene", "image path required", nil)
	}
	if req.DurationSeconds <= 0 {
		return nil, services.Wrap(services.ErrValidation, "synthesizing", "animate scene", "duration must be positive", nil)
	}
	if strings.TrimSpace(m.cfg.BaseURL) == "" {
		return nil, services.Wrap(services.ErrConfiguration, "synthesizing", "animate scene", "motion provider base url required", nil)
	}

	image, err := os.ReadFile(req.ImagePath)
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, "synthesizing", "animate scene", "read source image", err)
	}

	payload := motionSubmitPayload{
		Model:           m.cfg.Model,
		ImageB64:        base64.StdEncoding.EncodeToString(image),
		MotionPrompt:    strings.TrimSpace(req.MotionPrompt),
		DurationSeconds: req.DurationSeconds,
	}
	var job motionJobPayload
	if err := postJSON(ctx, m.httpClient, m.cfg.APIKey, m.jobsURL(), payload, &job); err != nil {
		return nil, translateError("synthesizing", "submit motion job", err)
	}
	if strings.TrimSpace(job.ID) == "" {
		return nil, services.Wrap(services.ErrTransient, "synthesizing", "submit motion job", "no job id returned", nil)
	}

	return m.awaitJob(ctx, job.ID)
}

func (m *Motion) awaitJob(ctx context.Context, id string) ([]byte, error) {
	deadline := time.Now().Add(m.renderTimeout())
	ticker := time.NewTicker(m.pollInterval)
	defer ticker.Stop()

	for {
		var job motionJobPayload
		if err := getJSON(ctx, m.pollClient, m.cfg.APIKey, m.jobsURL()+"/"+id, &job); err != nil {
			return nil, translateError("synthesizing", "poll motion job", err)
		}
		switch strings.ToLower(strings.TrimSpace(job.Status)) {
		case "succeeded", "completed":
			if strings.TrimSpace(job.VideoURL) == "" {
				return nil, services.Wrap(services.ErrTransient, "synthesizing", "poll motion job", "succeeded without video url", nil)
			}
			data, err := download(ctx, m.httpClient, job.VideoURL)
			if err != nil {
				return nil, translateError("synthesizing", "download motion video", err)
			}
			return data, nil
		case "failed", "canceled", "cancelled":
			detail := strings.TrimSpace(job.Error)
			if detail == "" {
				detail = "render failed"
			}
			return nil, services.Wrap(services.ErrProviderFatal, "synthesizing", "poll motion job", detail, nil)
		}

		if time.Now().After(deadline) {
			return nil, services.Wrap(services.ErrTransient, "synthesizing", "poll motion job",
				fmt.Sprintf("render did not finish within %s", m.renderTimeout()), nil)
		}
		select {
		case <-ctx.Done():
			return nil, services.Wrap(services.ErrCancelled, "synthesizing", "poll motion job", "context cancelled", ctx.Err())
		case <-ticker.C:
		}
	}
}

func (m *Motion) jobsURL() string {
	return strings.TrimRight(m.cfg.BaseURL, "/") + "/jobs"
}

func (m *Motion) renderTimeout() time.Duration {
	if m.cfg.TimeoutSeconds > 0 {
		return time.Duration(m.cfg.TimeoutSeconds) * time.Second
	}
	return 10 * time.Minute
}

var _ MotionProvider = (*Motion)(nil)
