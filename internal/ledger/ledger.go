// Package ledger reserves credits for submitted tasks and refunds them when a
// task fails or is cancelled before delivering a video. With the ledger
// disabled, reservations succeed at zero cost so the pipeline runs unmetered.
package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"storyforge/internal/config"
	"storyforge/internal/services"
)

// Service is the credit surface the workflow depends on.
type Service interface {
	Reserve(ctx context.Context, owner string, taskID int64) (int64, error)
	Refund(ctx context.Context, taskID int64, credits int64) error
	Enabled() bool
}

// HTTPDoer describes the HTTP client used by the ledger service.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

type httpService struct {
	baseURL string
	apiKey  string
	credits int64
	client  HTTPDoer
}

// NewService builds a ledger client from configuration, or a noop when the
// ledger is disabled.
func NewService(cfg *config.Config) Service {
	if cfg == nil || !cfg.Ledger.Enabled {
		return noopService{}
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.Ledger.BaseURL), "/")
	if baseURL == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Ledger.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &httpService{
		baseURL: baseURL,
		apiKey:  strings.TrimSpace(cfg.Ledger.APIKey),
		credits: int64(cfg.Ledger.CreditsPerTask),
		client:  &http.Client{Timeout: timeout},
	}
}

// NewHTTPService constructs a ledger service against an explicit client.
func NewHTTPService(baseURL, apiKey string, creditsPerTask int64, client HTTPDoer) Service {
	return &httpService{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		apiKey:  strings.TrimSpace(apiKey),
		credits: creditsPerTask,
		client:  client,
	}
}

func (s *httpService) Enabled() bool { return true }

type reserveRequest struct {
	Owner   string `json:"owner"`
	TaskID  int64  `json:"task_id"`
	Credits int64  `json:"credits"`
}

type reserveResponse struct {
	Reserved int64  `json:"reserved"`
	Error    string `json:"error"`
}

type refundRequest struct {
	TaskID  int64 `json:"task_id"`
	Credits int64 `json:"credits"`
}

// Reserve debits the owner's balance before any generation work starts and
// returns the reserved amount.
func (s *httpService) Reserve(ctx context.Context, owner string, taskID int64) (int64, error) {
	var resp reserveResponse
	err := s.post(ctx, "/v1/credits/reserve", reserveRequest{
		Owner:   strings.TrimSpace(owner),
		TaskID:  taskID,
		Credits: s.credits,
	}, &resp)
	if err != nil {
		return 0, err
	}
	if resp.Reserved <= 0 {
		detail := strings.TrimSpace(resp.Error)
		if detail == "" {
			detail = "reservation declined"
		}
		return 0, services.Wrap(services.ErrValidation, "", "reserve credits", detail, nil)
	}
	return resp.Reserved, nil
}

// Refund returns reserved credits for a task that will never complete.
func (s *httpService) Refund(ctx context.Context, taskID int64, credits int64) error {
	if credits <= 0 {
		return nil
	}
	return s.post(ctx, "/v1/credits/refund", refundRequest{TaskID: taskID, Credits: credits}, nil)
}

func (s *httpService) post(ctx context.Context, path string, body, out any) error {
	encoded, err := json.Marshal(body)
	if err != nil {
		return services.Wrap(services.ErrValidation, "", "ledger request", "encode payload", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+path, bytes.NewReader(encoded))
	if err != nil {
		return services.Wrap(services.ErrValidation, "", "ledger request", "build request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return services.Wrap(services.ErrTransient, "", "ledger request", "ledger unreachable", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError {
		return services.Wrap(services.ErrTransient, "", "ledger request",
			fmt.Sprintf("ledger returned %d", resp.StatusCode), nil)
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		detail := strings.TrimSpace(string(payload))
		if detail == "" {
			detail = fmt.Sprintf("ledger returned %d", resp.StatusCode)
		}
		return services.Wrap(services.ErrValidation, "", "ledger request", detail, nil)
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return services.Wrap(services.ErrTransient, "", "ledger request", "decode response", err)
	}
	return nil
}

type noopService struct{}

func (noopService) Enabled() bool { return false }

func (noopService) Reserve(context.Context, string, int64) (int64, error) { return 0, nil }

func (noopService) Refund(context.Context, int64, int64) error { return nil }

var (
	_ Service = (*httpService)(nil)
	_ Service = noopService{}
)
