package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"storyforge/internal/config"
)

const userAgent = "StoryForge-Go/0.1.0"

// Service defines the notification surface exposed to workflow components.
type Service interface {
	NotifyTaskSubmitted(ctx context.Context, taskID int64, prompt string) error
	NotifyTaskCompleted(ctx context.Context, title, resultRef string) error
	NotifyTaskCancelled(ctx context.Context, title string) error
	NotifyError(ctx context.Context, err error, contextLabel string) error
	TestNotification(ctx context.Context) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	client := &http.Client{Timeout: timeout}
	return &ntfyService{
		endpoint:      topic,
		client:        client,
		sendSubmitted: cfg.Notifications.Submitted,
		sendCompleted: cfg.Notifications.Completed,
		sendErrors:    cfg.Notifications.Errors,
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint      string
	client        *http.Client
	sendSubmitted bool
	sendCompleted bool
	sendErrors    bool
}

func (n *ntfyService) NotifyTaskSubmitted(ctx context.Context, taskID int64, prompt string) error {
	if !n.sendSubmitted {
		return nil
	}
	prompt = strings.TrimSpace(prompt)
	if len(prompt) > 120 {
		prompt = prompt[:117] + "..."
	}
	data := payload{
		title:   "StoryForge - Task Submitted",
		message: fmt.Sprintf("Queued task #%d: %s", taskID, prompt),
		tags:    []string{"storyforge", "task", "submitted"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyTaskCompleted(ctx context.Context, title, resultRef string) error {
	if !n.sendCompleted {
		return nil
	}
	title = strings.TrimSpace(title)
	resultRef = strings.TrimSpace(resultRef)
	message := fmt.Sprintf("Video ready: %s", title)
	if resultRef != "" {
		message = fmt.Sprintf("%s\n%s", message, resultRef)
	}
	data := payload{
		title:    "StoryForge - Complete",
		message:  message,
		tags:     []string{"storyforge", "task", "completed"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyTaskCancelled(ctx context.Context, title string) error {
	if !n.sendCompleted {
		return nil
	}
	data := payload{
		title:   "StoryForge - Cancelled",
		message: fmt.Sprintf("Task cancelled: %s", strings.TrimSpace(title)),
		tags:    []string{"storyforge", "task", "cancelled"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyError(ctx context.Context, err error, contextLabel string) error {
	if !n.sendErrors {
		return nil
	}
	var builder strings.Builder
	builder.WriteString("Error")
	if contextLabel = strings.TrimSpace(contextLabel); contextLabel != "" {
		builder.WriteString(" with ")
		builder.WriteString(contextLabel)
	}
	builder.WriteString(": ")
	if err != nil {
		builder.WriteString(strings.TrimSpace(err.Error()))
	} else {
		builder.WriteString("unknown")
	}

	data := payload{
		title:    "StoryForge - Error",
		message:  builder.String(),
		tags:     []string{"storyforge", "error", "alert"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	data := payload{
		title:    "StoryForge - Test",
		message:  "Notification system test",
		tags:     []string{"storyforge", "test"},
		priority: "low",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) send(ctx context.Context, data payload) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) NotifyTaskSubmitted(context.Context, int64, string) error { return nil }
func (noopService) NotifyTaskCompleted(context.Context, string, string) error { return nil }
func (noopService) NotifyTaskCancelled(context.Context, string) error         { return nil }
func (noopService) NotifyError(context.Context, error, string) error          { return nil }
func (noopService) TestNotification(context.Context) error                    { return nil }
