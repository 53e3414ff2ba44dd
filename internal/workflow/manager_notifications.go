package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"storyforge/internal/logging"
	"storyforge/internal/progress"
	"storyforge/internal/queue"
)

func (m *Manager) publishProgress(task *queue.Task) {
	if m.sink == nil || task == nil {
		return
	}
	m.sink.Publish(progress.FromTask(task))
}

func (m *Manager) notifyStageError(ctx context.Context, stageName string, task *queue.Task, stageErr error) {
	if m.notifier == nil || stageErr == nil {
		return
	}
	logger := logging.WithContext(ctx, m.logger.With(logging.String(logging.FieldComponent, "workflow-manager")))
	contextLabel := fmt.Sprintf("%s (task #%d)", stageName, task.ID)
	if err := m.notifier.NotifyError(ctx, stageErr, contextLabel); err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Debug("daemon shutting down, could not send error notification")
		} else {
			logger.Debug("stage error notification failed", logging.Error(err))
		}
	}
}

func (m *Manager) notifyTaskCompleted(ctx context.Context, task *queue.Task) {
	if m.notifier == nil {
		return
	}
	logger := logging.WithContext(ctx, m.logger.With(logging.String(logging.FieldComponent, "workflow-manager")))
	resultRef := strings.TrimSpace(task.ResultURL)
	if resultRef == "" {
		resultRef = strings.TrimSpace(task.FinalFile)
	}
	if err := m.notifier.NotifyTaskCompleted(ctx, snippet(task.Prompt), resultRef); err != nil {
		logger.Debug("completion notification failed", logging.Error(err))
	}
}

func (m *Manager) notifyTaskCancelled(ctx context.Context, task *queue.Task) {
	if m.notifier == nil {
		return
	}
	logger := logging.WithContext(ctx, m.logger.With(logging.String(logging.FieldComponent, "workflow-manager")))
	if err := m.notifier.NotifyTaskCancelled(ctx, snippet(task.Prompt)); err != nil {
		logger.Debug("cancellation notification failed", logging.Error(err))
	}
}
