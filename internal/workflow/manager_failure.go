package workflow

import (
	"context"
	"errors"
	"log/slog"

	"storyforge/internal/logging"
	"storyforge/internal/queue"
	"storyforge/internal/services"
	"storyforge/internal/staging"
)

// handleStageFailure resolves a stage error into the queue status it implies:
// pause and cancel checkpoints park or cancel the task, anything else fails
// it. Failed and cancelled tasks get their reserved credits refunded exactly
// once.
func (m *Manager) handleStageFailure(ctx context.Context, stg pipelineStage, task *queue.Task, stageErr error) {
	base := m.logger
	if base == nil {
		base = logging.NewNop()
	}
	logger := logging.WithContext(ctx, base).With(logging.String(logging.FieldComponent, "workflow-manager"))

	resolved := services.FailureStatus(stageErr)
	switch resolved {
	case queue.StatusPaused:
		task.SetPaused(stg.startStatus)
		logger.Info("stage paused by request",
			logging.String("resume_status", string(stg.startStatus)),
			logging.String(logging.FieldEventType, "stage_paused"),
		)
	case queue.StatusCancelled:
		m.refundOnce(ctx, logger, task)
		task.SetCancelled(queue.UserStopReason)
		m.cleanupStaging(logger, task)
		logger.Info("stage cancelled by request",
			logging.String(logging.FieldEventType, "stage_cancelled"),
		)
	default:
		message := failureMessage(stg, stageErr)
		m.refundOnce(ctx, logger, task)
		task.SetFailed(message)
		m.cleanupStaging(logger, task)
		logger.Error("stage failed",
			logging.String("resolved_status", string(queue.StatusFailed)),
			logging.String("error_message", message),
			logging.String(logging.FieldErrorKind, string(services.Classify(stageErr))),
			logging.String(logging.FieldAlert, "stage_failure"),
			logging.Error(stageErr),
			logging.String(logging.FieldEventType, "stage_failure"),
		)
	}

	if err := m.store.Update(ctx, task); err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Debug("daemon shutting down, could not update stage outcome")
		} else {
			logger.Error("failed to persist stage outcome", logging.Error(err))
		}
	}

	m.setLastTask(task)
	m.publishProgress(task)
	switch resolved {
	case queue.StatusCancelled:
		m.notifyTaskCancelled(ctx, task)
	case queue.StatusFailed:
		m.notifyStageError(ctx, stg.name, task, stageErr)
	}
}

// refundOnce returns the task's reserved credits at most once across the
// task's lifetime. The refund flag is persisted with the task, so a retried
// task keeps its compensation history unless the retry explicitly resets it.
func (m *Manager) refundOnce(ctx context.Context, logger *slog.Logger, task *queue.Task) {
	if m.credits == nil || !m.credits.Enabled() {
		return
	}
	if task.ReservedCredits <= 0 || task.RefundIssued {
		return
	}
	if err := m.credits.Refund(ctx, task.ID, int64(task.ReservedCredits)); err != nil {
		logger.Error("credit refund failed",
			logging.Error(err),
			logging.Int("reserved_credits", task.ReservedCredits),
			logging.String(logging.FieldEventType, "refund_failed"),
			logging.String(logging.FieldErrorHint, "reconcile the ledger for this task manually"),
		)
		return
	}
	task.RefundIssued = true
	logger.Info("reserved credits refunded",
		logging.Int("reserved_credits", task.ReservedCredits),
		logging.String(logging.FieldEventType, "credits_refunded"),
	)
}

// cleanupStaging removes the task's staging directory after a terminal
// failure or cancellation. Paused tasks keep their artifacts for resume.
func (m *Manager) cleanupStaging(logger *slog.Logger, task *queue.Task) {
	if m.cfg == nil || task == nil {
		return
	}
	if err := staging.RemoveWorkspace(m.cfg.Paths.StagingDir, task.ID); err != nil {
		logger.Warn("staging cleanup failed",
			logging.Error(err),
			logging.String(logging.FieldEventType, "staging_cleanup_failed"),
		)
	}
}

// failureMessage produces the user-visible error text for a failed task. Only
// the stage context of the error chain is surfaced; raw provider responses and
// request URLs stay in the logs.
func failureMessage(stg pipelineStage, stageErr error) string {
	if message := services.Summary(stageErr); message != "" {
		return message
	}
	return stg.name + " failed"
}
