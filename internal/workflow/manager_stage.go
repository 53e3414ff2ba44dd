package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"storyforge/internal/logging"
	"storyforge/internal/queue"
	"storyforge/internal/services"
)

func (m *Manager) processTask(ctx context.Context, lane *laneState, laneLogger *slog.Logger, task *queue.Task) error {
	stg, ok := lane.stageForStatus(task.Status)
	if !ok {
		if laneLogger == nil {
			laneLogger = m.logger
		}
		if laneLogger == nil {
			laneLogger = logging.NewNop()
		}
		laneLogger.Warn("no stage configured for status", logging.String("status", string(task.Status)))
		m.waitForTaskOrShutdown(ctx)
		return nil
	}

	requestID := uuid.NewString()
	stageCtx := withStageContext(ctx, lane, stg.name, task, requestID)
	stageLogger := m.stageLogger(stageCtx, lane, laneLogger, task)

	if handled, err := m.honorStopRequests(stageCtx, stageLogger, stg, task); handled || err != nil {
		return err
	}

	if err := m.transitionToProcessing(stageCtx, stg, task); err != nil {
		stageLogger.Error("failed to transition task to processing", logging.Error(err))
		m.setLastError(err)
		return err
	}

	return m.executeStage(stageCtx, stageLogger, stg, task)
}

// honorStopRequests applies pause or cancel flags that arrived while the task
// was waiting in the queue, before any stage work starts.
func (m *Manager) honorStopRequests(ctx context.Context, logger *slog.Logger, stg pipelineStage, task *queue.Task) (bool, error) {
	switch {
	case task.CancelRequested:
		m.refundOnce(ctx, logger, task)
		task.SetCancelled(queue.UserStopReason)
		m.cleanupStaging(logger, task)
	case task.PauseRequested:
		task.SetPaused(stg.startStatus)
	default:
		return false, nil
	}

	if err := m.store.Update(ctx, task); err != nil {
		wrapped := fmt.Errorf("persist stop request: %w", err)
		logger.Error("failed to persist stop request", logging.Error(wrapped))
		m.setLastError(wrapped)
		return true, wrapped
	}
	m.setLastTask(task)
	m.publishProgress(task)
	if task.Status == queue.StatusCancelled {
		m.notifyTaskCancelled(ctx, task)
	}
	return true, nil
}

func (m *Manager) executeStage(ctx context.Context, stageLogger *slog.Logger, stg pipelineStage, task *queue.Task) error {
	stageStart := time.Now()
	stageLogger.Info(
		"stage started",
		logging.String(logging.FieldEventType, "stage_start"),
		logging.String("processing_status", string(stg.processingStatus)),
		logging.String("prompt", snippet(task.Prompt)),
	)

	handler := stg.handler
	if handler == nil {
		stageLogger.Warn("missing stage handler", logging.String("stage", stg.name))
		task.SetFailed(fmt.Sprintf("stage %s missing handler", stg.name))
		if err := m.store.Update(ctx, task); err != nil {
			stageLogger.Error("failed to persist missing handler failure", logging.Error(err))
		}
		m.setLastError(errors.New("stage handler unavailable"))
		return errors.New("stage handler unavailable")
	}

	if err := handler.Prepare(ctx, task); err != nil {
		m.handleStageFailure(ctx, stg, task, err)
		m.setLastError(err)
		return err
	}
	if err := m.store.Update(ctx, task); err != nil {
		wrapped := fmt.Errorf("persist stage preparation: %w", err)
		stageLogger.Error("failed to persist stage preparation", logging.Error(wrapped))
		m.setLastError(wrapped)
		return wrapped
	}

	execErr := m.executeWithHeartbeat(ctx, handler, task)
	if execErr != nil {
		if errors.Is(execErr, context.Canceled) && ctx.Err() != nil {
			stageLogger.Debug("stage interrupted by shutdown")
			return execErr
		}
		m.handleStageFailure(ctx, stg, task, execErr)
		m.setLastError(execErr)
		return execErr
	}

	if task.Status == stg.processingStatus || task.Status == "" {
		task.Status = stg.doneStatus
	}
	task.LastHeartbeat = nil
	if task.Status == queue.StatusCompleted {
		if task.ProgressPercent < 100 {
			task.ProgressPercent = 100
		}
		task.ProgressStage = LabelCompleted
		if strings.TrimSpace(task.ProgressMessage) == "" {
			task.ProgressMessage = "Video ready"
		}
	}
	if err := m.store.Update(ctx, task); err != nil {
		wrapped := fmt.Errorf("persist stage result: %w", err)
		stageLogger.Error("failed to persist stage result", logging.Error(wrapped))
		m.setLastError(wrapped)
		return wrapped
	}
	m.publishProgress(task)
	stageLogger.Info(
		"stage completed",
		logging.String(logging.FieldEventType, "stage_complete"),
		logging.String("next_status", string(task.Status)),
		logging.String("progress_stage", strings.TrimSpace(task.ProgressStage)),
		logging.Duration("stage_duration", time.Since(stageStart)),
	)
	if task.Status == queue.StatusCompleted {
		m.notifyTaskCompleted(ctx, task)
	}
	m.setLastTask(task)
	return nil
}

func (m *Manager) executeWithHeartbeat(ctx context.Context, handler interface {
	Execute(context.Context, *queue.Task) error
}, task *queue.Task) error {
	hbCtx, hbCancel := context.WithCancel(ctx)
	var hbWG sync.WaitGroup
	hbWG.Add(1)
	go m.heartbeat.StartLoop(hbCtx, &hbWG, task.ID)

	execErr := handler.Execute(ctx, task)
	hbCancel()
	hbWG.Wait()
	return execErr
}

// transitionToProcessing persists the processing status before the stage runs
// any side effects.
func (m *Manager) transitionToProcessing(ctx context.Context, stg pipelineStage, task *queue.Task) error {
	if stg.processingStatus == "" {
		return errors.New("processing status must not be empty")
	}

	setTaskProcessingState(task, stg)
	if err := m.store.Update(ctx, task); err != nil {
		return fmt.Errorf("persist processing transition: %w", err)
	}
	m.setLastTask(task)
	m.publishProgress(task)
	return nil
}

func setTaskProcessingState(task *queue.Task, stg pipelineStage) {
	now := time.Now().UTC()
	task.Status = stg.processingStatus
	task.ProgressStage = stg.label
	task.ProgressMessage = fmt.Sprintf("%s started", stg.label)
	task.ProgressPercent = stg.progressStart
	task.ErrorMessage = ""
	task.ResumeStatus = ""
	task.LastHeartbeat = &now
}

func withStageContext(ctx context.Context, lane *laneState, stageName string, task *queue.Task, requestID string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if task != nil {
		ctx = services.WithTaskID(ctx, task.ID)
	}
	if stageName != "" {
		ctx = services.WithStage(ctx, stageName)
	}
	if lane != nil {
		ctx = services.WithLane(ctx, lane.name)
	}
	if requestID != "" {
		ctx = services.WithRequestID(ctx, requestID)
	}
	return ctx
}

func snippet(text string) string {
	text = strings.TrimSpace(text)
	if len(text) > 80 {
		return text[:77] + "..."
	}
	return text
}
