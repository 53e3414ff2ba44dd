package workflow

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"storyforge/internal/queue"
	"storyforge/internal/services"
	"storyforge/internal/staging"
)

func TestManagerRunsPipelineToCompletion(t *testing.T) {
	set := passthroughStages()
	set.Compositor = &stubHandler{
		execute: func(_ context.Context, task *queue.Task) error {
			task.FinalFile = "/library/fullvideo.mp4"
			task.SetProgress(LabelCompositing, "stitched", 100)
			return nil
		},
	}
	m, store, notifier, _ := newTestManager(t, set)
	task := newReservedTask(t, store)

	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer m.Stop()

	deadline := time.Now().Add(15 * time.Second)
	for {
		current, err := store.GetByID(context.Background(), task.ID)
		if err != nil {
			t.Fatalf("get task: %v", err)
		}
		if current.Status == queue.StatusCompleted {
			if current.ProgressPercent != 100 {
				t.Fatalf("progress = %v, want 100", current.ProgressPercent)
			}
			if current.ProgressStage != LabelCompleted {
				t.Fatalf("progress stage = %q", current.ProgressStage)
			}
			break
		}
		if current.Status == queue.StatusFailed {
			t.Fatalf("task failed: %s", current.ErrorMessage)
		}
		if time.Now().After(deadline) {
			t.Fatalf("task stuck in %s", current.Status)
		}
		time.Sleep(50 * time.Millisecond)
	}

	deadline = time.Now().Add(2 * time.Second)
	for {
		notifier.mu.Lock()
		done := len(notifier.completed) > 0
		notifier.mu.Unlock()
		if done {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("completion notification not sent")
		}
		time.Sleep(20 * time.Millisecond)
	}

	if snap, ok := m.Progress(task.ID); !ok || snap.Percent != 100 {
		t.Fatalf("tracker snapshot = %+v, %v", snap, ok)
	}
}

func TestStageFailureRefundsExactlyOnce(t *testing.T) {
	boom := services.Wrap(services.ErrProviderFatal, "scripting", "generate script", "api key rejected", nil)
	set := StageSet{
		ScriptGenerator: &stubHandler{
			execute: func(context.Context, *queue.Task) error { return boom },
		},
	}
	m, store, notifier, credits := newTestManager(t, set)
	task := newReservedTask(t, store)

	lane := generationLane(t, m)
	if err := m.processTask(context.Background(), lane, m.logger, task); !errors.Is(err, services.ErrProviderFatal) {
		t.Fatalf("processTask error = %v", err)
	}

	current, err := store.GetByID(context.Background(), task.ID)
	if err != nil {
		t.Fatalf("get task: %v", err)
	}
	if current.Status != queue.StatusFailed {
		t.Fatalf("status = %s, want failed", current.Status)
	}
	if !current.RefundIssued {
		t.Fatal("expected refund flag to be set")
	}
	if got := credits.refundCount(task.ID); got != 1 {
		t.Fatalf("refund count = %d, want 1", got)
	}

	// A second failure on the same task must not refund again.
	m.handleStageFailure(context.Background(), lane.stages[0], current, boom)
	if got := credits.refundCount(task.ID); got != 1 {
		t.Fatalf("refund count after second failure = %d, want 1", got)
	}

	notifier.mu.Lock()
	errCount := len(notifier.errors)
	notifier.mu.Unlock()
	if errCount == 0 {
		t.Fatal("expected error notification")
	}
}

func TestStageFailureSanitizesErrorMessage(t *testing.T) {
	cause := fmt.Errorf(`Post %q: connection refused`, "https://api.internal:9000/v1/speech?key=secret")
	set := StageSet{
		ScriptGenerator: &stubHandler{
			execute: func(context.Context, *queue.Task) error {
				return services.Wrap(services.ErrTransient, "generating", "synthesize voice", "connection failed", cause)
			},
		},
	}
	m, store, _, _ := newTestManager(t, set)
	task := newReservedTask(t, store)

	lane := generationLane(t, m)
	_ = m.processTask(context.Background(), lane, m.logger, task)

	current, err := store.GetByID(context.Background(), task.ID)
	if err != nil {
		t.Fatalf("get task: %v", err)
	}
	if current.Status != queue.StatusFailed {
		t.Fatalf("status = %s, want failed", current.Status)
	}
	if current.ErrorMessage != "generating: synthesize voice: connection failed" {
		t.Fatalf("error message = %q", current.ErrorMessage)
	}
	if strings.Contains(current.ErrorMessage, "api.internal") || strings.Contains(current.ErrorMessage, "secret") {
		t.Fatalf("stored message leaks provider endpoint: %q", current.ErrorMessage)
	}
}

func TestStageFailureRemovesStagingWorkspace(t *testing.T) {
	boom := services.Wrap(services.ErrProviderFatal, "scripting", "generate script", "api key rejected", nil)
	set := StageSet{
		ScriptGenerator: &stubHandler{
			execute: func(context.Context, *queue.Task) error { return boom },
		},
	}
	m, store, _, _ := newTestManager(t, set)
	task := newReservedTask(t, store)

	workspace, err := staging.NewWorkspace(m.cfg.Paths.StagingDir, task.ID)
	if err != nil {
		t.Fatalf("workspace: %v", err)
	}
	if err := workspace.WriteArtifact(workspace.ScriptPath(), []byte("{}")); err != nil {
		t.Fatalf("write artifact: %v", err)
	}

	lane := generationLane(t, m)
	_ = m.processTask(context.Background(), lane, m.logger, task)

	if _, err := os.Stat(workspace.Root); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("staging workspace still present after failure: %v", err)
	}
}

func TestCancelSentinelRemovesStagingWorkspace(t *testing.T) {
	set := StageSet{
		ScriptGenerator: &stubHandler{
			execute: func(context.Context, *queue.Task) error {
				return services.Wrap(services.ErrCancelled, "stage", "checkpoint", queue.UserStopReason, nil)
			},
		},
	}
	m, store, _, _ := newTestManager(t, set)
	task := newReservedTask(t, store)

	workspace, err := staging.NewWorkspace(m.cfg.Paths.StagingDir, task.ID)
	if err != nil {
		t.Fatalf("workspace: %v", err)
	}

	lane := generationLane(t, m)
	_ = m.processTask(context.Background(), lane, m.logger, task)

	if _, err := os.Stat(workspace.Root); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("staging workspace still present after cancel: %v", err)
	}
}

func TestPauseSentinelParksTask(t *testing.T) {
	set := StageSet{
		ScriptGenerator: &stubHandler{
			execute: func(context.Context, *queue.Task) error {
				return services.Wrap(services.ErrPaused, "stage", "checkpoint", "pause requested", nil)
			},
		},
	}
	m, store, _, credits := newTestManager(t, set)
	task := newReservedTask(t, store)

	workspace, err := staging.NewWorkspace(m.cfg.Paths.StagingDir, task.ID)
	if err != nil {
		t.Fatalf("workspace: %v", err)
	}

	lane := generationLane(t, m)
	_ = m.processTask(context.Background(), lane, m.logger, task)

	current, err := store.GetByID(context.Background(), task.ID)
	if err != nil {
		t.Fatalf("get task: %v", err)
	}
	if current.Status != queue.StatusPaused {
		t.Fatalf("status = %s, want paused", current.Status)
	}
	if current.ResumeStatus != queue.StatusPending {
		t.Fatalf("resume status = %s, want pending", current.ResumeStatus)
	}
	if credits.refundCount(task.ID) != 0 {
		t.Fatal("paused task must keep its reservation")
	}
	if _, err := os.Stat(workspace.Root); err != nil {
		t.Fatalf("paused task must keep its staging workspace: %v", err)
	}
}

func TestCancelSentinelRefundsAndCancels(t *testing.T) {
	set := StageSet{
		ScriptGenerator: &stubHandler{
			execute: func(context.Context, *queue.Task) error {
				return services.Wrap(services.ErrCancelled, "stage", "checkpoint", queue.UserStopReason, nil)
			},
		},
	}
	m, store, notifier, credits := newTestManager(t, set)
	task := newReservedTask(t, store)

	lane := generationLane(t, m)
	_ = m.processTask(context.Background(), lane, m.logger, task)

	current, err := store.GetByID(context.Background(), task.ID)
	if err != nil {
		t.Fatalf("get task: %v", err)
	}
	if current.Status != queue.StatusCancelled {
		t.Fatalf("status = %s, want cancelled", current.Status)
	}
	if current.ErrorMessage != queue.UserStopReason {
		t.Fatalf("error message = %q", current.ErrorMessage)
	}
	if credits.refundCount(task.ID) != 1 {
		t.Fatalf("refund count = %d, want 1", credits.refundCount(task.ID))
	}

	notifier.mu.Lock()
	cancelled := len(notifier.cancelled)
	notifier.mu.Unlock()
	if cancelled != 1 {
		t.Fatalf("cancel notifications = %d, want 1", cancelled)
	}
}

func TestCancelRequestBeforeStageStarts(t *testing.T) {
	executed := false
	set := StageSet{
		ScriptGenerator: &stubHandler{
			execute: func(context.Context, *queue.Task) error {
				executed = true
				return nil
			},
		},
	}
	m, store, _, credits := newTestManager(t, set)
	task := newReservedTask(t, store)
	task.CancelRequested = true

	lane := generationLane(t, m)
	if err := m.processTask(context.Background(), lane, m.logger, task); err != nil {
		t.Fatalf("processTask: %v", err)
	}
	if executed {
		t.Fatal("stage must not run for a cancel-requested task")
	}

	current, err := store.GetByID(context.Background(), task.ID)
	if err != nil {
		t.Fatalf("get task: %v", err)
	}
	if current.Status != queue.StatusCancelled {
		t.Fatalf("status = %s, want cancelled", current.Status)
	}
	if credits.refundCount(task.ID) != 1 {
		t.Fatalf("refund count = %d, want 1", credits.refundCount(task.ID))
	}
}

func TestProcessingTransitionPersistsBeforeExecution(t *testing.T) {
	var observed queue.Status
	m, store, _, _ := newTestManager(t, StageSet{})
	set := StageSet{
		ScriptGenerator: &stubHandler{
			execute: func(ctx context.Context, task *queue.Task) error {
				current, err := store.GetByID(ctx, task.ID)
				if err != nil {
					return err
				}
				observed = current.Status
				return nil
			},
		},
	}
	m.ConfigureStages(set)
	task := newReservedTask(t, store)

	lane := generationLane(t, m)
	if err := m.processTask(context.Background(), lane, m.logger, task); err != nil {
		t.Fatalf("processTask: %v", err)
	}
	if observed != queue.StatusScripting {
		t.Fatalf("observed status during execution = %s, want scripting", observed)
	}
}

func TestProgressWindowsAdvanceMonotonically(t *testing.T) {
	m, store, _, _ := newTestManager(t, passthroughStages())
	task := newReservedTask(t, store)

	lane := generationLane(t, m)
	var lastPercent float64
	for i := 0; i < len(lane.stages); i++ {
		if err := m.processTask(context.Background(), lane, m.logger, task); err != nil {
			t.Fatalf("stage %d: %v", i, err)
		}
		current, err := store.GetByID(context.Background(), task.ID)
		if err != nil {
			t.Fatalf("get task: %v", err)
		}
		if current.ProgressPercent < lastPercent {
			t.Fatalf("progress moved backwards: %v -> %v", lastPercent, current.ProgressPercent)
		}
		lastPercent = current.ProgressPercent
		task = current
	}
}

func TestStatusSummaryReportsStageHealth(t *testing.T) {
	m, _, _, _ := newTestManager(t, passthroughStages())
	summary := m.Status(context.Background())
	if summary.Running {
		t.Fatal("manager should not be running")
	}
	if len(summary.StageHealth) != 5 {
		t.Fatalf("stage health entries = %d, want 5", len(summary.StageHealth))
	}
	for name, health := range summary.StageHealth {
		if !health.Ready {
			t.Fatalf("stage %s unexpectedly unhealthy: %s", name, health.Detail)
		}
	}
}

func TestStartWithoutStagesFails(t *testing.T) {
	m, _, _, _ := newTestManager(t, StageSet{})
	if err := m.Start(context.Background()); err == nil {
		m.Stop()
		t.Fatal("expected error when no stages configured")
	}
}
