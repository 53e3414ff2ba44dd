package workflow

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"storyforge/internal/config"
	"storyforge/internal/logging"
	"storyforge/internal/queue"
	"storyforge/internal/stage"
)

type stubHandler struct {
	prepare func(context.Context, *queue.Task) error
	execute func(context.Context, *queue.Task) error
}

func (s *stubHandler) Prepare(ctx context.Context, task *queue.Task) error {
	if s.prepare != nil {
		return s.prepare(ctx, task)
	}
	return nil
}

func (s *stubHandler) Execute(ctx context.Context, task *queue.Task) error {
	if s.execute != nil {
		return s.execute(ctx, task)
	}
	return nil
}

func (s *stubHandler) HealthCheck(context.Context) stage.Health {
	return stage.Healthy("stub")
}

type recordingNotifier struct {
	mu        sync.Mutex
	completed []string
	cancelled []string
	errors    []string
}

func (r *recordingNotifier) NotifyTaskSubmitted(context.Context, int64, string) error { return nil }

func (r *recordingNotifier) NotifyTaskCompleted(_ context.Context, title, resultRef string) error {
	r.mu.Lock()
	r.completed = append(r.completed, title+"|"+resultRef)
	r.mu.Unlock()
	return nil
}

func (r *recordingNotifier) NotifyTaskCancelled(_ context.Context, title string) error {
	r.mu.Lock()
	r.cancelled = append(r.cancelled, title)
	r.mu.Unlock()
	return nil
}

func (r *recordingNotifier) NotifyError(_ context.Context, err error, label string) error {
	r.mu.Lock()
	r.errors = append(r.errors, label)
	r.mu.Unlock()
	return nil
}

func (r *recordingNotifier) TestNotification(context.Context) error { return nil }

type recordingLedger struct {
	mu      sync.Mutex
	refunds map[int64]int
}

func (r *recordingLedger) Enabled() bool { return true }

func (r *recordingLedger) Reserve(context.Context, string, int64) (int64, error) { return 10, nil }

func (r *recordingLedger) Refund(_ context.Context, taskID int64, credits int64) error {
	r.mu.Lock()
	if r.refunds == nil {
		r.refunds = make(map[int64]int)
	}
	r.refunds[taskID]++
	r.mu.Unlock()
	return nil
}

func (r *recordingLedger) refundCount(taskID int64) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.refunds[taskID]
}

func newTestManager(t *testing.T, set StageSet) (*Manager, *queue.Store, *recordingNotifier, *recordingLedger) {
	t.Helper()

	cfg := config.Default()
	base := t.TempDir()
	cfg.Paths.StagingDir = filepath.Join(base, "staging")
	cfg.Paths.LibraryDir = filepath.Join(base, "library")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Workflow.QueuePollInterval = 1
	cfg.Workflow.ErrorRetryInterval = 1

	store, err := queue.OpenPath(filepath.Join(base, "tasks.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	notifier := &recordingNotifier{}
	credits := &recordingLedger{}
	m := NewManagerWithServices(cfg, store, logging.NewNop(), notifier, credits)
	m.ConfigureStages(set)
	return m, store, notifier, credits
}

func newReservedTask(t *testing.T, store *queue.Store) *queue.Task {
	t.Helper()
	task, err := store.NewTask(context.Background(), "tester", "A short story about a lighthouse", "watercolor", 10)
	if err != nil {
		t.Fatalf("new task: %v", err)
	}
	return task
}

func generationLane(t *testing.T, m *Manager) *laneState {
	t.Helper()
	lane := m.lanes[laneGeneration]
	if lane == nil {
		t.Fatal("generation lane not configured")
	}
	return lane
}

func passthroughStages() StageSet {
	return StageSet{
		ScriptGenerator:  &stubHandler{},
		ScenePlanner:     &stubHandler{},
		AssetGenerator:   &stubHandler{},
		VideoSynthesizer: &stubHandler{},
		Compositor:       &stubHandler{},
	}
}
