package workflow

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"storyforge/internal/config"
	"storyforge/internal/ledger"
	"storyforge/internal/notifications"
	"storyforge/internal/progress"
	"storyforge/internal/queue"
)

// Manager coordinates queue processing using registered stage handlers.
type Manager struct {
	cfg          *config.Config
	store        *queue.Store
	logger       *slog.Logger
	pollInterval time.Duration
	notifier     notifications.Service
	credits      ledger.Service

	heartbeat *HeartbeatMonitor
	sink      *progress.Fanout
	tracker   *progress.Tracker

	lanes     map[laneKind]*laneState
	laneOrder []laneKind

	mu       sync.RWMutex
	running  bool
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	lastErr  error
	lastTask *queue.Task
}

// NewManager constructs a workflow manager with services derived from config.
func NewManager(cfg *config.Config, store *queue.Store, logger *slog.Logger) *Manager {
	return NewManagerWithServices(cfg, store, logger, notifications.NewService(cfg), ledger.NewService(cfg))
}

// NewManagerWithServices constructs a workflow manager against explicit
// notification and ledger services (used in tests).
func NewManagerWithServices(cfg *config.Config, store *queue.Store, logger *slog.Logger, notifier notifications.Service, credits ledger.Service) *Manager {
	tracker := progress.NewTracker()
	sink := progress.NewFanout(tracker, progress.NewLogSink(logger))
	return &Manager{
		cfg:          cfg,
		store:        store,
		logger:       logger,
		notifier:     notifier,
		credits:      credits,
		pollInterval: time.Duration(cfg.Workflow.QueuePollInterval) * time.Second,
		heartbeat: NewHeartbeatMonitor(
			store,
			logger,
			time.Duration(cfg.Workflow.HeartbeatInterval)*time.Second,
			time.Duration(cfg.Workflow.HeartbeatTimeout)*time.Second,
		),
		sink:    sink,
		tracker: tracker,
		lanes:   make(map[laneKind]*laneState),
	}
}

// AttachProgressSink registers an extra observer for task progress updates.
func (m *Manager) AttachProgressSink(sink progress.Sink) {
	m.sink.Attach(sink)
}

// Progress returns the latest observed snapshot for a task.
func (m *Manager) Progress(taskID int64) (progress.Snapshot, bool) {
	return m.tracker.Latest(taskID)
}
