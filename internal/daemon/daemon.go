// Package daemon coordinates the background pipeline services and enforces
// single-instance execution through a lock file.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"storyforge/internal/config"
	"storyforge/internal/deps"
	"storyforge/internal/ledger"
	"storyforge/internal/logging"
	"storyforge/internal/notifications"
	"storyforge/internal/queue"
	"storyforge/internal/services"
	"storyforge/internal/staging"
	"storyforge/internal/workflow"
)

// staleStagingAge is how long an abandoned staging directory survives before
// the startup sweep removes it.
const staleStagingAge = 7 * 24 * time.Hour

// Daemon owns the queue store, workflow manager, and the services shared by
// task submission.
type Daemon struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    *queue.Store
	workflow *workflow.Manager
	notifier notifications.Service
	credits  ledger.Service
	logPath  string

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool
	PID          int
	Workflow     workflow.StatusSummary
	QueueDBPath  string
	LockFilePath string
	Dependencies []deps.Status
}

// New constructs a daemon with the notification and ledger services derived
// from configuration.
func New(cfg *config.Config, store *queue.Store, logger *slog.Logger, wf *workflow.Manager) (*Daemon, error) {
	return NewWithServices(cfg, store, logger, wf, notifications.NewService(cfg), ledger.NewService(cfg))
}

// NewWithServices allows injecting the notifier and credit ledger (used in
// tests).
func NewWithServices(cfg *config.Config, store *queue.Store, logger *slog.Logger, wf *workflow.Manager, notifier notifications.Service, credits ledger.Service) (*Daemon, error) {
	if cfg == nil || store == nil || logger == nil || wf == nil {
		return nil, errors.New("daemon requires config, store, logger, and workflow manager")
	}
	lockPath := cfg.LockPath()
	return &Daemon{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		store:    store,
		workflow: wf,
		notifier: notifier,
		credits:  credits,
		logPath:  filepath.Join(cfg.Paths.LogDir, "storyforged.log"),
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}, nil
}

// Start acquires the daemon lock, sweeps stale staging state, and launches
// the workflow manager.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another storyforge daemon instance is already running")
	}

	d.ctx, d.cancel = context.WithCancel(ctx)
	d.sweepStaging(d.ctx)
	if err := d.workflow.Start(d.ctx); err != nil {
		_ = d.lock.Unlock()
		d.cancel()
		d.ctx = nil
		d.cancel = nil
		return fmt.Errorf("start workflow: %w", err)
	}

	d.running.Store(true)
	d.logger.Info("daemon started",
		logging.String("lock", d.lockPath),
		logging.String(logging.FieldEventType, "daemon_start"))
	return nil
}

// Stop stops background processing and releases the daemon lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.workflow.Stop()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.ctx = nil
	d.running.Store(false)
	d.logger.Info("daemon stopped",
		logging.String(logging.FieldEventType, "daemon_stop"))
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}

// Submit validates and enqueues a new generation task, reserving credits
// when the ledger is enabled.
func (d *Daemon) Submit(ctx context.Context, owner, prompt, style string) (*queue.Task, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return nil, services.Wrap(services.ErrValidation, "daemon", "submit", "prompt is required", nil)
	}
	owner = strings.TrimSpace(owner)
	if owner == "" {
		owner = "local"
	}

	task, err := d.store.NewTask(ctx, owner, prompt, strings.TrimSpace(style), 0)
	if err != nil {
		return nil, services.Wrap(services.ErrStore, "daemon", "submit", "enqueue task", err)
	}

	if d.credits != nil && d.credits.Enabled() {
		reserved, err := d.credits.Reserve(ctx, owner, task.ID)
		if err != nil {
			// Do not leave an unfunded task behind.
			if _, removeErr := d.store.Remove(ctx, task.ID); removeErr != nil {
				d.logger.Error("failed to remove unfunded task",
					logging.Int64(logging.FieldTaskID, task.ID),
					logging.Error(removeErr))
			}
			return nil, services.Wrap(nil, "daemon", "submit", "reserve credits", err)
		}
		task.ReservedCredits = int(reserved)
		if err := d.store.Update(ctx, task); err != nil {
			return nil, services.Wrap(services.ErrStore, "daemon", "submit", "record reservation", err)
		}
	}

	if d.notifier != nil {
		if err := d.notifier.NotifyTaskSubmitted(ctx, task.ID, task.Prompt); err != nil {
			d.logger.Debug("submission notification failed", logging.Error(err))
		}
	}
	d.logger.Info("task submitted",
		logging.Int64(logging.FieldTaskID, task.ID),
		logging.String("owner", owner),
		logging.Int("reserved_credits", task.ReservedCredits),
		logging.String(logging.FieldEventType, "task_submitted"))
	return task, nil
}

// ListQueue returns tasks filtered by optional statuses.
func (d *Daemon) ListQueue(ctx context.Context, statuses []queue.Status) ([]*queue.Task, error) {
	return d.store.List(ctx, statuses...)
}

// GetTask returns a single task by id.
func (d *Daemon) GetTask(ctx context.Context, id int64) (*queue.Task, error) {
	return d.store.GetByID(ctx, id)
}

// PauseTask flags a task to pause at the next stage boundary.
func (d *Daemon) PauseTask(ctx context.Context, id int64) (bool, error) {
	return d.store.RequestPause(ctx, id)
}

// ResumeTask returns a paused task to its recorded resume status.
func (d *Daemon) ResumeTask(ctx context.Context, id int64) (bool, error) {
	return d.store.Resume(ctx, id)
}

// CancelTask flags a task for cancellation. In-flight tasks are refunded by
// the workflow when it observes the flag; tasks cancelled immediately are
// refunded here.
func (d *Daemon) CancelTask(ctx context.Context, id int64) (bool, error) {
	ok, err := d.store.RequestCancel(ctx, id)
	if err != nil || !ok {
		return ok, err
	}
	task, err := d.store.GetByID(ctx, id)
	if err != nil || task == nil {
		return true, nil
	}
	if task.Status == queue.StatusCancelled {
		if cleanupErr := staging.RemoveWorkspace(d.cfg.Paths.StagingDir, task.ID); cleanupErr != nil {
			d.logger.Warn("staging cleanup failed",
				logging.Int64(logging.FieldTaskID, task.ID),
				logging.Error(cleanupErr))
		}
	}
	if task.Status == queue.StatusCancelled && task.ReservedCredits > 0 && !task.RefundIssued &&
		d.credits != nil && d.credits.Enabled() {
		if refundErr := d.credits.Refund(ctx, task.ID, int64(task.ReservedCredits)); refundErr != nil {
			d.logger.Error("refund failed for cancelled task",
				logging.Int64(logging.FieldTaskID, task.ID),
				logging.Error(refundErr),
				logging.String(logging.FieldErrorHint, "reconcile the ledger for this task manually"))
		} else {
			task.RefundIssued = true
			if updateErr := d.store.Update(ctx, task); updateErr != nil {
				d.logger.Warn("failed to record refund", logging.Error(updateErr))
			}
			d.logger.Info("credits refunded",
				logging.Int64(logging.FieldTaskID, task.ID),
				logging.Int("credits", task.ReservedCredits),
				logging.String(logging.FieldEventType, "credits_refunded"))
		}
	}
	return true, nil
}

// RemoveTask deletes a task record outright.
func (d *Daemon) RemoveTask(ctx context.Context, id int64) (bool, error) {
	return d.store.Remove(ctx, id)
}

// ClearQueue removes all tasks.
func (d *Daemon) ClearQueue(ctx context.Context) (int64, error) {
	return d.store.Clear(ctx)
}

// ClearCompleted removes only completed tasks.
func (d *Daemon) ClearCompleted(ctx context.Context) (int64, error) {
	return d.store.ClearCompleted(ctx)
}

// ClearFailed removes only failed tasks.
func (d *Daemon) ClearFailed(ctx context.Context) (int64, error) {
	return d.store.ClearFailed(ctx)
}

// ResetStuck rolls in-flight tasks back to the start of their stage.
func (d *Daemon) ResetStuck(ctx context.Context) (int64, error) {
	return d.store.ResetStuckProcessing(ctx)
}

// RetryFailed resets failed tasks (optionally a subset) for another run.
func (d *Daemon) RetryFailed(ctx context.Context, ids []int64) (int64, error) {
	return d.store.RetryFailed(ctx, ids...)
}

// QueueHealth returns aggregate queue diagnostics.
func (d *Daemon) QueueHealth(ctx context.Context) (queue.HealthSummary, error) {
	return d.store.Health(ctx)
}

// DatabaseHealth returns detailed database diagnostics.
func (d *Daemon) DatabaseHealth(ctx context.Context) (queue.DatabaseHealth, error) {
	return d.store.CheckHealth(ctx)
}

// TestNotification sends a test message using the current configuration.
func (d *Daemon) TestNotification(ctx context.Context) (bool, string, error) {
	if strings.TrimSpace(d.cfg.Notifications.NtfyTopic) == "" {
		return false, "ntfy topic not configured", nil
	}
	if err := notifications.NewService(d.cfg).TestNotification(ctx); err != nil {
		return false, "failed to send notification", err
	}
	return true, "test notification sent", nil
}

// LogPath returns the path to the daemon log file.
func (d *Daemon) LogPath() string {
	return d.logPath
}

// Status returns the current daemon status, including external binary
// availability.
func (d *Daemon) Status(ctx context.Context) Status {
	return Status{
		Running:      d.running.Load(),
		PID:          os.Getpid(),
		Workflow:     d.workflow.Status(ctx),
		QueueDBPath:  d.cfg.DatabasePath(),
		LockFilePath: d.lockPath,
		Dependencies: deps.CheckBinaries(deps.Requirements(d.cfg)),
	}
}

// sweepStaging removes staging directories for unknown tasks and anything
// older than the retention window.
func (d *Daemon) sweepStaging(ctx context.Context) {
	tasks, err := d.store.List(ctx)
	if err != nil {
		d.logger.Warn("staging sweep skipped, queue unavailable", logging.Error(err))
		return
	}
	active := make(map[int64]struct{}, len(tasks))
	for _, task := range tasks {
		if task != nil && !task.IsTerminal() {
			active[task.ID] = struct{}{}
		}
	}
	staging.CleanOrphaned(ctx, d.cfg.Paths.StagingDir, active, d.logger)
	staging.CleanStale(ctx, d.cfg.Paths.StagingDir, staleStagingAge, d.logger)
}
