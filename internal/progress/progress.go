// Package progress fans task progress updates out to observers. Publishing is
// fire-and-forget: a slow or failing sink never blocks pipeline work, and the
// tracker keeps the latest snapshot per task for status queries.
package progress

import (
	"log/slog"
	"sync"
	"time"

	"storyforge/internal/logging"
	"storyforge/internal/queue"
)

// Snapshot is one point-in-time view of a task's progress.
type Snapshot struct {
	TaskID    int64
	Status    queue.Status
	Stage     string
	Percent   float64
	Message   string
	UpdatedAt time.Time
}

// FromTask captures a snapshot of the task's current progress fields.
func FromTask(task *queue.Task) Snapshot {
	if task == nil {
		return Snapshot{}
	}
	return Snapshot{
		TaskID:    task.ID,
		Status:    task.Status,
		Stage:     task.ProgressStage,
		Percent:   task.ProgressPercent,
		Message:   task.ProgressMessage,
		UpdatedAt: time.Now().UTC(),
	}
}

// Sink receives progress snapshots.
type Sink interface {
	Publish(snapshot Snapshot)
}

// Fanout delivers each snapshot to every registered sink on its own goroutine.
type Fanout struct {
	mu    sync.RWMutex
	sinks []Sink
}

// NewFanout builds a fanout over the given sinks.
func NewFanout(sinks ...Sink) *Fanout {
	f := &Fanout{}
	for _, s := range sinks {
		if s != nil {
			f.sinks = append(f.sinks, s)
		}
	}
	return f
}

// Attach registers an additional sink.
func (f *Fanout) Attach(sink Sink) {
	if sink == nil {
		return
	}
	f.mu.Lock()
	f.sinks = append(f.sinks, sink)
	f.mu.Unlock()
}

// Publish implements Sink. Delivery order across sinks is not defined.
func (f *Fanout) Publish(snapshot Snapshot) {
	f.mu.RLock()
	sinks := make([]Sink, len(f.sinks))
	copy(sinks, f.sinks)
	f.mu.RUnlock()

	for _, s := range sinks {
		go func(sink Sink) {
			defer func() { _ = recover() }()
			sink.Publish(snapshot)
		}(s)
	}
}

// Tracker retains the latest snapshot per task.
type Tracker struct {
	mu     sync.RWMutex
	latest map[int64]Snapshot
}

// NewTracker builds an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{latest: make(map[int64]Snapshot)}
}

// Publish implements Sink. Stale snapshots never replace newer ones.
func (t *Tracker) Publish(snapshot Snapshot) {
	if snapshot.TaskID == 0 {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if current, ok := t.latest[snapshot.TaskID]; ok && current.UpdatedAt.After(snapshot.UpdatedAt) {
		return
	}
	t.latest[snapshot.TaskID] = snapshot
}

// Latest returns the most recent snapshot for a task, if any.
func (t *Tracker) Latest(taskID int64) (Snapshot, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	snapshot, ok := t.latest[taskID]
	return snapshot, ok
}

// Forget drops tracking state for a task that left the queue.
func (t *Tracker) Forget(taskID int64) {
	t.mu.Lock()
	delete(t.latest, taskID)
	t.mu.Unlock()
}

// LogSink writes progress snapshots to the structured log.
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink builds a sink that logs each snapshot.
func NewLogSink(logger *slog.Logger) *LogSink {
	return &LogSink{logger: logging.NewComponentLogger(logger, "progress")}
}

// Publish implements Sink.
func (s *LogSink) Publish(snapshot Snapshot) {
	if s == nil || s.logger == nil {
		return
	}
	s.logger.Info("task progress",
		logging.Int64(logging.FieldTaskID, snapshot.TaskID),
		logging.String("status", string(snapshot.Status)),
		logging.String(logging.FieldStage, snapshot.Stage),
		logging.Float64("percent", snapshot.Percent),
		logging.String("message", snapshot.Message),
		logging.String(logging.FieldEventType, "task_progress"),
	)
}

var (
	_ Sink = (*Fanout)(nil)
	_ Sink = (*Tracker)(nil)
	_ Sink = (*LogSink)(nil)
)
