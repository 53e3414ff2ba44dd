package queue

import (
	"strings"
	"time"
)

// Status represents the lifecycle of a generation task.
type Status string

const (
	StatusPending      Status = "pending"
	StatusScripting    Status = "scripting"
	StatusScripted     Status = "scripted"
	StatusPlanning     Status = "planning"
	StatusPlanned      Status = "planned"
	StatusGenerating   Status = "generating"
	StatusGenerated    Status = "generated"
	StatusSynthesizing Status = "synthesizing"
	StatusSynthesized  Status = "synthesized"
	StatusCompositing  Status = "compositing"
	StatusCompleted    Status = "completed"
	StatusPaused       Status = "paused"
	StatusFailed       Status = "failed"
	StatusCancelled    Status = "cancelled"
)

// UserStopReason is the message set when a user explicitly cancels a task.
const UserStopReason = "Cancelled by user"

// DaemonStopReason is the error message set when tasks are interrupted by daemon shutdown.
const DaemonStopReason = "Daemon stopped"

var allStatuses = []Status{
	StatusPending,
	StatusScripting,
	StatusScripted,
	StatusPlanning,
	StatusPlanned,
	StatusGenerating,
	StatusGenerated,
	StatusSynthesizing,
	StatusSynthesized,
	StatusCompositing,
	StatusCompleted,
	StatusPaused,
	StatusFailed,
	StatusCancelled,
}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

var processingStatuses = map[Status]struct{}{
	StatusScripting:    {},
	StatusPlanning:     {},
	StatusGenerating:   {},
	StatusSynthesizing: {},
	StatusCompositing:  {},
}

var terminalStatuses = map[Status]struct{}{
	StatusCompleted: {},
	StatusFailed:    {},
	StatusCancelled: {},
}

type statusTransition struct {
	from Status
	to   Status
}

// stageRollbackTransitions return in-flight tasks to the start of their
// current stage after crashes or stale heartbeats.
var stageRollbackTransitions = []statusTransition{
	{from: StatusScripting, to: StatusPending},
	{from: StatusPlanning, to: StatusScripted},
	{from: StatusGenerating, to: StatusPlanned},
	{from: StatusSynthesizing, to: StatusGenerated},
	{from: StatusCompositing, to: StatusSynthesized},
}

// DatabaseHealth captures diagnostic information about the task database.
type DatabaseHealth struct {
	DBPath           string
	DatabaseExists   bool
	DatabaseReadable bool
	SchemaVersion    string
	TableExists      bool
	ColumnsPresent   []string
	MissingColumns   []string
	IntegrityCheck   bool
	TotalTasks       int
	Error            string
}

// HealthSummary describes aggregated task counts per key lifecycle states.
type HealthSummary struct {
	Total      int
	Pending    int
	Processing int
	Paused     int
	Failed     int
	Completed  int
	Cancelled  int
}

// Task represents a video generation task persisted in SQLite.
type Task struct {
	ID              int64
	Owner           string
	Prompt          string
	Style           string
	Status          Status
	ScriptJSON      string
	PlanJSON        string
	FinalFile       string
	ResultURL       string
	ErrorMessage    string
	CreatedAt       time.Time
	UpdatedAt       time.Time
	ProgressStage   string
	ProgressPercent float64
	ProgressMessage string
	ReservedCredits int
	RefundIssued    bool
	PauseRequested  bool
	CancelRequested bool
	ResumeStatus    Status
	LastHeartbeat   *time.Time
}

// AllStatuses returns the ordered list of known statuses.
func AllStatuses() []Status {
	cp := make([]Status, len(allStatuses))
	copy(cp, allStatuses)
	return cp
}

// ParseStatus converts a string into a known Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := statusSet[normalized]
	return normalized, ok
}

// IsProcessing returns true when the status reflects an in-flight operation.
func (t Task) IsProcessing() bool {
	return IsProcessingStatus(t.Status)
}

// IsProcessingStatus reports whether a status reflects an in-flight operation.
func IsProcessingStatus(status Status) bool {
	_, ok := processingStatuses[status]
	return ok
}

// IsTerminal reports whether the task has reached an immutable final state.
func (t Task) IsTerminal() bool {
	return IsTerminalStatus(t.Status)
}

// IsTerminalStatus reports whether a status is immutable once persisted.
func IsTerminalStatus(status Status) bool {
	_, ok := terminalStatuses[status]
	return ok
}

// IsUserStopReason reports whether an error message represents a user-initiated cancellation.
func IsUserStopReason(reason string) bool {
	return strings.EqualFold(strings.TrimSpace(reason), UserStopReason)
}

// InitProgress resets progress fields for a new stage.
// If ProgressStage is currently empty, it is set to the provided stage value;
// otherwise the existing stage is preserved (to support resume scenarios).
func (t *Task) InitProgress(stage, message string) {
	if t.ProgressStage == "" {
		t.ProgressStage = stage
	}
	t.ProgressMessage = message
	t.ErrorMessage = ""
}

// SetProgress updates all three progress fields atomically. While a task is
// processing, percent never moves backwards; stale lower values are clamped
// to the current position.
func (t *Task) SetProgress(stage, message string, percent float64) {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	if t.IsProcessing() && percent < t.ProgressPercent {
		percent = t.ProgressPercent
	}
	t.ProgressStage = stage
	t.ProgressMessage = message
	t.ProgressPercent = percent
}

// SetProgressComplete sets progress to 100% with the given stage and message.
func (t *Task) SetProgressComplete(stage, message string) {
	t.ProgressStage = stage
	t.ProgressMessage = message
	t.ProgressPercent = 100
}

// SetFailed marks the task as failed with the given error message.
// Clears heartbeat and sets progress fields appropriately.
func (t *Task) SetFailed(message string) {
	t.Status = StatusFailed
	t.ErrorMessage = message
	t.ProgressMessage = message
	t.LastHeartbeat = nil
	t.ProgressStage = "Failed"
}

// SetCancelled marks the task as cancelled.
func (t *Task) SetCancelled(message string) {
	t.Status = StatusCancelled
	t.ErrorMessage = message
	t.ProgressMessage = message
	t.LastHeartbeat = nil
	t.ProgressStage = "Cancelled"
	t.CancelRequested = false
	t.PauseRequested = false
}

// SetPaused parks the task, recording the status to resume from.
func (t *Task) SetPaused(resume Status) {
	t.ResumeStatus = resume
	t.Status = StatusPaused
	t.LastHeartbeat = nil
	t.PauseRequested = false
	t.ProgressMessage = "Paused"
}

// ProcessingLane partitions workflow into generation work and rendering work.
type ProcessingLane string

const (
	LaneGeneration ProcessingLane = "generation"
	LaneRender     ProcessingLane = "render"
)

// LaneForTask maps a task to its processing lane for observability purposes.
func LaneForTask(task *Task) ProcessingLane {
	if task == nil {
		return LaneGeneration
	}
	switch task.Status {
	case StatusSynthesized, StatusCompositing, StatusCompleted:
		return LaneRender
	default:
		return LaneGeneration
	}
}
