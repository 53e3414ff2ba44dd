package ipc

import (
	"time"

	"storyforge/internal/queue"
)

// TaskSummary is the queue task DTO exchanged over IPC.
type TaskSummary struct {
	ID              int64     `json:"id"`
	Owner           string    `json:"owner"`
	Prompt          string    `json:"prompt"`
	Style           string    `json:"style,omitempty"`
	Status          string    `json:"status"`
	ProgressStage   string    `json:"progress_stage,omitempty"`
	ProgressPercent float64   `json:"progress_percent"`
	ProgressMessage string    `json:"progress_message,omitempty"`
	ErrorMessage    string    `json:"error_message,omitempty"`
	FinalFile       string    `json:"final_file,omitempty"`
	ResultURL       string    `json:"result_url,omitempty"`
	ReservedCredits int       `json:"reserved_credits"`
	RefundIssued    bool      `json:"refund_issued"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Summarize converts a stored task into its IPC representation.
func Summarize(task *queue.Task) TaskSummary {
	if task == nil {
		return TaskSummary{}
	}
	return TaskSummary{
		ID:              task.ID,
		Owner:           task.Owner,
		Prompt:          task.Prompt,
		Style:           task.Style,
		Status:          string(task.Status),
		ProgressStage:   task.ProgressStage,
		ProgressPercent: task.ProgressPercent,
		ProgressMessage: task.ProgressMessage,
		ErrorMessage:    task.ErrorMessage,
		FinalFile:       task.FinalFile,
		ResultURL:       task.ResultURL,
		ReservedCredits: task.ReservedCredits,
		RefundIssued:    task.RefundIssued,
		CreatedAt:       task.CreatedAt,
		UpdatedAt:       task.UpdatedAt,
	}
}

// StageHealth describes readiness of a workflow stage.
type StageHealth struct {
	Name   string `json:"name"`
	Ready  bool   `json:"ready"`
	Detail string `json:"detail,omitempty"`
}

// DependencyStatus describes availability of an external binary.
type DependencyStatus struct {
	Name        string `json:"name"`
	Command     string `json:"command"`
	Description string `json:"description,omitempty"`
	Optional    bool   `json:"optional"`
	Available   bool   `json:"available"`
	Detail      string `json:"detail,omitempty"`
}

// StartRequest triggers daemon workflow startup.
type StartRequest struct{}

// StartResponse indicates whether the daemon was started.
type StartResponse struct {
	Started bool   `json:"started"`
	Message string `json:"message"`
}

// StopRequest stops daemon workflow.
type StopRequest struct{}

// StopResponse indicates stop result.
type StopResponse struct {
	Stopped bool `json:"stopped"`
}

// StatusRequest fetches daemon status.
type StatusRequest struct{}

// StatusResponse represents combined daemon and workflow status.
type StatusResponse struct {
	Running      bool               `json:"running"`
	PID          int                `json:"pid"`
	QueueStats   map[string]int     `json:"queue_stats"`
	LastError    string             `json:"last_error,omitempty"`
	LastTask     *TaskSummary       `json:"last_task,omitempty"`
	LockPath     string             `json:"lock_path"`
	QueueDBPath  string             `json:"queue_db_path"`
	StageHealth  []StageHealth      `json:"stage_health,omitempty"`
	Dependencies []DependencyStatus `json:"dependencies,omitempty"`
}

// SubmitRequest enqueues a new generation task.
type SubmitRequest struct {
	Owner  string `json:"owner,omitempty"`
	Prompt string `json:"prompt"`
	Style  string `json:"style,omitempty"`
}

// SubmitResponse returns the enqueued task.
type SubmitResponse struct {
	Task TaskSummary `json:"task"`
}

// QueueListRequest filters queue listing by status.
type QueueListRequest struct {
	Statuses []string `json:"statuses,omitempty"`
}

// QueueListResponse contains queue entries.
type QueueListResponse struct {
	Tasks []TaskSummary `json:"tasks"`
}

// QueueDescribeRequest fetches a single task by id.
type QueueDescribeRequest struct {
	ID int64 `json:"id"`
}

// QueueDescribeResponse contains a single task.
type QueueDescribeResponse struct {
	Task TaskSummary `json:"task"`
}

// TaskActionRequest targets one task for pause, resume, or cancel.
type TaskActionRequest struct {
	ID int64 `json:"id"`
}

// TaskActionResponse reports whether the action applied.
type TaskActionResponse struct {
	Applied bool `json:"applied"`
}

// QueueRemoveRequest removes specific tasks by id.
type QueueRemoveRequest struct {
	IDs []int64 `json:"ids"`
}

// QueueRemoveResponse reports the number of removed tasks.
type QueueRemoveResponse struct {
	Removed int64 `json:"removed"`
}

// QueueClearRequest removes all tasks.
type QueueClearRequest struct{}

// QueueClearResponse reports the number of removed tasks.
type QueueClearResponse struct {
	Removed int64 `json:"removed"`
}

// QueueClearCompletedRequest removes completed tasks.
type QueueClearCompletedRequest struct{}

// QueueClearCompletedResponse reports the number of removed tasks.
type QueueClearCompletedResponse struct {
	Removed int64 `json:"removed"`
}

// QueueClearFailedRequest removes failed tasks.
type QueueClearFailedRequest struct{}

// QueueClearFailedResponse reports the number of removed tasks.
type QueueClearFailedResponse struct {
	Removed int64 `json:"removed"`
}

// QueueResetRequest rolls in-flight tasks back to their stage start.
type QueueResetRequest struct{}

// QueueResetResponse reports the number of tasks reset.
type QueueResetResponse struct {
	Updated int64 `json:"updated"`
}

// QueueRetryRequest retries failed tasks. An empty list means all.
type QueueRetryRequest struct {
	IDs []int64 `json:"ids,omitempty"`
}

// QueueRetryResponse reports the number of retried tasks.
type QueueRetryResponse struct {
	Updated int64 `json:"updated"`
}

// QueueHealthRequest fetches aggregate diagnostics.
type QueueHealthRequest struct{}

// QueueHealthResponse reports queue health information.
type QueueHealthResponse struct {
	Total      int `json:"total"`
	Pending    int `json:"pending"`
	Processing int `json:"processing"`
	Paused     int `json:"paused"`
	Failed     int `json:"failed"`
	Completed  int `json:"completed"`
	Cancelled  int `json:"cancelled"`
}

// DatabaseHealthRequest fetches detailed database diagnostics.
type DatabaseHealthRequest struct{}

// DatabaseHealthResponse reports database health information.
type DatabaseHealthResponse struct {
	DBPath           string   `json:"db_path"`
	DatabaseExists   bool     `json:"database_exists"`
	DatabaseReadable bool     `json:"database_readable"`
	SchemaVersion    string   `json:"schema_version"`
	TableExists      bool     `json:"table_exists"`
	ColumnsPresent   []string `json:"columns_present,omitempty"`
	MissingColumns   []string `json:"missing_columns,omitempty"`
	IntegrityCheck   bool     `json:"integrity_check"`
	TotalTasks       int      `json:"total_tasks"`
	Error            string   `json:"error,omitempty"`
}

// TestNotificationRequest triggers a notification test.
type TestNotificationRequest struct{}

// TestNotificationResponse reports notification test outcome.
type TestNotificationResponse struct {
	Sent    bool   `json:"sent"`
	Message string `json:"message"`
}

// LogTailRequest fetches log lines based on offset and follow semantics.
type LogTailRequest struct {
	Offset     int64 `json:"offset"`
	Limit      int   `json:"limit"`
	Follow     bool  `json:"follow"`
	WaitMillis int   `json:"wait_millis"`
}

// LogTailResponse returns log lines and the next offset.
type LogTailResponse struct {
	Lines  []string `json:"lines"`
	Offset int64    `json:"offset"`
}
