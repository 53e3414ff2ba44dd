package queue

import (
	"database/sql"
	"errors"
	"time"
)

const taskColumns = "id, owner, prompt, style, status, script_json, plan_json, final_file, result_url, error_message, created_at, updated_at, progress_stage, progress_percent, progress_message, reserved_credits, refund_issued, pause_requested, cancel_requested, resume_status, last_heartbeat"

func scanTask(scanner interface{ Scan(dest ...any) error }) (*Task, error) {
	var (
		id               int64
		owner            sql.NullString
		prompt           sql.NullString
		style            sql.NullString
		statusStr        string
		scriptJSON       sql.NullString
		planJSON         sql.NullString
		finalFile        sql.NullString
		resultURL        sql.NullString
		errorMessage     sql.NullString
		createdRaw       sql.NullString
		updatedRaw       sql.NullString
		progressStage    sql.NullString
		progressPercent  sql.NullFloat64
		progressMessage  sql.NullString
		reservedCredits  sql.NullInt64
		refundIssued     sql.NullInt64
		pauseRequested   sql.NullInt64
		cancelRequested  sql.NullInt64
		resumeStatus     sql.NullString
		lastHeartbeatRaw sql.NullString
	)

	if err := scanner.Scan(
		&id,
		&owner,
		&prompt,
		&style,
		&statusStr,
		&scriptJSON,
		&planJSON,
		&finalFile,
		&resultURL,
		&errorMessage,
		&createdRaw,
		&updatedRaw,
		&progressStage,
		&progressPercent,
		&progressMessage,
		&reservedCredits,
		&refundIssued,
		&pauseRequested,
		&cancelRequested,
		&resumeStatus,
		&lastHeartbeatRaw,
	); err != nil {
		return nil, err
	}

	task := &Task{
		ID:              id,
		Owner:           owner.String,
		Prompt:          prompt.String,
		Style:           style.String,
		Status:          Status(statusStr),
		ScriptJSON:      scriptJSON.String,
		PlanJSON:        planJSON.String,
		FinalFile:       finalFile.String,
		ResultURL:       resultURL.String,
		ErrorMessage:    errorMessage.String,
		ProgressStage:   progressStage.String,
		ProgressPercent: progressPercent.Float64,
		ProgressMessage: progressMessage.String,
		ReservedCredits: int(reservedCredits.Int64),
		RefundIssued:    refundIssued.Valid && refundIssued.Int64 != 0,
		PauseRequested:  pauseRequested.Valid && pauseRequested.Int64 != 0,
		CancelRequested: cancelRequested.Valid && cancelRequested.Int64 != 0,
		ResumeStatus:    Status(resumeStatus.String),
	}

	if created, err := parseTimeString(createdRaw.String); err == nil {
		task.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		task.UpdatedAt = updated
	}
	if lastHeartbeatRaw.Valid {
		if heartbeat, err := parseTimeString(lastHeartbeatRaw.String); err == nil {
			task.LastHeartbeat = &heartbeat
		}
	}
	return task, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullableTime(value *time.Time) any {
	if value == nil {
		return nil
	}
	return value.UTC().Format(time.RFC3339Nano)
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	placeholders := make([]byte, 0, count*2)
	for i := 0; i < count; i++ {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
	}
	return string(placeholders)
}
