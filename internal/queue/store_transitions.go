package queue

import (
	"context"
	"fmt"
	"time"
)

func rollbackCaseSQL() (caseSQL string, caseArgs []any, inSQL string, inArgs []any) {
	caseSQL = "CASE status"
	for _, tr := range stageRollbackTransitions {
		caseSQL += " WHEN ? THEN ?"
		caseArgs = append(caseArgs, tr.from, tr.to)
		inArgs = append(inArgs, tr.from)
	}
	caseSQL += " ELSE status END"
	inSQL = makePlaceholders(len(stageRollbackTransitions))
	return caseSQL, caseArgs, inSQL, inArgs
}

// ResetStuckProcessing resets tasks in processing states back to the start of their current stage.
func (s *Store) ResetStuckProcessing(ctx context.Context) (int64, error) {
	caseSQL, caseArgs, inSQL, inArgs := rollbackCaseSQL()
	args := append([]any{}, caseArgs...)
	args = append(args, time.Now().UTC().Format(time.RFC3339Nano))
	args = append(args, inArgs...)

	res, err := s.execWithRetry(
		ctx,
		`UPDATE tasks
         SET status = `+caseSQL+`,
             progress_stage = 'Reset from stuck processing',
             progress_message = NULL, last_heartbeat = NULL, updated_at = ?
         WHERE status IN (`+inSQL+`)`,
		args...,
	)
	if err != nil {
		return 0, fmt.Errorf("reset stuck tasks: %w", err)
	}
	return res.RowsAffected()
}

// UpdateHeartbeat updates the last heartbeat timestamp for an in-flight task.
func (s *Store) UpdateHeartbeat(ctx context.Context, id int64) error {
	now := time.Now().UTC()
	if err := s.execWithoutResultRetry(
		ctx,
		`UPDATE tasks SET last_heartbeat = ?, updated_at = ? WHERE id = ?`,
		now.Format(time.RFC3339Nano),
		now.Format(time.RFC3339Nano),
		id,
	); err != nil {
		return fmt.Errorf("update heartbeat: %w", err)
	}
	return nil
}

// ReclaimStaleProcessing returns tasks stuck in processing back to the start of
// their current stage when heartbeats expire.
func (s *Store) ReclaimStaleProcessing(ctx context.Context, cutoff time.Time) (int64, error) {
	caseSQL, caseArgs, inSQL, inArgs := rollbackCaseSQL()
	args := append([]any{}, caseArgs...)
	args = append(args, time.Now().UTC().Format(time.RFC3339Nano))
	args = append(args, inArgs...)
	args = append(args, cutoff.UTC().Format(time.RFC3339Nano))

	res, err := s.execWithRetry(
		ctx,
		`UPDATE tasks
        SET status = `+caseSQL+`,
            progress_stage = 'Reclaimed from stale processing',
            progress_message = NULL, last_heartbeat = NULL, updated_at = ?
        WHERE status IN (`+inSQL+`) AND last_heartbeat IS NOT NULL AND last_heartbeat < ?`,
		args...,
	)
	if err != nil {
		return 0, fmt.Errorf("reclaim stale tasks: %w", err)
	}
	return res.RowsAffected()
}

// RetryFailed moves failed tasks back to pending for reprocessing.
func (s *Store) RetryFailed(ctx context.Context, ids ...int64) (int64, error) {
	if len(ids) == 0 {
		res, err := s.execWithRetry(
			ctx,
			`UPDATE tasks
            SET status = ?, progress_stage = 'Retry requested', progress_percent = 0,
                progress_message = NULL, error_message = NULL, refund_issued = 0, updated_at = ?
            WHERE status = ?`,
			StatusPending,
			time.Now().UTC().Format(time.RFC3339Nano),
			StatusFailed,
		)
		if err != nil {
			return 0, fmt.Errorf("retry failed tasks: %w", err)
		}
		return res.RowsAffected()
	}

	placeholders := makePlaceholders(len(ids))
	args := make([]any, 0, len(ids)+2)
	args = append(args, StatusPending, time.Now().UTC().Format(time.RFC3339Nano))
	for _, id := range ids {
		args = append(args, id)
	}
	query := `UPDATE tasks
        SET status = ?, progress_stage = 'Retry requested', progress_percent = 0,
            progress_message = NULL, error_message = NULL, refund_issued = 0, updated_at = ?
        WHERE id IN (` + placeholders + `) AND status = '` + string(StatusFailed) + `'`
	res, err := s.execWithRetry(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("retry selected tasks: %w", err)
	}
	return res.RowsAffected()
}

// RequestPause flags a running or queued task so the workflow parks it at the
// next checkpoint. Pending tasks pause immediately.
func (s *Store) RequestPause(ctx context.Context, id int64) (bool, error) {
	task, err := s.GetByID(ctx, id)
	if err != nil {
		return false, err
	}
	if task == nil || task.IsTerminal() || task.Status == StatusPaused {
		return false, nil
	}
	if task.Status == StatusPending {
		task.SetPaused(StatusPending)
		if err := s.Update(ctx, task); err != nil {
			return false, err
		}
		return true, nil
	}
	if err := s.execWithoutResultRetry(
		ctx,
		`UPDATE tasks SET pause_requested = 1, updated_at = ? WHERE id = ?`,
		time.Now().UTC().Format(time.RFC3339Nano),
		id,
	); err != nil {
		return false, fmt.Errorf("request pause: %w", err)
	}
	return true, nil
}

// Resume moves a paused task back to the status it was parked from.
func (s *Store) Resume(ctx context.Context, id int64) (bool, error) {
	task, err := s.GetByID(ctx, id)
	if err != nil {
		return false, err
	}
	if task == nil || task.Status != StatusPaused {
		return false, nil
	}
	resume := task.ResumeStatus
	if resume == "" {
		resume = StatusPending
	}
	task.Status = resume
	task.ResumeStatus = ""
	task.PauseRequested = false
	task.ProgressMessage = "Resumed"
	if err := s.Update(ctx, task); err != nil {
		return false, err
	}
	return true, nil
}

// RequestCancel flags a task for cancellation. Tasks not currently processing
// are cancelled immediately; in-flight tasks stop at the next checkpoint.
func (s *Store) RequestCancel(ctx context.Context, id int64) (bool, error) {
	task, err := s.GetByID(ctx, id)
	if err != nil {
		return false, err
	}
	if task == nil || task.IsTerminal() {
		return false, nil
	}
	if !task.IsProcessing() {
		task.SetCancelled(UserStopReason)
		if err := s.Update(ctx, task); err != nil {
			return false, err
		}
		return true, nil
	}
	if err := s.execWithoutResultRetry(
		ctx,
		`UPDATE tasks SET cancel_requested = 1, updated_at = ? WHERE id = ?`,
		time.Now().UTC().Format(time.RFC3339Nano),
		id,
	); err != nil {
		return false, fmt.Errorf("request cancel: %w", err)
	}
	return true, nil
}
