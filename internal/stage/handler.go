// Package stage defines the contract between the workflow manager and the
// pipeline stages it drives.
package stage

import (
	"context"

	"storyforge/internal/queue"
	"storyforge/internal/script"
	"storyforge/internal/services"
)

// Handler describes the contract the workflow manager needs from each stage.
type Handler interface {
	Prepare(context.Context, *queue.Task) error
	Execute(context.Context, *queue.Task) error
	HealthCheck(context.Context) Health
}

// ParseScript decodes the task's stored script JSON. On failure it returns a
// services.ErrValidation suitable for stage Execute methods.
func ParseScript(raw string) (*script.Script, error) {
	parsed, err := script.Parse(raw)
	if err != nil {
		return nil, services.Wrap(
			services.ErrValidation, "stage", "parse script",
			"Stored script missing or invalid; rerun script generation", err)
	}
	return parsed, nil
}

// Checkpoint inspects the task's pause and cancel flags and returns the
// matching sentinel error when a stop was requested. Stages call this at
// boundaries where aborting leaves no partial side effects.
func Checkpoint(ctx context.Context, store *queue.Store, task *queue.Task) error {
	if err := ctx.Err(); err != nil {
		return services.Wrap(services.ErrCancelled, "stage", "checkpoint", "context cancelled", err)
	}
	if store == nil || task == nil {
		return nil
	}
	current, err := store.GetByID(ctx, task.ID)
	if err != nil {
		return services.Wrap(services.ErrStore, "stage", "checkpoint", "reload task", err)
	}
	if current == nil {
		return nil
	}
	task.PauseRequested = current.PauseRequested
	task.CancelRequested = current.CancelRequested
	if current.CancelRequested {
		return services.Wrap(services.ErrCancelled, "stage", "checkpoint", queue.UserStopReason, nil)
	}
	if current.PauseRequested {
		return services.Wrap(services.ErrPaused, "stage", "checkpoint", "pause requested", nil)
	}
	return nil
}
