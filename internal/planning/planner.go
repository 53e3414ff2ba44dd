package planning

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"storyforge/internal/config"
	"storyforge/internal/logging"
	"storyforge/internal/queue"
	"storyforge/internal/services"
	"storyforge/internal/stage"
)

// Planner is the scene breakdown stage handler. It is purely computational;
// no provider calls happen here.
type Planner struct {
	cfg    *config.Config
	store  *queue.Store
	logger *slog.Logger
}

func NewPlanner(cfg *config.Config, store *queue.Store, logger *slog.Logger) *Planner {
	return &Planner{
		cfg:    cfg,
		store:  store,
		logger: logging.NewComponentLogger(logger, "planning"),
	}
}

func (p *Planner) Prepare(ctx context.Context, task *queue.Task) error {
	if strings.TrimSpace(task.ScriptJSON) == "" {
		return services.Wrap(services.ErrValidation, "planning", "validate inputs", "task has no script", nil)
	}
	task.InitProgress(stage.LabelSceneBreakdown, "Preparing scene breakdown")
	return nil
}

func (p *Planner) Execute(ctx context.Context, task *queue.Task) error {
	logger := logging.WithContext(ctx, p.logger)

	parsed, err := stage.ParseScript(task.ScriptJSON)
	if err != nil {
		return err
	}
	plan, err := Build(parsed, task.Style)
	if err != nil {
		return services.Wrap(services.ErrValidation, "planning", "build plan", "script cannot be planned", err)
	}
	encoded, err := Encode(plan)
	if err != nil {
		return services.Wrap(services.ErrValidation, "planning", "encode plan", "plan serialization failed", err)
	}

	task.PlanJSON = string(encoded)
	task.SetProgress(stage.LabelSceneBreakdown,
		fmt.Sprintf("Planned %d scenes, %d characters, %d music cues", len(plan.Scenes), len(plan.Characters), len(plan.Music)), 10)
	logger.Info("plan built",
		logging.Int("scenes", len(plan.Scenes)),
		logging.Int("characters", len(plan.Characters)),
		logging.Int("music_cues", len(plan.Music)),
		logging.Float64("total_duration", plan.TotalDuration()),
		logging.String(logging.FieldEventType, "plan_built"),
	)
	return nil
}

func (p *Planner) HealthCheck(ctx context.Context) stage.Health {
	return stage.Healthy("scene-planner")
}

var _ stage.Handler = (*Planner)(nil)
