// Package scripting turns a task's natural-language prompt into a structured
// script document via the configured language model provider.
package scripting

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"storyforge/internal/config"
	"storyforge/internal/logging"
	"storyforge/internal/providers"
	"storyforge/internal/queue"
	"storyforge/internal/retry"
	"storyforge/internal/script"
	"storyforge/internal/services"
	"storyforge/internal/stage"
	"storyforge/internal/staging"
)

// Generator is the script generation stage handler.
type Generator struct {
	cfg      *config.Config
	store    *queue.Store
	logger   *slog.Logger
	provider providers.ScriptProvider
	policy   retry.Policy
}

// NewGenerator constructs the stage handler with the configured provider.
func NewGenerator(cfg *config.Config, store *queue.Store, logger *slog.Logger) *Generator {
	return NewGeneratorWithDependencies(cfg, store, logger, providers.NewScripter(cfg.Providers.Script))
}

// NewGeneratorWithDependencies allows injecting the provider (used in tests).
func NewGeneratorWithDependencies(cfg *config.Config, store *queue.Store, logger *slog.Logger, provider providers.ScriptProvider) *Generator {
	attempts, minWait, maxWait, factor := cfg.RetryPolicyValues()
	return &Generator{
		cfg:      cfg,
		store:    store,
		logger:   logging.NewComponentLogger(logger, "scripting"),
		provider: provider,
		policy:   retry.Policy{MaxAttempts: attempts, MinWait: minWait, MaxWait: maxWait, Factor: factor},
	}
}

func (g *Generator) Prepare(ctx context.Context, task *queue.Task) error {
	if strings.TrimSpace(task.Prompt) == "" {
		return services.Wrap(services.ErrValidation, "scripting", "validate inputs", "task prompt is empty", nil)
	}
	task.InitProgress(stage.LabelScriptGeneration, "Preparing script generation")
	return nil
}

func (g *Generator) Execute(ctx context.Context, task *queue.Task) error {
	logger := logging.WithContext(ctx, g.logger)

	workspace, err := staging.NewWorkspace(g.cfg.Paths.StagingDir, task.ID)
	if err != nil {
		return services.Wrap(services.ErrConfiguration, "scripting", "create workspace", "staging directory unavailable", err)
	}

	var generated *script.Script
	err = g.policy.Execute(ctx, func(ctx context.Context) error {
		result, genErr := g.provider.GenerateScript(ctx, task.Prompt, task.Style)
		if genErr != nil {
			return genErr
		}
		generated = result
		return nil
	})
	if err != nil {
		return err
	}

	encoded, err := script.Encode(generated)
	if err != nil {
		return services.Wrap(services.ErrValidation, "scripting", "encode script", "script serialization failed", err)
	}
	if err := workspace.WriteArtifact(workspace.ScriptPath(), encoded); err != nil {
		return services.Wrap(services.ErrStore, "scripting", "persist script", "write script artifact", err)
	}

	task.ScriptJSON = string(encoded)
	task.SetProgress(stage.LabelScriptGeneration,
		fmt.Sprintf("Script ready: %d scenes, %.0fs", len(generated.Scenes), generated.TotalDuration()), 8)
	logger.Info("script generated",
		logging.String("title", generated.Title),
		logging.Int("scenes", len(generated.Scenes)),
		logging.Float64("total_duration", generated.TotalDuration()),
		logging.String(logging.FieldEventType, "script_generated"),
	)
	return nil
}

func (g *Generator) HealthCheck(ctx context.Context) stage.Health {
	if strings.TrimSpace(g.cfg.Providers.Script.APIKey) == "" {
		return stage.Unhealthy("script-generator", "script provider api key not configured")
	}
	if checker, ok := g.provider.(providers.HealthChecker); ok {
		if err := checker.HealthCheck(ctx); err != nil {
			return stage.Unhealthy("script-generator", err.Error())
		}
	}
	return stage.Healthy("script-generator")
}

var _ stage.Handler = (*Generator)(nil)
