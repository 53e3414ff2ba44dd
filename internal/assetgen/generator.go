// Package assetgen produces the raw media for a planned task: character
// reference images, scene stills, narration audio, and background music.
// Work fans out across bounded worker pools; a single failed unit aborts
// the whole stage so the task can roll back to the planned state.
package assetgen

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"storyforge/internal/config"
	"storyforge/internal/logging"
	"storyforge/internal/media/ffprobe"
	"storyforge/internal/planning"
	"storyforge/internal/providers"
	"storyforge/internal/queue"
	"storyforge/internal/retry"
	"storyforge/internal/services"
	"storyforge/internal/stage"
	"storyforge/internal/staging"
)

// Progress window for this stage. Asset generation dominates wall time, so
// it owns the widest slice of the task's percent range.
const (
	progressFloor   = 10
	progressCeiling = 70
)

// Generator is the asset generation stage handler.
type Generator struct {
	cfg    *config.Config
	store  *queue.Store
	logger *slog.Logger
	images providers.ImageProvider
	voice  providers.VoiceProvider
	music  providers.MusicProvider
	policy retry.Policy
}

// NewGenerator constructs the stage handler with the configured providers.
func NewGenerator(cfg *config.Config, store *queue.Store, logger *slog.Logger) *Generator {
	return NewGeneratorWithDependencies(cfg, store, logger,
		providers.NewImagen(cfg.Providers.Image),
		providers.NewSpeech(cfg.Providers.Voice),
		providers.NewMusicGen(cfg.Providers.Music),
	)
}

// NewGeneratorWithDependencies allows injecting providers (used in tests).
func NewGeneratorWithDependencies(
	cfg *config.Config,
	store *queue.Store,
	logger *slog.Logger,
	images providers.ImageProvider,
	voice providers.VoiceProvider,
	music providers.MusicProvider,
) *Generator {
	attempts, minWait, maxWait, factor := cfg.RetryPolicyValues()
	return &Generator{
		cfg:    cfg,
		store:  store,
		logger: logging.NewComponentLogger(logger, "assetgen"),
		images: images,
		voice:  voice,
		music:  music,
		policy: retry.Policy{MaxAttempts: attempts, MinWait: minWait, MaxWait: maxWait, Factor: factor},
	}
}

func (g *Generator) Prepare(ctx context.Context, task *queue.Task) error {
	if strings.TrimSpace(task.PlanJSON) == "" {
		return services.Wrap(services.ErrValidation, "assetgen", "validate inputs", "task has no production plan", nil)
	}
	task.InitProgress(stage.LabelAssetGeneration, "Preparing asset generation")
	return nil
}

func (g *Generator) Execute(ctx context.Context, task *queue.Task) error {
	logger := logging.WithContext(ctx, g.logger)

	plan, err := planning.Decode(task.PlanJSON)
	if err != nil {
		return services.Wrap(services.ErrValidation, "assetgen", "decode plan", "stored plan missing or invalid", err)
	}
	workspace, err := staging.NewWorkspace(g.cfg.Paths.StagingDir, task.ID)
	if err != nil {
		return services.Wrap(services.ErrConfiguration, "assetgen", "create workspace", "staging directory unavailable", err)
	}
	for _, scene := range plan.Scenes {
		if _, err := workspace.EnsureSceneDir(scene.Index); err != nil {
			return services.Wrap(services.ErrStore, "assetgen", "create scene dirs", "prepare scene directory", err)
		}
	}

	voiced := 0
	for _, scene := range plan.Scenes {
		if strings.TrimSpace(scene.NarrationText) != "" {
			voiced++
		}
	}
	tracker := newProgressTracker(g.store, task, len(plan.Characters)+len(plan.Scenes)+voiced+len(plan.Music))

	if err := stage.Checkpoint(ctx, g.store, task); err != nil {
		return err
	}
	if err := g.generateCharacterImages(ctx, plan, workspace, tracker); err != nil {
		return err
	}

	if err := g.generateSceneAssets(ctx, plan, workspace, tracker); err != nil {
		return err
	}

	if err := g.generateMusic(ctx, plan, workspace, tracker); err != nil {
		return err
	}

	if voiced > 0 {
		encoded, err := planning.Encode(plan)
		if err != nil {
			return services.Wrap(services.ErrStore, "assetgen", "persist plan", "encode narration durations", err)
		}
		task.PlanJSON = string(encoded)
		if g.store != nil {
			if err := g.store.Update(ctx, task); err != nil {
				return services.Wrap(services.ErrStore, "assetgen", "persist plan", "record narration durations", err)
			}
		}
	}

	task.SetProgress(stage.LabelAssetGeneration,
		fmt.Sprintf("Generated assets for %d scenes", len(plan.Scenes)), progressCeiling)
	logger.Info("assets generated",
		logging.Int("scenes", len(plan.Scenes)),
		logging.Int("characters", len(plan.Characters)),
		logging.Int("narration_clips", voiced),
		logging.Int("music_clips", len(plan.Music)),
		logging.String(logging.FieldEventType, "assets_generated"),
	)
	return nil
}

func (g *Generator) generateCharacterImages(ctx context.Context, plan *planning.Plan, workspace *staging.Workspace, tracker *progressTracker) error {
	if len(plan.Characters) == 0 {
		return nil
	}
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(g.workerLimit(g.cfg.Pipeline.SceneWorkers))
	for _, character := range plan.Characters {
		character := character
		group.Go(func() error {
			if err := tracker.checkpoint(groupCtx); err != nil {
				return err
			}
			data, err := g.renderImage(groupCtx, character.ImagePrompt, plan.Style)
			if err != nil {
				return services.Wrap(nil, "assetgen", "character image",
					fmt.Sprintf("character %q", character.ID), err)
			}
			if err := workspace.WriteArtifact(workspace.CharacterImagePath(character.ID), data); err != nil {
				return services.Wrap(services.ErrStore, "assetgen", "character image", "write artifact", err)
			}
			tracker.advance(ctx, fmt.Sprintf("Character image ready: %s", character.Name))
			return nil
		})
	}
	return group.Wait()
}

// generateSceneAssets renders every scene still and narration track in one
// fan-out. Images and voice calls run concurrently but each provider keeps
// its own concurrency bound, and every unit re-checks pause and cancel flags
// before it starts work.
func (g *Generator) generateSceneAssets(ctx context.Context, plan *planning.Plan, workspace *staging.Workspace, tracker *progressTracker) error {
	imageSlots := newSemaphore(g.workerLimit(g.cfg.Pipeline.SceneWorkers))
	voiceSlots := newSemaphore(g.workerLimit(g.cfg.Pipeline.VoiceWorkers))
	var planMu sync.Mutex

	group, groupCtx := errgroup.WithContext(ctx)
	for i := range plan.Scenes {
		scene := plan.Scenes[i]
		group.Go(func() error {
			if err := imageSlots.acquire(groupCtx); err != nil {
				return err
			}
			defer imageSlots.release()
			if err := tracker.checkpoint(groupCtx); err != nil {
				return err
			}
			data, err := g.renderImage(groupCtx, scene.ImagePrompt, plan.Style)
			if err != nil {
				return sceneWrap("scene image", scene.Index, err)
			}
			if err := workspace.WriteArtifact(workspace.SceneImagePath(scene.Index), data); err != nil {
				return services.Wrap(services.ErrStore, "assetgen", "scene image", "write artifact", err)
			}
			tracker.advance(ctx, fmt.Sprintf("Scene %d image ready", scene.Index))
			return nil
		})

		if strings.TrimSpace(scene.NarrationText) == "" {
			continue
		}
		sceneIdx := i
		group.Go(func() error {
			if err := voiceSlots.acquire(groupCtx); err != nil {
				return err
			}
			defer voiceSlots.release()
			if err := tracker.checkpoint(groupCtx); err != nil {
				return err
			}
			var data []byte
			var seconds float64
			err := g.policy.Execute(groupCtx, func(ctx context.Context) error {
				var synthErr error
				data, seconds, synthErr = g.voice.GenerateVoice(ctx, scene.NarrationText, g.cfg.Providers.Voice.Voice)
				return synthErr
			})
			if err != nil {
				return sceneWrap("narration", scene.Index, err)
			}
			audioPath := workspace.SceneAudioPath(scene.Index)
			if err := workspace.WriteArtifact(audioPath, data); err != nil {
				return services.Wrap(services.ErrStore, "assetgen", "narration", "write artifact", err)
			}
			if seconds <= 0 {
				seconds = g.measureAudio(groupCtx, audioPath)
			}
			planMu.Lock()
			plan.Scenes[sceneIdx].NarrationDurationSeconds = seconds
			planMu.Unlock()
			tracker.advance(ctx, fmt.Sprintf("Scene %d narration ready", scene.Index))
			return nil
		})
	}
	return group.Wait()
}

// measureAudio probes the narration track for its duration when the voice
// provider did not report one. Best effort; zero means unknown and the scene
// falls back to its scripted duration.
func (g *Generator) measureAudio(ctx context.Context, path string) float64 {
	result, err := ffprobe.Inspect(ctx, g.cfg.FFprobeBinary(), path)
	if err != nil {
		g.logger.Debug("narration duration unavailable",
			logging.String("path", path),
			logging.Error(err))
		return 0
	}
	seconds := result.DurationSeconds()
	if seconds <= 0 || math.IsNaN(seconds) {
		return 0
	}
	return seconds
}

func (g *Generator) generateMusic(ctx context.Context, plan *planning.Plan, workspace *staging.Workspace, tracker *progressTracker) error {
	if len(plan.Music) == 0 {
		return nil
	}
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(g.workerLimit(g.cfg.Pipeline.MusicWorkers))
	for _, clip := range plan.Music {
		clip := clip
		group.Go(func() error {
			if err := tracker.checkpoint(groupCtx); err != nil {
				return err
			}
			var data []byte
			err := g.policy.Execute(groupCtx, func(ctx context.Context) error {
				var composeErr error
				data, composeErr = g.music.Compose(ctx, clip.Prompt, clip.DurationSeconds)
				return composeErr
			})
			if err != nil {
				return services.Wrap(nil, "assetgen", "music",
					fmt.Sprintf("scenes %d-%d", clip.SceneStart, clip.SceneEnd), err)
			}
			if err := workspace.WriteArtifact(workspace.MusicClipPath(clip.SceneStart, clip.SceneEnd), data); err != nil {
				return services.Wrap(services.ErrStore, "assetgen", "music", "write artifact", err)
			}
			tracker.advance(ctx, fmt.Sprintf("Music ready for scenes %d-%d", clip.SceneStart, clip.SceneEnd))
			return nil
		})
	}
	return group.Wait()
}

func (g *Generator) renderImage(ctx context.Context, prompt, style string) ([]byte, error) {
	var data []byte
	err := g.policy.Execute(ctx, func(ctx context.Context) error {
		var genErr error
		data, genErr = g.images.GenerateImage(ctx, providers.ImageRequest{
			Prompt: prompt,
			Style:  style,
			Width:  g.cfg.Media.VideoWidth,
			Height: g.cfg.Media.VideoHeight,
		})
		return genErr
	})
	return data, err
}

func (g *Generator) workerLimit(configured int) int {
	if configured < 1 {
		return 1
	}
	return configured
}

func (g *Generator) HealthCheck(ctx context.Context) stage.Health {
	missing := make([]string, 0, 3)
	if strings.TrimSpace(g.cfg.Providers.Image.APIKey) == "" {
		missing = append(missing, "image")
	}
	if strings.TrimSpace(g.cfg.Providers.Voice.APIKey) == "" {
		missing = append(missing, "voice")
	}
	if strings.TrimSpace(g.cfg.Providers.Music.APIKey) == "" {
		missing = append(missing, "music")
	}
	if len(missing) > 0 {
		return stage.Unhealthy("asset-generator",
			fmt.Sprintf("provider api keys not configured: %s", strings.Join(missing, ", ")))
	}
	return stage.Healthy("asset-generator")
}

func sceneWrap(operation string, sceneIndex int, err error) error {
	return services.Wrap(nil, "assetgen", operation, fmt.Sprintf("scene %d", sceneIndex), err)
}

// semaphore bounds concurrent calls against one provider while the enclosing
// errgroup fans out across providers.
type semaphore chan struct{}

func newSemaphore(n int) semaphore {
	if n < 1 {
		n = 1
	}
	return make(semaphore, n)
}

func (s semaphore) acquire(ctx context.Context) error {
	select {
	case s <- struct{}{}:
		return nil
	case <-ctx.Done():
		return services.Wrap(services.ErrCancelled, "assetgen", "acquire worker", "context cancelled", ctx.Err())
	}
}

func (s semaphore) release() { <-s }

// progressTracker spreads the stage's percent window across completed work
// units and persists updates as they land. Store writes are best effort; a
// failed progress write never fails the stage.
type progressTracker struct {
	mu    sync.Mutex
	store *queue.Store
	task  *queue.Task
	total int
	done  int
}

func newProgressTracker(store *queue.Store, task *queue.Task, total int) *progressTracker {
	return &progressTracker{store: store, task: task, total: total}
}

// checkpoint re-reads the pause and cancel flags before a work unit starts.
// Serialized because Checkpoint refreshes fields on the shared task record.
func (p *progressTracker) checkpoint(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return stage.Checkpoint(ctx, p.store, p.task)
}

func (p *progressTracker) advance(ctx context.Context, message string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.done++
	percent := float64(progressCeiling)
	if p.total > 0 {
		span := float64(progressCeiling - progressFloor)
		percent = progressFloor + span*float64(p.done)/float64(p.total)
	}
	p.task.SetProgress(stage.LabelAssetGeneration, message, percent)
	if p.store != nil {
		// Refresh stop flags first so a cancel or pause requested while this
		// unit was running is not written back as cleared.
		if current, err := p.store.GetByID(ctx, p.task.ID); err == nil && current != nil {
			p.task.PauseRequested = current.PauseRequested
			p.task.CancelRequested = current.CancelRequested
		}
		_ = p.store.Update(ctx, p.task)
	}
}

var _ stage.Handler = (*Generator)(nil)
