// Package synthesis renders each planned scene into a video clip. Scenes are
// animated through the motion provider; when a render fails and the fallback
// is enabled, the scene still is animated locally with a slow push-in so one
// flaky render does not sink the whole task.
package synthesis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"storyforge/internal/config"
	"storyforge/internal/logging"
	"storyforge/internal/media/compose"
	"storyforge/internal/planning"
	"storyforge/internal/providers"
	"storyforge/internal/queue"
	"storyforge/internal/retry"
	"storyforge/internal/services"
	"storyforge/internal/stage"
	"storyforge/internal/staging"
)

const (
	progressFloor   = 70
	progressCeiling = 85
)

// defaultMotionPrompt is used when a scene declares no camera direction.
const defaultMotionPrompt = "slow cinematic camera drift"

// Synthesizer is the video synthesis stage handler.
type Synthesizer struct {
	cfg    *config.Config
	store  *queue.Store
	logger *slog.Logger
	motion providers.MotionProvider
	engine *compose.Engine
	policy retry.Policy
}

// NewSynthesizer constructs the stage handler with the configured motion
// provider and a local composition engine for fallbacks.
func NewSynthesizer(cfg *config.Config, store *queue.Store, logger *slog.Logger) *Synthesizer {
	engine := compose.NewEngine(compose.Options{
		FFmpegBinary:  cfg.FFmpegBinary(),
		FFprobeBinary: cfg.FFprobeBinary(),
		VideoWidth:    cfg.Media.VideoWidth,
		VideoHeight:   cfg.Media.VideoHeight,
		VideoFPS:      cfg.Media.VideoFPS,
	}, logger)
	return NewSynthesizerWithDependencies(cfg, store, logger, providers.NewMotion(cfg.Providers.Motion), engine)
}

// NewSynthesizerWithDependencies allows injecting the provider and engine
// (used in tests).
func NewSynthesizerWithDependencies(cfg *config.Config, store *queue.Store, logger *slog.Logger, motion providers.MotionProvider, engine *compose.Engine) *Synthesizer {
	attempts, minWait, maxWait, factor := cfg.RetryPolicyValues()
	return &Synthesizer{
		cfg:    cfg,
		store:  store,
		logger: logging.NewComponentLogger(logger, "synthesis"),
		motion: motion,
		engine: engine,
		policy: retry.Policy{MaxAttempts: attempts, MinWait: minWait, MaxWait: maxWait, Factor: factor},
	}
}

func (s *Synthesizer) Prepare(ctx context.Context, task *queue.Task) error {
	if strings.TrimSpace(task.PlanJSON) == "" {
		return services.Wrap(services.ErrValidation, "synthesis", "validate inputs", "task has no production plan", nil)
	}
	task.InitProgress(stage.LabelVideoSynthesis, "Preparing video synthesis")
	return nil
}

func (s *Synthesizer) Execute(ctx context.Context, task *queue.Task) error {
	logger := logging.WithContext(ctx, s.logger)

	plan, err := planning.Decode(task.PlanJSON)
	if err != nil {
		return services.Wrap(services.ErrValidation, "synthesis", "decode plan", "stored plan missing or invalid", err)
	}
	workspace, err := staging.NewWorkspace(s.cfg.Paths.StagingDir, task.ID)
	if err != nil {
		return services.Wrap(services.ErrConfiguration, "synthesis", "create workspace", "staging directory unavailable", err)
	}
	if err := stage.Checkpoint(ctx, s.store, task); err != nil {
		return err
	}

	var (
		mu        sync.Mutex
		done      int
		fallbacks int
	)
	advance := func(ctx context.Context, index int) {
		mu.Lock()
		defer mu.Unlock()
		done++
		span := float64(progressCeiling - progressFloor)
		percent := progressFloor + span*float64(done)/float64(len(plan.Scenes))
		task.SetProgress(stage.LabelVideoSynthesis, fmt.Sprintf("Scene %d rendered", index), percent)
		if s.store != nil {
			// Refresh stop flags first so a cancel or pause requested while
			// this scene was rendering is not written back as cleared.
			if current, err := s.store.GetByID(ctx, task.ID); err == nil && current != nil {
				task.PauseRequested = current.PauseRequested
				task.CancelRequested = current.CancelRequested
			}
			_ = s.store.Update(ctx, task)
		}
	}
	// Checkpoint refreshes fields on the shared task record, so concurrent
	// units take the same lock as progress updates.
	checkpoint := func(ctx context.Context) error {
		mu.Lock()
		defer mu.Unlock()
		return stage.Checkpoint(ctx, s.store, task)
	}

	workers := s.cfg.Pipeline.MotionWorkers
	if workers < 1 {
		workers = 1
	}
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(workers)
	for _, scene := range plan.Scenes {
		scene := scene
		group.Go(func() error {
			if err := checkpoint(groupCtx); err != nil {
				return err
			}
			usedFallback, err := s.renderScene(groupCtx, workspace, scene)
			if err != nil {
				return err
			}
			if usedFallback {
				mu.Lock()
				fallbacks++
				mu.Unlock()
			}
			advance(ctx, scene.Index)
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return err
	}

	task.SetProgress(stage.LabelVideoSynthesis,
		fmt.Sprintf("Rendered %d scene clips", len(plan.Scenes)), progressCeiling)
	logger.Info("scenes rendered",
		logging.Int("scenes", len(plan.Scenes)),
		logging.Int("fallbacks", fallbacks),
		logging.String(logging.FieldEventType, "scenes_rendered"),
	)
	return nil
}

// renderScene produces the clip for one scene, reporting whether the still
// fallback was used.
func (s *Synthesizer) renderScene(ctx context.Context, workspace *staging.Workspace, scene planning.ScenePlan) (bool, error) {
	image := workspace.SceneImagePath(scene.Index)
	if _, err := os.Stat(image); err != nil {
		return false, services.Wrap(services.ErrValidation, "synthesis", "locate scene image",
			fmt.Sprintf("scene %d image missing; rerun asset generation", scene.Index), err)
	}
	audio := workspace.SceneAudioPath(scene.Index)
	if _, err := os.Stat(audio); err != nil {
		audio = ""
	}

	prompt := strings.TrimSpace(scene.MotionPrompt)
	if prompt == "" {
		prompt = defaultMotionPrompt
	}
	duration := scene.EffectiveDurationSeconds()

	var clip []byte
	animateErr := s.policy.Execute(ctx, func(ctx context.Context) error {
		var err error
		clip, err = s.motion.Animate(ctx, providers.MotionRequest{
			ImagePath:       image,
			MotionPrompt:    prompt,
			DurationSeconds: duration,
		})
		return err
	})
	if animateErr == nil {
		raw := filepath.Join(workspace.SceneDir(scene.Index), "motion.mp4")
		if err := workspace.WriteArtifact(raw, clip); err != nil {
			return false, services.Wrap(services.ErrStore, "synthesis", "write motion clip",
				fmt.Sprintf("scene %d", scene.Index), err)
		}
		if err := s.engine.AttachAudio(ctx, raw, audio, workspace.SceneVideoPath(scene.Index), scene.Index); err != nil {
			return false, err
		}
		return false, nil
	}

	if !s.fallbackAllowed(ctx, animateErr) {
		return false, services.Wrap(nil, "synthesis", "animate scene",
			fmt.Sprintf("scene %d", scene.Index), animateErr)
	}

	logging.WithContext(ctx, s.logger).Warn("motion render failed, animating still instead",
		logging.Int(logging.FieldSceneIndex, scene.Index),
		logging.Error(animateErr),
		logging.String(logging.FieldEventType, "motion_fallback"),
	)
	if err := s.engine.StillToVideo(ctx, image, audio, workspace.SceneVideoPath(scene.Index), duration, scene.Index); err != nil {
		return false, err
	}
	return true, nil
}

// fallbackAllowed reports whether a failed motion render may degrade to the
// still animation. Stop requests and shutdowns always propagate.
func (s *Synthesizer) fallbackAllowed(ctx context.Context, err error) bool {
	if !s.cfg.Pipeline.MotionFallback {
		return false
	}
	if ctx.Err() != nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	switch services.Classify(err) {
	case services.KindCancelled, services.KindPaused:
		return false
	}
	return true
}

func (s *Synthesizer) HealthCheck(ctx context.Context) stage.Health {
	if strings.TrimSpace(s.cfg.Providers.Motion.APIKey) == "" {
		if s.cfg.Pipeline.MotionFallback {
			return stage.Healthy("video-synthesizer")
		}
		return stage.Unhealthy("video-synthesizer", "motion provider api key not configured and fallback disabled")
	}
	return stage.Healthy("video-synthesizer")
}

var _ stage.Handler = (*Synthesizer)(nil)
