// Package compositing assembles rendered scene clips into the final video:
// duration normalization, transitions, music mixing, library placement, and
// the optional upload that produces a shareable link.
package compositing

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"storyforge/internal/config"
	"storyforge/internal/deps"
	"storyforge/internal/logging"
	"storyforge/internal/media/compose"
	"storyforge/internal/objstore"
	"storyforge/internal/planning"
	"storyforge/internal/queue"
	"storyforge/internal/script"
	"storyforge/internal/services"
	"storyforge/internal/stage"
	"storyforge/internal/staging"
)

// Compositor is the final pipeline stage handler.
type Compositor struct {
	cfg      *config.Config
	store    *queue.Store
	logger   *slog.Logger
	engine   *compose.Engine
	uploader objstore.Uploader
}

// NewCompositor constructs the stage handler with a real composition engine
// and the configured object store uploader.
func NewCompositor(cfg *config.Config, store *queue.Store, logger *slog.Logger) (*Compositor, error) {
	uploader, err := objstore.New(cfg, logger)
	if err != nil {
		return nil, err
	}
	engine := compose.NewEngine(compose.Options{
		FFmpegBinary:  cfg.FFmpegBinary(),
		FFprobeBinary: cfg.FFprobeBinary(),
		VideoWidth:    cfg.Media.VideoWidth,
		VideoHeight:   cfg.Media.VideoHeight,
		VideoFPS:      cfg.Media.VideoFPS,
	}, logger)
	return NewCompositorWithDependencies(cfg, store, logger, engine, uploader), nil
}

// NewCompositorWithDependencies allows injecting the engine and uploader
// (used in tests).
func NewCompositorWithDependencies(cfg *config.Config, store *queue.Store, logger *slog.Logger, engine *compose.Engine, uploader objstore.Uploader) *Compositor {
	return &Compositor{
		cfg:      cfg,
		store:    store,
		logger:   logging.NewComponentLogger(logger, "compositing"),
		engine:   engine,
		uploader: uploader,
	}
}

func (c *Compositor) Prepare(ctx context.Context, task *queue.Task) error {
	if strings.TrimSpace(task.PlanJSON) == "" {
		return services.Wrap(services.ErrValidation, "compositing", "validate inputs", "task has no production plan", nil)
	}
	task.InitProgress(stage.LabelCompositing, "Preparing final composition")
	return nil
}

func (c *Compositor) Execute(ctx context.Context, task *queue.Task) error {
	logger := logging.WithContext(ctx, c.logger)

	plan, err := planning.Decode(task.PlanJSON)
	if err != nil {
		return services.Wrap(services.ErrValidation, "compositing", "decode plan", "stored plan missing or invalid", err)
	}
	workspace, err := staging.NewWorkspace(c.cfg.Paths.StagingDir, task.ID)
	if err != nil {
		return services.Wrap(services.ErrConfiguration, "compositing", "create workspace", "staging directory unavailable", err)
	}
	stitchDir, err := workspace.EnsureStitchDir()
	if err != nil {
		return services.Wrap(services.ErrStore, "compositing", "create stitch dir", "prepare work directory", err)
	}

	if err := stage.Checkpoint(ctx, c.store, task); err != nil {
		return err
	}
	normalized, err := c.normalizeScenes(ctx, plan, workspace, stitchDir)
	if err != nil {
		return err
	}
	c.setProgress(ctx, task, "Scene durations normalized", 89)

	if err := stage.Checkpoint(ctx, c.store, task); err != nil {
		return err
	}
	stitched := filepath.Join(stitchDir, "stitched.mp4")
	transitions := planTransitions(plan)
	if err := c.engine.Stitch(ctx, normalized, transitions, c.cfg.Pipeline.TransitionDurationSeconds, stitchDir, stitched); err != nil {
		return err
	}
	c.setProgress(ctx, task, "Scenes stitched", 94)

	if err := stage.Checkpoint(ctx, c.store, task); err != nil {
		return err
	}
	mixed, err := c.mixMusic(ctx, plan, workspace, stitchDir, stitched)
	if err != nil {
		return err
	}
	c.setProgress(ctx, task, "Soundtrack mixed", 97)

	finalPath := c.libraryPath(plan, task.ID)
	if err := os.MkdirAll(filepath.Dir(finalPath), 0o755); err != nil {
		return services.Wrap(services.ErrStore, "compositing", "create library dir", "prepare library", err)
	}
	if err := c.engine.Finalize(ctx, mixed, finalPath); err != nil {
		return err
	}
	task.FinalFile = finalPath

	if c.uploader != nil && c.uploader.Enabled() {
		url, err := c.uploader.Upload(ctx, finalPath, task.ID)
		if err != nil {
			// The video is already safe in the library; a failed upload
			// costs only the shareable link.
			logger.Warn("upload failed, final video kept locally",
				logging.Error(err),
				logging.String(logging.FieldEventType, "upload_failed"),
			)
		} else {
			task.ResultURL = url
		}
	}

	if err := workspace.Remove(); err != nil {
		logger.Warn("staging cleanup failed",
			logging.Error(err),
			logging.String(logging.FieldEventType, "staging_cleanup_failed"),
		)
	}

	task.SetProgressComplete(stage.LabelCompleted, fmt.Sprintf("Video ready: %s", plan.Title))
	logger.Info("video composed",
		logging.String("final_file", filepath.Base(finalPath)),
		logging.Int("scenes", len(plan.Scenes)),
		logging.Bool("uploaded", task.ResultURL != ""),
		logging.String(logging.FieldEventType, "video_composed"),
	)
	return nil
}

// normalizeScenes retimes each clip toward its effective duration, which
// stretches past the scripted length when the narration runs longer. Clips
// already within tolerance pass through on their original path. Every clip is
// stream-checked first; a clip missing its audio track would poison the
// stitch graph downstream.
func (c *Compositor) normalizeScenes(ctx context.Context, plan *planning.Plan, workspace *staging.Workspace, stitchDir string) ([]string, error) {
	normalized := make([]string, 0, len(plan.Scenes))
	for _, scene := range plan.Scenes {
		clip := workspace.SceneVideoPath(scene.Index)
		if _, err := os.Stat(clip); err != nil {
			return nil, services.Wrap(services.ErrValidation, "compositing", "locate scene clip",
				fmt.Sprintf("scene %d clip missing; rerun video synthesis", scene.Index), err)
		}
		if err := c.engine.VerifyStreams(ctx, clip, scene.Index); err != nil {
			return nil, err
		}
		output := filepath.Join(stitchDir, fmt.Sprintf("normalized_%03d.mp4", scene.Index))
		result, err := c.engine.NormalizeDuration(ctx, clip, output, scene.EffectiveDurationSeconds(), scene.Index)
		if err != nil {
			return nil, err
		}
		normalized = append(normalized, result)
	}
	return normalized, nil
}

// mixMusic lays the generated music bed under the stitched video. Tasks
// without music cues pass the stitched video through unchanged.
func (c *Compositor) mixMusic(ctx context.Context, plan *planning.Plan, workspace *staging.Workspace, stitchDir, stitched string) (string, error) {
	clips := make([]string, 0, len(plan.Music))
	for _, cue := range plan.Music {
		clip := workspace.MusicClipPath(cue.SceneStart, cue.SceneEnd)
		if _, err := os.Stat(clip); err == nil {
			clips = append(clips, clip)
		}
	}
	if len(clips) == 0 {
		return stitched, nil
	}

	bed := filepath.Join(stitchDir, "musicbed.mp3")
	if err := c.engine.ConcatAudio(ctx, clips, filepath.Join(stitchDir, "musicbed.txt"), bed); err != nil {
		return "", err
	}
	mixed := filepath.Join(stitchDir, "mixed.mp4")
	if err := c.engine.MixAudio(ctx, stitched, bed, mixed, 1.0, 0.25); err != nil {
		return "", err
	}
	return mixed, nil
}

func (c *Compositor) setProgress(ctx context.Context, task *queue.Task, message string, percent float64) {
	task.SetProgress(stage.LabelCompositing, message, percent)
	if c.store != nil {
		_ = c.store.Update(ctx, task)
	}
}

// libraryPath places the final video under the library as
// <slug>-<task id>.mp4.
func (c *Compositor) libraryPath(plan *planning.Plan, taskID int64) string {
	return filepath.Join(c.cfg.Paths.LibraryDir, fmt.Sprintf("%s-%d.mp4", slugify(plan.Title), taskID))
}

func (c *Compositor) HealthCheck(ctx context.Context) stage.Health {
	statuses := deps.CheckBinaries(deps.Requirements(c.cfg))
	if missing := deps.MissingRequired(statuses); len(missing) > 0 {
		return stage.Unhealthy("compositor", fmt.Sprintf("missing binaries: %s", strings.Join(missing, ", ")))
	}
	return stage.Healthy("compositor")
}

func planTransitions(plan *planning.Plan) []script.TransitionKind {
	if len(plan.Scenes) < 2 {
		return nil
	}
	out := make([]script.TransitionKind, 0, len(plan.Scenes)-1)
	for _, scene := range plan.Scenes[:len(plan.Scenes)-1] {
		out = append(out, scene.TransitionOut)
	}
	return out
}

func slugify(title string) string {
	title = strings.ToLower(strings.TrimSpace(title))
	var b strings.Builder
	lastDash := true
	for _, r := range title {
		switch {
		case r >= 'a' && r <= 'z' || r >= '0' && r <= '9':
			b.WriteRune(r)
			lastDash = false
		case !lastDash:
			b.WriteByte('-')
			lastDash = true
		}
	}
	slug := strings.Trim(b.String(), "-")
	if slug == "" {
		return "storyforge"
	}
	if len(slug) > 48 {
		slug = strings.Trim(slug[:48], "-")
	}
	return slug
}

var _ stage.Handler = (*Compositor)(nil)
