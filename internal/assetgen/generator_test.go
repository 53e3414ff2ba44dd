package assetgen

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"storyforge/internal/config"
	"storyforge/internal/logging"
	"storyforge/internal/planning"
	"storyforge/internal/providers"
	"storyforge/internal/queue"
	"storyforge/internal/script"
	"storyforge/internal/services"
	"storyforge/internal/stage"
	"storyforge/internal/staging"
)

type fakeImages struct {
	mu       sync.Mutex
	inFlight int32
	maxSeen  int32
	err      error
	prompts  []string
}

func (f *fakeImages) GenerateImage(_ context.Context, req providers.ImageRequest) ([]byte, error) {
	current := atomic.AddInt32(&f.inFlight, 1)
	defer atomic.AddInt32(&f.inFlight, -1)
	for {
		seen := atomic.LoadInt32(&f.maxSeen)
		if current <= seen || atomic.CompareAndSwapInt32(&f.maxSeen, seen, current) {
			break
		}
	}
	time.Sleep(5 * time.Millisecond)
	if f.err != nil {
		return nil, f.err
	}
	f.mu.Lock()
	f.prompts = append(f.prompts, req.Prompt)
	f.mu.Unlock()
	return []byte("png:" + req.Prompt), nil
}

type fakeVoice struct {
	mu      sync.Mutex
	err     error
	seconds float64
	voices  []string
}

func (f *fakeVoice) GenerateVoice(_ context.Context, text, voiceRef string) ([]byte, float64, error) {
	if f.err != nil {
		return nil, 0, f.err
	}
	f.mu.Lock()
	f.voices = append(f.voices, voiceRef)
	f.mu.Unlock()
	return []byte("mp3:" + text), f.seconds, nil
}

type fakeMusic struct{ err error }

func (f *fakeMusic) Compose(_ context.Context, prompt string, _ float64) ([]byte, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []byte("music:" + prompt), nil
}

func planJSON(t *testing.T, sceneCount int) string {
	t.Helper()
	src := &script.Script{
		Title: "Lighthouse",
		Style: "watercolor",
		Characters: []script.CharacterProfile{
			{ID: "keeper", Name: "The Keeper", Description: "an old sailor"},
		},
		MusicCues: []script.MusicCue{
			{Prompt: "calm piano", SceneStart: 1, SceneEnd: sceneCount},
		},
	}
	for i := 1; i <= sceneCount; i++ {
		scene := script.Scene{
			Index:           i,
			VisualPrompt:    "scene visual",
			DurationSeconds: 5,
		}
		if i == 1 {
			scene.Narration = "Waves crash."
			scene.CharacterIDs = []string{"keeper"}
		}
		src.Scenes = append(src.Scenes, scene)
	}
	plan, err := planning.Build(src, "")
	if err != nil {
		t.Fatalf("build plan: %v", err)
	}
	data, err := planning.Encode(plan)
	if err != nil {
		t.Fatalf("encode plan: %v", err)
	}
	return string(data)
}

func newTestGenerator(t *testing.T, images providers.ImageProvider, voice providers.VoiceProvider, music providers.MusicProvider) (*Generator, *config.Config) {
	t.Helper()
	cfg := config.Default()
	cfg.Paths.StagingDir = filepath.Join(t.TempDir(), "staging")
	cfg.Retry.MaxAttempts = 1
	cfg.Pipeline.SceneWorkers = 2
	cfg.Pipeline.VoiceWorkers = 1
	cfg.Pipeline.MusicWorkers = 1
	gen := NewGeneratorWithDependencies(cfg, nil, logging.NewNop(), images, voice, music)
	return gen, cfg
}

func TestExecuteWritesAllAssets(t *testing.T) {
	images := &fakeImages{}
	gen, cfg := newTestGenerator(t, images, &fakeVoice{}, &fakeMusic{})
	task := &queue.Task{ID: 3, Status: queue.StatusGenerating, PlanJSON: planJSON(t, 2)}

	if err := gen.Execute(context.Background(), task); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	workspace, err := staging.NewWorkspace(cfg.Paths.StagingDir, task.ID)
	if err != nil {
		t.Fatalf("workspace: %v", err)
	}
	wantFiles := []string{
		workspace.CharacterImagePath("keeper"),
		workspace.SceneImagePath(1),
		workspace.SceneImagePath(2),
		workspace.SceneAudioPath(1),
		workspace.MusicClipPath(1, 2),
	}
	for _, path := range wantFiles {
		if _, err := os.Stat(path); err != nil {
			t.Fatalf("missing artifact %s: %v", path, err)
		}
	}
	if _, err := os.Stat(workspace.SceneAudioPath(2)); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("scene 2 has no narration, audio should not exist: %v", err)
	}
	if task.ProgressPercent != 70 {
		t.Fatalf("progress = %v, want 70", task.ProgressPercent)
	}
	if task.ProgressStage != stage.LabelAssetGeneration {
		t.Fatalf("progress stage = %q", task.ProgressStage)
	}
}

func TestExecuteBoundsImageConcurrency(t *testing.T) {
	images := &fakeImages{}
	gen, _ := newTestGenerator(t, images, &fakeVoice{}, &fakeMusic{})
	task := &queue.Task{ID: 4, Status: queue.StatusGenerating, PlanJSON: planJSON(t, 6)}

	if err := gen.Execute(context.Background(), task); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if max := atomic.LoadInt32(&images.maxSeen); max > 2 {
		t.Fatalf("max concurrent image calls = %d, want <= 2", max)
	}
}

func TestExecuteRecordsNarrationDuration(t *testing.T) {
	voice := &fakeVoice{seconds: 7.5}
	gen, cfg := newTestGenerator(t, &fakeImages{}, voice, &fakeMusic{})
	cfg.Providers.Voice.Voice = "narrator-2"
	task := &queue.Task{ID: 8, Status: queue.StatusGenerating, PlanJSON: planJSON(t, 2)}

	if err := gen.Execute(context.Background(), task); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	plan, err := planning.Decode(task.PlanJSON)
	if err != nil {
		t.Fatalf("decode updated plan: %v", err)
	}
	if got := plan.Scenes[0].NarrationDurationSeconds; got != 7.5 {
		t.Fatalf("scene 1 narration duration = %v, want 7.5", got)
	}
	if got := plan.Scenes[0].EffectiveDurationSeconds(); got != 7.5 {
		t.Fatalf("scene 1 effective duration = %v, want 7.5", got)
	}
	if got := plan.Scenes[1].EffectiveDurationSeconds(); got != 5 {
		t.Fatalf("scene 2 effective duration = %v, want scripted 5", got)
	}
	if len(voice.voices) != 1 || voice.voices[0] != "narrator-2" {
		t.Fatalf("narrator voice not passed through: %v", voice.voices)
	}
}

func bareScenesPlanJSON(t *testing.T, sceneCount int) string {
	t.Helper()
	src := &script.Script{Title: "Lighthouse"}
	for i := 1; i <= sceneCount; i++ {
		src.Scenes = append(src.Scenes, script.Scene{
			Index:           i,
			VisualPrompt:    "scene visual",
			DurationSeconds: 5,
		})
	}
	plan, err := planning.Build(src, "")
	if err != nil {
		t.Fatalf("build plan: %v", err)
	}
	data, err := planning.Encode(plan)
	if err != nil {
		t.Fatalf("encode plan: %v", err)
	}
	return string(data)
}

// cancellingImages requests task cancellation from inside the first image
// render, the way a user cancel lands mid fan-out.
type cancellingImages struct {
	store  *queue.Store
	taskID int64
	calls  int32
}

func (c *cancellingImages) GenerateImage(ctx context.Context, _ providers.ImageRequest) ([]byte, error) {
	atomic.AddInt32(&c.calls, 1)
	if _, err := c.store.RequestCancel(ctx, c.taskID); err != nil {
		return nil, err
	}
	return []byte("png"), nil
}

func TestCancelRequestStopsSceneFanOut(t *testing.T) {
	ctx := context.Background()
	cfg := config.Default()
	cfg.Paths.StagingDir = filepath.Join(t.TempDir(), "staging")
	cfg.Retry.MaxAttempts = 1
	cfg.Pipeline.SceneWorkers = 1
	cfg.Pipeline.VoiceWorkers = 1
	cfg.Pipeline.MusicWorkers = 1

	store, err := queue.OpenPath(filepath.Join(t.TempDir(), "tasks.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer store.Close()

	task, err := store.NewTask(ctx, "tester", "a lighthouse story", "", 0)
	if err != nil {
		t.Fatalf("new task: %v", err)
	}
	task.Status = queue.StatusGenerating
	task.PlanJSON = bareScenesPlanJSON(t, 3)
	if err := store.Update(ctx, task); err != nil {
		t.Fatalf("update task: %v", err)
	}

	images := &cancellingImages{store: store, taskID: task.ID}
	gen := NewGeneratorWithDependencies(cfg, store, logging.NewNop(), images, &fakeVoice{}, &fakeMusic{})

	execErr := gen.Execute(ctx, task)
	if !errors.Is(execErr, services.ErrCancelled) {
		t.Fatalf("Execute error = %v, want cancelled", execErr)
	}
	if calls := atomic.LoadInt32(&images.calls); calls != 1 {
		t.Fatalf("image renders after cancel request = %d, want 1", calls)
	}
}

func TestExecuteAbortsOnProviderFatal(t *testing.T) {
	fatal := services.Wrap(services.ErrProviderFatal, "providers", "generate image", "content policy rejection", nil)
	gen, _ := newTestGenerator(t, &fakeImages{err: fatal}, &fakeVoice{}, &fakeMusic{})
	task := &queue.Task{ID: 5, Status: queue.StatusGenerating, PlanJSON: planJSON(t, 2)}

	err := gen.Execute(context.Background(), task)
	if !errors.Is(err, services.ErrProviderFatal) {
		t.Fatalf("Execute error = %v", err)
	}
}

func TestExecuteRejectsMissingPlan(t *testing.T) {
	gen, _ := newTestGenerator(t, &fakeImages{}, &fakeVoice{}, &fakeMusic{})
	task := &queue.Task{ID: 6, Status: queue.StatusGenerating}
	if err := gen.Prepare(context.Background(), task); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("Prepare error = %v", err)
	}
	if err := gen.Execute(context.Background(), task); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("Execute error = %v", err)
	}
}

func TestHealthCheckReportsMissingKeys(t *testing.T) {
	gen, cfg := newTestGenerator(t, &fakeImages{}, &fakeVoice{}, &fakeMusic{})
	cfg.Providers.Image.APIKey = ""
	cfg.Providers.Voice.APIKey = "key"
	cfg.Providers.Music.APIKey = "key"
	health := gen.HealthCheck(context.Background())
	if health.Ready {
		t.Fatal("expected unhealthy with missing image key")
	}
	cfg.Providers.Image.APIKey = "key"
	if health := gen.HealthCheck(context.Background()); !health.Ready {
		t.Fatalf("expected healthy: %s", health.Detail)
	}
}
