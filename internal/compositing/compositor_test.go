package compositing

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"storyforge/internal/config"
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

// stubBinaries puts fake ffmpeg and ffprobe executables on PATH. ffprobe
// reports a fixed five second duration with both streams present; ffmpeg
// creates its output file.
func stubBinaries(t *testing.T) {
	t.Helper()
	dir := t.TempDir()
	ffmpeg := "#!/bin/sh\nfor last; do :; done\ncase \"$last\" in /*) : > \"$last\";; esac\nexit 0\n"
	ffprobe := "#!/bin/sh\necho '{\"streams\":[{\"codec_type\":\"video\"},{\"codec_type\":\"audio\"}],\"format\":{\"duration\":\"5.0\"}}'\nexit 0\n"
	if err := os.WriteFile(filepath.Join(dir, "ffmpeg"), []byte(ffmpeg), 0o755); err != nil {
		t.Fatalf("write ffmpeg stub: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "ffprobe"), []byte(ffprobe), 0o755); err != nil {
		t.Fatalf("write ffprobe stub: %v", err)
	}
	t.Setenv("PATH", dir+string(os.PathListSeparator)+os.Getenv("PATH"))
}

type fakeUploader struct {
	url string
	err error
}

func (f *fakeUploader) Enabled() bool { return true }

func (f *fakeUploader) Upload(context.Context, string, int64) (string, error) {
	return f.url, f.err
}

func testPlan(withMusic bool) *script.Script {
	src := &script.Script{
		Title: "The Lighthouse Keeper",
		Scenes: []script.Scene{
			{Index: 1, VisualPrompt: "a lighthouse", DurationSeconds: 5, TransitionOut: script.TransitionFade},
			{Index: 2, VisualPrompt: "staircase", DurationSeconds: 5},
		},
	}
	if withMusic {
		src.MusicCues = []script.MusicCue{{Prompt: "calm piano", SceneStart: 1, SceneEnd: 2}}
	}
	return src
}

func newTestCompositor(t *testing.T, uploader objstore.Uploader, withMusic bool) (*Compositor, *config.Config, *staging.Workspace, *queue.Task) {
	t.Helper()
	stubBinaries(t)

	cfg := config.Default()
	base := t.TempDir()
	cfg.Paths.StagingDir = filepath.Join(base, "staging")
	cfg.Paths.LibraryDir = filepath.Join(base, "library")

	plan, err := planning.Build(testPlan(withMusic), "")
	if err != nil {
		t.Fatalf("build plan: %v", err)
	}
	encoded, err := planning.Encode(plan)
	if err != nil {
		t.Fatalf("encode plan: %v", err)
	}
	task := &queue.Task{ID: 21, Status: queue.StatusCompositing, PlanJSON: string(encoded)}

	workspace, err := staging.NewWorkspace(cfg.Paths.StagingDir, task.ID)
	if err != nil {
		t.Fatalf("workspace: %v", err)
	}
	for _, index := range []int{1, 2} {
		if err := workspace.WriteArtifact(workspace.SceneVideoPath(index), []byte("mp4")); err != nil {
			t.Fatalf("write clip: %v", err)
		}
	}
	if withMusic {
		if err := workspace.WriteArtifact(workspace.MusicClipPath(1, 2), []byte("mp3")); err != nil {
			t.Fatalf("write music: %v", err)
		}
	}

	engine := compose.NewEngine(compose.Options{}, logging.NewNop())
	return NewCompositorWithDependencies(cfg, nil, logging.NewNop(), engine, uploader), cfg, workspace, task
}

func TestExecuteComposesFinalVideo(t *testing.T) {
	uploader := &fakeUploader{url: "https://media.example/tasks/21/final.mp4"}
	comp, cfg, workspace, task := newTestCompositor(t, uploader, true)

	if err := comp.Execute(context.Background(), task); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	wantFinal := filepath.Join(cfg.Paths.LibraryDir, "the-lighthouse-keeper-21.mp4")
	if task.FinalFile != wantFinal {
		t.Fatalf("final file = %q, want %q", task.FinalFile, wantFinal)
	}
	if _, err := os.Stat(wantFinal); err != nil {
		t.Fatalf("final video missing: %v", err)
	}
	if task.ResultURL != uploader.url {
		t.Fatalf("result url = %q", task.ResultURL)
	}
	if task.ProgressPercent != 100 || task.ProgressStage != stage.LabelCompleted {
		t.Fatalf("progress = %v %q", task.ProgressPercent, task.ProgressStage)
	}
	if _, err := os.Stat(workspace.Root); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("staging workspace should be removed: %v", err)
	}
}

func TestExecuteWithoutMusicOrUploader(t *testing.T) {
	comp, _, _, task := newTestCompositor(t, objstore.Noop{}, false)

	if err := comp.Execute(context.Background(), task); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if task.ResultURL != "" {
		t.Fatalf("result url = %q, want empty", task.ResultURL)
	}
	if _, err := os.Stat(task.FinalFile); err != nil {
		t.Fatalf("final video missing: %v", err)
	}
}

func TestUploadFailureKeepsLocalVideo(t *testing.T) {
	uploader := &fakeUploader{err: services.Wrap(services.ErrTransient, "objstore", "upload", "endpoint unreachable", nil)}
	comp, _, _, task := newTestCompositor(t, uploader, false)

	if err := comp.Execute(context.Background(), task); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if task.ResultURL != "" {
		t.Fatalf("result url = %q, want empty", task.ResultURL)
	}
	if _, err := os.Stat(task.FinalFile); err != nil {
		t.Fatalf("final video missing: %v", err)
	}
}

func TestClipWithoutAudioStreamFails(t *testing.T) {
	comp, _, _, task := newTestCompositor(t, objstore.Noop{}, false)

	dir := t.TempDir()
	ffprobe := "#!/bin/sh\necho '{\"streams\":[{\"codec_type\":\"video\"}],\"format\":{\"duration\":\"5.0\"}}'\nexit 0\n"
	if err := os.WriteFile(filepath.Join(dir, "ffprobe"), []byte(ffprobe), 0o755); err != nil {
		t.Fatalf("write ffprobe stub: %v", err)
	}
	t.Setenv("PATH", dir+string(os.PathListSeparator)+os.Getenv("PATH"))

	err := comp.Execute(context.Background(), task)
	if !errors.Is(err, services.ErrComposition) {
		t.Fatalf("Execute error = %v, want composition failure", err)
	}
	var composeErr *compose.CompositionError
	if !errors.As(err, &composeErr) {
		t.Fatalf("error type = %T", err)
	}
	if composeErr.Stage != compose.StageProbe {
		t.Fatalf("failed stage = %s, want %s", composeErr.Stage, compose.StageProbe)
	}
}

func TestMissingSceneClipFails(t *testing.T) {
	comp, _, workspace, task := newTestCompositor(t, objstore.Noop{}, false)
	if err := os.Remove(workspace.SceneVideoPath(2)); err != nil {
		t.Fatalf("remove clip: %v", err)
	}
	if err := comp.Execute(context.Background(), task); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("Execute error = %v", err)
	}
}

func TestPrepareRequiresPlan(t *testing.T) {
	comp, _, _, _ := newTestCompositor(t, objstore.Noop{}, false)
	task := &queue.Task{ID: 22, Status: queue.StatusCompositing}
	if err := comp.Prepare(context.Background(), task); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("Prepare error = %v", err)
	}
}

func TestHealthCheckReportsMissingBinaries(t *testing.T) {
	comp, _, _, _ := newTestCompositor(t, objstore.Noop{}, false)
	if health := comp.HealthCheck(context.Background()); !health.Ready {
		t.Fatalf("expected healthy with stubbed binaries: %s", health.Detail)
	}
	t.Setenv("PATH", t.TempDir())
	if health := comp.HealthCheck(context.Background()); health.Ready {
		t.Fatal("expected unhealthy without binaries on path")
	}
}

func TestSlugify(t *testing.T) {
	cases := map[string]string{
		"The Lighthouse Keeper": "the-lighthouse-keeper",
		"  Hello,   World!  ":   "hello-world",
		"":                      "storyforge",
		"!!!":                   "storyforge",
	}
	for input, want := range cases {
		if got := slugify(input); got != want {
			t.Fatalf("slugify(%q) = %q, want %q", input, got, want)
		}
	}
}
