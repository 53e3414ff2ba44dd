package compose

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strings"

	"storyforge/internal/logging"
	"storyforge/internal/media/ffprobe"
	"storyforge/internal/script"
)

// passthroughTolerance is the relative duration error accepted without
// retiming a clip.
const passthroughTolerance = 0.05

// Options configures the composition engine.
type Options struct {
	FFmpegBinary  string
	FFprobeBinary string
	VideoWidth    int
	VideoHeight   int
	VideoFPS      int
}

// Engine renders scene clips into a finished video using ffmpeg.
type Engine struct {
	opts   Options
	logger *slog.Logger
}

// NewEngine constructs a composition engine.
func NewEngine(opts Options, logger *slog.Logger) *Engine {
	if opts.FFmpegBinary == "" {
		opts.FFmpegBinary = "ffmpeg"
	}
	if opts.FFprobeBinary == "" {
		opts.FFprobeBinary = "ffprobe"
	}
	if opts.VideoWidth <= 0 {
		opts.VideoWidth = 1080
	}
	if opts.VideoHeight <= 0 {
		opts.VideoHeight = 1920
	}
	if opts.VideoFPS <= 0 {
		opts.VideoFPS = 30
	}
	return &Engine{opts: opts, logger: logging.NewComponentLogger(logger, "compose")}
}

// ProbeDuration returns the container duration of a media file in seconds.
func (e *Engine) ProbeDuration(ctx context.Context, path string) (float64, error) {
	result, err := ffprobe.Inspect(ctx, e.opts.FFprobeBinary, path)
	if err != nil {
		return 0, compositionError(StageProbe, 0, err)
	}
	duration := result.DurationSeconds()
	if duration <= 0 || math.IsNaN(duration) {
		return 0, compositionError(StageProbe, 0, fmt.Errorf("no duration reported for %s", filepath.Base(path)))
	}
	return duration, nil
}

// VerifyStreams checks that a scene clip carries both a video and an audio
// stream. Clips missing either would break the stitch filter graph, which
// maps both streams of every input.
func (e *Engine) VerifyStreams(ctx context.Context, path string, sceneIndex int) error {
	result, err := ffprobe.Inspect(ctx, e.opts.FFprobeBinary, path)
	if err != nil {
		return compositionError(StageProbe, sceneIndex, err)
	}
	if result.VideoStreamCount() == 0 {
		return compositionError(StageProbe, sceneIndex,
			fmt.Errorf("%s has no video stream", filepath.Base(path)))
	}
	if result.AudioStreamCount() == 0 {
		return compositionError(StageProbe, sceneIndex,
			fmt.Errorf("%s has no audio stream", filepath.Base(path)))
	}
	return nil
}

// NormalizeDuration retimes a clip to the target duration. Clips already
// within 5% of the target pass through untouched and the input path is
// returned. sceneIndex is used only for error attribution.
func (e *Engine) NormalizeDuration(ctx context.Context, input, output string, target float64, sceneIndex int) (string, error) {
	if target <= 0 {
		return "", compositionError(StageNormalize, sceneIndex, errors.New("target duration must be positive"))
	}
	actual, err := e.ProbeDuration(ctx, input)
	if err != nil {
		var ce *CompositionError
		if errors.As(err, &ce) {
			ce.Stage = StageNormalize
			ce.SceneIndex = sceneIndex
		}
		return "", err
	}

	speed := actual / target
	if math.Abs(speed-1) <= passthroughTolerance {
		return input, nil
	}

	videoFilter, audioFilter := speedFilter(speed)
	e.logger.Debug("retiming clip",
		logging.String("input", filepath.Base(input)),
		logging.Float64("actual_seconds", actual),
		logging.Float64("target_seconds", target),
		logging.Float64("speed", speed))

	args := []string{
		"-i", input,
		"-filter:v", videoFilter,
	}
	if audioFilter != "" {
		args = append(args, "-filter:a", audioFilter)
	}
	args = append(args, "-t", formatFloat(target), output)
	if err := runFFmpeg(ctx, e.opts.FFmpegBinary, args...); err != nil {
		return "", compositionError(StageNormalize, sceneIndex, err)
	}
	return output, nil
}

// ApplyTransition joins two clips into one, overlapping them with the named
// transition. The overlap is clamped so neither clip is consumed past its
// midpoint. Unknown transition kinds degrade to a hard cut.
func (e *Engine) ApplyTransition(ctx context.Context, a, b, output string, kind script.TransitionKind, overlap float64, sceneIndex int) error {
	name, known := xfadeName(kind)
	if !known {
		if kind != "" {
			e.logger.Warn("unknown transition, using hard cut",
				logging.String("transition", string(kind)),
				logging.Int("scene_index", sceneIndex))
		}
		return e.concat(ctx, a, b, output, sceneIndex)
	}

	lenA, err := e.ProbeDuration(ctx, a)
	if err != nil {
		return retagError(err, StageTransition, sceneIndex)
	}
	lenB, err := e.ProbeDuration(ctx, b)
	if err != nil {
		return retagError(err, StageTransition, sceneIndex)
	}

	d := clampOverlap(overlap, lenA, lenB)
	if d <= 0 {
		return e.concat(ctx, a, b, output, sceneIndex)
	}

	graph := transitionGraph(name, d, lenA)
	err = runFFmpeg(ctx, e.opts.FFmpegBinary,
		"-i", a,
		"-i", b,
		"-filter_complex", graph,
		"-map", "[v]", "-map", "[a]",
		"-c:v", "libx264", "-preset", "medium", "-crf", "20",
		"-c:a", "aac",
		output,
	)
	if err != nil {
		return compositionError(StageTransition, sceneIndex, err)
	}
	return nil
}

func (e *Engine) concat(ctx context.Context, a, b, output string, sceneIndex int) error {
	err := runFFmpeg(ctx, e.opts.FFmpegBinary,
		"-i", a,
		"-i", b,
		"-filter_complex", concatGraph(),
		"-map", "[v]", "-map", "[a]",
		"-c:v", "libx264", "-preset", "medium", "-crf", "20",
		"-c:a", "aac",
		output,
	)
	if err != nil {
		return compositionError(StageTransition, sceneIndex, err)
	}
	return nil
}

// MixAudio layers a looped music bed under the primary audio of a video.
// Output duration follows the primary input; the music loops or truncates
// as needed.
func (e *Engine) MixAudio(ctx context.Context, video, music, output string, primaryVolume, musicVolume float64) error {
	if primaryVolume <= 0 {
		primaryVolume = 1
	}
	if musicVolume <= 0 {
		musicVolume = 0.2
	}
	err := runFFmpeg(ctx, e.opts.FFmpegBinary,
		"-i", video,
		"-stream_loop", "-1", "-i", music,
		"-filter_complex", mixGraph(primaryVolume, musicVolume),
		"-map", "0:v", "-map", "[a]",
		"-c:v", "copy",
		"-c:a", "aac",
		"-shortest",
		output,
	)
	if err != nil {
		return compositionError(StageMix, 0, err)
	}
	return nil
}

// ConcatAudio joins audio clips into one continuous bed with the concat
// demuxer. listPath is where the demuxer input list is written. A single
// input is copied through unchanged.
func (e *Engine) ConcatAudio(ctx context.Context, inputs []string, listPath, output string) error {
	if len(inputs) == 0 {
		return compositionError(StageMix, 0, errors.New("no audio clips"))
	}
	if len(inputs) == 1 {
		if err := copyFile(inputs[0], output); err != nil {
			return compositionError(StageMix, 0, err)
		}
		return nil
	}
	var list strings.Builder
	for _, input := range inputs {
		fmt.Fprintf(&list, "file '%s'\n", input)
	}
	if err := os.WriteFile(listPath, []byte(list.String()), 0o644); err != nil {
		return compositionError(StageMix, 0, err)
	}
	err := runFFmpeg(ctx, e.opts.FFmpegBinary,
		"-f", "concat", "-safe", "0",
		"-i", listPath,
		"-c", "copy",
		output,
	)
	if err != nil {
		return compositionError(StageMix, 0, err)
	}
	return nil
}

// AttachAudio muxes a narration track onto a video clip. When audio is
// empty a silent track is generated instead, so every scene clip carries an
// audio stream for later stitching.
func (e *Engine) AttachAudio(ctx context.Context, video, audio, output string, sceneIndex int) error {
	args := []string{"-i", video}
	if audio != "" {
		args = append(args, "-i", audio)
	} else {
		args = append(args, "-f", "lavfi", "-i", "anullsrc=channel_layout=stereo:sample_rate=44100")
	}
	args = append(args,
		"-map", "0:v", "-map", "1:a",
		"-c:v", "copy",
		"-c:a", "aac",
		"-shortest",
		output,
	)
	if err := runFFmpeg(ctx, e.opts.FFmpegBinary, args...); err != nil {
		return compositionError(StageMux, sceneIndex, err)
	}
	return nil
}

// StillToVideo animates a static image into a video clip with a slow
// push-in, optionally muxing a narration track. Used as the fallback when
// motion rendering fails for a scene.
func (e *Engine) StillToVideo(ctx context.Context, image, audio, output string, duration float64, sceneIndex int) error {
	if duration <= 0 {
		return compositionError(StageStill, sceneIndex, errors.New("duration must be positive"))
	}
	graph := kenBurnsGraph(e.opts.VideoWidth, e.opts.VideoHeight, e.opts.VideoFPS, duration)
	args := []string{
		"-loop", "1", "-i", image,
	}
	if audio != "" {
		args = append(args, "-i", audio)
	} else {
		args = append(args, "-f", "lavfi", "-i", "anullsrc=channel_layout=stereo:sample_rate=44100")
	}
	args = append(args,
		"-filter:v", graph,
		"-t", formatFloat(duration),
		"-c:v", "libx264", "-preset", "medium", "-crf", "20",
		"-c:a", "aac", "-shortest",
		output,
	)
	if err := runFFmpeg(ctx, e.opts.FFmpegBinary, args...); err != nil {
		return compositionError(StageStill, sceneIndex, err)
	}
	return nil
}

// Stitch folds scene clips into one continuous video, applying the
// transition declared after each scene. transitions[i] joins scenes[i] and
// scenes[i+1]; a short or empty transitions slice produces hard cuts for the
// remaining joins. A single scene is copied to the output unchanged.
func (e *Engine) Stitch(ctx context.Context, scenes []string, transitions []script.TransitionKind, overlap float64, workDir, output string) error {
	if len(scenes) == 0 {
		return compositionError(StageStitch, 0, errors.New("no scene clips"))
	}
	if len(scenes) == 1 {
		if err := copyFile(scenes[0], output); err != nil {
			return compositionError(StageStitch, 1, err)
		}
		return nil
	}

	current := scenes[0]
	for i := 1; i < len(scenes); i++ {
		var kind script.TransitionKind
		if i-1 < len(transitions) {
			kind = transitions[i-1]
		}
		next := output
		if i < len(scenes)-1 {
			next = filepath.Join(workDir, fmt.Sprintf("stitch_%03d.mp4", i))
		}
		if err := e.ApplyTransition(ctx, current, scenes[i], next, kind, overlap, i+1); err != nil {
			return retagError(err, StageStitch, i+1)
		}
		if current != scenes[0] {
			_ = os.Remove(current)
		}
		current = next
	}
	return nil
}

// Finalize remuxes the stitched video for streaming playback.
func (e *Engine) Finalize(ctx context.Context, input, output string) error {
	err := runFFmpeg(ctx, e.opts.FFmpegBinary,
		"-i", input,
		"-c", "copy",
		"-movflags", "+faststart",
		output,
	)
	if err != nil {
		return compositionError(StageStitch, 0, err)
	}
	return nil
}

func retagError(err error, stage string, sceneIndex int) error {
	var ce *CompositionError
	if errors.As(err, &ce) {
		ce.Stage = stage
		if ce.SceneIndex == 0 {
			ce.SceneIndex = sceneIndex
		}
		return err
	}
	return compositionError(stage, sceneIndex, err)
}

func copyFile(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	if dir := filepath.Dir(dst); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(dst, data, 0o644)
}

// DescribeTransitions returns the transitions between consecutive scenes in
// a script, in stitch order.
func DescribeTransitions(s *script.Script) []script.TransitionKind {
	if s == nil || len(s.Scenes) < 2 {
		return nil
	}
	out := make([]script.TransitionKind, 0, len(s.Scenes)-1)
	for _, scene := range s.Scenes[:len(s.Scenes)-1] {
		out = append(out, scene.TransitionOut)
	}
	return out
}
