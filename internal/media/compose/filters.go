package compose

import (
	"fmt"
	"strings"

	"storyforge/internal/script"
)

// atempo accepts factors in [0.5, 2.0] per invocation. Factors outside that
// window are expressed as a chain of in-range steps.
func atempoChain(speed float64) []string {
	if speed <= 0 {
		return nil
	}
	var steps []float64
	for speed > 2.0 {
		steps = append(steps, 2.0)
		speed /= 2.0
	}
	for speed < 0.5 {
		steps = append(steps, 0.5)
		speed /= 0.5
	}
	steps = append(steps, speed)

	out := make([]string, 0, len(steps))
	for _, step := range steps {
		out = append(out, fmt.Sprintf("atempo=%s", formatFloat(step)))
	}
	return out
}

// speedFilter builds the video and audio filter expressions that retime a
// clip by the given speed factor (actual/target duration).
func speedFilter(speed float64) (videoFilter, audioFilter string) {
	videoFilter = fmt.Sprintf("setpts=PTS/%s", formatFloat(speed))
	audioFilter = strings.Join(atempoChain(speed), ",")
	return videoFilter, audioFilter
}

// xfadeName maps a transition kind to the ffmpeg xfade transition name.
// The second return is false for kinds xfade cannot render, which callers
// treat as a hard cut.
func xfadeName(kind script.TransitionKind) (string, bool) {
	switch kind {
	case script.TransitionFade:
		return "fade", true
	case script.TransitionCrossfade:
		return "dissolve", true
	case script.TransitionFadeToBlack:
		return "fadeblack", true
	case script.TransitionSlideLeft:
		return "slideleft", true
	case script.TransitionSlideRight:
		return "slideright", true
	case script.TransitionZoomIn:
		return "zoomin", true
	case script.TransitionZoomOut:
		return "distance", true
	default:
		return "", false
	}
}

// clampOverlap bounds a transition overlap so neither clip is consumed past
// its midpoint.
func clampOverlap(d, lenA, lenB float64) float64 {
	if d <= 0 {
		return 0
	}
	shorter := lenA
	if lenB < shorter {
		shorter = lenB
	}
	if limit := shorter / 2; d > limit {
		return limit
	}
	return d
}

// transitionGraph builds the filter_complex for joining two clips with an
// xfade video transition and an acrossfade audio transition. The offset is
// where clip B starts fading in, measured on clip A's timeline.
func transitionGraph(transition string, d, lenA float64) string {
	offset := lenA - d
	if offset < 0 {
		offset = 0
	}
	return fmt.Sprintf(
		"[0:v][1:v]xfade=transition=%s:duration=%s:offset=%s[v];[0:a][1:a]acrossfade=d=%s[a]",
		transition, formatFloat(d), formatFloat(offset), formatFloat(d),
	)
}

// concatGraph builds the filter_complex for a hard cut between two clips.
func concatGraph() string {
	return "[0:v][0:a][1:v][1:a]concat=n=2:v=1:a=1[v][a]"
}

// mixGraph builds the filter_complex for layering a looped music bed under
// the primary audio. Output duration follows the primary input.
func mixGraph(primaryVolume, musicVolume float64) string {
	return fmt.Sprintf(
		"[0:a]volume=%s[pa];[1:a]volume=%s[ma];[pa][ma]amix=inputs=2:duration=first:normalize=0[a]",
		formatFloat(primaryVolume), formatFloat(musicVolume),
	)
}

// kenBurnsGraph builds the zoompan filter that animates a still image into a
// slow push-in video clip.
func kenBurnsGraph(width, height, fps int, duration float64) string {
	frames := int(duration * float64(fps))
	if frames < 1 {
		frames = 1
	}
	return fmt.Sprintf(
		"scale=%d:%d:force_original_aspect_ratio=increase,crop=%d:%d,zoompan=z='min(zoom+0.0008,1.2)':x='iw/2-(iw/zoom/2)':y='ih/2-(ih/zoom/2)':d=%d:s=%dx%d:fps=%d,format=yuv420p",
		width*2, height*2, width*2, height*2, frames, width, height, fps,
	)
}

func formatFloat(v float64) string {
	s := fmt.Sprintf("%.6f", v)
	s = strings.TrimRight(s, "0")
	s = strings.TrimRight(s, ".")
	if s == "" || s == "-" {
		return "0"
	}
	return s
}
