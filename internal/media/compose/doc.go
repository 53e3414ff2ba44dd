// Package compose renders generated scene assets into a finished video.
//
// The Engine wraps ffmpeg and ffprobe invocations behind domain operations:
// probing clip durations, retiming clips to scripted durations, joining
// scenes with xfade transitions, layering music beds, animating still-image
// fallbacks, and stitching the final cut. Filter graph construction is kept
// in pure helpers so the planning logic is testable without ffmpeg.
//
// Failures carry a CompositionError identifying the stage and, when
// relevant, the 1-based scene index involved.
package compose
