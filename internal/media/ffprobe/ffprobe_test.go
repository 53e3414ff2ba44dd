package ffprobe

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// stubProbe puts a fake ffprobe on PATH that prints the given JSON.
func stubProbe(t *testing.T, payload string) {
	t.Helper()
	dir := t.TempDir()
	script := "#!/bin/sh\ncat <<'EOF'\n" + payload + "\nEOF\nexit 0\n"
	if err := os.WriteFile(filepath.Join(dir, "ffprobe"), []byte(script), 0o755); err != nil {
		t.Fatalf("write ffprobe stub: %v", err)
	}
	t.Setenv("PATH", dir+string(os.PathListSeparator)+os.Getenv("PATH"))
}

func TestInspectParsesStreamsAndDuration(t *testing.T) {
	stubProbe(t, `{"streams":[{"codec_type":"video"},{"codec_type":"audio"}],"format":{"duration":"12.5"}}`)

	result, err := Inspect(context.Background(), "", "clip.mp4")
	if err != nil {
		t.Fatalf("Inspect: %v", err)
	}
	if got := result.DurationSeconds(); got != 12.5 {
		t.Fatalf("duration = %v, want 12.5", got)
	}
	if got := result.VideoStreamCount(); got != 1 {
		t.Fatalf("video streams = %d, want 1", got)
	}
	if got := result.AudioStreamCount(); got != 1 {
		t.Fatalf("audio streams = %d, want 1", got)
	}
}

func TestInspectRequiresPath(t *testing.T) {
	if _, err := Inspect(context.Background(), "", "  "); err == nil {
		t.Fatal("expected error for empty path")
	}
}

func TestStreamCountsIgnoreOtherTypes(t *testing.T) {
	result := Result{Streams: []Stream{
		{CodecType: "Video"},
		{CodecType: "subtitle"},
		{CodecType: "data"},
	}}
	if got := result.VideoStreamCount(); got != 1 {
		t.Fatalf("video streams = %d, want 1", got)
	}
	if got := result.AudioStreamCount(); got != 0 {
		t.Fatalf("audio streams = %d, want 0", got)
	}
}

func TestDurationSecondsHandlesBadValues(t *testing.T) {
	if got := (Result{}).DurationSeconds(); got != 0 {
		t.Fatalf("empty duration = %v, want 0", got)
	}
	if got := (Result{Format: Format{Duration: "nope"}}).DurationSeconds(); !math.IsNaN(got) {
		t.Fatalf("invalid duration = %v, want NaN", got)
	}
}

func TestInspectReportsProcessFailure(t *testing.T) {
	dir := t.TempDir()
	script := "#!/bin/sh\necho 'no such file' >&2\nexit 1\n"
	if err := os.WriteFile(filepath.Join(dir, "ffprobe"), []byte(script), 0o755); err != nil {
		t.Fatalf("write ffprobe stub: %v", err)
	}
	t.Setenv("PATH", dir)

	_, err := Inspect(context.Background(), "", "missing.mp4")
	if err == nil {
		t.Fatal("expected error from failing ffprobe")
	}
	if !strings.Contains(err.Error(), "no such file") {
		t.Fatalf("error should carry process output: %v", err)
	}
}
