package logs

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeLog(t *testing.T, lines string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "storyforged.log")
	if err := os.WriteFile(path, []byte(lines), 0o644); err != nil {
		t.Fatalf("write log: %v", err)
	}
	return path
}

func TestTailLastLines(t *testing.T) {
	path := writeLog(t, "one\ntwo\nthree\nfour\n")
	result, err := Tail(context.Background(), path, TailOptions{Offset: -1, Limit: 2})
	if err != nil {
		t.Fatalf("Tail: %v", err)
	}
	if len(result.Lines) != 2 || result.Lines[0] != "three" || result.Lines[1] != "four" {
		t.Fatalf("lines = %v", result.Lines)
	}
	if result.Offset == 0 {
		t.Fatal("offset should be at end of file")
	}
}

func TestTailResumesFromOffset(t *testing.T) {
	path := writeLog(t, "one\ntwo\n")
	first, err := Tail(context.Background(), path, TailOptions{Offset: 0, Limit: 10})
	if err != nil {
		t.Fatalf("Tail: %v", err)
	}
	if len(first.Lines) != 2 {
		t.Fatalf("lines = %v", first.Lines)
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatalf("open append: %v", err)
	}
	if _, err := f.WriteString("three\n"); err != nil {
		t.Fatalf("append: %v", err)
	}
	_ = f.Close()

	second, err := Tail(context.Background(), path, TailOptions{Offset: first.Offset})
	if err != nil {
		t.Fatalf("Tail: %v", err)
	}
	if len(second.Lines) != 1 || second.Lines[0] != "three" {
		t.Fatalf("lines = %v", second.Lines)
	}
}

func TestTailMissingFileIsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "absent.log")
	result, err := Tail(context.Background(), path, TailOptions{Offset: -1, Limit: 5})
	if err != nil {
		t.Fatalf("Tail: %v", err)
	}
	if len(result.Lines) != 0 || result.Offset != 0 {
		t.Fatalf("result = %+v", result)
	}
}

func TestTailFollowTimesOutWithoutNewLines(t *testing.T) {
	path := writeLog(t, "one\n")
	first, err := Tail(context.Background(), path, TailOptions{Offset: 0})
	if err != nil {
		t.Fatalf("Tail: %v", err)
	}

	start := time.Now()
	result, err := Tail(context.Background(), path, TailOptions{
		Offset: first.Offset,
		Follow: true,
		Wait:   50 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("Tail follow: %v", err)
	}
	if len(result.Lines) != 0 {
		t.Fatalf("lines = %v", result.Lines)
	}
	if time.Since(start) > 2*time.Second {
		t.Fatal("follow wait did not time out promptly")
	}
}
