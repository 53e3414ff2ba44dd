package objstore

import (
	"context"
	"testing"

	"storyforge/internal/config"
	"storyforge/internal/logging"
)

func TestDisabledStorageYieldsNoop(t *testing.T) {
	cfg := config.Default()
	cfg.Storage.Enabled = false

	up, err := New(cfg, logging.NewNop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if up.Enabled() {
		t.Fatal("expected disabled uploader")
	}
	url, err := up.Upload(context.Background(), "/tmp/video.mp4", 1)
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if url != "" {
		t.Fatalf("expected empty url, got %q", url)
	}
}

func TestEnabledStorageRequiresEndpoint(t *testing.T) {
	cfg := config.Default()
	cfg.Storage.Enabled = true
	cfg.Storage.Endpoint = ""
	cfg.Storage.Bucket = "videos"

	if _, err := New(cfg, logging.NewNop()); err == nil {
		t.Fatal("expected configuration error")
	}
}

func TestEnabledStorageBuildsClient(t *testing.T) {
	cfg := config.Default()
	cfg.Storage.Enabled = true
	cfg.Storage.Endpoint = "localhost:9000"
	cfg.Storage.Bucket = "videos"
	cfg.Storage.AccessKey = "access"
	cfg.Storage.SecretKey = "secret"
	cfg.Storage.URLExpiryHours = 48

	up, err := New(cfg, logging.NewNop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	client, ok := up.(*Client)
	if !ok {
		t.Fatalf("expected *Client, got %T", up)
	}
	if !client.Enabled() {
		t.Fatal("expected enabled uploader")
	}
	if client.expiry.Hours() != 48 {
		t.Fatalf("expiry = %v", client.expiry)
	}
}

func TestContentTypeFor(t *testing.T) {
	cases := map[string]string{
		"tasks/1/fullvideo.mp4": "video/mp4",
		"scene1/image.png":      "image/png",
		"music/clip_1_2.mp3":    "audio/mpeg",
		"notes.txt":             "application/octet-stream",
	}
	for name, want := range cases {
		if got := contentTypeFor(name); got != want {
			t.Errorf("contentTypeFor(%q) = %q, want %q", name, got, want)
		}
	}
}
