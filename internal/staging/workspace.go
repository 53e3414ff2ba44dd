// Package staging manages per-task working directories that hold intermediate
// artifacts while a task moves through the pipeline. Each task owns one
// directory under the configured staging root; the final video is moved to the
// library before the workspace is removed.
package staging

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

const taskDirPrefix = "task-"

// Workspace is a task-scoped artifact directory.
type Workspace struct {
	Root   string
	TaskID int64
}

// NewWorkspace creates (or reopens) the working directory for a task under
// stagingDir, along with its characters and music subdirectories.
func NewWorkspace(stagingDir string, taskID int64) (*Workspace, error) {
	stagingDir = strings.TrimSpace(stagingDir)
	if stagingDir == "" {
		return nil, fmt.Errorf("staging dir required")
	}
	if taskID <= 0 {
		return nil, fmt.Errorf("task id required")
	}

	ws := &Workspace{
		Root:   filepath.Join(stagingDir, fmt.Sprintf("%s%d", taskDirPrefix, taskID)),
		TaskID: taskID,
	}
	for _, dir := range []string{ws.Root, ws.CharactersDir(), ws.MusicDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create staging directory %s: %w", dir, err)
		}
	}
	return ws, nil
}

// ScriptPath is where the generated script document is persisted.
func (w *Workspace) ScriptPath() string {
	return filepath.Join(w.Root, "script.json")
}

// CharactersDir holds reference images shared across scenes.
func (w *Workspace) CharactersDir() string {
	return filepath.Join(w.Root, "characters")
}

// CharacterImagePath is the reference image for one character.
func (w *Workspace) CharacterImagePath(characterID string) string {
	return filepath.Join(w.CharactersDir(), characterID+".png")
}

// SceneDir holds the per-scene artifacts. Scenes are one-based.
func (w *Workspace) SceneDir(index int) string {
	return filepath.Join(w.Root, fmt.Sprintf("scene%d", index))
}

// EnsureSceneDir creates the scene directory if needed and returns it.
func (w *Workspace) EnsureSceneDir(index int) (string, error) {
	dir := w.SceneDir(index)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create scene directory %s: %w", dir, err)
	}
	return dir, nil
}

// SceneImagePath is the rendered still for a scene.
func (w *Workspace) SceneImagePath(index int) string {
	return filepath.Join(w.SceneDir(index), "image.png")
}

// SceneAudioPath is the narration track for a scene.
func (w *Workspace) SceneAudioPath(index int) string {
	return filepath.Join(w.SceneDir(index), "audio.mp3")
}

// SceneVideoPath is the synthesized clip for a scene.
func (w *Workspace) SceneVideoPath(index int) string {
	return filepath.Join(w.SceneDir(index), "video.mp4")
}

// MusicDir holds background music clips.
func (w *Workspace) MusicDir() string {
	return filepath.Join(w.Root, "music")
}

// MusicClipPath names a music clip by the scene range it covers.
func (w *Workspace) MusicClipPath(sceneStart, sceneEnd int) string {
	return filepath.Join(w.MusicDir(), fmt.Sprintf("clip_%d_%d.mp3", sceneStart, sceneEnd))
}

// StitchDir holds intermediate outputs while scenes are folded together.
func (w *Workspace) StitchDir() string {
	return filepath.Join(w.Root, "stitch")
}

// EnsureStitchDir creates the stitch directory if needed and returns it.
func (w *Workspace) EnsureStitchDir() (string, error) {
	dir := w.StitchDir()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create stitch directory %s: %w", dir, err)
	}
	return dir, nil
}

// FinalVideoPath is the fully composited video before it leaves staging.
func (w *Workspace) FinalVideoPath() string {
	return filepath.Join(w.Root, "fullvideo.mp4")
}

// WriteArtifact writes data to path, creating parent directories as needed.
func (w *Workspace) WriteArtifact(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create artifact directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write artifact %s: %w", filepath.Base(path), err)
	}
	return nil
}

// Remove deletes the whole workspace.
func (w *Workspace) Remove() error {
	return os.RemoveAll(w.Root)
}

// RemoveWorkspace deletes the staging directory for a task without requiring
// an open Workspace. Used when a task reaches a terminal status outside the
// compositing stage.
func RemoveWorkspace(stagingDir string, taskID int64) error {
	stagingDir = strings.TrimSpace(stagingDir)
	if stagingDir == "" || taskID <= 0 {
		return nil
	}
	return os.RemoveAll(filepath.Join(stagingDir, fmt.Sprintf("%s%d", taskDirPrefix, taskID)))
}

// taskIDFromDirName extracts the task ID from a staging directory name, or
// returns false for directories that do not follow the task naming scheme.
func taskIDFromDirName(name string) (int64, bool) {
	if !strings.HasPrefix(name, taskDirPrefix) {
		return 0, false
	}
	id, err := strconv.ParseInt(strings.TrimPrefix(name, taskDirPrefix), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
