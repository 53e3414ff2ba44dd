package compose

import (
	"fmt"

	"storyforge/internal/services"
)

// Stage names for composition failures.
const (
	StageProbe      = "probe"
	StageNormalize  = "normalize"
	StageTransition = "transition"
	StageMix        = "mix"
	StageMux        = "mux"
	StageStitch     = "stitch"
	StageStill      = "still"
)

// CompositionError reports which composition stage failed and, when the
// failure concerns a specific scene, its 1-based index. SceneIndex is 0 for
// failures not tied to one scene.
type CompositionError struct {
	Stage      string
	SceneIndex int
	Err        error
}

func (e *CompositionError) Error() string {
	if e.SceneIndex > 0 {
		return fmt.Sprintf("compose %s: scene %d: %v", e.Stage, e.SceneIndex, e.Err)
	}
	return fmt.Sprintf("compose %s: %v", e.Stage, e.Err)
}

// Summary names the failed stage and scene without the underlying ffmpeg
// output.
func (e *CompositionError) Summary() string {
	if e.SceneIndex > 0 {
		return fmt.Sprintf("media %s failed for scene %d", e.Stage, e.SceneIndex)
	}
	return fmt.Sprintf("media %s failed", e.Stage)
}

func (e *CompositionError) Unwrap() []error {
	return []error{services.ErrComposition, e.Err}
}

func compositionError(stage string, sceneIndex int, err error) error {
	if err == nil {
		return nil
	}
	return &CompositionError{Stage: stage, SceneIndex: sceneIndex, Err: err}
}
