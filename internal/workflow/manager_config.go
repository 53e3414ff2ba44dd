package workflow

import (
	"storyforge/internal/queue"
	"storyforge/internal/stage"
)

// Stage labels surfaced through progress snapshots and status queries.
const (
	LabelScriptGeneration = stage.LabelScriptGeneration
	LabelSceneBreakdown   = stage.LabelSceneBreakdown
	LabelAssetGeneration  = stage.LabelAssetGeneration
	LabelVideoSynthesis   = stage.LabelVideoSynthesis
	LabelCompositing      = stage.LabelCompositing
	LabelCompleted        = stage.LabelCompleted
)

// ConfigureStages registers the concrete stage handlers the workflow will run.
// Progress windows hand each stage a contiguous slice of the 0..100 range so a
// task's overall percent moves monotonically across the pipeline.
func (m *Manager) ConfigureStages(set StageSet) {
	generation := &laneState{kind: laneGeneration, name: string(laneGeneration)}
	render := &laneState{kind: laneRender, name: string(laneRender)}

	if set.ScriptGenerator != nil {
		generation.stages = append(generation.stages, pipelineStage{
			name:             "script-generator",
			label:            LabelScriptGeneration,
			handler:          set.ScriptGenerator,
			startStatus:      queue.StatusPending,
			processingStatus: queue.StatusScripting,
			doneStatus:       queue.StatusScripted,
			progressStart:    0,
		})
	}
	if set.ScenePlanner != nil {
		generation.stages = append(generation.stages, pipelineStage{
			name:             "scene-planner",
			label:            LabelSceneBreakdown,
			handler:          set.ScenePlanner,
			startStatus:      queue.StatusScripted,
			processingStatus: queue.StatusPlanning,
			doneStatus:       queue.StatusPlanned,
			progressStart:    8,
		})
	}
	if set.AssetGenerator != nil {
		generation.stages = append(generation.stages, pipelineStage{
			name:             "asset-generator",
			label:            LabelAssetGeneration,
			handler:          set.AssetGenerator,
			startStatus:      queue.StatusPlanned,
			processingStatus: queue.StatusGenerating,
			doneStatus:       queue.StatusGenerated,
			progressStart:    10,
		})
	}
	if set.VideoSynthesizer != nil {
		generation.stages = append(generation.stages, pipelineStage{
			name:             "video-synthesizer",
			label:            LabelVideoSynthesis,
			handler:          set.VideoSynthesizer,
			startStatus:      queue.StatusGenerated,
			processingStatus: queue.StatusSynthesizing,
			doneStatus:       queue.StatusSynthesized,
			progressStart:    70,
		})
	}
	if set.Compositor != nil {
		render.stages = append(render.stages, pipelineStage{
			name:             "compositor",
			label:            LabelCompositing,
			handler:          set.Compositor,
			startStatus:      queue.StatusSynthesized,
			processingStatus: queue.StatusCompositing,
			doneStatus:       queue.StatusCompleted,
			progressStart:    85,
		})
	}

	lanes := make(map[laneKind]*laneState)
	order := make([]laneKind, 0, 2)

	if len(generation.stages) > 0 {
		generation.finalize()
		lanes[generation.kind] = generation
		order = append(order, generation.kind)
	}
	if len(render.stages) > 0 {
		render.finalize()
		lanes[render.kind] = render
		order = append(order, render.kind)
	}

	// One reclaimer is enough; stale rollback covers every processing status.
	for i, kind := range order {
		lanes[kind].runReclaimer = i == 0
	}

	m.mu.Lock()
	m.lanes = lanes
	m.laneOrder = order
	m.mu.Unlock()
}

func stageLabelForStatus(status queue.Status) string {
	switch status {
	case queue.StatusScripting:
		return LabelScriptGeneration
	case queue.StatusPlanning:
		return LabelSceneBreakdown
	case queue.StatusGenerating:
		return LabelAssetGeneration
	case queue.StatusSynthesizing:
		return LabelVideoSynthesis
	case queue.StatusCompositing:
		return LabelCompositing
	case queue.StatusCompleted:
		return LabelCompleted
	default:
		return ""
	}
}
