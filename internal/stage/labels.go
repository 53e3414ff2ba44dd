package stage

// Progress stage labels shared by the workflow manager and stage handlers.
const (
	LabelScriptGeneration = "ScriptGeneration"
	LabelSceneBreakdown   = "SceneBreakdown"
	LabelAssetGeneration  = "AssetGeneration"
	LabelVideoSynthesis   = "VideoSynthesis"
	LabelCompositing      = "Compositing"
	LabelCompleted        = "Completed"
)
