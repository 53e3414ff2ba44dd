package config

const (
	defaultStagingDir = "~/.local/share/storyforge/staging"
	defaultLibraryDir = "~/videos/storyforge"
	defaultLogDir     = "~/.local/share/storyforge/logs"

	defaultLogFormat = "console"
	defaultLogLevel  = "info"

	defaultScriptBaseURL = "https://openrouter.ai/api/v1/chat/completions"
	defaultScriptModel   = "google/gemini-3-flash-preview"

	defaultProviderTimeoutSeconds = 120
	defaultMotionTimeoutSeconds   = 600

	defaultRetryMaxAttempts = 5
	defaultRetryMinWaitMS   = 500
	defaultRetryMaxWaitMS   = 30000
	defaultRetryFactor      = 2.0

	defaultSceneWorkers       = 4
	defaultVoiceWorkers       = 2
	defaultMusicWorkers       = 1
	defaultMotionWorkers      = 2
	defaultTransitionDuration = 0.75

	defaultVideoWidth  = 1080
	defaultVideoHeight = 1920
	defaultVideoFPS    = 30

	defaultWorkflowHeartbeatInterval = 15
	defaultWorkflowHeartbeatTimeout  = 120

	defaultNotifyRequestTimeout = 10

	defaultStorageURLExpiryHours = 24

	defaultLedgerCreditsPerTask = 10
	defaultLedgerTimeoutSeconds = 30
)

// Default returns a Config populated with repository defaults.
func Default() *Config {
	return &Config{
		Paths: Paths{
			StagingDir: defaultStagingDir,
			LibraryDir: defaultLibraryDir,
			LogDir:     defaultLogDir,
		},
		Providers: Providers{
			Script: Provider{
				BaseURL:        defaultScriptBaseURL,
				Model:          defaultScriptModel,
				TimeoutSeconds: defaultProviderTimeoutSeconds,
			},
			Image:  Provider{TimeoutSeconds: defaultProviderTimeoutSeconds},
			Voice:  Provider{TimeoutSeconds: defaultProviderTimeoutSeconds},
			Music:  Provider{TimeoutSeconds: defaultProviderTimeoutSeconds},
			Motion: Provider{TimeoutSeconds: defaultMotionTimeoutSeconds},
		},
		Retry: Retry{
			MaxAttempts: defaultRetryMaxAttempts,
			MinWaitMS:   defaultRetryMinWaitMS,
			MaxWaitMS:   defaultRetryMaxWaitMS,
			Factor:      defaultRetryFactor,
		},
		Pipeline: Pipeline{
			SceneWorkers:              defaultSceneWorkers,
			VoiceWorkers:              defaultVoiceWorkers,
			MusicWorkers:              defaultMusicWorkers,
			MotionWorkers:             defaultMotionWorkers,
			MotionFallback:            true,
			TransitionDurationSeconds: defaultTransitionDuration,
		},
		Media: Media{
			VideoWidth:  defaultVideoWidth,
			VideoHeight: defaultVideoHeight,
			VideoFPS:    defaultVideoFPS,
		},
		Workflow: Workflow{
			QueuePollInterval:  5,
			ErrorRetryInterval: 10,
			HeartbeatInterval:  defaultWorkflowHeartbeatInterval,
			HeartbeatTimeout:   defaultWorkflowHeartbeatTimeout,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyRequestTimeout,
			Submitted:      true,
			Completed:      true,
			Errors:         true,
		},
		Storage: Storage{
			URLExpiryHours: defaultStorageURLExpiryHours,
		},
		Ledger: Ledger{
			CreditsPerTask: defaultLedgerCreditsPerTask,
			TimeoutSeconds: defaultLedgerTimeoutSeconds,
		},
	}
}
