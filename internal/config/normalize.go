package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeProviders()
	c.normalizeRetry()
	c.normalizePipeline()
	c.normalizeMedia()
	c.normalizeStorage()
	c.normalizeLedger()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if c.Paths.StagingDir, err = expandPath(c.Paths.StagingDir); err != nil {
		return fmt.Errorf("paths.staging_dir: %w", err)
	}
	if c.Paths.LibraryDir, err = expandPath(c.Paths.LibraryDir); err != nil {
		return fmt.Errorf("paths.library_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeProviders() {
	normalizeProvider(&c.Providers.Script, "STORYFORGE_SCRIPT_API_KEY", "OPENROUTER_API_KEY")
	normalizeProvider(&c.Providers.Image, "STORYFORGE_IMAGE_API_KEY")
	normalizeProvider(&c.Providers.Voice, "STORYFORGE_VOICE_API_KEY")
	normalizeProvider(&c.Providers.Music, "STORYFORGE_MUSIC_API_KEY")
	normalizeProvider(&c.Providers.Motion, "STORYFORGE_MOTION_API_KEY")
	if c.Providers.Script.BaseURL == "" {
		c.Providers.Script.BaseURL = defaultScriptBaseURL
	}
	if c.Providers.Script.Model == "" {
		c.Providers.Script.Model = defaultScriptModel
	}
	if c.Providers.Motion.TimeoutSeconds <= 0 {
		c.Providers.Motion.TimeoutSeconds = defaultMotionTimeoutSeconds
	}
}

func normalizeProvider(p *Provider, envKeys ...string) {
	p.APIKey = strings.TrimSpace(p.APIKey)
	if p.APIKey == "" {
		for _, key := range envKeys {
			if value, ok := os.LookupEnv(key); ok && strings.TrimSpace(value) != "" {
				p.APIKey = strings.TrimSpace(value)
				break
			}
		}
	}
	p.BaseURL = strings.TrimSpace(p.BaseURL)
	p.Model = strings.TrimSpace(p.Model)
	if p.TimeoutSeconds <= 0 {
		p.TimeoutSeconds = defaultProviderTimeoutSeconds
	}
}

func (c *Config) normalizeRetry() {
	if c.Retry.MaxAttempts <= 0 {
		c.Retry.MaxAttempts = defaultRetryMaxAttempts
	}
	if c.Retry.MinWaitMS <= 0 {
		c.Retry.MinWaitMS = defaultRetryMinWaitMS
	}
	if c.Retry.MaxWaitMS <= 0 {
		c.Retry.MaxWaitMS = defaultRetryMaxWaitMS
	}
	if c.Retry.MaxWaitMS < c.Retry.MinWaitMS {
		c.Retry.MaxWaitMS = c.Retry.MinWaitMS
	}
	if c.Retry.Factor <= 1 {
		c.Retry.Factor = defaultRetryFactor
	}
}

func (c *Config) normalizePipeline() {
	if c.Pipeline.SceneWorkers <= 0 {
		c.Pipeline.SceneWorkers = defaultSceneWorkers
	}
	if c.Pipeline.VoiceWorkers <= 0 {
		c.Pipeline.VoiceWorkers = defaultVoiceWorkers
	}
	if c.Pipeline.MusicWorkers <= 0 {
		c.Pipeline.MusicWorkers = defaultMusicWorkers
	}
	if c.Pipeline.MotionWorkers <= 0 {
		c.Pipeline.MotionWorkers = defaultMotionWorkers
	}
	if c.Pipeline.TransitionDurationSeconds <= 0 {
		c.Pipeline.TransitionDurationSeconds = defaultTransitionDuration
	}
}

func (c *Config) normalizeMedia() {
	if c.Media.VideoWidth <= 0 {
		c.Media.VideoWidth = defaultVideoWidth
	}
	if c.Media.VideoHeight <= 0 {
		c.Media.VideoHeight = defaultVideoHeight
	}
	if c.Media.VideoFPS <= 0 {
		c.Media.VideoFPS = defaultVideoFPS
	}
}

func (c *Config) normalizeStorage() {
	c.Storage.Endpoint = strings.TrimSpace(c.Storage.Endpoint)
	c.Storage.Bucket = strings.TrimSpace(c.Storage.Bucket)
	c.Storage.AccessKey = strings.TrimSpace(c.Storage.AccessKey)
	c.Storage.SecretKey = strings.TrimSpace(c.Storage.SecretKey)
	if c.Storage.AccessKey == "" {
		if value, ok := os.LookupEnv("STORYFORGE_STORAGE_ACCESS_KEY"); ok {
			c.Storage.AccessKey = strings.TrimSpace(value)
		}
	}
	if c.Storage.SecretKey == "" {
		if value, ok := os.LookupEnv("STORYFORGE_STORAGE_SECRET_KEY"); ok {
			c.Storage.SecretKey = strings.TrimSpace(value)
		}
	}
	if c.Storage.URLExpiryHours <= 0 {
		c.Storage.URLExpiryHours = defaultStorageURLExpiryHours
	}
}

func (c *Config) normalizeLedger() {
	c.Ledger.BaseURL = strings.TrimSpace(c.Ledger.BaseURL)
	c.Ledger.APIKey = strings.TrimSpace(c.Ledger.APIKey)
	if c.Ledger.APIKey == "" {
		if value, ok := os.LookupEnv("STORYFORGE_LEDGER_API_KEY"); ok {
			c.Ledger.APIKey = strings.TrimSpace(value)
		}
	}
	if c.Ledger.CreditsPerTask <= 0 {
		c.Ledger.CreditsPerTask = defaultLedgerCreditsPerTask
	}
	if c.Ledger.TimeoutSeconds <= 0 {
		c.Ledger.TimeoutSeconds = defaultLedgerTimeoutSeconds
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
