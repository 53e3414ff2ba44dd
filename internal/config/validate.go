package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateProviders(); err != nil {
		return err
	}
	if err := c.validateRetry(); err != nil {
		return err
	}
	if err := c.validatePipeline(); err != nil {
		return err
	}
	if err := c.validateWorkflow(); err != nil {
		return err
	}
	if err := c.validateStorage(); err != nil {
		return err
	}
	if err := c.validateLedger(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePaths() error {
	if strings.TrimSpace(c.Paths.StagingDir) == "" {
		return errors.New("paths.staging_dir must be set")
	}
	if strings.TrimSpace(c.Paths.LibraryDir) == "" {
		return errors.New("paths.library_dir must be set")
	}
	return nil
}

func (c *Config) validateProviders() error {
	if c.Providers.Script.APIKey == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			defaultPath = "~/.config/storyforge/config.toml"
		}
		return fmt.Errorf("providers.script.api_key is required. Set STORYFORGE_SCRIPT_API_KEY env var or edit %s (create with 'storyforge config init')", defaultPath)
	}
	for name, p := range map[string]Provider{
		"script": c.Providers.Script,
		"image":  c.Providers.Image,
		"voice":  c.Providers.Voice,
		"music":  c.Providers.Music,
		"motion": c.Providers.Motion,
	} {
		if p.TimeoutSeconds <= 0 {
			return fmt.Errorf("providers.%s.timeout_seconds must be positive", name)
		}
	}
	return nil
}

func (c *Config) validateRetry() error {
	if c.Retry.MaxAttempts < 1 {
		return errors.New("retry.max_attempts must be >= 1")
	}
	if c.Retry.MinWaitMS <= 0 {
		return errors.New("retry.min_wait_ms must be positive")
	}
	if c.Retry.MaxWaitMS < c.Retry.MinWaitMS {
		return errors.New("retry.max_wait_ms must be >= retry.min_wait_ms")
	}
	if c.Retry.Factor <= 1 {
		return errors.New("retry.factor must be greater than 1")
	}
	return nil
}

func (c *Config) validatePipeline() error {
	if err := ensurePositiveMap(map[string]int{
		"pipeline.scene_workers":  c.Pipeline.SceneWorkers,
		"pipeline.voice_workers":  c.Pipeline.VoiceWorkers,
		"pipeline.music_workers":  c.Pipeline.MusicWorkers,
		"pipeline.motion_workers": c.Pipeline.MotionWorkers,
	}); err != nil {
		return err
	}
	if c.Pipeline.TransitionDurationSeconds <= 0 {
		return errors.New("pipeline.transition_duration_seconds must be positive")
	}
	return nil
}

func (c *Config) validateWorkflow() error {
	if err := ensurePositiveMap(map[string]int{
		"workflow.queue_poll_interval":  c.Workflow.QueuePollInterval,
		"workflow.error_retry_interval": c.Workflow.ErrorRetryInterval,
		"notifications.request_timeout": c.Notifications.RequestTimeout,
	}); err != nil {
		return err
	}
	if c.Workflow.HeartbeatInterval <= 0 {
		return errors.New("workflow.heartbeat_interval must be positive")
	}
	if c.Workflow.HeartbeatTimeout <= 0 {
		return errors.New("workflow.heartbeat_timeout must be positive")
	}
	if c.Workflow.HeartbeatTimeout <= c.Workflow.HeartbeatInterval {
		return errors.New("workflow.heartbeat_timeout must be greater than workflow.heartbeat_interval")
	}
	return nil
}

func (c *Config) validateStorage() error {
	if !c.Storage.Enabled {
		return nil
	}
	if c.Storage.Endpoint == "" {
		return errors.New("storage.endpoint must be set when storage.enabled is true")
	}
	if c.Storage.Bucket == "" {
		return errors.New("storage.bucket must be set when storage.enabled is true")
	}
	if c.Storage.AccessKey == "" || c.Storage.SecretKey == "" {
		return errors.New("storage.access_key and storage.secret_key must be set when storage.enabled is true")
	}
	return nil
}

func (c *Config) validateLedger() error {
	if !c.Ledger.Enabled {
		return nil
	}
	if c.Ledger.BaseURL == "" {
		return errors.New("ledger.base_url must be set when ledger.enabled is true")
	}
	if c.Ledger.CreditsPerTask <= 0 {
		return errors.New("ledger.credits_per_task must be positive")
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
