package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	StagingDir string `toml:"staging_dir"`
	LibraryDir string `toml:"library_dir"`
	LogDir     string `toml:"log_dir"`
}

// Provider contains connection settings for a single generation backend.
type Provider struct {
	APIKey         string `toml:"api_key"`
	BaseURL        string `toml:"base_url"`
	Model          string `toml:"model"`
	Voice          string `toml:"voice,omitempty"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Providers groups the generation backends by asset kind.
type Providers struct {
	Script Provider `toml:"script"`
	Image  Provider `toml:"image"`
	Voice  Provider `toml:"voice"`
	Music  Provider `toml:"music"`
	Motion Provider `toml:"motion"`
}

// Retry contains backoff settings shared by all provider calls.
type Retry struct {
	MaxAttempts int     `toml:"max_attempts"`
	MinWaitMS   int     `toml:"min_wait_ms"`
	MaxWaitMS   int     `toml:"max_wait_ms"`
	Factor      float64 `toml:"factor"`
}

// Pipeline contains fan-out and fallback settings for asset generation.
type Pipeline struct {
	SceneWorkers              int     `toml:"scene_workers"`
	VoiceWorkers              int     `toml:"voice_workers"`
	MusicWorkers              int     `toml:"music_workers"`
	MotionWorkers             int     `toml:"motion_workers"`
	MotionFallback            bool    `toml:"motion_fallback"`
	TransitionDurationSeconds float64 `toml:"transition_duration_seconds"`
}

// Media contains output format settings for composition.
type Media struct {
	VideoWidth  int `toml:"video_width"`
	VideoHeight int `toml:"video_height"`
	VideoFPS    int `toml:"video_fps"`
}

// Workflow contains configuration for daemon timing and intervals.
type Workflow struct {
	QueuePollInterval  int `toml:"queue_poll_interval"`
	ErrorRetryInterval int `toml:"error_retry_interval"`
	HeartbeatInterval  int `toml:"heartbeat_interval"`
	HeartbeatTimeout   int `toml:"heartbeat_timeout"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	Submitted      bool   `toml:"submitted"`
	Completed      bool   `toml:"completed"`
	Errors         bool   `toml:"errors"`
}

// Storage contains configuration for publishing finished videos to object storage.
type Storage struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	Bucket         string `toml:"bucket"`
	UseSSL         bool   `toml:"use_ssl"`
	URLExpiryHours int    `toml:"url_expiry_hours"`
}

// Ledger contains configuration for the credit accounting service.
type Ledger struct {
	Enabled        bool   `toml:"enabled"`
	BaseURL        string `toml:"base_url"`
	APIKey         string `toml:"api_key"`
	CreditsPerTask int    `toml:"credits_per_task"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Config encapsulates all configuration values for StoryForge.
//
// Configuration sections by subsystem:
//   - Paths: staging, library, and log directories
//   - Providers: generation backend connections per asset kind
//   - Retry: shared backoff policy for provider calls
//   - Pipeline: fan-out widths and motion fallback behavior
//   - Media: output resolution and frame rate
//   - Workflow: daemon polling intervals and heartbeat timeouts
//   - Logging: log format and level
//   - Notifications: ntfy push notification settings
//   - Storage: object storage publishing for finished videos
//   - Ledger: credit reservation and refunds
type Config struct {
	Paths         Paths         `toml:"paths"`
	Providers     Providers     `toml:"providers"`
	Retry         Retry         `toml:"retry"`
	Pipeline      Pipeline      `toml:"pipeline"`
	Media         Media         `toml:"media"`
	Workflow      Workflow      `toml:"workflow"`
	Logging       Logging       `toml:"logging"`
	Notifications Notifications `toml:"notifications"`
	Storage       Storage       `toml:"storage"`
	Ledger        Ledger        `toml:"ledger"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/storyforge/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("storyforge.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
// LibraryDir is created on a best-effort basis so the daemon can run when
// external storage is temporarily unavailable.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.StagingDir, c.Paths.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	if strings.TrimSpace(c.Paths.LibraryDir) != "" {
		// Best-effort to avoid failing config load when storage is offline.
		_ = os.MkdirAll(c.Paths.LibraryDir, 0o755)
	}
	return nil
}

// FFmpegBinary returns the ffmpeg executable name used for media composition.
func (c *Config) FFmpegBinary() string {
	return "ffmpeg"
}

// FFprobeBinary returns the ffprobe executable name used for media inspection.
func (c *Config) FFprobeBinary() string {
	return "ffprobe"
}

// SocketPath returns the unix socket path used by the daemon IPC server.
func (c *Config) SocketPath() string {
	return filepath.Join(c.Paths.LogDir, "storyforged.sock")
}

// LockPath returns the lock file path guarding against duplicate daemons.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.LogDir, "storyforged.lock")
}

// DatabasePath returns the task database location.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Paths.LogDir, "tasks.db")
}

// RetryPolicyValues returns the retry section as durations.
func (c *Config) RetryPolicyValues() (attempts int, minWait, maxWait time.Duration, factor float64) {
	return c.Retry.MaxAttempts,
		time.Duration(c.Retry.MinWaitMS) * time.Millisecond,
		time.Duration(c.Retry.MaxWaitMS) * time.Millisecond,
		c.Retry.Factor
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

// ProviderFor returns the provider section for the named asset kind.
func (c *Config) ProviderFor(kind string) (Provider, bool) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "script":
		return c.Providers.Script, true
	case "image":
		return c.Providers.Image, true
	case "voice":
		return c.Providers.Voice, true
	case "music":
		return c.Providers.Music, true
	case "motion":
		return c.Providers.Motion, true
	default:
		return Provider{}, false
	}
}
