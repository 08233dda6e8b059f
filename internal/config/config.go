package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and bind address configuration.
type Paths struct {
	DataDir string `toml:"data_dir"`
	LogDir  string `toml:"log_dir"`
	APIBind string `toml:"api_bind"`
}

// Discovery contains configuration for the remote clip folder that is polled
// for new source candidates.
type Discovery struct {
	BaseURL        string `toml:"base_url"`
	APIKey         string `toml:"api_key"`
	FolderID       string `toml:"folder_id"`
	PollInterval   int    `toml:"poll_interval"`
	RequestTimeout int    `toml:"request_timeout"`
}

// Analysis contains configuration for the content analysis service.
type Analysis struct {
	BaseURL        string `toml:"base_url"`
	APIKey         string `toml:"api_key"`
	Model          string `toml:"model"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Publish contains configuration for the social publishing service.
// Destination integration IDs are assigned after connecting accounts in the
// publishing backend; empty IDs disable that destination.
type Publish struct {
	BaseURL                string `toml:"base_url"`
	APIKey                 string `toml:"api_key"`
	UploadTimeout          int    `toml:"upload_timeout"`
	PostTimeout            int    `toml:"post_timeout"`
	InstagramIntegrationID string `toml:"instagram_integration_id"`
	FacebookIntegrationID  string `toml:"facebook_integration_id"`
	YouTubeIntegrationID   string `toml:"youtube_integration_id"`
}

// Pipeline contains orchestrator timing, concurrency, and retry settings.
type Pipeline struct {
	MaxConcurrentJobs   int `toml:"max_concurrent_jobs"`
	JobTimeout          int `toml:"job_timeout"`
	MaxStageRetries     int `toml:"max_stage_retries"`
	RetryBackoffBase    int `toml:"retry_backoff_base"`
	RetryBackoffCeiling int `toml:"retry_backoff_ceiling"`
	BacklogThreshold    int `toml:"backlog_threshold"`
}

// Output contains encode target settings for published artifacts.
type Output struct {
	MaxSizeMB        int     `toml:"max_size_mb"`
	ReencodeAttempts int     `toml:"reencode_attempts"`
	CRF              int     `toml:"crf"`
	AudioBitrateKbps int     `toml:"audio_bitrate_kbps"`
	HookSeconds      float64 `toml:"hook_seconds"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	Publishes      bool   `toml:"publishes"`
	Errors         bool   `toml:"errors"`
	Passes         bool   `toml:"passes"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for clipflow.
//
// Configuration sections by subsystem:
//   - Paths: data/log directories and API bind address
//   - Discovery: remote clip folder polling
//   - Analysis: content analysis service connection
//   - Publish: social publishing service and destinations
//   - Pipeline: concurrency, timeouts, retry/backoff, backpressure
//   - Output: encode target and size-fit policy
//   - Notifications: ntfy push notification settings
//   - Logging: log format and level
type Config struct {
	Paths         Paths         `toml:"paths"`
	Discovery     Discovery     `toml:"discovery"`
	Analysis      Analysis      `toml:"analysis"`
	Publish       Publish       `toml:"publish"`
	Pipeline      Pipeline      `toml:"pipeline"`
	Output        Output        `toml:"output"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/clipflow/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned
// config has all path fields expanded and normalized.
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
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
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

	projectPath, err := filepath.Abs("clipflow.toml")
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

func (c *Config) normalize() error {
	var err error
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return err
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return err
	}
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	c.Discovery.BaseURL = strings.TrimRight(strings.TrimSpace(c.Discovery.BaseURL), "/")
	c.Analysis.BaseURL = strings.TrimRight(strings.TrimSpace(c.Analysis.BaseURL), "/")
	c.Publish.BaseURL = strings.TrimRight(strings.TrimSpace(c.Publish.BaseURL), "/")
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	return nil
}

// DownloadsDir returns the directory downloaded source clips are written to.
func (c *Config) DownloadsDir() string {
	return filepath.Join(c.Paths.DataDir, "downloads")
}

// OutputDir returns the directory finished artifacts are written to.
func (c *Config) OutputDir() string {
	return filepath.Join(c.Paths.DataDir, "output")
}

// CaptionsDir returns the directory generated subtitle files are written to.
func (c *Config) CaptionsDir() string {
	return filepath.Join(c.Paths.DataDir, "captions")
}

// DatabasePath returns the job database location.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Paths.DataDir, "jobs.db")
}

// LockFilePath returns the daemon instance lock location.
func (c *Config) LockFilePath() string {
	return filepath.Join(c.Paths.DataDir, "clipflowd.lock")
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.LogDir, c.DownloadsDir(), c.OutputDir(), c.CaptionsDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// FFmpegBinary returns the ffmpeg executable name used for editing.
func (c *Config) FFmpegBinary() string {
	return "ffmpeg"
}

// FFprobeBinary returns the ffprobe executable name used for media inspection.
func (c *Config) FFprobeBinary() string {
	return "ffprobe"
}

// Destination pairs a destination name with its publishing integration ID.
type Destination struct {
	Name          string
	IntegrationID string
}

// Destinations returns the configured publish destinations, skipping any
// with an empty integration ID.
func (c *Config) Destinations() []Destination {
	candidates := []Destination{
		{Name: "instagram", IntegrationID: strings.TrimSpace(c.Publish.InstagramIntegrationID)},
		{Name: "facebook", IntegrationID: strings.TrimSpace(c.Publish.FacebookIntegrationID)},
		{Name: "youtube", IntegrationID: strings.TrimSpace(c.Publish.YouTubeIntegrationID)},
	}
	out := make([]Destination, 0, len(candidates))
	for _, dest := range candidates {
		if dest.IntegrationID != "" {
			out = append(out, dest)
		}
	}
	return out
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
