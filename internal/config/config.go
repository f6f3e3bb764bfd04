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
	DataDir  string `toml:"data_dir"`
	LogDir   string `toml:"log_dir"`
	APIBind  string `toml:"api_bind"`
	APIToken string `toml:"api_token"`
}

// LLM contains connection settings for the chat-completion service used for
// titling, content leveling, dialogue generation, and translation.
type LLM struct {
	APIKey         string `toml:"api_key"`
	BaseURL        string `toml:"base_url"`
	Model          string `toml:"model"`
	Referer        string `toml:"referer"`
	Title          string `toml:"title"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// TTS contains connection settings for the speech synthesis service.
type TTS struct {
	APIKey         string            `toml:"api_key"`
	BaseURL        string            `toml:"base_url"`
	Model          string            `toml:"model"`
	TimeoutSeconds int               `toml:"timeout_seconds"`
	Voices         map[string]string `toml:"voices"`
	DefaultVoice   string            `toml:"default_voice"`
}

// Fetch contains settings for source article retrieval.
type Fetch struct {
	RequestTimeout   int    `toml:"request_timeout"`
	UserAgent        string `toml:"user_agent"`
	MinContentLength int    `toml:"min_content_length"`
}

// Workflow contains pipeline execution and retry settings.
type Workflow struct {
	MaxTaskWorkers        int `toml:"max_task_workers"`
	MaxStepRetries        int `toml:"max_step_retries"`
	StepRetryDelaySeconds int `toml:"step_retry_delay_seconds"`
	MaxTaskRetries        int `toml:"max_task_retries"`
	TaskRetryDelaySeconds int `toml:"task_retry_delay_seconds"`
	AudioSynthesisRetries int `toml:"audio_synthesis_retries"`
	TranslationBatchSize  int `toml:"translation_batch_size"`
	MinDialogueTurns      int `toml:"min_dialogue_turns"`
	TurnGapMillis         int `toml:"turn_gap_millis"`
	TaskTimeoutMinutes    int `toml:"task_timeout_minutes"`
}

// Media contains external media tool settings.
type Media struct {
	FFmpegBinary  string `toml:"ffmpeg_binary"`
	FFprobeBinary string `toml:"ffprobe_binary"`
}

// RSS contains feed ingestion settings.
type RSS struct {
	Enabled             bool     `toml:"enabled"`
	Feeds               []string `toml:"feeds"`
	PollIntervalMinutes int      `toml:"poll_interval_minutes"`
	FetchBatchSize      int      `toml:"fetch_batch_size"`
	BatchPauseSeconds   int      `toml:"batch_pause_seconds"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	Completed      bool   `toml:"completed"`
	Errors         bool   `toml:"errors"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for podforge.
//
// Configuration sections by subsystem:
//   - Paths: data/log directories and API bind address
//   - LLM: chat-completion connection settings
//   - TTS: speech synthesis connection settings and voice mapping
//   - Fetch: source article retrieval
//   - Workflow: worker pool sizing and retry policy
//   - Media: ffmpeg/ffprobe binaries
//   - RSS: feed ingestion
//   - Notifications: ntfy push notification settings
//   - Logging: log format and level
type Config struct {
	Paths         Paths         `toml:"paths"`
	LLM           LLM           `toml:"llm"`
	TTS           TTS           `toml:"tts"`
	Fetch         Fetch         `toml:"fetch"`
	Workflow      Workflow      `toml:"workflow"`
	Media         Media         `toml:"media"`
	RSS           RSS           `toml:"rss"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/podforge/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config
// has all path fields expanded and normalized.
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

	projectPath, err := filepath.Abs("podforge.toml")
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

// WriteSample writes the embedded sample configuration to the given path.
// It refuses to overwrite an existing file unless force is set.
func WriteSample(path string, force bool) (string, error) {
	expanded, err := expandPath(path)
	if err != nil {
		return "", err
	}
	if !force {
		if _, err := os.Stat(expanded); err == nil {
			return "", fmt.Errorf("config file already exists at %s (use --force to overwrite)", expanded)
		}
	}
	if err := os.MkdirAll(filepath.Dir(expanded), 0o755); err != nil {
		return "", fmt.Errorf("create config directory: %w", err)
	}
	if err := os.WriteFile(expanded, []byte(sampleConfig), 0o644); err != nil {
		return "", fmt.Errorf("write sample config: %w", err)
	}
	return expanded, nil
}

// EnsureDirectories creates the directories the daemon needs at runtime.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.TaskDir(), c.Paths.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// TaskDir returns the directory holding per-task working directories.
func (c *Config) TaskDir() string {
	return filepath.Join(c.Paths.DataDir, "tasks")
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
