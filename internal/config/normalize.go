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
	c.normalizeLLM()
	c.normalizeTTS()
	c.normalizeFetch()
	c.normalizeWorkflow()
	c.normalizeMedia()
	c.normalizeRSS()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = defaultDataDir
	}
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	if c.Paths.APIBind == "" {
		c.Paths.APIBind = defaultAPIBind
	}
	return nil
}

func (c *Config) normalizeLLM() {
	if c.LLM.APIKey == "" {
		if value, ok := os.LookupEnv("PODFORGE_LLM_API_KEY"); ok {
			c.LLM.APIKey = value
		}
	}
	c.LLM.BaseURL = strings.TrimSpace(c.LLM.BaseURL)
	if c.LLM.BaseURL == "" {
		c.LLM.BaseURL = defaultLLMBaseURL
	}
	if strings.TrimSpace(c.LLM.Model) == "" {
		c.LLM.Model = defaultLLMModel
	}
	if c.LLM.TimeoutSeconds <= 0 {
		c.LLM.TimeoutSeconds = defaultLLMTimeout
	}
}

func (c *Config) normalizeTTS() {
	if c.TTS.APIKey == "" {
		if value, ok := os.LookupEnv("PODFORGE_TTS_API_KEY"); ok {
			c.TTS.APIKey = value
		}
	}
	c.TTS.BaseURL = strings.TrimSpace(c.TTS.BaseURL)
	if c.TTS.BaseURL == "" {
		c.TTS.BaseURL = defaultTTSBaseURL
	}
	if strings.TrimSpace(c.TTS.Model) == "" {
		c.TTS.Model = defaultTTSModel
	}
	if c.TTS.TimeoutSeconds <= 0 {
		c.TTS.TimeoutSeconds = defaultTTSTimeout
	}
	if strings.TrimSpace(c.TTS.DefaultVoice) == "" {
		c.TTS.DefaultVoice = defaultTTSVoice
	}
	if c.TTS.Voices == nil {
		c.TTS.Voices = Default().TTS.Voices
	}
}

func (c *Config) normalizeFetch() {
	if c.Fetch.RequestTimeout <= 0 {
		c.Fetch.RequestTimeout = defaultFetchTimeout
	}
	if strings.TrimSpace(c.Fetch.UserAgent) == "" {
		c.Fetch.UserAgent = defaultFetchUserAgent
	}
	if c.Fetch.MinContentLength <= 0 {
		c.Fetch.MinContentLength = defaultMinContentLength
	}
}

func (c *Config) normalizeWorkflow() {
	if c.Workflow.MaxTaskWorkers <= 0 {
		c.Workflow.MaxTaskWorkers = defaultMaxTaskWorkers
	}
	if c.Workflow.MaxStepRetries < 0 {
		c.Workflow.MaxStepRetries = defaultMaxStepRetries
	}
	if c.Workflow.StepRetryDelaySeconds <= 0 {
		c.Workflow.StepRetryDelaySeconds = defaultStepRetryDelay
	}
	if c.Workflow.MaxTaskRetries < 0 {
		c.Workflow.MaxTaskRetries = defaultMaxTaskRetries
	}
	if c.Workflow.TaskRetryDelaySeconds <= 0 {
		c.Workflow.TaskRetryDelaySeconds = defaultTaskRetryDelay
	}
	if c.Workflow.AudioSynthesisRetries <= 0 {
		c.Workflow.AudioSynthesisRetries = defaultSynthesisRetries
	}
	if c.Workflow.TranslationBatchSize <= 0 {
		c.Workflow.TranslationBatchSize = defaultTranslationBatch
	}
	if c.Workflow.MinDialogueTurns <= 0 {
		c.Workflow.MinDialogueTurns = defaultMinDialogueTurns
	}
	if c.Workflow.TurnGapMillis <= 0 {
		c.Workflow.TurnGapMillis = defaultTurnGapMillis
	}
	if c.Workflow.TaskTimeoutMinutes < 0 {
		c.Workflow.TaskTimeoutMinutes = 0
	}
}

func (c *Config) normalizeMedia() {
	if strings.TrimSpace(c.Media.FFmpegBinary) == "" {
		c.Media.FFmpegBinary = "ffmpeg"
	}
	if strings.TrimSpace(c.Media.FFprobeBinary) == "" {
		c.Media.FFprobeBinary = "ffprobe"
	}
}

func (c *Config) normalizeRSS() {
	if c.RSS.PollIntervalMinutes <= 0 {
		c.RSS.PollIntervalMinutes = defaultRSSPollMinutes
	}
	if c.RSS.FetchBatchSize <= 0 {
		c.RSS.FetchBatchSize = defaultRSSBatchSize
	}
	if c.RSS.BatchPauseSeconds < 0 {
		c.RSS.BatchPauseSeconds = defaultRSSBatchPause
	}
	trimmed := make([]string, 0, len(c.RSS.Feeds))
	for _, feed := range c.RSS.Feeds {
		if feed = strings.TrimSpace(feed); feed != "" {
			trimmed = append(trimmed, feed)
		}
	}
	c.RSS.Feeds = trimmed
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
