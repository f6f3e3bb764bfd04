package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateLLM(); err != nil {
		return err
	}
	if err := c.validateTTS(); err != nil {
		return err
	}
	if err := c.validateWorkflow(); err != nil {
		return err
	}
	if err := c.validateRSS(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateLLM() error {
	if c.LLM.APIKey == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			defaultPath = "~/.config/podforge/config.toml"
		}
		return fmt.Errorf("llm.api_key is required. Set PODFORGE_LLM_API_KEY env var or edit %s (create with 'podforge config init')", defaultPath)
	}
	if _, err := url.Parse(c.LLM.BaseURL); err != nil {
		return fmt.Errorf("llm.base_url is not a valid URL: %w", err)
	}
	return nil
}

func (c *Config) validateTTS() error {
	if _, err := url.Parse(c.TTS.BaseURL); err != nil {
		return fmt.Errorf("tts.base_url is not a valid URL: %w", err)
	}
	if strings.TrimSpace(c.TTS.DefaultVoice) == "" {
		return errors.New("tts.default_voice must be set")
	}
	return nil
}

func (c *Config) validateWorkflow() error {
	if c.Workflow.MaxTaskWorkers < 1 {
		return errors.New("workflow.max_task_workers must be at least 1")
	}
	if c.Workflow.TranslationBatchSize < 1 {
		return errors.New("workflow.translation_batch_size must be at least 1")
	}
	return nil
}

func (c *Config) validateRSS() error {
	if !c.RSS.Enabled {
		return nil
	}
	if len(c.RSS.Feeds) == 0 {
		return errors.New("rss.feeds must list at least one feed when rss.enabled is true")
	}
	for _, feed := range c.RSS.Feeds {
		parsed, err := url.Parse(feed)
		if err != nil || parsed.Scheme == "" || parsed.Host == "" {
			return fmt.Errorf("rss.feeds entry %q is not a valid URL", feed)
		}
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json, got %q", c.Logging.Format)
	}
	return nil
}
