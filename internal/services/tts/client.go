package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"podforge/internal/config"
	"podforge/internal/services"
)

const (
	defaultHTTPTimeout = 120 * time.Second
	defaultBaseURL     = "https://api.openai.com/v1/audio/speech"
)

// Client wraps an OpenAI-compatible speech synthesis endpoint. Retry
// policy lives with the caller; each Synthesize call is a single attempt.
type Client struct {
	cfg        config.TTS
	httpClient *http.Client
}

// Option customizes the client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// NewClient constructs a client from the TTS configuration section.
func NewClient(cfg config.TTS, opts ...Option) *Client {
	timeout := defaultHTTPTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	client := &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(client)
	}
	if strings.TrimSpace(client.cfg.BaseURL) == "" {
		client.cfg.BaseURL = defaultBaseURL
	}
	return client
}

// VoiceFor resolves the configured voice for a dialogue role and language,
// falling back to the default voice when no mapping exists.
func (c *Client) VoiceFor(role, lang string) string {
	key := fmt.Sprintf("%s_%s", strings.ToLower(strings.TrimSpace(role)), strings.ToLower(strings.TrimSpace(lang)))
	if voice, ok := c.cfg.Voices[key]; ok && strings.TrimSpace(voice) != "" {
		return voice
	}
	return c.cfg.DefaultVoice
}

type speechRequest struct {
	Model          string `json:"model"`
	Input          string `json:"input"`
	Voice          string `json:"voice"`
	ResponseFormat string `json:"response_format"`
}

// Synthesize converts one turn of dialogue text into mp3 audio bytes.
func (c *Client) Synthesize(ctx context.Context, text, voice string) ([]byte, error) {
	if strings.TrimSpace(c.cfg.APIKey) == "" {
		return nil, services.Wrap(services.ErrConfiguration, "", "synthesize", "tts api key is not set", nil)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, services.Wrap(services.ErrValidation, "", "synthesize", "empty synthesis text", nil)
	}
	if strings.TrimSpace(voice) == "" {
		voice = c.cfg.DefaultVoice
	}

	encoded, err := json.Marshal(speechRequest{
		Model:          c.cfg.Model,
		Input:          text,
		Voice:          voice,
		ResponseFormat: "mp3",
	})
	if err != nil {
		return nil, fmt.Errorf("tts request: encode body: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL, bytes.NewReader(encoded))
	if err != nil {
		return nil, fmt.Errorf("tts request: new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, services.Wrap(services.ErrSynthesis, "", "synthesize", "request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, services.Wrap(services.ErrSynthesis, "", "synthesize",
			fmt.Sprintf("http %d: %s", resp.StatusCode, strings.TrimSpace(string(body))), nil)
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, services.Wrap(services.ErrSynthesis, "", "synthesize", "read audio body", err)
	}
	if len(audio) == 0 {
		return nil, services.Wrap(services.ErrSynthesis, "", "synthesize", "empty audio response", nil)
	}
	return audio, nil
}
