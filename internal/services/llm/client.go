package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"podforge/internal/config"
	"podforge/internal/services"
)

const (
	defaultHTTPTimeout   = 120 * time.Second
	defaultRetryAttempts = 3
	defaultRetryBase     = 1 * time.Second
	defaultRetryMax      = 10 * time.Second
	defaultBaseURL       = "https://openrouter.ai/api/v1/chat/completions"
)

// Turn is one exchange in a generated dialogue.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ValidRole reports whether a dialogue role is one the pipeline accepts.
func ValidRole(role string) bool {
	switch strings.ToLower(strings.TrimSpace(role)) {
	case "host", "guest":
		return true
	}
	return false
}

// Client wraps an OpenRouter-style chat completion API for title synthesis,
// difficulty leveling, dialogue generation, and translation.
type Client struct {
	cfg        config.LLM
	httpClient *http.Client

	retryAttempts int
	retryBase     time.Duration
	retryMax      time.Duration
	sleeper       func(time.Duration)
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

// WithRetry overrides the transport retry policy.
func WithRetry(attempts int, base, max time.Duration) Option {
	return func(c *Client) {
		c.retryAttempts = attempts
		c.retryBase = base
		c.retryMax = max
	}
}

// WithSleeper overrides how retry sleeps are performed (useful for tests).
func WithSleeper(sleeper func(time.Duration)) Option {
	return func(c *Client) {
		c.sleeper = sleeper
	}
}

// NewClient constructs a client from the LLM configuration section.
func NewClient(cfg config.LLM, opts ...Option) *Client {
	timeout := defaultHTTPTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	client := &Client{
		cfg:           cfg,
		httpClient:    &http.Client{Timeout: timeout},
		retryAttempts: defaultRetryAttempts,
		retryBase:     defaultRetryBase,
		retryMax:      defaultRetryMax,
	}
	for _, opt := range opts {
		opt(client)
	}
	if strings.TrimSpace(client.cfg.BaseURL) == "" {
		client.cfg.BaseURL = defaultBaseURL
	}
	return client
}

// GenerateTitle produces a short episode title for the article text.
func (c *Client) GenerateTitle(ctx context.Context, text string) (string, error) {
	content, err := c.complete(ctx, "generate title", titleSystemPrompt, truncateForPrompt(text), false)
	if err != nil {
		return "", err
	}
	title := strings.Trim(strings.TrimSpace(content), `"“”`)
	if title == "" {
		return "", services.Wrap(services.ErrGeneration, "", "generate title", "model returned an empty title", nil)
	}
	return title, nil
}

// AdaptContent rewrites the article text for the target difficulty level.
func (c *Client) AdaptContent(ctx context.Context, text, level string) (string, error) {
	system := fmt.Sprintf(levelingSystemPrompt, levelDescription(level))
	content, err := c.complete(ctx, "adapt content", system, truncateForPrompt(text), false)
	if err != nil {
		return "", err
	}
	adapted := strings.TrimSpace(content)
	if adapted == "" {
		return "", services.Wrap(services.ErrGeneration, "", "adapt content", "model returned empty content for level "+level, nil)
	}
	return adapted, nil
}

// GenerateDialogue turns adapted content into a structured host/guest
// conversation. The response must be a JSON array of {role, content} with
// at least minTurns entries; anything else is a validation error.
func (c *Client) GenerateDialogue(ctx context.Context, content, level string, minTurns int) ([]Turn, error) {
	system := fmt.Sprintf(dialogueSystemPrompt, levelDescription(level))
	raw, err := c.complete(ctx, "generate dialogue", system, content, true)
	if err != nil {
		return nil, err
	}

	var turns []Turn
	if err := DecodeJSON(raw, &turns); err != nil {
		return nil, services.Wrap(services.ErrValidation, "", "generate dialogue", "response is not a dialogue array", err)
	}
	if len(turns) == 0 {
		return nil, services.Wrap(services.ErrValidation, "", "generate dialogue", "dialogue is empty", nil)
	}
	if minTurns > 0 && len(turns) < minTurns {
		return nil, services.Wrap(services.ErrValidation, "", "generate dialogue",
			fmt.Sprintf("dialogue has %d turns, need at least %d", len(turns), minTurns), nil)
	}
	for i, turn := range turns {
		if !ValidRole(turn.Role) {
			return nil, services.Wrap(services.ErrValidation, "", "generate dialogue",
				fmt.Sprintf("turn %d has unknown role %q", i, turn.Role), nil)
		}
		if strings.TrimSpace(turn.Content) == "" {
			return nil, services.Wrap(services.ErrValidation, "", "generate dialogue",
				fmt.Sprintf("turn %d has empty content", i), nil)
		}
		turns[i].Role = strings.ToLower(strings.TrimSpace(turn.Role))
		turns[i].Content = strings.TrimSpace(turn.Content)
	}
	return turns, nil
}

// TranslateBatch translates an ordered list of texts in one call. The
// response must preserve count and order; a mismatch is a generation
// failure so the caller can fall back to per-item translation.
func (c *Client) TranslateBatch(ctx context.Context, texts []string) ([]string, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	payload, err := json.Marshal(texts)
	if err != nil {
		return nil, fmt.Errorf("encode batch: %w", err)
	}
	raw, err := c.complete(ctx, "translate batch", translateBatchSystemPrompt, string(payload), true)
	if err != nil {
		return nil, err
	}

	var translated []string
	if err := DecodeJSON(raw, &translated); err != nil {
		return nil, services.Wrap(services.ErrGeneration, "", "translate batch", "response is not a string array", err)
	}
	if len(translated) != len(texts) {
		return nil, services.Wrap(services.ErrGeneration, "", "translate batch",
			fmt.Sprintf("got %d translations for %d items", len(translated), len(texts)), nil)
	}
	return translated, nil
}

// TranslateText translates a single text.
func (c *Client) TranslateText(ctx context.Context, text string) (string, error) {
	content, err := c.complete(ctx, "translate text", translateSystemPrompt, text, false)
	if err != nil {
		return "", err
	}
	translated := strings.TrimSpace(content)
	if translated == "" {
		return "", services.Wrap(services.ErrGeneration, "", "translate text", "model returned an empty translation", nil)
	}
	return translated, nil
}

type chatRequest struct {
	Model          string            `json:"model"`
	Messages       []chatMessage     `json:"messages"`
	Temperature    float64           `json:"temperature"`
	ResponseFormat map[string]string `json:"response_format,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		Text string `json:"text"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

type httpStatusError struct {
	StatusCode int
	Body       string
	RetryAfter time.Duration
}

func (e *httpStatusError) Error() string {
	return fmt.Sprintf("llm request: http %d: %s", e.StatusCode, strings.TrimSpace(e.Body))
}

func (c *Client) complete(ctx context.Context, op, systemPrompt, userPrompt string, jsonOnly bool) (string, error) {
	if strings.TrimSpace(c.cfg.APIKey) == "" {
		return "", services.Wrap(services.ErrConfiguration, "", op, "llm api key is not set", nil)
	}
	if strings.TrimSpace(userPrompt) == "" {
		return "", services.Wrap(services.ErrValidation, "", op, "empty prompt input", nil)
	}

	request := chatRequest{
		Model: c.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
	}
	if jsonOnly {
		request.ResponseFormat = map[string]string{"type": "json_object"}
	}

	attempts := c.retryAttempts
	if attempts < 1 {
		attempts = 1
	}
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		content, err := c.sendOnce(ctx, request)
		if err == nil {
			return content, nil
		}
		lastErr = err

		delay, retry := c.retryDelay(err, attempt, attempts)
		if !retry || ctx.Err() != nil {
			break
		}
		if err := c.sleep(ctx, delay); err != nil {
			return "", err
		}
	}
	return "", services.Wrap(services.ErrGeneration, "", op, "", lastErr)
}

func (c *Client) sendOnce(ctx context.Context, request chatRequest) (string, error) {
	encoded, err := json.Marshal(request)
	if err != nil {
		return "", fmt.Errorf("llm request: encode body: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL, bytes.NewReader(encoded))
	if err != nil {
		return "", fmt.Errorf("llm request: new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.Referer != "" {
		req.Header.Set("HTTP-Referer", c.cfg.Referer)
	}
	if c.cfg.Title != "" {
		req.Header.Set("X-Title", c.cfg.Title)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("llm request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("llm request: read body: %w", err)
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		retryAfter, _ := parseRetryAfter(resp.Header.Get("Retry-After"))
		return "", &httpStatusError{
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(body)),
			RetryAfter: retryAfter,
		}
	}

	var completion chatResponse
	if err := json.Unmarshal(body, &completion); err != nil {
		return "", fmt.Errorf("llm request: decode response: %w", err)
	}
	if completion.Error != nil {
		return "", fmt.Errorf("llm request: api error: %s", strings.TrimSpace(completion.Error.Message))
	}
	for _, choice := range completion.Choices {
		if content := strings.TrimSpace(choice.Message.Content); content != "" {
			return content, nil
		}
		if content := strings.TrimSpace(choice.Text); content != "" {
			return content, nil
		}
	}
	return "", errors.New("llm request: empty completion content")
}

func (c *Client) retryDelay(err error, attempt, attempts int) (time.Duration, bool) {
	if attempt >= attempts {
		return 0, false
	}
	var statusErr *httpStatusError
	if errors.As(err, &statusErr) {
		switch {
		case statusErr.StatusCode == http.StatusRequestTimeout,
			statusErr.StatusCode == http.StatusTooManyRequests,
			statusErr.StatusCode >= http.StatusInternalServerError:
			if statusErr.RetryAfter > 0 {
				return c.capDelay(statusErr.RetryAfter), true
			}
			return c.backoffDelay(attempt), true
		default:
			return 0, false
		}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return 0, false
	}
	// Transport failures and empty completions retry with backoff.
	return c.backoffDelay(attempt), true
}

func (c *Client) backoffDelay(attempt int) time.Duration {
	delay := c.retryBase
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= c.retryMax {
			return c.retryMax
		}
	}
	return c.capDelay(delay)
}

func (c *Client) capDelay(delay time.Duration) time.Duration {
	if delay < 0 {
		return 0
	}
	if c.retryMax > 0 && delay > c.retryMax {
		return c.retryMax
	}
	return delay
}

func (c *Client) sleep(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	if c.sleeper != nil {
		c.sleeper(delay)
		return ctx.Err()
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func parseRetryAfter(value string) (time.Duration, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, false
	}
	if seconds, err := strconv.Atoi(value); err == nil {
		if seconds < 0 {
			return 0, false
		}
		return time.Duration(seconds) * time.Second, true
	}
	if when, err := http.ParseTime(value); err == nil {
		if delay := time.Until(when); delay > 0 {
			return delay, true
		}
	}
	return 0, false
}

const promptInputLimit = 12000

func truncateForPrompt(text string) string {
	runes := []rune(strings.TrimSpace(text))
	if len(runes) <= promptInputLimit {
		return string(runes)
	}
	return string(runes[:promptInputLimit])
}

// DecodeJSON decodes JSON from a model response, tolerating code fences
// and surrounding prose.
func DecodeJSON(content string, target any) error {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return errors.New("empty payload")
	}

	directErr := json.Unmarshal([]byte(trimmed), target)
	if directErr == nil {
		return nil
	}

	sanitized := extractJSONPayload(trimmed)
	if sanitized == "" || sanitized == trimmed {
		return directErr
	}
	if err := json.Unmarshal([]byte(sanitized), target); err != nil {
		return err
	}
	return nil
}

func extractJSONPayload(content string) string {
	trimmed := strings.TrimSpace(stripCodeFence(content))
	if trimmed == "" {
		return ""
	}
	if trimmed[0] == '{' || trimmed[0] == '[' {
		return trimmed
	}
	for _, pair := range [][2]string{{"[", "]"}, {"{", "}"}} {
		if start := strings.Index(trimmed, pair[0]); start >= 0 {
			if end := strings.LastIndex(trimmed, pair[1]); end > start {
				return strings.TrimSpace(trimmed[start : end+1])
			}
		}
	}
	return trimmed
}

func stripCodeFence(content string) string {
	trimmed := strings.TrimSpace(content)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	body := strings.TrimLeft(trimmed[3:], " \t\r\n")
	if len(body) >= 4 && strings.EqualFold(body[:4], "json") {
		body = strings.TrimLeft(body[4:], " \t\r\n")
	}
	if idx := strings.LastIndex(body, "```"); idx >= 0 {
		body = body[:idx]
	}
	return strings.TrimSpace(body)
}

func levelDescription(level string) string {
	switch level {
	case "elementary":
		return "beginner learners with a vocabulary of roughly 1500 common words; short sentences, everyday phrasing"
	case "intermediate":
		return "intermediate learners; natural sentence structure with moderately rich vocabulary"
	case "advanced":
		return "advanced learners; native-level vocabulary, idioms, and complex sentence structure"
	default:
		return "general audiences"
	}
}
