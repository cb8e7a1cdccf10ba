// Package openrouter is a small client for OpenRouter-compatible
// chat-completions endpoints, used for compatibility judgments.
package openrouter

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/teranos/reposcout/am"
	"github.com/teranos/reposcout/errors"
	"github.com/teranos/reposcout/internal/httpclient"
	"github.com/teranos/reposcout/logger"
)

const (
	// DefaultModel is the fallback model when none is specified.
	// Should match the default in am/defaults.go.
	DefaultModel = "openai/gpt-4o-mini"

	// DefaultBaseURL is the public OpenRouter API.
	DefaultBaseURL = "https://openrouter.ai/api/v1"

	defaultMaxAttempts = 3
)

// Config holds client configuration.
type Config struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration // per-request timeout; 0 = none
	Title       string        // X-Title header for dashboard tracking
	MaxAttempts int           // HTTP attempts per Chat call; 0 = 3
}

// ConfigFromAM maps the judge config section onto a client Config. Judgments
// are admitted one per interval by the caller, so each admission gets a
// single HTTP attempt and any failure is the caller's negative verdict.
func ConfigFromAM(cfg am.JudgeConfig) Config {
	return Config{
		APIKey:      cfg.APIKey,
		BaseURL:     cfg.BaseURL,
		Model:       cfg.Model,
		Temperature: cfg.Temperature,
		MaxTokens:   cfg.MaxTokens,
		Timeout:     time.Duration(cfg.TimeoutSeconds) * time.Second,
		Title:       "reposcout/judge",
		MaxAttempts: 1,
	}
}

// Client talks to the chat-completions endpoint.
type Client struct {
	config     Config
	httpClient *httpclient.Client
	retryDelay time.Duration
	logger     *zap.SugaredLogger
}

// Option customises a Client.
type Option func(*Client)

// WithHTTPClient replaces the default private-IP-blocking HTTP client.
// Tests use it to reach httptest servers on loopback.
func WithHTTPClient(h *httpclient.Client) Option { return func(c *Client) { c.httpClient = h } }

// WithRetryDelay sets the linear retry step (attempt * delay).
func WithRetryDelay(d time.Duration) Option { return func(c *Client) { c.retryDelay = d } }

// WithLogger sets the client logger.
func WithLogger(l *zap.SugaredLogger) Option { return func(c *Client) { c.logger = logger.OrNop(l) } }

// NewClient creates a client with defaults applied.
func NewClient(config Config, opts ...Option) *Client {
	if config.Model == "" {
		config.Model = DefaultModel
	}
	if config.BaseURL == "" {
		config.BaseURL = DefaultBaseURL
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")
	if config.MaxTokens <= 0 {
		config.MaxTokens = 64
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = defaultMaxAttempts
	}

	c := &Client{
		config:     config,
		httpClient: httpclient.New(httpclient.Options{BlockPrivateIP: true}),
		retryDelay: time.Second,
		logger:     zap.NewNop().Sugar(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ChatCompletionRequest is the wire request.
type ChatCompletionRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
}

// Message is one chat message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatCompletionResponse is the wire response.
type ChatCompletionResponse struct {
	ID      string   `json:"id"`
	Model   string   `json:"model"`
	Choices []Choice `json:"choices"`
	Usage   Usage    `json:"usage"`
}

// Choice is one completion choice.
type Choice struct {
	Index        int     `json:"index"`
	Message      Message `json:"message"`
	FinishReason string  `json:"finish_reason"`
}

// Usage is token accounting.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// ChatRequest is a high-level request.
type ChatRequest struct {
	SystemPrompt string
	UserPrompt   string
}

// ChatResponse is the trimmed text of the first choice.
type ChatResponse struct {
	Content string
	Usage   Usage
}

// IsConfigured reports whether an API key is set.
func (c *Client) IsConfigured() bool { return c.config.APIKey != "" }

// Model returns the configured model.
func (c *Client) Model() string { return c.config.Model }

// CreateChatCompletion sends one request. Status codes are classified:
// 429 is rate limited, 5xx transient, other non-200 invalid.
func (c *Client) CreateChatCompletion(ctx context.Context, req ChatCompletionRequest) (*ChatCompletionResponse, error) {
	if c.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.config.Timeout)
		defer cancel()
	}

	reqBody, err := json.Marshal(req)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+"/chat/completions", bytes.NewReader(reqBody))
	if err != nil {
		return nil, errors.Wrap(err, "failed to create request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	if c.config.Title != "" {
		httpReq.Header.Set("X-Title", c.config.Title)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, errors.Wrap(errors.ErrTimeout, err.Error())
		}
		return nil, errors.Mark(errors.Wrap(err, "failed to send request"), errors.ErrTransient)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, errors.Mark(errors.Wrap(err, "failed to read response"), errors.ErrTransient)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, errors.Wrapf(errors.ErrRateLimited, "status %d: %s", resp.StatusCode, truncate(respBody))
	case resp.StatusCode >= 500:
		return nil, errors.Wrapf(errors.ErrTransient, "status %d: %s", resp.StatusCode, truncate(respBody))
	default:
		return nil, errors.NewInvalidRequestError("API request failed with status %d: %s", resp.StatusCode, truncate(respBody))
	}

	var chatResp ChatCompletionResponse
	if err := json.Unmarshal(respBody, &chatResp); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal response")
	}
	return &chatResp, nil
}

// Chat sends a prompt, retrying retryable failures with a linear delay up to
// Config.MaxAttempts attempts in total.
func (c *Client) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	if !c.IsConfigured() {
		return nil, errors.WithHint(errors.New("OpenRouter API key not configured"),
			"set SCOUT_JUDGE_API_KEY or OPENROUTER_API_KEY")
	}

	messages := []Message{{Role: "user", Content: req.UserPrompt}}
	if req.SystemPrompt != "" {
		messages = append([]Message{{Role: "system", Content: req.SystemPrompt}}, messages...)
	}
	wire := ChatCompletionRequest{
		Model:       c.config.Model,
		Messages:    messages,
		Temperature: c.config.Temperature,
		MaxTokens:   c.config.MaxTokens,
	}

	var resp *ChatCompletionResponse
	var err error
	for attempt := 0; attempt < c.config.MaxAttempts; attempt++ {
		if attempt > 0 {
			delay := time.Duration(attempt) * c.retryDelay
			c.logger.Debugw("Retrying OpenRouter request",
				logger.FieldAttempt, attempt+1,
				logger.FieldWait, delay)
			select {
			case <-ctx.Done():
				return nil, errors.Wrap(ctx.Err(), "chat cancelled")
			case <-time.After(delay):
			}
		}

		resp, err = c.CreateChatCompletion(ctx, wire)
		if err == nil {
			break
		}
		c.logger.Warnw("OpenRouter API error",
			logger.FieldAttempt, attempt+1,
			logger.FieldError, err.Error(),
			"model", c.config.Model)
		if !errors.IsRetryable(err) || ctx.Err() != nil {
			return nil, errors.Wrap(err, "OpenRouter API error")
		}
	}
	if err != nil {
		return nil, errors.Wrapf(err, "OpenRouter API error after %d attempts", c.config.MaxAttempts)
	}

	if len(resp.Choices) == 0 {
		return nil, errors.New("no response choices from OpenRouter")
	}

	c.logger.Debugw("OpenRouter response",
		"prompt_tokens", resp.Usage.PromptTokens,
		"completion_tokens", resp.Usage.CompletionTokens,
		"cost_usd", CalculateCost(c.config.Model, resp.Usage.PromptTokens, resp.Usage.CompletionTokens))

	return &ChatResponse{
		Content: strings.TrimSpace(resp.Choices[0].Message.Content),
		Usage:   resp.Usage,
	}, nil
}

func truncate(b []byte) string {
	const max = 200
	if len(b) <= max {
		return string(b)
	}
	return string(b[:max]) + "..."
}
