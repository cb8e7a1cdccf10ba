package openrouter

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/teranos/reposcout/am"
	"github.com/teranos/reposcout/errors"
	"github.com/teranos/reposcout/internal/httpclient"
)

func newTestClient(t *testing.T, url string) *Client {
	return NewClient(Config{APIKey: "test-key", BaseURL: url + "/"},
		WithHTTPClient(httpclient.New(httpclient.Options{})),
		WithRetryDelay(time.Millisecond),
		WithLogger(zaptest.NewLogger(t).Sugar()))
}

func reply(w http.ResponseWriter, content string) {
	_ = json.NewEncoder(w).Encode(ChatCompletionResponse{
		Choices: []Choice{{Message: Message{Role: "assistant", Content: content}}},
		Usage:   Usage{PromptTokens: 10, CompletionTokens: 2, TotalTokens: 12},
	})
}

func TestNewClientDefaults(t *testing.T) {
	c := NewClient(Config{})
	assert.Equal(t, DefaultModel, c.Model())
	assert.Equal(t, DefaultBaseURL, c.config.BaseURL)
	assert.Equal(t, 64, c.config.MaxTokens)
	assert.False(t, c.IsConfigured())

	fromAM := ConfigFromAM(am.JudgeConfig{APIKey: "k", Model: "m", TimeoutSeconds: 7})
	assert.Equal(t, 7*time.Second, fromAM.Timeout)
	assert.Equal(t, "m", fromAM.Model)
	assert.Equal(t, 1, fromAM.MaxAttempts)
	assert.Equal(t, defaultMaxAttempts, c.config.MaxAttempts)
}

func TestChat(t *testing.T) {
	var got ChatCompletionRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		reply(w, "  YES it runs \n")
	}))
	defer srv.Close()

	resp, err := newTestClient(t, srv.URL).Chat(context.Background(), ChatRequest{SystemPrompt: "sys", UserPrompt: "can it run?"})
	require.NoError(t, err)
	assert.Equal(t, "YES it runs", resp.Content)
	assert.Equal(t, 12, resp.Usage.TotalTokens)

	require.Len(t, got.Messages, 2)
	assert.Equal(t, "system", got.Messages[0].Role)
	assert.Equal(t, "can it run?", got.Messages[1].Content)
	assert.Equal(t, DefaultModel, got.Model)
}

func TestChatRetriesTransient(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		reply(w, "NO")
	}))
	defer srv.Close()

	resp, err := newTestClient(t, srv.URL).Chat(context.Background(), ChatRequest{UserPrompt: "x"})
	require.NoError(t, err)
	assert.Equal(t, "NO", resp.Content)
	assert.EqualValues(t, 3, calls.Load())
}

func TestChatDoesNotRetryInvalid(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, `{"error":"bad key"}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv.URL).Chat(context.Background(), ChatRequest{UserPrompt: "x"})
	require.Error(t, err)
	assert.True(t, errors.IsInvalidRequestError(err))
	assert.EqualValues(t, 1, calls.Load())
}

func TestChatGivesUpAfterAttempts(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv.URL).Chat(context.Background(), ChatRequest{UserPrompt: "x"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrRateLimited))
	assert.EqualValues(t, defaultMaxAttempts, calls.Load())
}

func TestChatNoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv.URL).Chat(context.Background(), ChatRequest{UserPrompt: "x"})
	assert.Error(t, err)
}

func TestChatRequiresKey(t *testing.T) {
	_, err := NewClient(Config{}).Chat(context.Background(), ChatRequest{UserPrompt: "x"})
	require.Error(t, err)
	assert.Contains(t, errors.FlattenHints(err), "OPENROUTER_API_KEY")
}

func TestDefaultClientBlocksLoopback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { reply(w, "YES") }))
	defer srv.Close()

	c := NewClient(Config{APIKey: "k", BaseURL: srv.URL}, WithRetryDelay(time.Millisecond))
	_, err := c.Chat(context.Background(), ChatRequest{UserPrompt: "x"})
	assert.Error(t, err)
}

func TestCalculateCost(t *testing.T) {
	// $0.15/M prompt + $0.60/M completion
	assert.InDelta(t, 0.00045, CalculateCost("openai/gpt-4o-mini", 1000, 500), 1e-9)
	assert.InDelta(t, 0.105, CalculateCost("anthropic/claude-3.5-sonnet", 10000, 5000), 1e-9)
	assert.Zero(t, CalculateCost("unknown/model", 1000, 1000))

	_, ok := Pricing("openai/gpt-4o")
	assert.True(t, ok)
}

func TestChat_SingleAttemptConfig(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	cfg := ConfigFromAM(am.JudgeConfig{APIKey: "k", BaseURL: srv.URL})
	c := NewClient(cfg,
		WithHTTPClient(httpclient.New(httpclient.Options{})),
		WithRetryDelay(time.Millisecond),
		WithLogger(zaptest.NewLogger(t).Sugar()))

	_, err := c.Chat(context.Background(), ChatRequest{UserPrompt: "q"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrTransient))
	assert.EqualValues(t, 1, calls.Load())
}
