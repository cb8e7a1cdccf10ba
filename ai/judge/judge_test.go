package judge

import (
	"context"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/teranos/reposcout/ai/openrouter"
	"github.com/teranos/reposcout/am"
	"github.com/teranos/reposcout/errors"
	"github.com/teranos/reposcout/metrics"
)

type fakeChat struct {
	answer string
	err    error
	prompt string
}

func (f *fakeChat) Chat(_ context.Context, req openrouter.ChatRequest) (*openrouter.ChatResponse, error) {
	f.prompt = req.UserPrompt
	if f.err != nil {
		return nil, f.err
	}
	return &openrouter.ChatResponse{Content: f.answer}, nil
}

func TestPrompt(t *testing.T) {
	deps := make([]string, 30)
	for i := range deps {
		deps[i] = string(rune('a' + i%26))
	}
	p := Prompt("RTX 4090", deps, 25)
	assert.True(t, strings.HasPrefix(p, "Given the following dependency list, can this project run on RTX 4090? Answer YES or NO and a short reason.\n\nDependencies:\n"))
	assert.Equal(t, 24, strings.Count(p[strings.Index(p, "Dependencies:"):], ", "))

	assert.Contains(t, Prompt("cpu", []string{"torch", "numpy"}, 0), "torch, numpy")
}

func TestVerdict(t *testing.T) {
	tests := []struct {
		answer string
		expect bool
	}{
		{"YES", true},
		{"yes, it should run", true},
		{"  Yes\nbecause", true},
		{"NO - needs CUDA", false},
		{"YES,", false},
		{"Probably yes", false},
		{"", false},
	}
	for _, tt := range tests {
		t.Run(tt.answer, func(t *testing.T) {
			assert.Equal(t, tt.expect, Verdict(tt.answer, "YES"))
		})
	}
}

func TestCompatible(t *testing.T) {
	cfg := am.DepsConfig{MaxPromptDeps: 25, AffirmativeWord: "yes"}

	chat := &fakeChat{answer: "YES it will"}
	before := testutil.ToFloat64(metrics.Judgments.WithLabelValues("yes"))
	ok, err := New(cfg, chat, zaptest.NewLogger(t).Sugar()).Compatible(context.Background(), "cpu", []string{"requests"})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Contains(t, chat.prompt, "requests")
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.Judgments.WithLabelValues("yes")))

	ok, err = New(cfg, &fakeChat{answer: "NO"}, nil).Compatible(context.Background(), "cpu", []string{"x"})
	require.NoError(t, err)
	assert.False(t, ok)

	errsBefore := testutil.ToFloat64(metrics.Judgments.WithLabelValues("error"))
	ok, err = New(cfg, &fakeChat{err: errors.New("down")}, nil).Compatible(context.Background(), "cpu", []string{"x"})
	assert.Error(t, err)
	assert.False(t, ok)
	assert.Equal(t, errsBefore+1, testutil.ToFloat64(metrics.Judgments.WithLabelValues("error")))
}
