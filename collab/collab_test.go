package collab

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/teranos/reposcout/am"
	"github.com/teranos/reposcout/candidate"
	"github.com/teranos/reposcout/pipeline"
)

func TestRewriteQuery(t *testing.T) {
	tests := []struct {
		request string
		expect  string
	}{
		{"Find me a good LLM inference server that runs on RTX 3060 with 12GB VRAM", "llm inference server"},
		{"python static analysis tools", "python static analysis"},
		{"the a of", ""},
		{"c++ json parser, json parser", "c++ json parser"},
		{"one two three four five six seven eight", "one two three four five six"},
	}
	for _, tt := range tests {
		t.Run(tt.request, func(t *testing.T) {
			assert.Equal(t, tt.expect, RewriteQuery(tt.request))
		})
	}
}

func TestExtractHardware(t *testing.T) {
	tests := []struct {
		request string
		expect  string
	}{
		{"LLM server on RTX 3060 with 12GB VRAM", "RTX 3060, 12GB VRAM"},
		{"speech to text for a Raspberry Pi 4", "Raspberry Pi 4"},
		{"training on an NVIDIA A100", "NVIDIA A100"},
		{"cpu-only embeddings", "cpu-only"},
		{"web framework", ""},
		{"rtx 4090 or RTX 4090", "rtx 4090"},
	}
	for _, tt := range tests {
		t.Run(tt.request, func(t *testing.T) {
			assert.Equal(t, tt.expect, ExtractHardware(tt.request))
		})
	}
}

func TestQueryStageFallsBackToRequest(t *testing.T) {
	stage := QueryStage(zaptest.NewLogger(t).Sugar())
	out, err := stage(context.Background(), pipeline.NewInput("  the a  ", nil))
	require.NoError(t, err)
	assert.Equal(t, "the a", out.Text)
}

func TestDenseRetrieveAndRerank(t *testing.T) {
	in := candidate.List{
		{FullName: "misc/unrelated", Description: "a todo app", Stars: 90000},
		{FullName: "org/fast-vector-db", Description: "vector database", Topics: []string{"vector", "database"}, Stars: 10},
		{FullName: "org/db-tools", Description: "database utilities", Stars: 500},
	}

	retrieved := DenseRetrieve("vector database", in, 2)
	require.Equal(t, []string{"org/fast-vector-db", "org/db-tools"}, retrieved.Names())
	assert.Equal(t, 1.0, *retrieved[0].RetrievalScore)
	assert.Equal(t, 0.5, *retrieved[1].RetrievalScore)
	assert.Nil(t, in[1].RetrievalScore, "input is not mutated")
	require.NoError(t, retrieved.CheckSubset(in))

	reranked := Rerank("vector database", retrieved, 5)
	require.Len(t, reranked, 2)
	assert.Equal(t, "org/fast-vector-db", reranked[0].FullName)
	assert.Greater(t, *reranked[0].RerankScore, 5.5)
	assert.LessOrEqual(t, *reranked[0].RerankScore, 10.0)
}

func TestRerankScoreEmptyQuery(t *testing.T) {
	assert.Zero(t, RerankScore("", candidate.Candidate{FullName: "a/b", Stars: 100}))
	assert.Zero(t, Relevance("the", candidate.Candidate{FullName: "a/b"}))
}

func TestRankOrderAndTieBreak(t *testing.T) {
	w := Weights{Relevance: 0.4, Stars: 0.2, Activity: 0.2, Quality: 0.2}
	in := candidate.List{
		{FullName: "b/same"},
		{FullName: "a/same"},
		{FullName: "top/one", RerankScore: candidate.Float(10), Stars: 99999,
			Activity: &candidate.Activity{Score: 50}, Quality: &candidate.Quality{Score: 100}},
		{FullName: "mid/one", RerankScore: candidate.Float(5), Activity: &candidate.Activity{Score: 10}},
	}

	out := Rank(in, w)
	assert.Equal(t, []string{"top/one", "mid/one", "a/same", "b/same"}, out.Names())
	for _, c := range out {
		require.NotNil(t, c.FinalScore)
	}
	assert.InDelta(t, 0.4+0.2*StarsSignal(99999)+0.2+0.2, *out[0].FinalScore, 1e-9)
	assert.InDelta(t, 0.2, *out[1].FinalScore, 1e-9)
	assert.Zero(t, *out[2].FinalScore)
}

func TestStarsSignal(t *testing.T) {
	assert.Zero(t, StarsSignal(0))
	assert.Zero(t, StarsSignal(-3))
	assert.Equal(t, 1.0, StarsSignal(10_000_000))
	assert.InDelta(t, 0.4, StarsSignal(99), 1e-9)
}

func TestPresent(t *testing.T) {
	ranked := candidate.List{
		{FullName: "top/one", Stars: 1200, FinalScore: candidate.Float(0.91),
			Activity: &candidate.Activity{Score: 12.5}, Quality: &candidate.Quality{Score: 95}},
		{FullName: "org/" + strings.Repeat("x", 60), Stars: 3, FinalScore: candidate.Float(0.2)},
		{FullName: "third/one"},
	}

	text := Present("vector db", "", ranked, 2)
	lines := strings.Split(strings.TrimRight(text, "\n"), "\n")
	assert.Equal(t, "Request:  vector db", lines[0])
	assert.Equal(t, "Hardware: (any)", lines[1])
	assert.Contains(t, lines[3], "REPOSITORY")
	assert.Contains(t, lines[4], "top/one")
	assert.Contains(t, lines[4], "12.5")
	assert.Contains(t, lines[4], "0.910")
	assert.Contains(t, lines[5], "...")
	assert.Len(t, lines[4], len(lines[5]), "rows are fixed width")
	assert.Equal(t, "... and 1 more", lines[len(lines)-1])

	assert.Contains(t, Present("q", "RTX 3060", nil, 10), "No repositories matched.")
}

func TestPresentStage(t *testing.T) {
	in := pipeline.NewInput("req", map[pipeline.Slot]candidate.List{
		pipeline.SlotRanked: {{FullName: "a/a", FinalScore: candidate.Float(1)}},
	})
	in.Hardware = "RTX 3060"
	out, err := PresentStage(am.RankConfig{TopN: 10})(context.Background(), in)
	require.NoError(t, err)
	assert.Contains(t, out.Text, "Hardware: RTX 3060")
	assert.Contains(t, out.Text, "a/a")
}
