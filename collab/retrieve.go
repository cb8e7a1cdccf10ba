package collab

import (
	"context"
	"math"
	"sort"

	"go.uber.org/zap"

	"github.com/teranos/reposcout/am"
	"github.com/teranos/reposcout/candidate"
	"github.com/teranos/reposcout/logger"
	"github.com/teranos/reposcout/pipeline"
)

// Relevance is the lexical stand-in for dense retrieval: the fraction of
// query terms found anywhere in the candidate's name, description or topics.
func Relevance(query string, c candidate.Candidate) float64 {
	qt := terms(query)
	if len(qt) == 0 {
		return 0
	}
	set := tokenSet(append([]string{c.FullName, c.Description, c.Language}, c.Topics...)...)
	return float64(overlap(qt, set)) / float64(len(qt))
}

// RerankScore is the field-weighted stand-in for cross-encoder reranking,
// on a 0..10 scale: name matches weigh 3, topics 2, description 1, and
// popularity adds up to one point.
func RerankScore(query string, c candidate.Candidate) float64 {
	qt := terms(query)
	if len(qt) == 0 {
		return 0
	}
	name := float64(overlap(qt, tokenSet(c.FullName)))
	topics := float64(overlap(qt, tokenSet(c.Topics...)))
	desc := float64(overlap(qt, tokenSet(c.Description)))
	lexical := (3*name + 2*topics + desc) / (6 * float64(len(qt)))
	return 9*lexical + math.Min(1, math.Log10(float64(c.Stars)+1)/5)
}

// topBy scores every candidate, sorts by score descending (input order
// breaks ties) and keeps the first n.
func topBy(in candidate.List, n int, score func(candidate.Candidate) float64, set func(*candidate.Candidate, float64)) candidate.List {
	out := in.Clone()
	scores := make(map[string]float64, len(out))
	for i := range out {
		s := score(out[i])
		set(&out[i], s)
		scores[out[i].FullName] = s
	}
	sort.SliceStable(out, func(i, j int) bool { return scores[out[i].FullName] > scores[out[j].FullName] })
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out
}

// DenseRetrieve keeps the k most relevant candidates, setting RetrievalScore.
func DenseRetrieve(query string, in candidate.List, k int) candidate.List {
	return topBy(in, k,
		func(c candidate.Candidate) float64 { return Relevance(query, c) },
		func(c *candidate.Candidate, s float64) { c.RetrievalScore = candidate.Float(s) })
}

// Rerank keeps the n best candidates, setting RerankScore.
func Rerank(query string, in candidate.List, n int) candidate.List {
	return topBy(in, n,
		func(c candidate.Candidate) float64 { return RerankScore(query, c) },
		func(c *candidate.Candidate, s float64) { c.RerankScore = candidate.Float(s) })
}

func queryOf(in pipeline.Input) string {
	if in.Query != "" {
		return in.Query
	}
	return in.Request
}

// RetrieveStage is the dense-retrieve stage.
func RetrieveStage(cfg am.RetrievalConfig, log *zap.SugaredLogger) func(context.Context, pipeline.Input) (pipeline.Output, error) {
	log = logger.OrNop(log)
	return func(_ context.Context, in pipeline.Input) (pipeline.Output, error) {
		src := in.Collection(pipeline.SlotIngested)
		out := DenseRetrieve(queryOf(in), src, cfg.DenseK)
		log.Infow("Dense retrieval", logger.FieldInput, len(src), logger.FieldOutput, len(out))
		return pipeline.Output{Candidates: out}, nil
	}
}

// RerankStage is the rerank stage.
func RerankStage(cfg am.RetrievalConfig, log *zap.SugaredLogger) func(context.Context, pipeline.Input) (pipeline.Output, error) {
	log = logger.OrNop(log)
	return func(_ context.Context, in pipeline.Input) (pipeline.Output, error) {
		src := in.Collection(pipeline.SlotRetrieved)
		out := Rerank(queryOf(in), src, cfg.RerankTopN)
		log.Infow("Rerank", logger.FieldInput, len(src), logger.FieldOutput, len(out))
		return pipeline.Output{Candidates: out}, nil
	}
}
