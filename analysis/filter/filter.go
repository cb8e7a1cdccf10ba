// Package filter implements the threshold filter: a candidate is dropped
// only when it is both unpopular and judged weakly relevant.
package filter

import (
	"context"

	"go.uber.org/zap"

	"github.com/teranos/reposcout/am"
	"github.com/teranos/reposcout/candidate"
	"github.com/teranos/reposcout/logger"
	"github.com/teranos/reposcout/pipeline"
)

// Threshold holds the two cut-offs.
type Threshold struct {
	MinStars        int
	RerankThreshold float64
	log             *zap.SugaredLogger
}

// New builds a Threshold from the filter config section.
func New(cfg am.FilterConfig, log *zap.SugaredLogger) *Threshold {
	return &Threshold{MinStars: cfg.MinStars, RerankThreshold: cfg.RerankThreshold, log: logger.OrNop(log)}
}

// Keep reports whether c survives the filter. An unset rerank score counts as zero.
func (t *Threshold) Keep(c candidate.Candidate) bool {
	return c.Stars >= t.MinStars || candidate.Value(c.RerankScore) >= t.RerankThreshold
}

// Apply returns the surviving candidates in input order. When nothing
// survives the whole input is kept so later stages still have work.
func (t *Threshold) Apply(in candidate.List) candidate.List {
	out := make(candidate.List, 0, len(in))
	for _, c := range in {
		if t.Keep(c) {
			out = append(out, c)
		}
	}
	if len(out) == 0 && len(in) > 0 {
		t.log.Infow("No candidate passed the threshold, keeping all",
			logger.FieldInput, len(in))
		return in
	}
	t.log.Infow("Threshold filter applied",
		logger.FieldInput, len(in),
		logger.FieldOutput, len(out),
		logger.FieldDropped, len(in)-len(out))
	return out
}

// Stage is the pipeline entry point.
func (t *Threshold) Stage(_ context.Context, in pipeline.Input) (pipeline.Output, error) {
	return pipeline.Output{Candidates: t.Apply(in.Collection(pipeline.SlotReranked))}, nil
}
