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

// Weights for the composite rank. They need not sum to one.
type Weights struct {
	Relevance float64
	Stars     float64
	Activity  float64
	Quality   float64
}

// WeightsFromAM reads the rank config section.
func WeightsFromAM(cfg am.RankConfig) Weights {
	return Weights{
		Relevance: cfg.RelevanceWeight,
		Stars:     cfg.StarsWeight,
		Activity:  cfg.ActivityWeight,
		Quality:   cfg.QualityWeight,
	}
}

func clamp01(x float64) float64 { return math.Max(0, math.Min(1, x)) }

// StarsSignal maps a star count onto 0..1; 100k stars saturate.
func StarsSignal(stars int) float64 {
	return clamp01(math.Log10(float64(max(stars, 0))+1) / 5)
}

// Rank computes FinalScore for every candidate and returns them sorted by
// it, highest first. Equal scores order by name. Activity is normalised
// across the collection, so it only separates candidates from each other.
func Rank(in candidate.List, w Weights) candidate.List {
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, c := range in {
		if c.Activity != nil {
			lo = math.Min(lo, c.Activity.Score)
			hi = math.Max(hi, c.Activity.Score)
		}
	}

	out := in.Clone()
	for i := range out {
		c := &out[i]
		activity := 0.0
		if c.Activity != nil && hi > lo {
			activity = (c.Activity.Score - lo) / (hi - lo)
		}
		quality := 0.0
		if c.Quality != nil {
			quality = clamp01(float64(c.Quality.Score) / 100)
		}
		score := w.Relevance*clamp01(candidate.Value(c.RerankScore)/10) +
			w.Stars*StarsSignal(c.Stars) +
			w.Activity*activity +
			w.Quality*quality
		c.FinalScore = candidate.Float(score)
	}

	sort.SliceStable(out, func(i, j int) bool {
		a, b := *out[i].FinalScore, *out[j].FinalScore
		if a != b {
			return a > b
		}
		return out[i].FullName < out[j].FullName
	})
	return out
}

// RankStage is the rank stage.
func RankStage(cfg am.RankConfig, log *zap.SugaredLogger) func(context.Context, pipeline.Input) (pipeline.Output, error) {
	log = logger.OrNop(log)
	w := WeightsFromAM(cfg)
	return func(_ context.Context, in pipeline.Input) (pipeline.Output, error) {
		out := Rank(in.Collection(pipeline.SlotMerged), w)
		if len(out) > 0 {
			log.Infow("Candidates ranked", logger.FieldCount, len(out), "top", out[0].FullName)
		}
		return pipeline.Output{Candidates: out}, nil
	}
}
