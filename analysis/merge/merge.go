// Package merge joins the activity and quality branches back into one
// collection.
package merge

import (
	"context"

	"go.uber.org/zap"

	"github.com/teranos/reposcout/candidate"
	"github.com/teranos/reposcout/logger"
	"github.com/teranos/reposcout/pipeline"
)

// Join takes the membership and order of base and copies the Activity of
// the matching candidate in activity onto it. Candidates without a quality
// annotation get a zero-score one so every merged record is complete.
func Join(base, activity candidate.List) candidate.List {
	idx := activity.Index()
	out := base.Clone()
	for i := range out {
		if j, ok := idx[out[i].FullName]; ok && activity[j].Activity != nil {
			a := *activity[j].Activity
			out[i].Activity = &a
		}
		if out[i].Quality == nil {
			out[i].Quality = &candidate.Quality{}
		}
	}
	return out
}

// Merger is the merge stage.
type Merger struct {
	log *zap.SugaredLogger
}

// New builds the merge stage.
func New(log *zap.SugaredLogger) *Merger { return &Merger{log: logger.OrNop(log)} }

// Stage joins the quality output with the activity output.
func (m *Merger) Stage(_ context.Context, in pipeline.Input) (pipeline.Output, error) {
	base := in.Collection(pipeline.SlotQuality)
	activity := in.Collection(pipeline.SlotActivity)
	out := Join(base, activity)

	missing := 0
	for _, c := range out {
		if c.Activity == nil {
			missing++
		}
	}
	m.log.Infow("Branches merged",
		logger.FieldCount, len(out),
		"without_activity", missing)
	return pipeline.Output{Candidates: out}, nil
}
