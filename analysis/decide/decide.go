// Package decide chooses whether the expensive code-quality analysis runs.
package decide

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/teranos/reposcout/am"
	"github.com/teranos/reposcout/logger"
	"github.com/teranos/reposcout/pipeline"
)

// Reason explains a decision.
type Reason string

const (
	ReasonForced    Reason = "forced"
	ReasonRequested Reason = "requested"
	ReasonSmallSet  Reason = "small-set"
	ReasonSkipped   Reason = "skipped"
)

// Maker is the decision-maker stage.
type Maker struct {
	cfg am.DecisionConfig
	log *zap.SugaredLogger
}

// New builds the stage from the decision config section.
func New(cfg am.DecisionConfig, log *zap.SugaredLogger) *Maker {
	return &Maker{cfg: cfg, log: logger.OrNop(log)}
}

// Decide reports whether to analyze count candidates for request.
func (m *Maker) Decide(request string, count int) (bool, Reason) {
	if m.cfg.Force {
		return true, ReasonForced
	}
	lower := strings.ToLower(request)
	for _, kw := range m.cfg.QualityKeywords {
		if kw != "" && strings.Contains(lower, strings.ToLower(kw)) {
			return true, ReasonRequested
		}
	}
	if count > 0 && count <= m.cfg.AutoLimit {
		return true, ReasonSmallSet
	}
	return false, ReasonSkipped
}

// Stage is the pipeline entry point.
func (m *Maker) Stage(_ context.Context, in pipeline.Input) (pipeline.Output, error) {
	count := len(in.Collection(pipeline.SlotFiltered))
	run, reason := m.Decide(in.Request, count)
	m.log.Infow("Code analysis decision",
		"run_code_analysis", run,
		"reason", string(reason),
		logger.FieldCount, count)
	return pipeline.Output{Flag: run}, nil
}
