// Package quality runs the sandboxed code-quality tool over the candidates
// that survived dependency analysis.
package quality

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/teranos/reposcout/am"
	"github.com/teranos/reposcout/candidate"
	"github.com/teranos/reposcout/logger"
	"github.com/teranos/reposcout/pipeline"
	"github.com/teranos/reposcout/pulse/fanout"
	"github.com/teranos/reposcout/sandbox"
)

// Tool analyzes one repository. It never fails: errors come back as a
// degraded result.
type Tool interface {
	Analyze(ctx context.Context, cloneURL string) sandbox.Result
}

// Analyzer is the quality-analysis stage.
type Analyzer struct {
	tool        Tool
	concurrency int
	timeout     time.Duration
	log         *zap.SugaredLogger
}

// New builds the stage. Each task gets the sandbox timeout plus a grace
// period so the tool's own kill path fires first.
func New(cfg am.SandboxConfig, tool Tool, log *zap.SugaredLogger) *Analyzer {
	return &Analyzer{
		tool:        tool,
		concurrency: cfg.Concurrency,
		timeout:     time.Duration(cfg.TimeoutSeconds)*time.Second + 10*time.Second,
		log:         logger.OrNop(log),
	}
}

// CloneURL returns the candidate's clone URL, defaulting to the public
// GitHub URL for its name.
func CloneURL(c candidate.Candidate) string {
	if c.CloneURL != "" {
		return c.CloneURL
	}
	return "https://github.com/" + c.FullName + ".git"
}

// Stage annotates the dependency-analysis output. When the decision maker
// said no, candidates pass through unannotated.
func (a *Analyzer) Stage(ctx context.Context, in pipeline.Input) (pipeline.Output, error) {
	cands := in.Collection(pipeline.SlotDependencies)
	if !in.RunCodeAnalysis {
		a.log.Infow("Code analysis skipped", logger.FieldCount, len(cands))
		return pipeline.Output{Candidates: cands}, nil
	}
	return pipeline.Output{Candidates: a.Annotate(ctx, cands)}, nil
}

// Annotate returns a copy of cands with Quality set on every candidate.
func (a *Analyzer) Annotate(ctx context.Context, cands candidate.List) candidate.List {
	opts := fanout.Options{Limit: a.concurrency, Timeout: a.timeout}
	outcomes := fanout.Map(ctx, cands, opts, func(ctx context.Context, c candidate.Candidate) (sandbox.Result, error) {
		return a.tool.Analyze(ctx, CloneURL(c)), nil
	})

	out := cands.Clone()
	degraded := 0
	for i, o := range outcomes {
		res := o.Value
		if o.Err != nil {
			res = sandbox.Degraded(o.Err)
		}
		if res.Score == 0 && res.DiagnosticSample != "" && res.FileCount == 0 {
			degraded++
		}
		out[i].Quality = &candidate.Quality{
			Score:       res.Score,
			IssueCount:  res.IssueCount,
			FileCount:   res.FileCount,
			Diagnostics: res.DiagnosticSample,
		}
	}
	a.log.Infow("Code analysis complete",
		logger.FieldCount, len(out),
		"degraded", degraded)
	return out
}
