// Package deps implements dependency analysis: for a run with a hardware
// profile, each candidate's manifests are fetched and a compatibility
// judgment decides whether the candidate stays.
//
// Two independent gates bound the work. The fetch gate caps how many
// candidates hit the content API at once; the judgment gate admits at most
// one judgment call per interval. They never share permits.
package deps

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/teranos/reposcout/am"
	"github.com/teranos/reposcout/candidate"
	"github.com/teranos/reposcout/errors"
	"github.com/teranos/reposcout/logger"
	"github.com/teranos/reposcout/pipeline"
	"github.com/teranos/reposcout/pulse/fanout"
	"github.com/teranos/reposcout/pulse/gate"
)

// Collector returns the declared dependencies of owner/repo. An empty result
// means no manifest was found.
type Collector interface {
	CollectDependencies(ctx context.Context, owner, repo string) []string
}

// Judge decides whether a dependency set can run on the given hardware.
// Any error is treated as a negative verdict.
type Judge interface {
	Compatible(ctx context.Context, hardware string, deps []string) (bool, error)
}

// Analyzer is the dependency-analysis stage.
type Analyzer struct {
	collector Collector
	judge     Judge
	fetchGate *gate.Counting
	judgeGate *gate.Interval
	log       *zap.SugaredLogger
}

// Option customises an Analyzer.
type Option func(*Analyzer)

// WithJudgeGate replaces the judgment gate.
func WithJudgeGate(g *gate.Interval) Option { return func(a *Analyzer) { a.judgeGate = g } }

// WithLogger sets the stage logger.
func WithLogger(l *zap.SugaredLogger) Option { return func(a *Analyzer) { a.log = logger.OrNop(l) } }

// New builds the stage. By default the judgment gate is the process-wide
// "judge" gate, shared by every Analyzer in the process.
func New(cfg am.DepsConfig, judgeCfg am.JudgeConfig, collector Collector, judge Judge, opts ...Option) *Analyzer {
	a := &Analyzer{
		collector: collector,
		judge:     judge,
		fetchGate: gate.NewCounting(cfg.Concurrency),
		judgeGate: gate.SharedInterval("judge", secondsToDuration(judgeCfg.IntervalSeconds)),
		log:       zap.NewNop().Sugar(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// FetchGate exposes the counting gate, for inspecting peak concurrency.
func (a *Analyzer) FetchGate() *gate.Counting { return a.fetchGate }

// Stage is the pipeline entry point. Without a hardware profile every
// filtered candidate passes through.
func (a *Analyzer) Stage(ctx context.Context, in pipeline.Input) (pipeline.Output, error) {
	cands := in.Collection(pipeline.SlotFiltered)
	if in.Hardware == "" {
		a.log.Infow("No hardware profile, skipping dependency analysis", logger.FieldCount, len(cands))
		return pipeline.Output{Candidates: cands}, nil
	}
	kept, err := a.Filter(ctx, in.Hardware, cands)
	if err != nil {
		return pipeline.Output{}, err
	}
	return pipeline.Output{Candidates: kept}, nil
}

type verdict struct {
	keep bool
	cand candidate.Candidate
}

// Filter keeps the candidates compatible with hardware, in input order. A
// candidate whose task fails (panic or cancellation) is dropped.
func (a *Analyzer) Filter(ctx context.Context, hardware string, cands candidate.List) (candidate.List, error) {
	outcomes := fanout.Map(ctx, cands, fanout.Options{}, func(ctx context.Context, c candidate.Candidate) (verdict, error) {
		return a.check(ctx, hardware, c)
	})
	if err := ctx.Err(); err != nil {
		return nil, errors.Wrap(err, "dependency analysis cancelled")
	}

	for _, o := range outcomes {
		if o.Err != nil {
			a.log.Warnw("Dependency check failed, dropping candidate",
				logger.FieldRepo, cands[o.Index].FullName,
				logger.FieldError, o.Err.Error())
		}
	}
	kept := make(candidate.List, 0, len(cands))
	for _, v := range fanout.Collect(outcomes) {
		if v.keep {
			kept = append(kept, v.cand)
		}
	}
	a.log.Infow("Dependency analysis complete",
		logger.FieldInput, len(cands),
		logger.FieldOutput, len(kept),
		logger.FieldDropped, len(cands)-len(kept),
		"failed", fanout.Failed(outcomes))
	return kept, nil
}

func (a *Analyzer) check(ctx context.Context, hardware string, c candidate.Candidate) (verdict, error) {
	owner, repo, ok := c.OwnerRepo()
	if !ok {
		a.log.Debugw("Unsplittable name, passing through", logger.FieldRepo, c.FullName)
		return verdict{keep: true, cand: c}, nil
	}

	deps, err := a.collect(ctx, owner, repo)
	if err != nil {
		return verdict{}, err
	}

	if len(deps) == 0 {
		return verdict{keep: true, cand: c}, nil
	}
	c.Dependencies = deps

	if err := a.judgeGate.Wait(ctx); err != nil {
		return verdict{}, err
	}
	yes, err := a.judge.Compatible(ctx, hardware, deps)
	if err != nil {
		a.log.Warnw("Judgment failed, treating as incompatible",
			logger.FieldRepo, c.FullName,
			logger.FieldError, err.Error())
		return verdict{cand: c}, nil
	}
	if !yes {
		a.log.Infow("Dropping incompatible candidate", logger.FieldRepo, c.FullName, "hardware", hardware)
	}
	return verdict{keep: yes, cand: c}, nil
}

// collect holds a fetch slot only for the manifest fetch, and returns it even
// when the collector panics.
func (a *Analyzer) collect(ctx context.Context, owner, repo string) ([]string, error) {
	release, err := a.fetchGate.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()
	return a.collector.CollectDependencies(ctx, owner, repo), nil
}

func secondsToDuration(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
