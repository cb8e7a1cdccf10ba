// Package scout wires configuration, collaborators and stage functions into
// a pipeline engine, and records finished runs.
package scout

import (
	"go.uber.org/zap"

	"github.com/teranos/reposcout/ai/judge"
	"github.com/teranos/reposcout/ai/openrouter"
	"github.com/teranos/reposcout/am"
	"github.com/teranos/reposcout/analysis/activity"
	"github.com/teranos/reposcout/analysis/decide"
	"github.com/teranos/reposcout/analysis/deps"
	"github.com/teranos/reposcout/analysis/filter"
	"github.com/teranos/reposcout/analysis/merge"
	"github.com/teranos/reposcout/analysis/quality"
	"github.com/teranos/reposcout/collab"
	"github.com/teranos/reposcout/errors"
	"github.com/teranos/reposcout/github"
	ixgithub "github.com/teranos/reposcout/ixgest/github"
	"github.com/teranos/reposcout/logger"
	"github.com/teranos/reposcout/pipeline"
	"github.com/teranos/reposcout/pulse/gate"
	"github.com/teranos/reposcout/sandbox"
	"github.com/teranos/reposcout/sandbox/toolrpc"
)

// builder collects the collaborators a stage registry is built from. Any
// collaborator left nil is constructed from configuration.
type builder struct {
	searcher  ixgithub.Searcher
	collector deps.Collector
	source    activity.Source
	judge     deps.Judge
	judgeGate *gate.Interval
	tool      quality.Tool
	overrides map[pipeline.StageName]pipeline.StageFunc
	log       *zap.SugaredLogger
}

// Option customises how stages are built.
type Option func(*builder)

// WithSearcher replaces the repository search used by ingest.
func WithSearcher(s ixgithub.Searcher) Option { return func(b *builder) { b.searcher = s } }

// WithCollector replaces the manifest fetcher used by dependency analysis.
func WithCollector(c deps.Collector) Option { return func(b *builder) { b.collector = c } }

// WithActivitySource replaces the activity listings.
func WithActivitySource(s activity.Source) Option { return func(b *builder) { b.source = s } }

// WithJudge replaces the compatibility judge.
func WithJudge(j deps.Judge) Option { return func(b *builder) { b.judge = j } }

// WithJudgeGate replaces the process-wide judgment gate.
func WithJudgeGate(g *gate.Interval) Option { return func(b *builder) { b.judgeGate = g } }

// WithTool replaces the sandboxed quality tool.
func WithTool(t quality.Tool) Option { return func(b *builder) { b.tool = t } }

// WithStage replaces one stage function outright.
func WithStage(name pipeline.StageName, fn pipeline.StageFunc) Option {
	return func(b *builder) {
		if b.overrides == nil {
			b.overrides = make(map[pipeline.StageName]pipeline.StageFunc)
		}
		b.overrides[name] = fn
	}
}

// WithLogger sets the parent logger; each stage gets a named child.
func WithLogger(l *zap.SugaredLogger) Option { return func(b *builder) { b.log = logger.OrNop(l) } }

// Stages builds the full stage registry for cfg.
func Stages(cfg *am.Config, opts ...Option) (map[pipeline.StageName]pipeline.StageFunc, error) {
	b := &builder{log: logger.Logger}
	for _, opt := range opts {
		opt(b)
	}
	if err := b.fill(cfg); err != nil {
		return nil, err
	}
	named := func(n pipeline.StageName) *zap.SugaredLogger { return b.log.Named(string(n)) }

	depOpts := []deps.Option{deps.WithLogger(named(pipeline.DependencyAnalysis))}
	if b.judgeGate != nil {
		depOpts = append(depOpts, deps.WithJudgeGate(b.judgeGate))
	}

	sandboxCfg := cfg.Sandbox
	sandboxCfg.Concurrency = sandbox.Capacity(sandboxCfg.Concurrency, sandboxCfg.WorkerMemoryMB, named(pipeline.QualityAnalysis))

	stages := map[pipeline.StageName]pipeline.StageFunc{
		pipeline.QueryRewrite:       collab.QueryStage(named(pipeline.QueryRewrite)),
		pipeline.HardwareExtract:    collab.HardwareStage(named(pipeline.HardwareExtract)),
		pipeline.Ingest:             ixgithub.NewIxProcessor(cfg.Retrieval, b.searcher, named(pipeline.Ingest)).Stage,
		pipeline.DenseRetrieve:      collab.RetrieveStage(cfg.Retrieval, named(pipeline.DenseRetrieve)),
		pipeline.Rerank:             collab.RerankStage(cfg.Retrieval, named(pipeline.Rerank)),
		pipeline.ThresholdFilter:    filter.New(cfg.Filter, named(pipeline.ThresholdFilter)).Stage,
		pipeline.DependencyAnalysis: deps.New(cfg.Deps, cfg.Judge, b.collector, b.judge, depOpts...).Stage,
		pipeline.ActivityAnalysis:   activity.New(cfg.Activity, b.source, activity.WithLogger(named(pipeline.ActivityAnalysis))).Stage,
		pipeline.DecisionMaker:      decide.New(cfg.Decision, named(pipeline.DecisionMaker)).Stage,
		pipeline.QualityAnalysis:    quality.New(sandboxCfg, b.tool, named(pipeline.QualityAnalysis)).Stage,
		pipeline.Merge:              merge.New(named(pipeline.Merge)).Stage,
		pipeline.Rank:               collab.RankStage(cfg.Rank, named(pipeline.Rank)),
		pipeline.Present:            collab.PresentStage(cfg.Rank),
	}
	for name, fn := range b.overrides {
		if _, ok := stages[name]; !ok {
			return nil, errors.Newf("unknown stage %q", name)
		}
		stages[name] = fn
	}
	return stages, nil
}

// fill constructs every collaborator the caller did not supply.
func (b *builder) fill(cfg *am.Config) error {
	if b.searcher == nil || b.collector == nil || b.source == nil {
		gh := github.NewClient(cfg.GitHub,
			github.WithManifests(cfg.Deps.Manifests),
			github.WithLogger(b.log.Named("github")))
		if b.searcher == nil {
			b.searcher = gh
		}
		if b.collector == nil {
			b.collector = gh
		}
		if b.source == nil {
			b.source = gh
		}
	}
	if b.judge == nil {
		chat := openrouter.NewClient(openrouter.ConfigFromAM(cfg.Judge), openrouter.WithLogger(b.log.Named("openrouter")))
		if !chat.IsConfigured() {
			b.log.Warnw("No judgment API key; every candidate with dependencies will be judged incompatible when a hardware profile is given")
		}
		b.judge = judge.New(cfg.Deps, chat, b.log.Named("judge"))
	}
	if b.tool == nil {
		client, err := toolrpc.NewClient(cfg.Sandbox, toolrpc.WithLogger(b.log.Named("toolrpc")))
		if err != nil {
			return errors.Wrap(err, "sandbox tool client")
		}
		b.tool = client
	}
	return nil
}
