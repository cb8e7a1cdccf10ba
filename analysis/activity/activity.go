// Package activity scores how actively each candidate is maintained from
// open pull requests, open issues and recent commits.
package activity

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/teranos/reposcout/am"
	"github.com/teranos/reposcout/candidate"
	"github.com/teranos/reposcout/logger"
	"github.com/teranos/reposcout/pipeline"
	"github.com/teranos/reposcout/pulse/fanout"
)

// StaleDays stands in for the commit age when it cannot be determined.
const StaleDays = 999

// Source lists the activity signals of one repository.
type Source interface {
	OpenPullRequests(ctx context.Context, owner, repo string) (int, error)
	LatestCommitTime(ctx context.Context, owner, repo string) (time.Time, bool, error)
	CommitsSince(ctx context.Context, owner, repo string, since time.Time) (int, error)
}

// Score combines the signals: pull requests weigh triple, plain issues
// count once, every 30 days without a commit costs one point and each
// recent commit adds a tenth.
func Score(pullRequests, nonPRIssues, daysSinceCommit, recentCommits int) float64 {
	return float64(3*pullRequests+nonPRIssues) - float64(daysSinceCommit)/30 + 0.1*float64(recentCommits)
}

// Analyzer is the activity-analysis stage.
type Analyzer struct {
	source      Source
	concurrency int
	window      time.Duration
	now         func() time.Time
	log         *zap.SugaredLogger
}

// Option customises an Analyzer.
type Option func(*Analyzer)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option { return func(a *Analyzer) { a.now = now } }

// WithLogger sets the stage logger.
func WithLogger(l *zap.SugaredLogger) Option { return func(a *Analyzer) { a.log = logger.OrNop(l) } }

// New builds the stage from the activity config section.
func New(cfg am.ActivityConfig, source Source, opts ...Option) *Analyzer {
	a := &Analyzer{
		source:      source,
		concurrency: cfg.Concurrency,
		window:      time.Duration(cfg.WindowDays) * 24 * time.Hour,
		now:         time.Now,
		log:         zap.NewNop().Sugar(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Stage annotates every filtered candidate, in order.
func (a *Analyzer) Stage(ctx context.Context, in pipeline.Input) (pipeline.Output, error) {
	return pipeline.Output{Candidates: a.Annotate(ctx, in.Collection(pipeline.SlotFiltered))}, nil
}

// Annotate returns a copy of cands with Activity set on every candidate.
// Signals that cannot be fetched fall back to zero pull requests, zero
// recent commits and a stale commit age.
func (a *Analyzer) Annotate(ctx context.Context, cands candidate.List) candidate.List {
	outcomes := fanout.Map(ctx, cands, fanout.Options{Limit: a.concurrency}, a.measure)

	out := cands.Clone()
	for i, o := range outcomes {
		act := o.Value
		if o.Err != nil {
			a.log.Warnw("Activity analysis failed",
				logger.FieldRepo, out[i].FullName,
				logger.FieldError, o.Err.Error())
			act = fallback(out[i].OpenIssues)
		}
		out[i].Activity = &act
	}
	return out
}

func fallback(openIssues int) candidate.Activity {
	return candidate.Activity{
		Score:           Score(0, openIssues, StaleDays, 0),
		NonPRIssues:     openIssues,
		DaysSinceCommit: StaleDays,
	}
}

func (a *Analyzer) measure(ctx context.Context, c candidate.Candidate) (candidate.Activity, error) {
	owner, repo, ok := c.OwnerRepo()
	if !ok {
		return fallback(c.OpenIssues), nil
	}
	log := a.log.With(logger.FieldRepo, c.FullName)
	now := a.now()

	prs, err := a.source.OpenPullRequests(ctx, owner, repo)
	if err != nil {
		log.Debugw("Pull request listing failed", logger.FieldError, err.Error())
		prs = 0
	}

	days := StaleDays
	latest, found, err := a.source.LatestCommitTime(ctx, owner, repo)
	switch {
	case err != nil:
		log.Debugw("Latest commit lookup failed", logger.FieldError, err.Error())
	case found:
		days = int(now.Sub(latest).Hours() / 24)
		if days < 0 {
			days = 0
		}
	}

	recent, err := a.source.CommitsSince(ctx, owner, repo, now.Add(-a.window))
	if err != nil {
		log.Debugw("Commit frequency lookup failed", logger.FieldError, err.Error())
		recent = 0
	}

	nonPR := c.OpenIssues - prs
	if nonPR < 0 {
		nonPR = 0
	}

	return candidate.Activity{
		Score:           Score(prs, nonPR, days, recent),
		PullRequests:    prs,
		NonPRIssues:     nonPR,
		DaysSinceCommit: days,
		CommitsLast30d:  recent,
	}, nil
}
