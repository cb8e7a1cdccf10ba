package github

// Repository search ingestion: the source collection of a pipeline run.

import (
	"context"

	"go.uber.org/zap"

	"github.com/teranos/reposcout/am"
	"github.com/teranos/reposcout/candidate"
	"github.com/teranos/reposcout/errors"
	gh "github.com/teranos/reposcout/github"
	"github.com/teranos/reposcout/logger"
	"github.com/teranos/reposcout/pipeline"
)

// Searcher finds repositories for a query.
type Searcher interface {
	SearchRepositories(ctx context.Context, query string, max, perPage int) ([]gh.Repository, error)
}

// IxProcessor turns a search query into the run's candidate collection.
type IxProcessor struct {
	searcher   Searcher
	maxResults int
	perPage    int
	logger     *zap.SugaredLogger
}

// NewIxProcessor creates an ingest processor from the retrieval config section.
func NewIxProcessor(cfg am.RetrievalConfig, searcher Searcher, log *zap.SugaredLogger) *IxProcessor {
	return &IxProcessor{
		searcher:   searcher,
		maxResults: cfg.MaxResults,
		perPage:    cfg.PerPage,
		logger:     logger.OrNop(log),
	}
}

// Ingest searches for query and converts the results. Repeated names,
// which shifting search pages can produce, keep their first occurrence.
func (p *IxProcessor) Ingest(ctx context.Context, query string) (candidate.List, error) {
	repos, err := p.searcher.SearchRepositories(ctx, query, p.maxResults, p.perPage)
	if err != nil {
		return nil, errors.Wrapf(err, "repository search for %q", query)
	}

	out := make(candidate.List, 0, len(repos))
	seen := make(map[string]struct{}, len(repos))
	for _, r := range repos {
		if r.FullName == "" {
			continue
		}
		if _, dup := seen[r.FullName]; dup {
			continue
		}
		seen[r.FullName] = struct{}{}
		out = append(out, FromRepository(r))
	}

	p.logger.Infow("Repositories ingested",
		"query", query,
		logger.FieldCount, len(out),
		logger.FieldDropped, len(repos)-len(out))
	return out, nil
}

// FromRepository maps a search result onto a fresh candidate.
func FromRepository(r gh.Repository) candidate.Candidate {
	return candidate.Candidate{
		FullName:    r.FullName,
		CloneURL:    r.CloneURL,
		HTMLURL:     r.HTMLURL,
		Description: r.Description,
		Language:    r.Language,
		Topics:      append([]string(nil), r.Topics...),
		Stars:       r.StargazersCount,
		OpenIssues:  r.OpenIssuesCount,
	}
}

// Stage searches with the rewritten query, falling back to the raw request.
func (p *IxProcessor) Stage(ctx context.Context, in pipeline.Input) (pipeline.Output, error) {
	query := in.Query
	if query == "" {
		query = in.Request
	}
	cands, err := p.Ingest(ctx, query)
	if err != nil {
		return pipeline.Output{}, err
	}
	return pipeline.Output{Candidates: cands}, nil
}
