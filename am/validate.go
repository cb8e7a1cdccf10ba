package am

import "github.com/teranos/reposcout/errors"

// Validate checks that the configuration is valid.
// Zero means zero: limits that gate concurrency must be positive.
func (c *Config) Validate() error {
	if c.GitHub.BaseURL == "" {
		return errors.New("github.base_url cannot be empty")
	}
	if c.GitHub.MaxAttempts <= 0 {
		return errors.Newf("github.max_attempts must be > 0, got %d", c.GitHub.MaxAttempts)
	}
	if c.GitHub.BaseDelayMS < 0 {
		return errors.Newf("github.base_delay_ms must be >= 0, got %d", c.GitHub.BaseDelayMS)
	}
	if c.GitHub.MaxWaitSeconds < 0 {
		return errors.Newf("github.max_wait_seconds must be >= 0, got %d", c.GitHub.MaxWaitSeconds)
	}
	if c.GitHub.RequestTimeoutSeconds <= 0 {
		return errors.Newf("github.request_timeout_seconds must be > 0, got %d", c.GitHub.RequestTimeoutSeconds)
	}
	if c.GitHub.PageSize <= 0 || c.GitHub.PageSize > 100 {
		return errors.Newf("github.page_size must be within 1..100, got %d", c.GitHub.PageSize)
	}
	if c.GitHub.MaxPages <= 0 {
		return errors.Newf("github.max_pages must be > 0, got %d", c.GitHub.MaxPages)
	}

	if c.Deps.Concurrency <= 0 {
		return errors.Newf("deps.concurrency must be > 0, got %d", c.Deps.Concurrency)
	}
	if len(c.Deps.Manifests) == 0 {
		return errors.New("deps.manifests cannot be empty")
	}
	if c.Deps.AffirmativeWord == "" {
		return errors.New("deps.affirmative_word cannot be empty")
	}

	if c.Judge.IntervalSeconds < 0 {
		return errors.Newf("judge.interval_seconds must be >= 0, got %f", c.Judge.IntervalSeconds)
	}
	if c.Judge.TimeoutSeconds <= 0 {
		return errors.Newf("judge.timeout_seconds must be > 0, got %d", c.Judge.TimeoutSeconds)
	}

	if c.Filter.MinStars < 0 {
		return errors.Newf("filter.min_stars must be >= 0, got %d", c.Filter.MinStars)
	}

	if c.Retrieval.MaxResults <= 0 || c.Retrieval.PerPage <= 0 {
		return errors.Newf("retrieval.max_results and retrieval.per_page must be > 0, got %d/%d",
			c.Retrieval.MaxResults, c.Retrieval.PerPage)
	}
	if c.Retrieval.DenseK <= 0 || c.Retrieval.RerankTopN <= 0 {
		return errors.Newf("retrieval.dense_k and retrieval.rerank_top_n must be > 0, got %d/%d",
			c.Retrieval.DenseK, c.Retrieval.RerankTopN)
	}

	if c.Activity.Concurrency <= 0 {
		return errors.Newf("activity.concurrency must be > 0, got %d", c.Activity.Concurrency)
	}
	if c.Activity.WindowDays <= 0 {
		return errors.Newf("activity.window_days must be > 0, got %d", c.Activity.WindowDays)
	}

	if c.Decision.AutoLimit < 0 {
		return errors.Newf("decision.auto_limit must be >= 0, got %d", c.Decision.AutoLimit)
	}

	if c.Sandbox.Fetcher != "git" && c.Sandbox.Fetcher != "getter" {
		return errors.Newf("sandbox.fetcher must be \"git\" or \"getter\", got %q", c.Sandbox.Fetcher)
	}
	if c.Sandbox.Analyzer == "" {
		return errors.New("sandbox.analyzer cannot be empty")
	}
	if c.Sandbox.Extension == "" {
		return errors.New("sandbox.extension cannot be empty")
	}
	if c.Sandbox.CloneDepth <= 0 {
		return errors.Newf("sandbox.clone_depth must be > 0, got %d", c.Sandbox.CloneDepth)
	}
	if c.Sandbox.DiagnosticBudget <= 0 {
		return errors.Newf("sandbox.diagnostic_budget must be > 0, got %d", c.Sandbox.DiagnosticBudget)
	}
	if c.Sandbox.TimeoutSeconds <= 0 {
		return errors.Newf("sandbox.timeout_seconds must be > 0, got %d", c.Sandbox.TimeoutSeconds)
	}
	if c.Sandbox.CloneTimeoutSeconds <= 0 || c.Sandbox.CloneTimeoutSeconds >= c.Sandbox.TimeoutSeconds {
		return errors.Newf("sandbox.clone_timeout_seconds must be > 0 and below sandbox.timeout_seconds (%d), got %d",
			c.Sandbox.TimeoutSeconds, c.Sandbox.CloneTimeoutSeconds)
	}
	if c.Sandbox.AnalyzerTimeoutSeconds <= 0 || c.Sandbox.AnalyzerTimeoutSeconds >= c.Sandbox.TimeoutSeconds {
		return errors.Newf("sandbox.analyzer_timeout_seconds must be > 0 and below sandbox.timeout_seconds (%d), got %d",
			c.Sandbox.TimeoutSeconds, c.Sandbox.AnalyzerTimeoutSeconds)
	}
	if c.Sandbox.Concurrency <= 0 {
		return errors.Newf("sandbox.concurrency must be > 0, got %d", c.Sandbox.Concurrency)
	}
	if c.Sandbox.WorkerMemoryMB < 0 {
		return errors.Newf("sandbox.worker_memory_mb must be >= 0, got %d", c.Sandbox.WorkerMemoryMB)
	}

	if c.Pipeline.StageTimeoutSeconds < 0 {
		return errors.Newf("pipeline.stage_timeout_seconds must be >= 0, got %d", c.Pipeline.StageTimeoutSeconds)
	}
	if c.Rank.TopN <= 0 {
		return errors.Newf("rank.top_n must be > 0, got %d", c.Rank.TopN)
	}
	if c.Database.Persist && c.Database.Path == "" {
		return errors.New("database.path cannot be empty when database.persist is enabled")
	}

	return nil
}
