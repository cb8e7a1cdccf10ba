package am

import (
	"github.com/spf13/viper"
)

// SetDefaults configures default values for all configuration options
func SetDefaults(v *viper.Viper) {
	// GitHub content API
	v.SetDefault("github.base_url", "https://api.github.com")
	v.SetDefault("github.max_attempts", 3)
	v.SetDefault("github.base_delay_ms", 2000)
	v.SetDefault("github.max_wait_seconds", 900)
	v.SetDefault("github.request_timeout_seconds", 30)
	v.SetDefault("github.page_size", 100)
	v.SetDefault("github.max_pages", 1)

	// Dependency analysis
	v.SetDefault("deps.concurrency", 5)
	v.SetDefault("deps.manifests", []string{"requirements.txt", "pyproject.toml"})
	v.SetDefault("deps.max_prompt_deps", 25)
	v.SetDefault("deps.affirmative_word", "YES")

	// Compatibility judgment
	v.SetDefault("judge.base_url", "https://openrouter.ai/api/v1")
	v.SetDefault("judge.model", "openai/gpt-4o-mini")
	v.SetDefault("judge.temperature", 0.0)
	v.SetDefault("judge.max_tokens", 64)
	v.SetDefault("judge.interval_seconds", 30.0) // one call per 30s, the judge is itself rate-limited
	v.SetDefault("judge.timeout_seconds", 120)

	// Threshold filter
	v.SetDefault("filter.min_stars", 50)
	v.SetDefault("filter.rerank_threshold", 5.5)

	// Retrieval stand-ins
	v.SetDefault("retrieval.max_results", 100)
	v.SetDefault("retrieval.per_page", 25)
	v.SetDefault("retrieval.dense_k", 100)
	v.SetDefault("retrieval.rerank_top_n", 50)

	// Activity
	v.SetDefault("activity.concurrency", 5)
	v.SetDefault("activity.window_days", 30)

	// Decision maker
	v.SetDefault("decision.force", false)
	v.SetDefault("decision.auto_limit", 10)
	v.SetDefault("decision.quality_keywords", []string{
		"static analysis", "lint", "flake8", "code quality", "compliance", "code correctness",
	})

	// Sandbox
	v.SetDefault("sandbox.fetcher", "git")
	v.SetDefault("sandbox.worker_command", "")
	v.SetDefault("sandbox.worker_args", "tool serve")
	v.SetDefault("sandbox.analyzer", "python3 -m flake8")
	v.SetDefault("sandbox.max_line_length", 120)
	v.SetDefault("sandbox.extension", ".py")
	v.SetDefault("sandbox.clone_depth", 1)
	v.SetDefault("sandbox.diagnostic_budget", 500)
	v.SetDefault("sandbox.timeout_seconds", 300)
	v.SetDefault("sandbox.clone_timeout_seconds", 120)
	v.SetDefault("sandbox.analyzer_timeout_seconds", 150)
	v.SetDefault("sandbox.concurrency", 4)
	v.SetDefault("sandbox.worker_memory_mb", 512)

	// Pipeline
	v.SetDefault("pipeline.stage_timeout_seconds", 0)

	// Rank
	v.SetDefault("rank.relevance_weight", 0.4)
	v.SetDefault("rank.stars_weight", 0.2)
	v.SetDefault("rank.activity_weight", 0.2)
	v.SetDefault("rank.quality_weight", 0.2)
	v.SetDefault("rank.top_n", 10)

	// Persistence
	v.SetDefault("database.path", "scout.db")
	v.SetDefault("database.persist", true)

	v.SetDefault("metrics.addr", "")
}

// BindSensitiveEnvVars explicitly binds sensitive configuration to environment variables.
// The unprefixed names are the ones commonly already exported in a shell.
func BindSensitiveEnvVars(v *viper.Viper) {
	_ = v.BindEnv("github.token", "SCOUT_GITHUB_TOKEN", "GITHUB_API_KEY", "GITHUB_TOKEN")
	_ = v.BindEnv("judge.api_key", "SCOUT_JUDGE_API_KEY", "OPENROUTER_API_KEY")
}
