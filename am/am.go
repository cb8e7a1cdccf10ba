// Package am holds reposcout's configuration ("I am"): defaults, TOML files and
// SCOUT_* environment overrides, merged through Viper.
package am

// Config represents the reposcout configuration
type Config struct {
	GitHub    GitHubConfig    `mapstructure:"github"`
	Deps      DepsConfig      `mapstructure:"deps"`
	Judge     JudgeConfig     `mapstructure:"judge"`
	Filter    FilterConfig    `mapstructure:"filter"`
	Retrieval RetrievalConfig `mapstructure:"retrieval"`
	Activity  ActivityConfig  `mapstructure:"activity"`
	Decision  DecisionConfig  `mapstructure:"decision"`
	Sandbox   SandboxConfig   `mapstructure:"sandbox"`
	Pipeline  PipelineConfig  `mapstructure:"pipeline"`
	Rank      RankConfig      `mapstructure:"rank"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
}

// GitHubConfig configures the remote content API client
type GitHubConfig struct {
	Token                 string `mapstructure:"token"`
	BaseURL               string `mapstructure:"base_url"`                // e.g. "https://api.github.com"
	MaxAttempts           int    `mapstructure:"max_attempts"`            // attempts per request before giving up (default: 3)
	BaseDelayMS           int    `mapstructure:"base_delay_ms"`           // backoff base; wait = base * 2^attempt (default: 2000)
	MaxWaitSeconds        int    `mapstructure:"max_wait_seconds"`        // cap on any single wait (default: 900)
	RequestTimeoutSeconds int    `mapstructure:"request_timeout_seconds"` // per-attempt timeout (default: 30)
	PageSize              int    `mapstructure:"page_size"`               // list endpoints per_page (default: 100)
	MaxPages              int    `mapstructure:"max_pages"`               // pages followed per listing (default: 1)
}

// DepsConfig configures dependency analysis
type DepsConfig struct {
	Concurrency     int      `mapstructure:"concurrency"`      // in-flight per-candidate analyses (default: 5)
	Manifests       []string `mapstructure:"manifests"`        // fetched per candidate (default: requirements.txt, pyproject.toml)
	MaxPromptDeps   int      `mapstructure:"max_prompt_deps"`  // dependencies listed in the judgment prompt (default: 25)
	AffirmativeWord string   `mapstructure:"affirmative_word"` // verdict token meaning "compatible" (default: YES)
}

// JudgeConfig configures the compatibility-judgment service
type JudgeConfig struct {
	APIKey          string  `mapstructure:"api_key"`
	BaseURL         string  `mapstructure:"base_url"`         // OpenRouter-compatible endpoint
	Model           string  `mapstructure:"model"`            // e.g. "openai/gpt-4o-mini"
	Temperature     float64 `mapstructure:"temperature"`      // default 0.0
	MaxTokens       int     `mapstructure:"max_tokens"`       // default 64
	IntervalSeconds float64 `mapstructure:"interval_seconds"` // at most one call per interval (default: 30)
	TimeoutSeconds  int     `mapstructure:"timeout_seconds"`  // per-call timeout (default: 120)
}

// FilterConfig configures threshold filtering
type FilterConfig struct {
	MinStars        int     `mapstructure:"min_stars"`        // default 50
	RerankThreshold float64 `mapstructure:"rerank_threshold"` // default 5.5
}

// RetrievalConfig configures ingest, dense retrieval and reranking stand-ins
type RetrievalConfig struct {
	MaxResults int `mapstructure:"max_results"`  // repositories requested from search (default: 100)
	PerPage    int `mapstructure:"per_page"`     // search page size (default: 25)
	DenseK     int `mapstructure:"dense_k"`      // kept after dense retrieval (default: 100)
	RerankTopN int `mapstructure:"rerank_top_n"` // kept after rerank (default: 50)
}

// ActivityConfig configures activity analysis
type ActivityConfig struct {
	Concurrency int `mapstructure:"concurrency"` // default 5
	WindowDays  int `mapstructure:"window_days"` // commit-frequency window (default: 30)
}

// DecisionConfig configures the code-analysis decision maker
type DecisionConfig struct {
	Force           bool     `mapstructure:"force"`            // always run code analysis
	AutoLimit       int      `mapstructure:"auto_limit"`       // run automatically when candidates <= limit (default: 10)
	QualityKeywords []string `mapstructure:"quality_keywords"` // request words that request analysis
}

// SandboxConfig configures the sandboxed analysis tool
type SandboxConfig struct {
	Fetcher                string `mapstructure:"fetcher"`                  // "git" (go-git shallow clone) or "getter" (go-getter sources)
	WorkerCommand          string `mapstructure:"worker_command"`           // worker binary; empty = current executable
	WorkerArgs             string `mapstructure:"worker_args"`              // shell-quoted args (default: "tool serve")
	Analyzer               string `mapstructure:"analyzer"`                 // shell-quoted analyzer command
	MaxLineLength          int    `mapstructure:"max_line_length"`          // default 120
	Extension              string `mapstructure:"extension"`                // default ".py"
	CloneDepth             int    `mapstructure:"clone_depth"`              // default 1
	DiagnosticBudget       int    `mapstructure:"diagnostic_budget"`        // default 500 characters
	TimeoutSeconds         int    `mapstructure:"timeout_seconds"`          // whole invocation timeout (default: 300)
	CloneTimeoutSeconds    int    `mapstructure:"clone_timeout_seconds"`    // clone step, inside the worker (default: 120)
	AnalyzerTimeoutSeconds int    `mapstructure:"analyzer_timeout_seconds"` // analyzer step, inside the worker (default: 150)
	Concurrency            int    `mapstructure:"concurrency"`              // concurrent worker processes (default: 4)
	WorkerMemoryMB         int    `mapstructure:"worker_memory_mb"`         // expected peak per worker; caps concurrency by available memory (0 = off)
}

// PipelineConfig configures the stage engine
type PipelineConfig struct {
	StageTimeoutSeconds int `mapstructure:"stage_timeout_seconds"` // 0 = no per-stage timeout
}

// RankConfig configures the composite ranking weights
type RankConfig struct {
	RelevanceWeight float64 `mapstructure:"relevance_weight"`
	StarsWeight     float64 `mapstructure:"stars_weight"`
	ActivityWeight  float64 `mapstructure:"activity_weight"`
	QualityWeight   float64 `mapstructure:"quality_weight"`
	TopN            int     `mapstructure:"top_n"` // rows shown by the presenter (default: 10)
}

// DatabaseConfig configures run persistence
type DatabaseConfig struct {
	Path    string `mapstructure:"path"`
	Persist bool   `mapstructure:"persist"` // record finished runs (default: true)
}

// MetricsConfig configures the Prometheus endpoint
type MetricsConfig struct {
	Addr string `mapstructure:"addr"` // e.g. ":9464"; empty = disabled
}

// File system constants
const (
	DefaultDirPermissions  = 0755
	DefaultFilePermissions = 0644
)
