// Package sandbox runs the code-quality tool: shallow-clone a repository into
// a throwaway workspace, lint it, score the result and always remove the
// workspace afterwards.
package sandbox

import (
	"context"
	"path"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/teranos/reposcout/am"
	"github.com/teranos/reposcout/errors"
	"github.com/teranos/reposcout/logger"
)

// Result is the tool's answer for one repository.
type Result struct {
	Score            int    `json:"score"`
	IssueCount       int    `json:"issue_count"`
	FileCount        int    `json:"file_count"`
	DiagnosticSample string `json:"diagnostic_sample"`
}

// Degraded is the result reported when any step fails.
func Degraded(err error) Result {
	msg := "analysis failed"
	if err != nil {
		msg = err.Error()
	}
	return Result{DiagnosticSample: msg}
}

// Runner performs analyses.
type Runner struct {
	cloner    Cloner
	analyzer  *Analyzer
	extension string
	budget    int
	tempRoot  string

	cloneTimeout    time.Duration
	analyzerTimeout time.Duration
	log             *zap.SugaredLogger
}

// RunnerOption customises a Runner.
type RunnerOption func(*Runner)

// WithCloner replaces the clone strategy.
func WithCloner(c Cloner) RunnerOption { return func(r *Runner) { r.cloner = c } }

// WithTempRoot places workspaces under dir instead of os.TempDir.
func WithTempRoot(dir string) RunnerOption { return func(r *Runner) { r.tempRoot = dir } }

// WithStepTimeouts bounds the clone and analyzer steps separately. Zero
// leaves a step bounded only by the caller's context.
func WithStepTimeouts(clone, analyzer time.Duration) RunnerOption {
	return func(r *Runner) {
		r.cloneTimeout = clone
		r.analyzerTimeout = analyzer
	}
}

// WithLogger sets the runner logger.
func WithLogger(l *zap.SugaredLogger) RunnerOption {
	return func(r *Runner) { r.log = logger.OrNop(l) }
}

// NewRunner builds a runner from the sandbox config section.
func NewRunner(cfg am.SandboxConfig, opts ...RunnerOption) (*Runner, error) {
	analyzer, err := NewAnalyzer(cfg.Analyzer, cfg.MaxLineLength)
	if err != nil {
		return nil, err
	}
	r := &Runner{
		analyzer:  analyzer,
		extension: cfg.Extension,
		budget:    cfg.DiagnosticBudget,
		log:       logger.ComponentLogger("sandbox"),

		cloneTimeout:    time.Duration(cfg.CloneTimeoutSeconds) * time.Second,
		analyzerTimeout: time.Duration(cfg.AnalyzerTimeoutSeconds) * time.Second,
	}
	switch cfg.Fetcher {
	case "getter":
		r.cloner = GetterCloner{Depth: cfg.CloneDepth}
	default:
		r.cloner = GitCloner{Depth: cfg.CloneDepth, InsecureSkipTLS: true}
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Analyze never fails: any error collapses to a zero score with the error
// text as the diagnostic sample.
func (r *Runner) Analyze(ctx context.Context, cloneURL string) Result {
	start := time.Now()
	res, err := r.analyze(ctx, cloneURL)
	if err != nil {
		r.log.Warnw("Analysis degraded",
			logger.FieldCloneURL, cloneURL,
			logger.FieldDurationMS, time.Since(start).Milliseconds(),
			logger.FieldError, err.Error())
		return Degraded(err)
	}
	r.log.Infow("Analysis complete",
		logger.FieldCloneURL, cloneURL,
		"score", res.Score,
		"issues", res.IssueCount,
		"files", res.FileCount,
		logger.FieldDurationMS, time.Since(start).Milliseconds())
	return res
}

func (r *Runner) analyze(ctx context.Context, cloneURL string) (res Result, err error) {
	ws, err := NewWorkspace(r.tempRoot, "scout-sandbox-*")
	if err != nil {
		return Result{}, err
	}
	defer func() {
		if derr := ws.Destroy(); derr != nil {
			r.log.Debugw("Workspace cleanup failed", logger.FieldPath, ws.Dir, logger.FieldError, derr.Error())
		}
	}()
	defer func() {
		if p := recover(); p != nil {
			err = errors.Newf("analysis panicked: %v", p)
		}
	}()

	checkout := ws.Path(repoDirName(cloneURL))
	if err := r.clone(ctx, cloneURL, checkout); err != nil {
		return Result{}, err
	}

	files, err := CountFiles(checkout, r.extension)
	if err != nil {
		return Result{}, err
	}
	if files == 0 {
		return Result{}, nil
	}

	actx, cancel := withStepTimeout(ctx, r.analyzerTimeout)
	defer cancel()
	diagnostics, issues, err := r.analyzer.Run(actx, checkout)
	if err != nil {
		return Result{FileCount: files}, err
	}

	return Result{
		Score:            Score(issues, files),
		IssueCount:       issues,
		FileCount:        files,
		DiagnosticSample: Truncate(diagnostics, r.budget),
	}, nil
}

func (r *Runner) clone(ctx context.Context, cloneURL, dst string) error {
	cctx, cancel := withStepTimeout(ctx, r.cloneTimeout)
	defer cancel()
	err := r.cloner.Clone(cctx, cloneURL, dst)
	if err == nil {
		return nil
	}
	if cctx.Err() != nil && ctx.Err() == nil {
		return errors.Wrapf(errors.ErrTimeout, "clone exceeded %s: %s", r.cloneTimeout, err.Error())
	}
	return errors.Mark(err, errors.ErrToolFailed)
}

func withStepTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

// repoDirName derives the checkout directory from the URL's last segment.
func repoDirName(cloneURL string) string {
	name := strings.TrimSuffix(path.Base(strings.TrimRight(cloneURL, "/")), ".git")
	if name == "" || name == "." || name == "/" || strings.ContainsAny(name, `\:`) {
		return "repo"
	}
	return name
}
