package scout

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/teranos/reposcout/am"
	"github.com/teranos/reposcout/db/runstore"
	"github.com/teranos/reposcout/logger"
	"github.com/teranos/reposcout/pipeline"
)

// Recorder persists finished runs.
type Recorder interface {
	Record(ctx context.Context, run runstore.Run) error
}

// Scout runs requests through the pipeline.
type Scout struct {
	engine   *pipeline.Engine
	recorder Recorder
	log      *zap.SugaredLogger
}

// Config bundles what New needs beyond the stage options.
type Config struct {
	Recorder  Recorder            // nil = runs are not persisted
	Observers []pipeline.Observer // extra engine observers
	Logger    *zap.SugaredLogger
}

// New builds the stage registry and the engine for cfg.
func New(cfg *am.Config, sc Config, opts ...Option) (*Scout, error) {
	log := logger.OrNop(sc.Logger)
	stages, err := Stages(cfg, append([]Option{WithLogger(log)}, opts...)...)
	if err != nil {
		return nil, err
	}

	engineOpts := []pipeline.Option{
		pipeline.WithLogger(log.Named("pipeline")),
		pipeline.WithObserver(pipeline.LogObserver{Log: log.Named("pipeline")}),
	}
	if cfg.Pipeline.StageTimeoutSeconds > 0 {
		engineOpts = append(engineOpts, pipeline.WithStageTimeout(time.Duration(cfg.Pipeline.StageTimeoutSeconds)*time.Second))
	}
	for _, o := range sc.Observers {
		engineOpts = append(engineOpts, pipeline.WithObserver(o))
	}

	engine, err := pipeline.New(stages, engineOpts...)
	if err != nil {
		return nil, err
	}
	return &Scout{engine: engine, recorder: sc.Recorder, log: log}, nil
}

// Run executes one request. The returned state is non-nil even when the run
// failed, holding whatever completed. Recording failures are logged, never
// returned: the run itself already finished.
func (s *Scout) Run(ctx context.Context, request string) (*pipeline.State, error) {
	state, runErr := s.engine.Run(ctx, request)
	if s.recorder != nil && state != nil {
		rec := RunRecord(state, runErr, time.Now())
		// Persist even when ctx was cancelled mid-run.
		recordCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		if err := s.recorder.Record(recordCtx, rec); err != nil {
			s.log.Warnw("Failed to record run",
				logger.FieldRunID, state.RunID,
				logger.FieldError, err.Error())
		}
	}
	return state, runErr
}

// RunRecord converts a finished state into its persisted form.
func RunRecord(state *pipeline.State, runErr error, finished time.Time) runstore.Run {
	run := runstore.Run{
		ID:              state.RunID,
		Request:         state.Request,
		Query:           state.Query(),
		Hardware:        state.Hardware(),
		RunCodeAnalysis: state.RunCodeAnalysis(),
		Status:          runstore.StatusSucceeded,
		Presentation:    state.Presentation(),
		StartedAt:       state.StartedAt,
		FinishedAt:      finished,
		Candidates:      state.Final(),
	}
	if runErr != nil {
		run.Status = runstore.StatusFailed
		run.Error = runErr.Error()
	}
	return run
}
