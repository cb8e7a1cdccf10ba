// Package pipeline executes the fixed stage graph over one run's candidate
// state. Stages whose predecessors have all completed run concurrently; a
// join never starts before every one of its predecessors has finished.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/teranos/reposcout/candidate"
	"github.com/teranos/reposcout/errors"
	"github.com/teranos/reposcout/logger"
	"github.com/teranos/reposcout/metrics"
)

// StageFunc implements one stage.
type StageFunc func(ctx context.Context, in Input) (Output, error)

// Engine runs the graph. An Engine may run many times; each run gets its own State.
type Engine struct {
	graph        *compiled
	funcs        map[StageName]StageFunc
	observers    []Observer
	stageTimeout time.Duration
	log          *zap.SugaredLogger
}

// Option customises an Engine.
type Option func(*Engine)

// WithObserver registers an observer for stage events.
func WithObserver(o Observer) Option { return func(e *Engine) { e.observers = append(e.observers, o) } }

// WithStageTimeout bounds every stage; 0 disables.
func WithStageTimeout(d time.Duration) Option { return func(e *Engine) { e.stageTimeout = d } }

// WithLogger sets the engine logger.
func WithLogger(l *zap.SugaredLogger) Option { return func(e *Engine) { e.log = logger.OrNop(l) } }

// New builds an engine for the fixed graph. Every stage must have a function.
func New(funcs map[StageName]StageFunc, opts ...Option) (*Engine, error) {
	return newEngine(Graph(), funcs, opts...)
}

func newEngine(specs []Spec, funcs map[StageName]StageFunc, opts ...Option) (*Engine, error) {
	g, err := compile(specs)
	if err != nil {
		return nil, err
	}
	for _, s := range specs {
		if funcs[s.Name] == nil {
			return nil, errors.Newf("no function registered for stage %q", s.Name)
		}
	}
	e := &Engine{
		graph: g,
		funcs: funcs,
		log:   logger.ComponentLogger("pipeline"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

type stageResult struct {
	name     StageName
	out      Output
	err      error
	duration time.Duration
}

// Run executes every stage once for request. On a stage failure the run
// context is cancelled, in-flight stages are awaited, and the first error
// is returned together with the partial state.
func (e *Engine) Run(ctx context.Context, request string) (*State, error) {
	state := newState(uuid.NewString(), request)
	log := e.log.With(logger.FieldRunID, state.RunID)

	runCtx, cancel := context.WithCancel(logger.WithRunID(ctx, state.RunID))
	defer cancel()

	pending := make(map[StageName]int, len(e.graph.specs))
	for _, s := range e.graph.specs {
		pending[s.Name] = len(s.After)
	}

	results := make(chan stageResult)
	inFlight := 0
	completed := 0
	var firstErr error

	launch := func(name StageName) {
		in := state.snapshot(e.graph, name)
		e.emit(Event{Type: StageStarted, Stage: name, RunID: state.RunID, Time: time.Now()})
		inFlight++
		go func() {
			start := time.Now()
			out, err := e.runStage(runCtx, name, in)
			results <- stageResult{name: name, out: out, err: err, duration: time.Since(start)}
		}()
	}

	for _, s := range e.graph.specs {
		if pending[s.Name] == 0 {
			launch(s.Name)
		}
	}

	for inFlight > 0 {
		r := <-results
		inFlight--
		spec := e.graph.byName[r.name]

		if firstErr != nil {
			// draining after a failure; outputs are discarded
			continue
		}

		err := r.err
		if err == nil {
			err = e.validate(spec, state, r.out)
		}
		if err != nil {
			firstErr = errors.Wrapf(err, "stage %s", r.name)
			metrics.StageDuration.WithLabelValues(string(r.name), "error").Observe(r.duration.Seconds())
			e.emit(Event{Type: StageFailed, Stage: r.name, RunID: state.RunID, Time: time.Now(), Duration: r.duration, Err: err})
			log.Errorw("Stage failed", logger.FieldStage, r.name, logger.FieldError, err.Error())
			cancel()
			continue
		}

		state.commit(spec, r.out)
		completed++
		count := len(r.out.Candidates)
		metrics.StageDuration.WithLabelValues(string(r.name), "ok").Observe(r.duration.Seconds())
		if spec.Writes != "" {
			metrics.StageCandidates.WithLabelValues(string(r.name)).Set(float64(count))
		}
		e.emit(Event{Type: StageCompleted, Stage: r.name, RunID: state.RunID, Time: time.Now(), Duration: r.duration, Count: count})
		log.Debugw("Stage completed",
			logger.FieldStage, r.name,
			logger.FieldCount, count,
			logger.FieldDurationMS, r.duration.Milliseconds())

		for _, dep := range e.graph.dependents[r.name] {
			pending[dep]--
			if pending[dep] == 0 {
				launch(dep)
			}
		}
	}

	if firstErr != nil {
		return state, firstErr
	}
	if completed != len(e.graph.specs) {
		return state, errors.AssertionFailedf("run finished with %d of %d stages completed", completed, len(e.graph.specs))
	}
	return state, nil
}

// runStage calls the stage function under the stage timeout, turning a panic
// into an error.
func (e *Engine) runStage(ctx context.Context, name StageName, in Input) (out Output, err error) {
	if e.stageTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.stageTimeout)
		defer cancel()
	}
	defer func() {
		if p := recover(); p != nil {
			err = errors.Newf("stage panicked: %s", fmt.Sprint(p))
		}
	}()
	out, err = e.funcs[name](logger.WithComponent(ctx, string(name)), in)
	if err == nil && ctx.Err() != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		err = errors.Wrapf(errors.ErrTimeout, "stage exceeded %s", e.stageTimeout)
	}
	return out, err
}

// validate enforces the stage's declared contract on its output.
func (e *Engine) validate(spec Spec, state *State, out Output) error {
	if spec.Writes == "" {
		return nil
	}
	if err := out.Candidates.CheckUnique(); err != nil {
		return err
	}
	if spec.Required && len(out.Candidates) == 0 {
		return errors.Wrapf(errors.ErrNoCandidates, "%s produced no candidates", spec.Name)
	}
	if spec.From == "" {
		return nil
	}

	state.mu.RLock()
	from := state.slots[spec.From]
	state.mu.RUnlock()

	switch spec.Kind {
	case KindSelect:
		return out.Candidates.CheckSubset(from)
	case KindFilter:
		if err := out.Candidates.CheckSubset(from); err != nil {
			return err
		}
		return checkOrder(out.Candidates, from)
	case KindMap:
		return checkSameSequence(out.Candidates, from)
	case KindReorder:
		if len(out.Candidates) != len(from) {
			return errors.NewInvariantError("reorder changed size from %d to %d", len(from), len(out.Candidates))
		}
		return out.Candidates.CheckSubset(from)
	}
	return nil
}

// checkOrder verifies out is a subsequence of in.
func checkOrder(out, in candidate.List) error {
	pos := in.Index()
	last := -1
	for _, c := range out {
		p := pos[c.FullName]
		if p < last {
			return errors.NewInvariantError("filter reordered %q", c.FullName)
		}
		last = p
	}
	return nil
}

func checkSameSequence(out, in candidate.List) error {
	if len(out) != len(in) {
		return errors.NewInvariantError("map changed size from %d to %d", len(in), len(out))
	}
	for i := range out {
		if out[i].FullName != in[i].FullName {
			return errors.NewInvariantError("map changed position %d from %q to %q", i, in[i].FullName, out[i].FullName)
		}
	}
	return nil
}

func (e *Engine) emit(ev Event) {
	for _, o := range e.observers {
		o.OnEvent(ev)
	}
}
