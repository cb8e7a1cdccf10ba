// Package fanout runs one task per item with bounded concurrency and
// collects outcomes in input order. A failed task never cancels its
// siblings; partial completion is the normal result of a batch.
package fanout

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/teranos/reposcout/errors"
)

// Options bounds a batch.
type Options struct {
	Limit   int           // concurrent tasks; <= 0 means one per item
	Timeout time.Duration // per-task timeout; 0 = none
}

// Outcome is the result of one task. Err is set when the task returned an
// error, panicked or timed out.
type Outcome[T any] struct {
	Index int
	Value T
	Err   error
}

// Map runs fn for every item and returns one Outcome per item, in input order.
func Map[I, O any](ctx context.Context, items []I, opts Options, fn func(context.Context, I) (O, error)) []Outcome[O] {
	outcomes := make([]Outcome[O], len(items))
	if len(items) == 0 {
		return outcomes
	}

	// Plain group: task errors are recorded per outcome, never propagated,
	// so one failure cannot cancel the rest.
	var g errgroup.Group
	if opts.Limit > 0 {
		g.SetLimit(opts.Limit)
	}

	for i, item := range items {
		g.Go(func() error {
			v, err := runTask(ctx, item, opts.Timeout, fn)
			outcomes[i] = Outcome[O]{Index: i, Value: v, Err: err}
			return nil
		})
	}
	_ = g.Wait()
	return outcomes
}

// Collect keeps the values of successful outcomes, preserving order.
func Collect[T any](outcomes []Outcome[T]) []T {
	out := make([]T, 0, len(outcomes))
	for _, o := range outcomes {
		if o.Err == nil {
			out = append(out, o.Value)
		}
	}
	return out
}

// Failed counts outcomes with an error.
func Failed[T any](outcomes []Outcome[T]) int {
	n := 0
	for _, o := range outcomes {
		if o.Err != nil {
			n++
		}
	}
	return n
}

type result[O any] struct {
	v   O
	err error
}

func runTask[I, O any](ctx context.Context, item I, timeout time.Duration, fn func(context.Context, I) (O, error)) (O, error) {
	var zero O
	if err := ctx.Err(); err != nil {
		return zero, err
	}

	taskCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		taskCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	done := make(chan result[O], 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- result[O]{err: errors.Newf("task panicked: %s", fmt.Sprint(r))}
			}
		}()
		v, err := fn(taskCtx, item)
		done <- result[O]{v: v, err: err}
	}()

	// A task that ignores its context is abandoned at the deadline.
	select {
	case r := <-done:
		return r.v, r.err
	case <-taskCtx.Done():
		if errors.Is(taskCtx.Err(), context.DeadlineExceeded) {
			return zero, errors.Wrapf(errors.ErrTimeout, "task exceeded %s", timeout)
		}
		return zero, taskCtx.Err()
	}
}
