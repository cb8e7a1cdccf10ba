// Package gate provides the admission gates that throttle outbound work: a
// counting gate bounding in-flight operations and an interval gate spacing
// calls to a slow, rate-limited service. The two never share permits.
package gate

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/teranos/reposcout/errors"
)

// Counting admits at most Limit concurrent holders.
type Counting struct {
	limit    int64
	sem      *semaphore.Weighted
	inFlight atomic.Int64
	peak     atomic.Int64
}

// NewCounting creates a counting gate. limit must be positive.
func NewCounting(limit int) *Counting {
	if limit <= 0 {
		limit = 1
	}
	return &Counting{limit: int64(limit), sem: semaphore.NewWeighted(int64(limit))}
}

// Acquire blocks until a permit is free or ctx is done. The returned release
// func is idempotent.
func (g *Counting) Acquire(ctx context.Context) (release func(), err error) {
	if err := g.sem.Acquire(ctx, 1); err != nil {
		return nil, errors.Wrap(err, "admission gate")
	}
	n := g.inFlight.Add(1)
	for {
		p := g.peak.Load()
		if n <= p || g.peak.CompareAndSwap(p, n) {
			break
		}
	}
	var once sync.Once
	return func() {
		once.Do(func() {
			g.inFlight.Add(-1)
			g.sem.Release(1)
		})
	}, nil
}

// Limit returns the configured ceiling.
func (g *Counting) Limit() int { return int(g.limit) }

// InFlight returns the number of current holders.
func (g *Counting) InFlight() int { return int(g.inFlight.Load()) }

// Peak returns the highest number of simultaneous holders observed.
func (g *Counting) Peak() int { return int(g.peak.Load()) }

// Interval admits at most one caller per interval.
type Interval struct {
	every   time.Duration
	limiter *rate.Limiter
	waits   atomic.Int64
}

// NewInterval creates an interval gate. every <= 0 disables throttling.
func NewInterval(every time.Duration) *Interval {
	limit := rate.Inf
	if every > 0 {
		limit = rate.Every(every)
	}
	return &Interval{every: every, limiter: rate.NewLimiter(limit, 1)}
}

// Wait blocks until the next slot or until ctx is done.
func (g *Interval) Wait(ctx context.Context) error {
	g.waits.Add(1)
	if err := g.limiter.Wait(ctx); err != nil {
		return errors.Wrap(err, "interval gate")
	}
	return nil
}

// Every returns the configured interval.
func (g *Interval) Every() time.Duration { return g.every }

// Admitted returns how many Wait calls have been made.
func (g *Interval) Admitted() int64 { return g.waits.Load() }

var (
	sharedMu sync.Mutex
	shared   = map[string]*Interval{}
)

// SharedInterval returns the process-wide interval gate registered under
// name, creating it on first use. Later calls ignore every.
func SharedInterval(name string, every time.Duration) *Interval {
	sharedMu.Lock()
	defer sharedMu.Unlock()
	if g, ok := shared[name]; ok {
		return g
	}
	g := NewInterval(every)
	shared[name] = g
	return g
}
