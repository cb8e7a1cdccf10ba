package github

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Backoff computes retry waits: base * 2^attempt, raised to the server's
// reset time when one is known, and capped at Max.
type Backoff struct {
	Base time.Duration
	Max  time.Duration // 0 = uncapped
}

// Wait returns the delay before retrying after the given zero-based attempt.
// reset is the zero time when the server gave no hint.
func (b Backoff) Wait(attempt int, reset, now time.Time) time.Duration {
	wait := b.exponential(attempt)
	if !reset.IsZero() {
		if untilReset := reset.Sub(now); untilReset > wait {
			wait = untilReset
		}
	}
	if b.Max > 0 && wait > b.Max {
		wait = b.Max
	}
	if wait < 0 {
		wait = 0
	}
	return wait
}

func (b Backoff) exponential(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	d := float64(b.Base) * math.Pow(2, float64(attempt))
	if d > float64(math.MaxInt64) {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(d)
}

// resetTime reads the server's rate-limit hint. X-Ratelimit-Reset is an epoch
// second; Retry-After (seconds) is used when it is absent.
func resetTime(h http.Header, now time.Time) time.Time {
	if v := strings.TrimSpace(h.Get("X-Ratelimit-Reset")); v != "" {
		if epoch, err := strconv.ParseInt(v, 10, 64); err == nil && epoch > 0 {
			return time.Unix(epoch, 0)
		}
	}
	if v := strings.TrimSpace(h.Get("Retry-After")); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
			return now.Add(time.Duration(secs) * time.Second)
		}
	}
	return time.Time{}
}

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
