package github

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/teranos/reposcout/am"
	"github.com/teranos/reposcout/errors"
	"github.com/teranos/reposcout/internal/httpclient"
)

var frozenNow = time.Unix(1_700_000_000, 0)

// sleepRecorder captures retry waits instead of sleeping.
type sleepRecorder struct {
	mu    sync.Mutex
	waits []time.Duration
}

func (s *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.waits = append(s.waits, d)
	s.mu.Unlock()
	return ctx.Err()
}

func (s *sleepRecorder) recorded() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Duration(nil), s.waits...)
}

func testConfig(baseURL string) am.GitHubConfig {
	return am.GitHubConfig{
		Token:                 "test-token",
		BaseURL:               baseURL,
		MaxAttempts:           3,
		BaseDelayMS:           1000,
		MaxWaitSeconds:        900,
		RequestTimeoutSeconds: 5,
		PageSize:              100,
		MaxPages:              3,
	}
}

func newTestClient(t *testing.T, cfg am.GitHubConfig, opts ...Option) (*Client, *sleepRecorder) {
	t.Helper()
	rec := &sleepRecorder{}
	base := []Option{
		WithHTTPClient(httpclient.New(httpclient.Options{})),
		WithSleeper(rec.sleep),
		WithClock(func() time.Time { return frozenNow }),
		WithLogger(zaptest.NewLogger(t).Sugar()),
	}
	return NewClient(cfg, append(base, opts...)...), rec
}

func contentsBody(content string) string {
	return fmt.Sprintf(`{"encoding":"base64","content":%q}`, base64.StdEncoding.EncodeToString([]byte(content)))
}

func TestFetch_DecodesAndCaches(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		assert.Equal(t, "/repos/psf/requests/contents/requirements.txt", r.URL.Path)
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		fmt.Fprint(w, contentsBody("urllib3\nidna\n"))
	}))
	defer srv.Close()

	c, _ := newTestClient(t, testConfig(srv.URL))

	content, found := c.Fetch(context.Background(), "psf", "requests", "requirements.txt")
	require.True(t, found)
	assert.Equal(t, "urllib3\nidna\n", content)

	content, found = c.Fetch(context.Background(), "psf", "requests", "requirements.txt")
	require.True(t, found)
	assert.Equal(t, "urllib3\nidna\n", content)
	assert.Equal(t, int32(1), hits.Load(), "second fetch must be served from cache")
}

func TestFetch_AbsenceIsCachedAndNeverResurrects(t *testing.T) {
	var hits atomic.Int32
	var exists atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if !exists.Load() {
			http.NotFound(w, r)
			return
		}
		fmt.Fprint(w, contentsBody("numpy"))
	}))
	defer srv.Close()

	c, rec := newTestClient(t, testConfig(srv.URL))

	_, found := c.Fetch(context.Background(), "o", "r", "pyproject.toml")
	assert.False(t, found)
	assert.Empty(t, rec.recorded(), "404 is definitive and not retried")

	exists.Store(true)
	_, found = c.Fetch(context.Background(), "o", "r", "pyproject.toml")
	assert.False(t, found)
	assert.Equal(t, int32(1), hits.Load())
	assert.Equal(t, 1, c.CachedEntries())
}

func TestFetch_RetriesTransientErrors(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		fmt.Fprint(w, contentsBody("flask"))
	}))
	defer srv.Close()

	c, rec := newTestClient(t, testConfig(srv.URL))

	content, found := c.Fetch(context.Background(), "o", "r", "requirements.txt")
	require.True(t, found)
	assert.Equal(t, "flask", content)
	assert.Equal(t, []time.Duration{time.Second}, rec.recorded())
}

func TestFetch_GivesUpAndDoesNotCacheTransientFailure(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c, rec := newTestClient(t, testConfig(srv.URL))

	_, found := c.Fetch(context.Background(), "o", "r", "requirements.txt")
	assert.False(t, found)
	assert.Equal(t, int32(3), hits.Load())
	// waits only between attempts: base*2^0, base*2^1
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, rec.recorded())
	assert.Equal(t, 0, c.CachedEntries())

	_, _ = c.Fetch(context.Background(), "o", "r", "requirements.txt")
	assert.Equal(t, int32(6), hits.Load(), "transient failures are retried on the next fetch")
}

func TestFetch_RateLimitWaitsAreMonotonicAndBoundedByReset(t *testing.T) {
	reset := frozenNow.Add(20 * time.Second)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Ratelimit-Reset", strconv.FormatInt(reset.Unix(), 10))
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	cfg := testConfig(srv.URL)
	cfg.MaxAttempts = 5
	c, rec := newTestClient(t, cfg)

	_, found := c.Fetch(context.Background(), "o", "r", "requirements.txt")
	assert.False(t, found)

	waits := rec.recorded()
	require.Len(t, waits, 4)
	for i, w := range waits {
		assert.LessOrEqual(t, w, 20*time.Second)
		if i > 0 {
			assert.GreaterOrEqual(t, w, waits[i-1])
		}
	}
	assert.Equal(t, 20*time.Second, waits[0])
}

func TestFetch_TooManyRequestsHonoursRetryAfter(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			w.Header().Set("Retry-After", "7")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		fmt.Fprint(w, contentsBody("torch"))
	}))
	defer srv.Close()

	c, rec := newTestClient(t, testConfig(srv.URL))

	content, found := c.Fetch(context.Background(), "o", "r", "requirements.txt")
	require.True(t, found)
	assert.Equal(t, "torch", content)
	assert.Equal(t, []time.Duration{7 * time.Second}, rec.recorded())
}

func TestFetch_ConcurrentIdenticalFetchesShareOneRequest(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		time.Sleep(50 * time.Millisecond)
		fmt.Fprint(w, contentsBody("pandas"))
	}))
	defer srv.Close()

	c, _ := newTestClient(t, testConfig(srv.URL))

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			content, found := c.Fetch(context.Background(), "o", "r", "requirements.txt")
			assert.True(t, found)
			assert.Equal(t, "pandas", content)
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), hits.Load())
}

func TestFetch_CancelledLeaderDoesNotFailFollowers(t *testing.T) {
	var hits atomic.Int32
	started := make(chan struct{}, 1)
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		started <- struct{}{}
		<-release
		fmt.Fprint(w, contentsBody("torch"))
	}))
	defer srv.Close()

	c, _ := newTestClient(t, testConfig(srv.URL))

	leaderCtx, cancelLeader := context.WithCancel(context.Background())
	leaderDone := make(chan bool)
	go func() {
		_, found := c.Fetch(leaderCtx, "o", "r", "requirements.txt")
		leaderDone <- found
	}()
	<-started

	type fetched struct {
		content string
		found   bool
	}
	followerDone := make(chan fetched)
	go func() {
		content, found := c.Fetch(context.Background(), "o", "r", "requirements.txt")
		followerDone <- fetched{content, found}
	}()
	time.Sleep(50 * time.Millisecond)

	cancelLeader()
	assert.False(t, <-leaderDone, "cancelled caller returns at once")
	close(release)

	got := <-followerDone
	assert.True(t, got.found)
	assert.Equal(t, "torch", got.content)
	assert.Equal(t, int32(1), hits.Load())
}

func TestFetch_CancelledDuringWait(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	cfg := testConfig(srv.URL)
	cfg.BaseDelayMS = 60_000
	c := NewClient(cfg,
		WithHTTPClient(httpclient.New(httpclient.Options{})),
		WithLogger(zaptest.NewLogger(t).Sugar()))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, found := c.Fetch(ctx, "o", "r", "requirements.txt")
	assert.False(t, found)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestGet_NotFoundIsDefinitive(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	c, rec := newTestClient(t, testConfig(srv.URL))
	_, err := c.get(context.Background(), "contents", srv.URL+"/x")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrNotFound))
	assert.False(t, errors.IsRetryable(err))
	assert.Empty(t, rec.recorded())
}

func TestBackoff_Wait(t *testing.T) {
	b := Backoff{Base: 2 * time.Second, Max: 15 * time.Second}
	now := frozenNow

	tests := []struct {
		name    string
		attempt int
		reset   time.Time
		want    time.Duration
	}{
		{"first attempt", 0, time.Time{}, 2 * time.Second},
		{"second attempt", 1, time.Time{}, 4 * time.Second},
		{"third attempt", 2, time.Time{}, 8 * time.Second},
		{"capped", 5, time.Time{}, 15 * time.Second},
		{"reset dominates", 0, now.Add(10 * time.Second), 10 * time.Second},
		{"backoff dominates", 2, now.Add(3 * time.Second), 8 * time.Second},
		{"past reset ignored", 0, now.Add(-time.Minute), 2 * time.Second},
		{"far reset capped", 0, now.Add(time.Hour), 15 * time.Second},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, b.Wait(tt.attempt, tt.reset, now))
		})
	}
}

func TestResetTime(t *testing.T) {
	h := http.Header{}
	assert.True(t, resetTime(h, frozenNow).IsZero())

	h.Set("Retry-After", "30")
	assert.Equal(t, frozenNow.Add(30*time.Second), resetTime(h, frozenNow))

	h.Set("X-Ratelimit-Reset", strconv.FormatInt(frozenNow.Unix()+90, 10))
	assert.Equal(t, frozenNow.Add(90*time.Second), resetTime(h, frozenNow))

	h.Set("X-Ratelimit-Reset", "garbage")
	assert.Equal(t, frozenNow.Add(30*time.Second), resetTime(h, frozenNow))
}

func TestRepoPath(t *testing.T) {
	assert.Equal(t, "/repos/a/b/contents/docs/requirements.txt", repoPath("a", "b", "contents", "docs/requirements.txt"))
	assert.Equal(t, "/repos/a%20b/c/pulls", repoPath("a b", "c", "pulls"))
}
