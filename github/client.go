// Package github is the resilient client for the GitHub REST API: manifest
// contents with a write-once cache, activity listings and repository search.
// Every request retries transient failures with exponential backoff and
// honours rate-limit reset headers.
package github

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/teranos/reposcout/am"
	"github.com/teranos/reposcout/errors"
	"github.com/teranos/reposcout/internal/httpclient"
	"github.com/teranos/reposcout/logger"
	"github.com/teranos/reposcout/metrics"
)

const maxBodyBytes = 10 << 20

// Client talks to the GitHub REST API.
type Client struct {
	http           *httpclient.Client
	baseURL        string
	token          string
	maxAttempts    int
	backoff        Backoff
	requestTimeout time.Duration
	pageSize       int
	maxPages       int
	manifests      []string

	now   func() time.Time
	sleep Sleeper
	log   *zap.SugaredLogger

	cache  *contentCache
	flight singleflight.Group
}

// Option customises a Client.
type Option func(*Client)

// WithHTTPClient replaces the outbound HTTP client.
func WithHTTPClient(h *httpclient.Client) Option { return func(c *Client) { c.http = h } }

// WithClock injects the time source used for rate-limit reset arithmetic.
func WithClock(now func() time.Time) Option { return func(c *Client) { c.now = now } }

// WithSleeper injects the retry wait.
func WithSleeper(s Sleeper) Option { return func(c *Client) { c.sleep = s } }

// WithLogger sets the client logger.
func WithLogger(l *zap.SugaredLogger) Option { return func(c *Client) { c.log = logger.OrNop(l) } }

// WithManifests sets the manifest paths CollectDependencies fetches.
func WithManifests(paths []string) Option {
	return func(c *Client) { c.manifests = append([]string(nil), paths...) }
}

// NewClient builds a client from the github config section.
func NewClient(cfg am.GitHubConfig, opts ...Option) *Client {
	c := &Client{
		baseURL:        strings.TrimRight(cfg.BaseURL, "/"),
		token:          cfg.Token,
		maxAttempts:    cfg.MaxAttempts,
		backoff:        Backoff{Base: time.Duration(cfg.BaseDelayMS) * time.Millisecond, Max: time.Duration(cfg.MaxWaitSeconds) * time.Second},
		requestTimeout: time.Duration(cfg.RequestTimeoutSeconds) * time.Second,
		pageSize:       cfg.PageSize,
		maxPages:       cfg.MaxPages,
		manifests:      []string{"requirements.txt", "pyproject.toml"},
		now:            time.Now,
		sleep:          sleepContext,
		log:            logger.ComponentLogger("github"),
		cache:          newContentCache(),
	}
	if c.maxAttempts <= 0 {
		c.maxAttempts = 1
	}
	if c.pageSize <= 0 {
		c.pageSize = 100
	}
	if c.maxPages <= 0 {
		c.maxPages = 1
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.http == nil {
		c.http = httpclient.New(httpclient.Options{UserAgent: "reposcout"})
	}
	return c
}

type response struct {
	status int
	header http.Header
	body   []byte
}

// endpointURL joins the base URL with path and an optional query.
func (c *Client) endpointURL(path string, q url.Values) string {
	u := c.baseURL + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	return u
}

// get issues a GET with retries. A 404 returns ErrNotFound immediately; after
// the last attempt the final classified error is returned.
func (c *Client) get(ctx context.Context, endpoint, rawURL string) (*response, error) {
	var lastErr error
	for attempt := 0; attempt < c.maxAttempts; attempt++ {
		resp, err := c.attempt(ctx, rawURL)
		if err != nil && ctx.Err() != nil {
			return nil, errors.Wrap(ctx.Err(), "request cancelled")
		}

		var reset time.Time
		switch {
		case err != nil:
			lastErr = errors.Mark(errors.Wrapf(err, "GET %s", rawURL), errors.ErrTransient)
			metrics.FetchAttempts.WithLabelValues(endpoint, "transient").Inc()
		case resp.status >= 200 && resp.status < 300:
			metrics.FetchAttempts.WithLabelValues(endpoint, "ok").Inc()
			return resp, nil
		case resp.status == http.StatusNotFound:
			metrics.FetchAttempts.WithLabelValues(endpoint, "not_found").Inc()
			return nil, errors.Wrapf(errors.ErrNotFound, "GET %s", rawURL)
		case resp.status == http.StatusForbidden || resp.status == http.StatusTooManyRequests:
			reset = resetTime(resp.header, c.now())
			lastErr = errors.Wrapf(errors.ErrRateLimited, "GET %s: status %d", rawURL, resp.status)
			metrics.FetchAttempts.WithLabelValues(endpoint, "rate_limited").Inc()
		default:
			lastErr = errors.Wrapf(errors.ErrTransient, "GET %s: status %d", rawURL, resp.status)
			metrics.FetchAttempts.WithLabelValues(endpoint, "transient").Inc()
		}

		if attempt == c.maxAttempts-1 {
			break
		}

		wait := c.backoff.Wait(attempt, reset, c.now())
		metrics.BackoffSeconds.Observe(wait.Seconds())
		c.log.Debugw("Retrying GitHub request",
			logger.FieldAttempt, attempt+1,
			logger.FieldWait, wait.String(),
			logger.FieldError, lastErr.Error())
		if err := c.sleep(ctx, wait); err != nil {
			return nil, errors.Wrap(err, "retry wait interrupted")
		}
	}
	return nil, errors.WithDetailf(lastErr, "gave up after %d attempts", c.maxAttempts)
}

// attempt performs one HTTP exchange under its own timeout.
func (c *Client) attempt(ctx context.Context, rawURL string) (*response, error) {
	if c.requestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.requestTimeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to build request")
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, errors.Wrap(err, "failed to read response body")
	}
	return &response{status: resp.StatusCode, header: resp.Header, body: body}, nil
}

// repoPath builds /repos/{owner}/{repo}/... with each segment escaped.
func repoPath(owner, repo string, rest ...string) string {
	var b strings.Builder
	b.WriteString("/repos/")
	b.WriteString(url.PathEscape(owner))
	b.WriteString("/")
	b.WriteString(url.PathEscape(repo))
	for _, r := range rest {
		for _, seg := range strings.Split(r, "/") {
			if seg == "" {
				continue
			}
			b.WriteString("/")
			b.WriteString(url.PathEscape(seg))
		}
	}
	return b.String()
}
