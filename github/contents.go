package github

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"strings"

	"golang.org/x/sync/singleflight"

	"github.com/teranos/reposcout/errors"
	"github.com/teranos/reposcout/logger"
	"github.com/teranos/reposcout/metrics"
)

type contentsResponse struct {
	Encoding string `json:"encoding"`
	Content  string `json:"content"`
}

// Fetch returns the decoded file at path in owner/repo. found is false when
// the file does not exist or could not be retrieved after all attempts.
// Content and definitive absence are cached for the client's lifetime;
// concurrent fetches of one key share a single request.
func (c *Client) Fetch(ctx context.Context, owner, repo, path string) (content string, found bool) {
	key := cacheKey{owner: owner, repo: repo, path: path}
	if e, ok := c.cache.get(key); ok {
		metrics.FetchCache.WithLabelValues("hit").Inc()
		return e.content, e.found
	}
	metrics.FetchCache.WithLabelValues("miss").Inc()

	// The shared request runs detached from any one caller, so a cancelled
	// leader cannot fail the followers waiting on the same key.
	ch := c.flight.DoChan(key.String(), func() (interface{}, error) {
		if e, ok := c.cache.get(key); ok {
			return e, nil
		}
		e, err := c.fetchRemote(context.WithoutCancel(ctx), key)
		if err != nil {
			return nil, err
		}
		return c.cache.store(key, e), nil
	})
	var res singleflight.Result
	select {
	case res = <-ch:
	case <-ctx.Done():
		res = singleflight.Result{Err: ctx.Err()}
	}
	v, err := res.Val, res.Err
	if err != nil {
		c.log.Warnw("Giving up on file fetch",
			logger.FieldRepo, owner+"/"+repo,
			logger.FieldPath, path,
			logger.FieldError, err.Error())
		return "", false
	}
	e := v.(cacheEntry)
	return e.content, e.found
}

// fetchRemote resolves a cache miss. Only content and 404 produce an entry;
// everything else is an error and stays uncached.
func (c *Client) fetchRemote(ctx context.Context, key cacheKey) (cacheEntry, error) {
	resp, err := c.get(ctx, "contents", c.endpointURL(repoPath(key.owner, key.repo, "contents", key.path), nil))
	if errors.Is(err, errors.ErrNotFound) {
		return cacheEntry{found: false}, nil
	}
	if err != nil {
		return cacheEntry{}, err
	}

	var body contentsResponse
	if err := json.Unmarshal(resp.body, &body); err != nil {
		return cacheEntry{}, errors.Wrapf(err, "malformed contents response for %s", key)
	}
	content, err := decodeContent(body)
	if err != nil {
		return cacheEntry{}, errors.Wrapf(err, "failed to decode %s", key)
	}
	return cacheEntry{content: content, found: true}, nil
}

func decodeContent(body contentsResponse) (string, error) {
	switch strings.ToLower(body.Encoding) {
	case "base64":
		// GitHub wraps base64 payloads at 60 columns
		raw := strings.NewReplacer("\n", "", "\r", "").Replace(body.Content)
		decoded, err := base64.StdEncoding.DecodeString(raw)
		if err != nil {
			return "", errors.Wrap(err, "invalid base64 content")
		}
		return string(decoded), nil
	case "", "utf-8", "none":
		return body.Content, nil
	default:
		return "", errors.Newf("unsupported content encoding %q", body.Encoding)
	}
}

// CachedEntries reports how many keys the content cache holds.
func (c *Client) CachedEntries() int { return c.cache.len() }
