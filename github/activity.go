package github

import (
	"context"
	"encoding/json"
	"net/url"
	"regexp"
	"strconv"
	"time"

	"github.com/teranos/reposcout/errors"
)

var linkNextRe = regexp.MustCompile(`<([^>]+)>\s*;\s*rel="next"`)

// nextLink extracts the rel="next" URL from a Link header.
func nextLink(header string) string {
	m := linkNextRe.FindStringSubmatch(header)
	if m == nil {
		return ""
	}
	return m[1]
}

// listAll follows pagination up to the client's page limit and returns the
// raw array items of every page.
func (c *Client) listAll(ctx context.Context, endpoint, path string, q url.Values) ([]json.RawMessage, error) {
	if q == nil {
		q = url.Values{}
	}
	if q.Get("per_page") == "" {
		q.Set("per_page", strconv.Itoa(c.pageSize))
	}

	var items []json.RawMessage
	next := c.endpointURL(path, q)
	for page := 0; page < c.maxPages && next != ""; page++ {
		resp, err := c.get(ctx, endpoint, next)
		if err != nil {
			return nil, err
		}
		var batch []json.RawMessage
		if err := json.Unmarshal(resp.body, &batch); err != nil {
			return nil, errors.Wrapf(err, "malformed %s listing", endpoint)
		}
		items = append(items, batch...)
		next = nextLink(resp.header.Get("Link"))
	}
	return items, nil
}

// OpenPullRequests counts open pull requests.
func (c *Client) OpenPullRequests(ctx context.Context, owner, repo string) (int, error) {
	items, err := c.listAll(ctx, "pulls", repoPath(owner, repo, "pulls"), url.Values{"state": {"open"}})
	if err != nil {
		return 0, err
	}
	return len(items), nil
}

type commitItem struct {
	Commit struct {
		Committer struct {
			Date time.Time `json:"date"`
		} `json:"committer"`
	} `json:"commit"`
}

// LatestCommitTime returns the committer date of the newest commit on the
// default branch. ok is false for an empty repository.
func (c *Client) LatestCommitTime(ctx context.Context, owner, repo string) (t time.Time, ok bool, err error) {
	rawURL := c.endpointURL(repoPath(owner, repo, "commits"), url.Values{"per_page": {"1"}})
	resp, err := c.get(ctx, "commits", rawURL)
	if err != nil {
		return time.Time{}, false, err
	}
	var commits []commitItem
	if err := json.Unmarshal(resp.body, &commits); err != nil {
		return time.Time{}, false, errors.Wrap(err, "malformed commits listing")
	}
	if len(commits) == 0 {
		return time.Time{}, false, nil
	}
	return commits[0].Commit.Committer.Date, true, nil
}

// CommitsSince counts commits on the default branch after since.
func (c *Client) CommitsSince(ctx context.Context, owner, repo string, since time.Time) (int, error) {
	q := url.Values{"since": {since.UTC().Format(time.RFC3339)}}
	items, err := c.listAll(ctx, "commits", repoPath(owner, repo, "commits"), q)
	if err != nil {
		return 0, err
	}
	return len(items), nil
}
