package github

import (
	"context"
	"encoding/json"
	"net/url"
	"strconv"

	"github.com/teranos/reposcout/errors"
)

// Repository is the search-result subset the pipeline consumes.
type Repository struct {
	FullName        string   `json:"full_name"`
	CloneURL        string   `json:"clone_url"`
	HTMLURL         string   `json:"html_url"`
	Description     string   `json:"description"`
	Language        string   `json:"language"`
	Topics          []string `json:"topics"`
	StargazersCount int      `json:"stargazers_count"`
	OpenIssuesCount int      `json:"open_issues_count"`
}

type searchResponse struct {
	TotalCount int          `json:"total_count"`
	Items      []Repository `json:"items"`
}

// SearchRepositories returns up to max repositories matching query, sorted
// by stars, requesting perPage results per page.
func (c *Client) SearchRepositories(ctx context.Context, query string, max, perPage int) ([]Repository, error) {
	if query == "" {
		return nil, errors.NewInvalidRequestError("empty search query")
	}
	if perPage <= 0 || perPage > 100 {
		perPage = 100
	}

	var repos []Repository
	for page := 1; len(repos) < max; page++ {
		q := url.Values{
			"q":        {query},
			"sort":     {"stars"},
			"order":    {"desc"},
			"per_page": {strconv.Itoa(perPage)},
			"page":     {strconv.Itoa(page)},
		}
		resp, err := c.get(ctx, "search", c.endpointURL("/search/repositories", q))
		if err != nil {
			if len(repos) > 0 {
				// keep what earlier pages returned
				c.log.Warnw("Search pagination stopped early", "page", page, "error", err.Error())
				break
			}
			return nil, err
		}
		var body searchResponse
		if err := json.Unmarshal(resp.body, &body); err != nil {
			return nil, errors.Wrap(err, "malformed search response")
		}
		repos = append(repos, body.Items...)
		if len(body.Items) < perPage || len(repos) >= body.TotalCount {
			break
		}
	}
	if len(repos) > max {
		repos = repos[:max]
	}
	return repos, nil
}
