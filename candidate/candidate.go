// Package candidate defines the repository record threaded through every
// pipeline stage, and the ordered collections stages pass between them.
package candidate

import (
	"strings"

	"github.com/teranos/reposcout/errors"
)

// Candidate is one repository under evaluation. Optional fields stay nil
// until the stage that owns them fills them in.
type Candidate struct {
	FullName    string   `json:"full_name"`
	CloneURL    string   `json:"clone_url"`
	HTMLURL     string   `json:"html_url,omitempty"`
	Description string   `json:"description,omitempty"`
	Language    string   `json:"language,omitempty"`
	Topics      []string `json:"topics,omitempty"`
	Stars       int      `json:"stars"`
	OpenIssues  int      `json:"open_issues"`

	RetrievalScore *float64  `json:"retrieval_score,omitempty"`
	RerankScore    *float64  `json:"rerank_score,omitempty"`
	Activity       *Activity `json:"activity,omitempty"`
	Quality        *Quality  `json:"quality,omitempty"`
	Dependencies   []string  `json:"dependencies,omitempty"`
	FinalScore     *float64  `json:"final_score,omitempty"`
}

// Activity is the maintenance signal computed from pull requests, issues and commits.
type Activity struct {
	Score           float64 `json:"score"`
	PullRequests    int     `json:"pull_requests"`
	NonPRIssues     int     `json:"non_pr_issues"`
	DaysSinceCommit int     `json:"days_since_commit"`
	CommitsLast30d  int     `json:"commits_last_30d"`
}

// Quality is the static-analysis signal produced by the sandbox tool.
type Quality struct {
	Score       int    `json:"score"`
	IssueCount  int    `json:"issue_count"`
	FileCount   int    `json:"file_count"`
	Diagnostics string `json:"diagnostics,omitempty"`
}

// Float returns a pointer to f, for filling optional score fields.
func Float(f float64) *float64 { return &f }

// Value dereferences an optional score, treating unset as zero.
func Value(f *float64) float64 {
	if f == nil {
		return 0
	}
	return *f
}

// OwnerRepo splits FullName into owner and repo. ok is false when the name is
// not exactly two non-empty slash-separated parts.
func (c Candidate) OwnerRepo() (owner, repo string, ok bool) {
	parts := strings.Split(c.FullName, "/")
	if len(parts) != 2 {
		return "", "", false
	}
	owner, repo = strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])
	if owner == "" || repo == "" {
		return "", "", false
	}
	return owner, repo, true
}

// Clone returns a copy that shares no mutable state with c.
func (c Candidate) Clone() Candidate {
	out := c
	if c.Topics != nil {
		out.Topics = append([]string(nil), c.Topics...)
	}
	if c.Dependencies != nil {
		out.Dependencies = append([]string(nil), c.Dependencies...)
	}
	if c.RetrievalScore != nil {
		out.RetrievalScore = Float(*c.RetrievalScore)
	}
	if c.RerankScore != nil {
		out.RerankScore = Float(*c.RerankScore)
	}
	if c.FinalScore != nil {
		out.FinalScore = Float(*c.FinalScore)
	}
	if c.Activity != nil {
		a := *c.Activity
		out.Activity = &a
	}
	if c.Quality != nil {
		q := *c.Quality
		out.Quality = &q
	}
	return out
}

// List is an ordered candidate collection.
type List []Candidate

// Clone deep-copies every candidate in the list.
func (l List) Clone() List {
	if l == nil {
		return nil
	}
	out := make(List, len(l))
	for i, c := range l {
		out[i] = c.Clone()
	}
	return out
}

// Names returns the FullName of every candidate, in order.
func (l List) Names() []string {
	names := make([]string, len(l))
	for i, c := range l {
		names[i] = c.FullName
	}
	return names
}

// Index maps FullName to position. Later duplicates overwrite earlier ones;
// callers that care run CheckUnique first.
func (l List) Index() map[string]int {
	idx := make(map[string]int, len(l))
	for i, c := range l {
		idx[c.FullName] = i
	}
	return idx
}

// CheckUnique reports the first duplicated FullName, if any.
func (l List) CheckUnique() error {
	seen := make(map[string]struct{}, len(l))
	for _, c := range l {
		if _, dup := seen[c.FullName]; dup {
			return errors.NewInvariantError("duplicate candidate %q", c.FullName)
		}
		seen[c.FullName] = struct{}{}
	}
	return nil
}

// CheckSubset reports the first candidate in l that is absent from input.
// Filter stages must satisfy it: nothing dropped upstream may reappear.
func (l List) CheckSubset(input List) error {
	allowed := make(map[string]struct{}, len(input))
	for _, c := range input {
		allowed[c.FullName] = struct{}{}
	}
	if len(l) > len(input) {
		return errors.NewInvariantError("filter grew collection from %d to %d", len(input), len(l))
	}
	for _, c := range l {
		if _, ok := allowed[c.FullName]; !ok {
			return errors.NewInvariantError("candidate %q not present in filter input", c.FullName)
		}
	}
	return nil
}
