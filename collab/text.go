// Package collab holds deterministic default implementations of the
// collaborator stages: query rewrite, hardware extraction, retrieval,
// rerank, rank and presentation. They carry no model inference and can be
// swapped out through the stage registry.
package collab

import (
	"strings"
	"unicode"
)

var stopWords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "any": {}, "are": {}, "as": {}, "at": {}, "be": {}, "best": {},
	"by": {}, "can": {}, "could": {}, "do": {}, "find": {}, "for": {}, "from": {}, "good": {},
	"have": {}, "i": {}, "in": {}, "is": {}, "it": {}, "library": {}, "libraries": {}, "looking": {},
	"me": {}, "my": {}, "need": {}, "of": {}, "on": {}, "or": {}, "project": {}, "projects": {},
	"recommend": {}, "repo": {}, "repos": {}, "repository": {}, "repositories": {}, "run": {},
	"runs": {}, "show": {}, "some": {}, "that": {}, "the": {}, "this": {}, "to": {}, "tool": {},
	"tools": {}, "want": {}, "what": {}, "which": {}, "with": {}, "without": {}, "would": {},
}

// tokens lower-cases s and splits it into words. Characters that commonly
// appear inside technical names (+ # . -) stay part of a word.
func tokens(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && !strings.ContainsRune("+#.-", r)
	})
}

// terms returns the distinct non-stop-word tokens of s, in order.
func terms(s string) []string {
	var out []string
	seen := make(map[string]struct{})
	for _, t := range tokens(s) {
		t = strings.Trim(t, ".-")
		if len(t) < 2 {
			continue
		}
		if _, stop := stopWords[t]; stop {
			continue
		}
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

func tokenSet(parts ...string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, p := range parts {
		for _, t := range tokens(p) {
			set[strings.Trim(t, ".-")] = struct{}{}
		}
		// "owner/repo-name" should also match "repo" and "name"
		for _, t := range strings.FieldsFunc(strings.ToLower(p), func(r rune) bool { return r == '/' || r == '-' || r == '_' }) {
			set[t] = struct{}{}
		}
	}
	return set
}

func overlap(queryTerms []string, set map[string]struct{}) int {
	n := 0
	for _, t := range queryTerms {
		if _, ok := set[t]; ok {
			n++
		}
	}
	return n
}
