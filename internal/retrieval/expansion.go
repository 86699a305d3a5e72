package retrieval

import (
	"regexp"
	"strings"
)

var tokenPattern = regexp.MustCompile(`[a-zA-Z0-9']+`)

var stopwords = map[string]bool{
	"the": true, "a": true, "an": true, "and": true, "or": true, "of": true,
	"to": true, "in": true, "on": true, "for": true, "is": true, "are": true,
	"was": true, "were": true, "it": true, "that": true, "this": true,
	"with": true, "at": true, "by": true, "as": true, "be": true,
}

// Expand generates up to maxQueries additional query strings: the original
// first, then prefix combinations of salient tokens (non-stopwords at
// least minTokenLen long), longest-prefix first. Expand is idempotent:
// expand(expand(q))'s first element is q, and its candidate set is a
// subset of expand(q)'s.
func Expand(query string, maxQueries, minTokenLen int) []string {
	out := []string{query}
	if maxQueries <= 1 {
		return out
	}

	var salient []string
	for _, tok := range tokenPattern.FindAllString(strings.ToLower(query), -1) {
		if len(tok) < minTokenLen || stopwords[tok] {
			continue
		}
		salient = append(salient, tok)
	}
	if len(salient) == 0 {
		return out
	}

	seen := map[string]bool{strings.ToLower(strings.TrimSpace(query)): true}
	for length := len(salient); length >= 1 && len(out) < maxQueries; length-- {
		candidate := strings.Join(salient[:length], " ")
		key := strings.ToLower(candidate)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, candidate)
	}
	return out
}

// IsNoRecall classifies a query as trivial/empty, short-circuiting the
// pipeline before storage is touched.
func IsNoRecall(query string) bool {
	trimmed := strings.TrimSpace(query)
	if trimmed == "" {
		return true
	}
	tokens := tokenPattern.FindAllString(strings.ToLower(trimmed), -1)
	if len(tokens) == 0 {
		return true
	}
	if len(tokens) == 1 {
		switch tokens[0] {
		case "ok", "okay", "hi", "hello", "thanks", "yes", "no", "k":
			return true
		}
	}
	return false
}
