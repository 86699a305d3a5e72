// Package intent implements the replaceable ParseIntent collaborator: a
// small rule-based tokenizer/classifier that splits a query into goal,
// action, and entity tokens for intent-routing boosts during retrieval.
package intent

import (
	"regexp"
	"strings"
)

// Intent is the parsed shape of a query, per the §9 Open Question
// resolution: "treat intent extraction as a replaceable collaborator".
type Intent struct {
	GoalTokens   []string
	ActionTokens []string
	EntityTokens []string
}

var actionVerbs = map[string]bool{
	"find": true, "search": true, "recall": true, "remember": true,
	"show": true, "list": true, "get": true, "tell": true, "explain": true,
	"decide": true, "fix": true, "deploy": true, "update": true,
	"prefer": true, "change": true, "set": true,
}

var goalWords = map[string]bool{
	"want": true, "need": true, "should": true, "must": true, "goal": true,
	"plan": true, "trying": true, "hope": true,
}

var entityPattern = regexp.MustCompile(`\b[A-Z][a-zA-Z0-9_-]{2,}\b`)
var wordPattern = regexp.MustCompile(`[a-zA-Z][a-zA-Z0-9_-]*`)

// Parse implements parseIntent(query) → {goalTokens, actionTokens,
// entityTokens}. Deterministic and pure in its input.
func Parse(query string) Intent {
	var out Intent

	for _, m := range entityPattern.FindAllString(query, -1) {
		out.EntityTokens = append(out.EntityTokens, strings.ToLower(m))
	}

	for _, w := range wordPattern.FindAllString(strings.ToLower(query), -1) {
		switch {
		case actionVerbs[w]:
			out.ActionTokens = append(out.ActionTokens, w)
		case goalWords[w]:
			out.GoalTokens = append(out.GoalTokens, w)
		}
	}
	return out
}

// Matches reports whether tags/category overlap any of the intent's
// tokens, used by the retrieval planner's intent_boost term.
func (i Intent) Matches(tags []string, category string) bool {
	all := map[string]bool{strings.ToLower(category): true}
	for _, t := range tags {
		all[strings.ToLower(t)] = true
	}
	for _, tokset := range [][]string{i.GoalTokens, i.ActionTokens, i.EntityTokens} {
		for _, t := range tokset {
			if all[t] {
				return true
			}
		}
	}
	return false
}
