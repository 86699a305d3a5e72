// Package signal classifies turns and memory items by importance using
// built-in regex panels, and implements the episode/note classifier.
package signal

import (
	"regexp"
	"strings"
)

// TurnLevel is the signal strength detected in a single turn.
type TurnLevel string

const (
	TurnNone   TurnLevel = "none"
	TurnLow    TurnLevel = "low"
	TurnMedium TurnLevel = "medium"
	TurnHigh   TurnLevel = "high"
)

// ItemLevel is the importance bucket assigned to a memory item.
type ItemLevel string

const (
	ItemTrivial  ItemLevel = "trivial"
	ItemLow      ItemLevel = "low"
	ItemNormal   ItemLevel = "normal"
	ItemHigh     ItemLevel = "high"
	ItemCritical ItemLevel = "critical"
)

// builtin high-signal patterns: corrections, explicit preferences, identity
// statements, decisions, durable commitments.
var builtinHigh = compileAll([]string{
	`(?i)\bactually[, ]`,
	`(?i)\bi meant\b`,
	`(?i)\bno[, ]+(i|that's not)\b`,
	`(?i)\bi (prefer|always|never|hate|love)\b`,
	`(?i)\bfrom now on\b`,
	`(?i)\bi am\b.{0,20}\b(a|an)\b`,
	`(?i)\bmy name is\b`,
	`(?i)\bwe (decided|agreed|will)\b`,
	`(?i)\bi've decided\b`,
	`(?i)\bremember that\b`,
})

// builtin medium-signal patterns: hedged beliefs, habitual markers.
var builtinMedium = compileAll([]string{
	`(?i)\bi think\b`,
	`(?i)\bi usually\b`,
	`(?i)\bi tend to\b`,
	`(?i)\bi guess\b`,
	`(?i)\bprobably\b`,
	`(?i)\bmight\b`,
	`(?i)\bi often\b`,
})

// Panel holds a compiled regex panel that can be merged with user-supplied
// patterns.
type Panel struct {
	High   []*regexp.Regexp
	Medium []*regexp.Regexp
}

// NewPanel builds the default panel plus any user-supplied high-signal
// patterns (config.HighSignalPatterns).
func NewPanel(userHigh []string) (*Panel, error) {
	extra, err := compileUser(userHigh)
	if err != nil {
		return nil, err
	}
	return &Panel{
		High:   append(append([]*regexp.Regexp{}, builtinHigh...), extra...),
		Medium: builtinMedium,
	}, nil
}

func compileAll(pats []string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, 0, len(pats))
	for _, p := range pats {
		out = append(out, regexp.MustCompile(p))
	}
	return out
}

func compileUser(pats []string) ([]*regexp.Regexp, error) {
	out := make([]*regexp.Regexp, 0, len(pats))
	for _, p := range pats {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, err
		}
		out = append(out, re)
	}
	return out, nil
}

// ScanTurn is a pure function of (text, panel): same inputs always yield
// the same TurnLevel.
func (p *Panel) ScanTurn(text string) TurnLevel {
	for _, re := range p.High {
		if re.MatchString(text) {
			return TurnHigh
		}
	}
	medHits := 0
	for _, re := range p.Medium {
		if re.MatchString(text) {
			medHits++
		}
	}
	switch {
	case medHits >= 2:
		return TurnMedium
	case medHits == 1:
		return TurnLow
	default:
		return TurnNone
	}
}

// noteCategories classify as stable beliefs for the episode/note cascade.
var noteCategories = map[string]bool{
	"preference": true, "constraint": true, "goal": true, "habit": true,
	"policy": true, "standard": true, "belief": true, "decision": true,
	"principle": true, "commitment": true, "relationship": true,
	"skill": true, "correction": true, "entity": true,
}

// episodeCategories classify as time-bound events.
var episodeCategories = map[string]bool{
	"event": true, "action": true, "observation": true, "issue": true,
	"bug": true, "incident": true, "moment": true,
}

var temporalMarkers = compileAll([]string{
	`(?i)\byesterday\b`,
	`(?i)\btoday\b`,
	`(?i)\blast monday\b`,
	`(?i)\bon tuesday\b`,
	`(?i)\brecently\b`,
	`(?i)\bthis morning\b`,
})

var verbMarkers = []string{
	"deployed", "pushed", "fixed", "merged", "reported", "mentioned",
	"said", "happened", "failed", "completed", "shipped",
}

var noteSignalWords = []string{
	"prefer", "always", "never", "must", "should", "goal", "policy",
	"require", "constraint", "standard", "convention",
}

// ClassifyMemoryKind is the ordered rule cascade that decides whether a
// candidate item is an episode or a note.
func ClassifyMemoryKind(content string, tags []string, category string) string {
	for _, re := range temporalMarkers {
		if re.MatchString(content) {
			return "episode"
		}
	}

	cat := strings.ToLower(category)
	if noteCategories[cat] {
		return "note"
	}
	if episodeCategories[cat] {
		return "episode"
	}

	if kind, ok := classifyByTags(tags); ok {
		return kind
	}

	lower := strings.ToLower(content)
	for _, v := range verbMarkers {
		if strings.Contains(lower, v) {
			return "episode"
		}
	}
	for _, w := range noteSignalWords {
		if strings.Contains(lower, w) {
			return "note"
		}
	}

	return "episode"
}

// classifyByTags looks for tags literally named "note" or "episode"; note
// wins ties (deterministic across LLM tag-order variance).
func classifyByTags(tags []string) (string, bool) {
	sawNote, sawEpisode := false, false
	for _, t := range tags {
		switch strings.ToLower(t) {
		case "note":
			sawNote = true
		case "episode":
			sawEpisode = true
		}
	}
	if sawNote {
		return "note", true
	}
	if sawEpisode {
		return "episode", true
	}
	return "", false
}

// categoryBoost nudges item importance for categories that tend to matter
// more (corrections and decisions outrank passing moments).
var categoryBoost = map[string]float64{
	"correction": 0.15,
	"decision":   0.10,
	"commitment": 0.10,
	"principle":  0.05,
}

// ItemImportance buckets a candidate item by confidence and category,
// combining the two into an ItemLevel.
func ItemImportance(confidence float64, category string) ItemLevel {
	score := confidence + categoryBoost[strings.ToLower(category)]
	switch {
	case score >= 0.9:
		return ItemCritical
	case score >= 0.7:
		return ItemHigh
	case score >= 0.4:
		return ItemNormal
	case score >= 0.15:
		return ItemLow
	default:
		return ItemTrivial
	}
}
