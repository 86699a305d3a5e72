// Package extraction turns a buffered window of conversation turns into
// durable memory items: an LLM call proposes facts, entities, questions and
// profile/identity updates; a second LLM call decides how each proposed
// fact reconciles against what's already on disk (add, merge, update,
// invalidate, or skip).
package extraction

import (
	"encoding/json"
	"strings"
)

// ExtractedFact is a single candidate memory item proposed by the
// extraction call, before consolidation against existing items.
type ExtractedFact struct {
	Content    string   `json:"content"`
	Category   string   `json:"category"`
	Confidence float64  `json:"confidence"`
	Tags       []string `json:"tags"`
	EntityRef  string   `json:"entityRef,omitempty"`
	Source     string   `json:"source,omitempty"`
}

func (f ExtractedFact) valid() bool {
	if strings.TrimSpace(f.Content) == "" {
		return false
	}
	if f.Confidence < 0 || f.Confidence > 1 {
		return false
	}
	return true
}

// ExtractedEntity is a named entity the extraction call noticed, with the
// facts it should accumulate.
type ExtractedEntity struct {
	Name  string   `json:"name"`
	Type  string   `json:"type"`
	Facts []string `json:"facts"`
}

func (e ExtractedEntity) valid() bool {
	return strings.TrimSpace(e.Name) != ""
}

// ExtractedQuestion is an open question surfaced by the extraction call.
type ExtractedQuestion struct {
	Question string  `json:"question"`
	Context  string  `json:"context"`
	Priority float64 `json:"priority"`
}

func (q ExtractedQuestion) valid() bool {
	return strings.TrimSpace(q.Question) != ""
}

// ProfileUpdate is a durable note about the user (profile) or the agent's
// own persona (identity) proposed by the extraction call.
type ProfileUpdate struct {
	Section string `json:"section"` // "profile" | "identity"
	Text    string `json:"text"`
}

func (u ProfileUpdate) valid() bool {
	if strings.TrimSpace(u.Text) == "" {
		return false
	}
	return u.Section == "profile" || u.Section == "identity"
}

// ExtractionResult is the schema-validated shape of the extraction call's
// JSON response.
type ExtractionResult struct {
	Facts          []ExtractedFact     `json:"facts"`
	Entities       []ExtractedEntity   `json:"entities"`
	Questions      []ExtractedQuestion `json:"questions"`
	ProfileUpdates []ProfileUpdate     `json:"profileUpdates"`
	Topics         []string            `json:"topics"`
}

// ParseExtractionResult decodes raw as an ExtractionResult. A malformed
// JSON envelope is a total failure (ok=false, empty result); once the
// envelope parses, individual facts/entities/questions/updates that fail
// their own field validation are dropped silently rather than failing the
// whole run.
func ParseExtractionResult(raw string) (ExtractionResult, bool) {
	raw = stripCodeFence(raw)
	var parsed ExtractionResult
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return ExtractionResult{}, false
	}

	facts := parsed.Facts[:0:0]
	for _, f := range parsed.Facts {
		if f.valid() {
			facts = append(facts, f)
		}
	}
	parsed.Facts = facts

	entities := parsed.Entities[:0:0]
	for _, e := range parsed.Entities {
		if e.valid() {
			entities = append(entities, e)
		}
	}
	parsed.Entities = entities

	questions := parsed.Questions[:0:0]
	for _, q := range parsed.Questions {
		if q.valid() {
			questions = append(questions, q)
		}
	}
	parsed.Questions = questions

	updates := parsed.ProfileUpdates[:0:0]
	for _, u := range parsed.ProfileUpdates {
		if u.valid() {
			updates = append(updates, u)
		}
	}
	parsed.ProfileUpdates = updates

	return parsed, true
}

// ConsolidationAction is the decision the consolidation call makes for a
// single extracted fact against the existing corpus.
type ConsolidationAction string

const (
	ActionAdd        ConsolidationAction = "add"
	ActionMerge      ConsolidationAction = "merge"
	ActionUpdate     ConsolidationAction = "update"
	ActionInvalidate ConsolidationAction = "invalidate"
	ActionSkip       ConsolidationAction = "skip"
)

func (a ConsolidationAction) valid() bool {
	switch a {
	case ActionAdd, ActionMerge, ActionUpdate, ActionInvalidate, ActionSkip:
		return true
	default:
		return false
	}
}

// ConsolidationDecision resolves one FactIndex (into the extraction
// result's Facts slice) against ExistingID, the id of the item it merges
// with, updates, or invalidates (empty for add/skip).
type ConsolidationDecision struct {
	FactIndex  int                 `json:"factIndex"`
	Action     ConsolidationAction `json:"action"`
	ExistingID string              `json:"existingId,omitempty"`
	MergedBody string              `json:"mergedBody,omitempty"`
	Reason     string              `json:"reason,omitempty"`
}

// ConsolidationResult is the schema-validated shape of the consolidation
// call's JSON response.
type ConsolidationResult struct {
	Decisions []ConsolidationDecision `json:"decisions"`
}

// ParseConsolidationResult decodes raw as a ConsolidationResult. As with
// ParseExtractionResult, a malformed envelope fails the whole parse;
// decisions with an unrecognized action or out-of-range FactIndex are
// dropped individually.
func ParseConsolidationResult(raw string, numFacts int) (ConsolidationResult, bool) {
	raw = stripCodeFence(raw)
	var parsed ConsolidationResult
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return ConsolidationResult{}, false
	}
	decisions := parsed.Decisions[:0:0]
	for _, d := range parsed.Decisions {
		if !d.Action.valid() {
			continue
		}
		if d.FactIndex < 0 || d.FactIndex >= numFacts {
			continue
		}
		if (d.Action == ActionMerge || d.Action == ActionUpdate || d.Action == ActionInvalidate) && d.ExistingID == "" {
			continue
		}
		decisions = append(decisions, d)
	}
	parsed.Decisions = decisions
	return parsed, true
}

// stripCodeFence trims a surrounding ```json ... ``` fence some providers
// wrap JSON responses in despite being asked not to.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
