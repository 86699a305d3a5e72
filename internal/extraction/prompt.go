package extraction

import (
	"fmt"
	"strings"

	"engram/internal/llm"
	"engram/internal/model"
)

const extractionSystemPrompt = `You are the extraction stage of a long-term memory system. Read the conversation window and propose durable memory items: standalone facts, preferences, corrections, decisions, entities, open questions, and any updates to the user's profile or the assistant's identity notes.

Respond with a single JSON object and nothing else — no prose, no code fence. Shape:
{
  "facts": [{"content": "...", "category": "fact|preference|correction|entity|decision|relationship|principle|commitment|moment|skill", "confidence": 0.0-1.0, "tags": ["..."], "entityRef": "", "source": ""}],
  "entities": [{"name": "...", "type": "person|project|tool|company|place|other", "facts": ["..."]}],
  "questions": [{"question": "...", "context": "...", "priority": 0.0-1.0}],
  "profileUpdates": [{"section": "profile|identity", "text": "..."}],
  "topics": ["..."]
}
Omit anything not present in the window — empty arrays are fine. Only extract what the window actually supports; do not invent facts.`

func buildExtractionMessages(turns []model.Turn, entityNames []string) []llm.Message {
	var b strings.Builder
	for _, t := range turns {
		fmt.Fprintf(&b, "%s: %s\n", t.Role, t.Content)
	}
	user := b.String()
	if len(entityNames) > 0 {
		user += "\nKnown entities: " + strings.Join(entityNames, ", ")
	}
	return []llm.Message{
		{Role: "system", Content: extractionSystemPrompt},
		{Role: "user", Content: user},
	}
}

const consolidationSystemPrompt = `You reconcile newly extracted facts against a user's existing memory corpus. For each fact (by its index), decide: add (genuinely new), merge (combine with an existing item into a richer statement), update (existing item's body should be replaced, same meaning refined), invalidate (an existing item is now contradicted/superseded), or skip (duplicate or not worth storing).

Respond with a single JSON object and nothing else:
{"decisions": [{"factIndex": 0, "action": "add|merge|update|invalidate|skip", "existingId": "", "mergedBody": "", "reason": ""}]}
existingId is required for merge/update/invalidate and must be one of the ids listed below. Every fact index must appear exactly once.`

func buildConsolidationMessages(facts []ExtractedFact, existing []*model.MemoryItem) []llm.Message {
	var b strings.Builder
	b.WriteString("New facts:\n")
	for i, f := range facts {
		fmt.Fprintf(&b, "[%d] (%s, confidence %.2f) %s\n", i, f.Category, f.Confidence, f.Content)
	}
	b.WriteString("\nExisting items:\n")
	if len(existing) == 0 {
		b.WriteString("(none)\n")
	}
	for _, it := range existing {
		fmt.Fprintf(&b, "- id=%s category=%s tags=%s :: %s\n", it.ID, it.Category, strings.Join(it.Tags, ","), truncate(it.Body, 200))
	}
	return []llm.Message{
		{Role: "system", Content: consolidationSystemPrompt},
		{Role: "user", Content: b.String()},
	}
}

const compactionSystemPrompt = `You maintain a running bootstrap document for a memory system. Rewrite the document to be more concise while preserving every distinct fact it currently records — merge repeated or superseded statements, drop nothing substantive. Respond with the rewritten document body only, no preamble, no code fence.`

func buildCompactionMessages(name, body string) []llm.Message {
	user := fmt.Sprintf("Document: %s\n\n%s", name, body)
	return []llm.Message{
		{Role: "system", Content: compactionSystemPrompt},
		{Role: "user", Content: user},
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
