package retrieval

import (
	"context"
	"encoding/json"
	"sort"
	"strings"

	"engram/internal/llm"
)

const snippetClampBytes = 400

// CacheKey builds the stable rerank cache key:
// lowercase(trim(query)) + "|" + ids.join(",").
func CacheKey(query string, ids []string) string {
	return strings.ToLower(strings.TrimSpace(query)) + "|" + strings.Join(ids, ",")
}

type rerankScore struct {
	ID    string  `json:"id"`
	Score float64 `json:"score"`
}

type rerankResponse struct {
	Scores []rerankScore `json:"scores"`
}

// ParseRerankResponse applies the deterministic parse semantics from the
// retrieval pipeline's rerank step: unknown ids are ignored; scored
// candidates sort by score desc; unscored candidates retain their original
// relative order after all scored ones; ties break on original index.
// Parse failure returns candidates unchanged (falls open).
func ParseRerankResponse(raw string, candidates []Candidate) []Candidate {
	var resp rerankResponse
	if err := json.Unmarshal([]byte(raw), &resp); err != nil {
		return candidates
	}

	scoreByID := map[string]float64{}
	for _, s := range resp.Scores {
		scoreByID[s.ID] = s.Score
	}

	type ranked struct {
		cand     Candidate
		idx      int
		scored   bool
		score    float64
	}
	items := make([]ranked, len(candidates))
	for i, c := range candidates {
		sc, ok := scoreByID[c.Item.ID]
		items[i] = ranked{cand: c, idx: i, scored: ok, score: sc}
	}

	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i], items[j]
		if a.scored != b.scored {
			return a.scored
		}
		if a.scored && b.scored && a.score != b.score {
			return a.score > b.score
		}
		return a.idx < b.idx
	})

	out := make([]Candidate, len(items))
	for i, r := range items {
		out[i] = r.cand
	}
	return out
}

// CacheValue serializes a reranked candidate order into the same
// {"scores":[...]} shape ParseRerankResponse expects, assigning descending
// ordinal scores by position. This lets a live rerank's result be cached
// and replayed faithfully on a later cache hit for the same key.
func CacheValue(ranked []Candidate) string {
	resp := rerankResponse{Scores: make([]rerankScore, len(ranked))}
	n := len(ranked)
	for i, c := range ranked {
		resp.Scores[i] = rerankScore{ID: c.Item.ID, Score: float64(n - i)}
	}
	b, err := json.Marshal(resp)
	if err != nil {
		return ""
	}
	return string(b)
}

func clampSnippet(s string) string {
	if len(s) <= snippetClampBytes {
		return s
	}
	return s[:snippetClampBytes]
}

// RerankPayload is the JSON-only instruction body shipped to the rerank
// LLM: top-M candidates reduced to id + clamped snippet.
type RerankPayload struct {
	Query      string             `json:"query"`
	Candidates []rerankCandidate  `json:"candidates"`
}

type rerankCandidate struct {
	ID      string `json:"id"`
	Snippet string `json:"snippet"`
}

// Rerank ships up to m candidates to client with a fixed JSON-only
// instruction, honoring a short timeout and falling open (returning
// candidates unchanged) on any failure.
func Rerank(ctx context.Context, client llm.Client, query string, candidates []Candidate, m int, timeoutMs int) []Candidate {
	if client == nil || len(candidates) == 0 {
		return candidates
	}
	top := candidates
	if m > 0 && len(top) > m {
		top = top[:m]
	}

	payload := RerankPayload{Query: query}
	for _, c := range top {
		payload.Candidates = append(payload.Candidates, rerankCandidate{
			ID:      c.Item.ID,
			Snippet: clampSnippet(c.Snippet),
		})
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return candidates
	}

	timeout := timeoutMs
	if timeout <= 0 {
		timeout = 4000
	}
	result, err := client.ChatCompletion(ctx, []llm.Message{
		{Role: "system", Content: "Score each candidate's relevance to the query 0-100. Respond with JSON only: {\"scores\":[{\"id\":string,\"score\":number}, ...]}"},
		{Role: "user", Content: string(body)},
	}, llm.Options{TimeoutMs: timeout, Operation: "rerank", Temperature: 0})
	if err != nil || result == nil {
		return candidates
	}
	return ParseRerankResponse(result.Content, candidates)
}
