package retrieval

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"engram/internal/index"
	"engram/internal/intent"
	"engram/internal/model"
	"engram/internal/retrieval/rerankcache"
)

// Planner runs the hybrid retrieval pipeline for a single principal.
type Planner struct {
	Store     ItemStore
	Negatives NegativeExampleSource
	Access    AccessSource
	Index     index.Index
	ACL       ACL
	Cache     *rerankcache.Cache
	RerankLLM Reranker
	Weights   Weights
	Log       *zerolog.Logger
	Now       func() time.Time
	Metrics   Metrics

	// Statuses caches id→status maps keyed by StatusSource.StatusVersion,
	// so the artifact pass reuses a snapshot only while it is provably
	// stable. Both fields nil is valid (no status filter).
	Statuses     *StatusCache
	StatusSource StatusSource
}

// Reranker is the narrow collaborator the planner calls for LLM reranking;
// satisfied by a closure over an llm.Client plus Rerank.
type Reranker interface {
	Rerank(ctx context.Context, query string, candidates []Candidate, m, timeoutMs int) []Candidate
}

// RerankerFunc adapts a function to Reranker.
type RerankerFunc func(ctx context.Context, query string, candidates []Candidate, m, timeoutMs int) []Candidate

func (f RerankerFunc) Rerank(ctx context.Context, query string, candidates []Candidate, m, timeoutMs int) []Candidate {
	return f(ctx, query, candidates, m, timeoutMs)
}

func (p *Planner) now() time.Time {
	if p.Now != nil {
		return p.Now()
	}
	return time.Now()
}

// Recall runs the full pipeline: short-circuit, expansion, namespace
// fan-out, scoring, optional rerank, artifact top-up, impression logging.
// It never returns an error to the caller — failures degrade to partial or
// empty results, logged via p.Log.
func (p *Planner) Recall(ctx context.Context, principal, query string, namespaces []string) Result {
	if IsNoRecall(query) {
		return Result{ShortCircuited: true}
	}

	expandStart := time.Now()
	queries := Expand(query, p.Weights.QueryExpansionMaxQueries, p.Weights.QueryExpansionMinTokenLen)
	parsed := intent.Parse(query)
	p.observeStage("expand", expandStart)

	allowedNamespaces := p.filterNamespaces(principal, namespaces)
	byID := map[string]*Candidate{}

	fanoutStart := time.Now()
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	for _, ns := range allowedNamespaces {
		ns := ns
		g.Go(func() error {
			items, err := p.Store.ListAll(gctx, ns)
			if err != nil {
				p.logf("list namespace %s: %v", ns, err)
				return nil
			}
			semantic := p.semanticScores(gctx, queries, ns)
			var access map[string]int
			if p.Access != nil {
				access = p.Access.AccessCounts(gctx, ns)
			}

			mu.Lock()
			defer mu.Unlock()
			for _, item := range items {
				if item.Status != model.StatusActive {
					continue
				}
				if _, exists := byID[item.ID]; exists {
					continue
				}
				snippet := snippetOf(item.Body)
				byID[item.ID] = &Candidate{
					Item:          item,
					Snippet:       snippet,
					SemanticScore: semantic[item.ID],
					AccessCount:   access[item.ID],
				}
			}
			return nil
		})
	}
	// Namespace fetches are independent; errgroup runs them concurrently and
	// every branch swallows its own error, so g.Wait() never actually fails.
	_ = g.Wait()
	p.observeStage("fanout", fanoutStart)

	scoreStart := time.Now()
	candidates := make([]Candidate, 0, len(byID))
	for _, c := range byID {
		negHits := 0
		if p.Negatives != nil {
			negHits = p.Negatives.NegativeHits(ctx, c.Item.Namespace, c.Item.ID)
		}
		Score(c, p.Weights, p.now(), parsed, negHits)
		candidates = append(candidates, *c)
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Score > candidates[j].Score
	})
	p.observeStage("score", scoreStart)

	if p.Weights.RerankEnabled && len(candidates) > 0 {
		rerankStart := time.Now()
		candidates = p.rerank(ctx, query, candidates)
		p.observeStage("rerank", rerankStart)
	}

	artifacts := buildArtifacts(candidates, p.Weights.ArtifactMax, p.statusSnapshot(ctx, allowedNamespaces))

	p.recordImpression(ctx, allowedNamespaces, principal, query, candidates)

	return Result{Candidates: candidates, Artifacts: artifacts}
}

func (p *Planner) filterNamespaces(principal string, requested []string) []string {
	ns := requested
	if len(ns) == 0 {
		ns = p.Weights.RecallNamespaces
	}
	if len(ns) == 0 {
		ns = []string{p.Weights.DefaultNamespace, p.Weights.SharedNamespace}
	}
	if p.ACL == nil {
		return ns
	}
	out := make([]string, 0, len(ns))
	for _, n := range ns {
		if n == "" {
			continue
		}
		if p.ACL.CanRead(principal, n) {
			out = append(out, n)
		}
	}
	return out
}

func (p *Planner) semanticScores(ctx context.Context, queries []string, collection string) map[string]float64 {
	scores := map[string]float64{}
	if p.Index == nil {
		return scores
	}
	for _, q := range queries {
		results, err := p.Index.Search(ctx, q, collection, p.Weights.NamespaceFanoutK)
		if err != nil {
			p.logf("index search %q in %s: %v", q, collection, err)
			continue
		}
		for _, r := range results {
			if existing, ok := scores[r.DocID]; !ok || r.Score > existing {
				scores[r.DocID] = r.Score
			}
		}
	}
	return scores
}

func (p *Planner) rerank(ctx context.Context, query string, candidates []Candidate) []Candidate {
	m := p.Weights.RerankMaxCandidates
	if m <= 0 || m > len(candidates) {
		m = len(candidates)
	}
	ids := make([]string, 0, m)
	for _, c := range candidates[:m] {
		ids = append(ids, c.Item.ID)
	}
	key := CacheKey(query, ids)

	if p.Cache != nil {
		if raw, ok := p.Cache.Get(ctx, key); ok {
			return ParseRerankResponse(raw, candidates)
		}
	}

	if p.RerankLLM == nil {
		return candidates
	}
	reranked := p.RerankLLM.Rerank(ctx, query, candidates, m, p.Weights.RerankTimeoutMs)
	if p.Cache != nil {
		if raw := CacheValue(reranked); raw != "" {
			p.Cache.Set(ctx, key, raw)
		}
	}
	return reranked
}

// statusSnapshot merges the cached id→status maps of every namespace in
// play; a nil result means "no snapshot available, don't filter".
func (p *Planner) statusSnapshot(ctx context.Context, namespaces []string) map[string]model.Status {
	if p.Statuses == nil || p.StatusSource == nil {
		return nil
	}
	merged := map[string]model.Status{}
	for _, ns := range namespaces {
		statuses, err := p.Statuses.Snapshot(ctx, p.StatusSource, ns)
		if err != nil {
			p.logf("status snapshot for %s: %v", ns, err)
			continue
		}
		for id, st := range statuses {
			merged[id] = st
		}
	}
	return merged
}

// buildArtifacts emits up to max verbatim quotes; an artifact survives only
// while its source item remains active per the status snapshot.
func buildArtifacts(candidates []Candidate, max int, statuses map[string]model.Status) []Artifact {
	if max <= 0 {
		max = 3
	}
	var out []Artifact
	for _, c := range candidates {
		if len(out) >= max {
			break
		}
		if c.Snippet == "" {
			continue
		}
		if statuses != nil {
			if st, ok := statuses[c.Item.ID]; ok && st != model.StatusActive {
				continue
			}
		}
		out = append(out, Artifact{SourceID: c.Item.ID, Quote: c.Snippet})
	}
	return out
}

func (p *Planner) recordImpression(ctx context.Context, namespaces []string, principal, query string, candidates []Candidate) {
	ids := make([]string, 0, len(candidates))
	for _, c := range candidates {
		ids = append(ids, c.Item.ID)
	}
	sum := sha256.Sum256([]byte(query))
	impression := model.Impression{
		SessionKey: principal,
		RecordedAt: p.now(),
		QueryHash:  hex.EncodeToString(sum[:]),
		QueryLen:   len(query),
		MemoryIDs:  ids,
	}
	for _, ns := range namespaces {
		if err := p.Store.RecordImpression(ctx, ns, impression); err != nil {
			p.logf("record impression in %s: %v", ns, err)
		}
	}
}

// observeStage reports how long a named pipeline stage took against the
// engram.retrieval.stage_ms histogram. Timings are wall-clock, not p.now(),
// since Metrics reflects real operational latency even under a fixed test
// clock.
func (p *Planner) observeStage(stage string, start time.Time) {
	if p.Metrics == nil {
		return
	}
	p.Metrics.ObserveHistogram("engram.retrieval.stage_ms", float64(time.Since(start).Milliseconds()), map[string]string{"stage": stage})
}

func (p *Planner) logf(format string, args ...any) {
	if p.Log == nil {
		return
	}
	p.Log.Warn().Msgf(format, args...)
}

func snippetOf(body string) string {
	const max = 280
	if len(body) <= max {
		return body
	}
	return body[:max]
}
