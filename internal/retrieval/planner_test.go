package retrieval

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"engram/internal/model"
)

type countingStore struct {
	mu          sync.Mutex
	listCalls   int
	impressions []model.Impression
	items       []*model.MemoryItem
}

func (c *countingStore) ListAll(ctx context.Context, ns string) ([]*model.MemoryItem, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listCalls++
	return c.items, nil
}

func (c *countingStore) RecordImpression(ctx context.Context, ns string, impression model.Impression) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.impressions = append(c.impressions, impression)
	return nil
}

func testWeights() Weights {
	return Weights{
		RecencyWeight:             0.3,
		RecencyTauDays:            14,
		QueryExpansionMaxQueries:  4,
		QueryExpansionMinTokenLen: 3,
		ArtifactMax:               3,
		DefaultNamespace:          "default",
	}
}

func TestRecall_NoRecallShortCircuitsBeforeStorage(t *testing.T) {
	t.Parallel()
	cs := &countingStore{}
	p := &Planner{Store: cs, Weights: testWeights()}

	res := p.Recall(context.Background(), "sess", "ok", nil)

	assert.True(t, res.ShortCircuited)
	assert.Empty(t, res.Candidates)
	assert.Zero(t, cs.listCalls, "a no-recall query must never touch storage")
	assert.Empty(t, cs.impressions)
}

func TestRecall_ReturnsOnlyActiveItems(t *testing.T) {
	t.Parallel()
	now := time.Now()
	cs := &countingStore{items: []*model.MemoryItem{
		{ID: "live", Status: model.StatusActive, Category: model.CategoryFact, Created: now, Updated: now, Body: "Uses postgres for the ledger service"},
		{ID: "old", Status: model.StatusSuperseded, Category: model.CategoryFact, Created: now, Updated: now, Body: "Used mysql for the ledger service"},
		{ID: "dead", Status: model.StatusArchived, Category: model.CategoryFact, Created: now, Updated: now, Body: "Considered sqlite for the ledger service"},
	}}
	p := &Planner{Store: cs, Weights: testWeights()}

	res := p.Recall(context.Background(), "sess", "which database backs the ledger service", []string{"default"})

	require.Len(t, res.Candidates, 1)
	assert.Equal(t, "live", res.Candidates[0].Item.ID)
	for _, a := range res.Artifacts {
		assert.Equal(t, "live", a.SourceID)
	}
}

func TestRecall_RecordsImpressionWithoutRawQuery(t *testing.T) {
	t.Parallel()
	now := time.Now()
	query := "which database backs the ledger service"
	cs := &countingStore{items: []*model.MemoryItem{
		{ID: "live", Status: model.StatusActive, Category: model.CategoryFact, Created: now, Updated: now, Body: "Uses postgres"},
	}}
	p := &Planner{Store: cs, Weights: testWeights()}

	p.Recall(context.Background(), "sess-1", query, []string{"default"})

	require.NotEmpty(t, cs.impressions)
	imp := cs.impressions[0]
	assert.Equal(t, "sess-1", imp.SessionKey)
	assert.Equal(t, len(query), imp.QueryLen)
	assert.NotContains(t, imp.QueryHash, "ledger", "only a hash of the query may be persisted")
	assert.Contains(t, imp.MemoryIDs, "live")
}

func TestRecall_AccessCountsFeedScoring(t *testing.T) {
	t.Parallel()
	now := time.Now()
	cs := &countingStore{items: []*model.MemoryItem{
		{ID: "seen-often", Status: model.StatusActive, Category: model.CategoryFact, Created: now, Updated: now, Body: "Deploys happen from main"},
		{ID: "seen-never", Status: model.StatusActive, Category: model.CategoryFact, Created: now, Updated: now, Body: "Deploys run in two waves"},
	}}
	w := testWeights()
	w.BoostAccessCount = true
	p := &Planner{
		Store:   cs,
		Weights: w,
		Access: accessFunc(func(ctx context.Context, ns string) map[string]int {
			return map[string]int{"seen-often": 8}
		}),
	}

	res := p.Recall(context.Background(), "sess", "how do deploys work here", []string{"default"})

	require.Len(t, res.Candidates, 2)
	assert.Equal(t, "seen-often", res.Candidates[0].Item.ID)
	assert.Equal(t, 8, res.Candidates[0].AccessCount)
}

type accessFunc func(ctx context.Context, ns string) map[string]int

func (f accessFunc) AccessCounts(ctx context.Context, ns string) map[string]int { return f(ctx, ns) }
