package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"engram/internal/model"
)

func writeRaw(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(Config{Dir: t.TempDir(), DefaultNamespace: "default"}, nil)
	require.NoError(t, err)
	return s
}

// TestMergeLineage covers the spec's seed scenario 1: an existing preference
// item superseded by a merge must end up superseded, with the new item's
// lineage a superset of both predecessors' lineages plus their ids.
func TestMergeLineage(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newTestStore(t)

	created := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	existing := &model.MemoryItem{
		ID: "f-1", Category: model.CategoryPreference, Created: created, Updated: created,
		Confidence: 0.9, Status: model.StatusActive, Body: "Prefers tabs",
	}
	existing.Normalize()
	require.NoError(t, s.WriteItem(ctx, "", existing))

	merged := &model.MemoryItem{
		ID: "f-2", Category: model.CategoryPreference, Created: created.Add(time.Hour), Updated: created.Add(time.Hour),
		Confidence: 0.9, Status: model.StatusActive, Body: "Prefers spaces",
	}
	merged.Normalize()

	require.NoError(t, s.ApplyMerge(ctx, "", existing, merged))

	got, err := s.ReadItem(ctx, "", "f-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, model.StatusSuperseded, got.Status)

	got2, err := s.ReadItem(ctx, "", "f-2")
	require.NoError(t, err)
	require.NotNil(t, got2)
	assert.Equal(t, "f-1", got2.Supersedes)
	assert.Contains(t, got2.Lineage, "f-1")
	assert.Equal(t, "Prefers spaces", got2.Body)
	assert.Equal(t, model.CategoryPreference, got2.Category)
}

func TestApplyMerge_RejectsCycle(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newTestStore(t)

	created := time.Now()
	existing := &model.MemoryItem{ID: "a", Category: model.CategoryFact, Created: created, Confidence: 0.9, Status: model.StatusActive}
	existing.Normalize()
	require.NoError(t, s.WriteItem(ctx, "", existing))

	// merged claims the same id as existing, which would make it supersede
	// itself — a cycle.
	merged := &model.MemoryItem{ID: "a", Category: model.CategoryFact, Created: created, Confidence: 0.9}
	merged.Normalize()

	err := s.ApplyMerge(ctx, "", existing, merged)
	assert.ErrorIs(t, err, ErrCycle)
}

func TestSweepExpired_ArchivesNotDeletes(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newTestStore(t)

	now := time.Now()
	past := now.Add(-time.Hour)
	item := &model.MemoryItem{
		ID: "spec-1", Category: model.CategoryFact, Created: now.Add(-48 * time.Hour),
		Confidence: 0.2, Status: model.StatusActive, ExpiresAt: &past,
	}
	require.NoError(t, s.WriteItem(ctx, "", item))

	archived, err := s.SweepExpired(ctx, "", now)
	require.NoError(t, err)
	assert.Equal(t, []string{"spec-1"}, archived)

	got, err := s.ReadItem(ctx, "", "spec-1")
	require.NoError(t, err)
	require.NotNil(t, got, "sweep archives, it must never delete the file")
	assert.Equal(t, model.StatusArchived, got.Status)
}

func TestSpeculativeItem_DefaultsExpiry(t *testing.T) {
	t.Parallel()
	created := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	item := &model.MemoryItem{Confidence: 0.2, Created: created}
	item.Normalize()
	require.NotNil(t, item.ExpiresAt)
	assert.Equal(t, created.Add(30*24*time.Hour), *item.ExpiresAt)
	assert.Equal(t, model.TierSpeculative, item.ConfidenceTier)
}

func TestListByCategory_SkipsCorruptFiles(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newTestStore(t)

	good := &model.MemoryItem{ID: "good", Category: model.CategoryFact, Created: time.Now(), Confidence: 0.9, Status: model.StatusActive}
	good.Normalize()
	require.NoError(t, s.WriteItem(ctx, "", good))

	// Hand-write a corrupt file alongside it.
	root, err := s.namespaceRoot("")
	require.NoError(t, err)
	corruptDir := filepath.Join(root, "facts", "2026-01-01")
	writeRaw(t, filepath.Join(corruptDir, "corrupt.md"), "not frontmatter at all")

	items, err := s.ListByCategory(ctx, "", model.CategoryFact)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "good", items[0].ID)
}
