package index

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedRoots string

func (r fixedRoots) Root(ns string) (string, error) { return string(r), nil }

// fakeEmbed maps known strings onto fixed 2-d vectors so similarity
// ordering is deterministic.
func fakeEmbed(vectors map[string][]float32) EmbedFunc {
	return func(ctx context.Context, texts []string) ([][]float32, error) {
		out := make([][]float32, len(texts))
		for i, t := range texts {
			v, ok := vectors[t]
			if !ok {
				v = []float32{0, 0}
			}
			out[i] = v
		}
		return out, nil
	}
}

func TestEmbedFallback_UpsertThenSearchRanksByCosine(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	e := NewEmbedFallback(fixedRoots(dir), fakeEmbed(map[string][]float32{
		"postgres schema migration": {1, 0},
		"favorite espresso roast":   {0, 1},
		"database schema":           {0.9, 0.1},
	}))
	ctx := context.Background()

	require.NoError(t, e.Upsert(ctx, "default", "m1", "facts/m1.md", "postgres schema migration"))
	require.NoError(t, e.Upsert(ctx, "default", "m2", "facts/m2.md", "favorite espresso roast"))

	results, err := e.Search(ctx, "database schema", "default", 10)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "m1", results[0].DocID)
	assert.Greater(t, results[0].Score, results[1].Score)

	// The table survives on disk at the documented state path.
	_, err = os.Stat(filepath.Join(dir, "state", "embeddings.json"))
	assert.NoError(t, err)
}

func TestEmbedFallback_SearchHonorsMaxResults(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	vectors := map[string][]float32{"a": {1, 0}, "b": {0.8, 0.2}, "c": {0, 1}, "q": {1, 0}}
	e := NewEmbedFallback(fixedRoots(dir), fakeEmbed(vectors))
	ctx := context.Background()

	for id, text := range map[string]string{"ia": "a", "ib": "b", "ic": "c"} {
		require.NoError(t, e.Upsert(ctx, "default", id, id+".md", text))
	}
	results, err := e.Search(ctx, "q", "default", 2)
	require.NoError(t, err)
	assert.Len(t, results, 2)
	assert.Equal(t, "ia", results[0].DocID)
}

func TestEmbedFallback_DeleteRemovesEntry(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	e := NewEmbedFallback(fixedRoots(dir), fakeEmbed(map[string][]float32{"x": {1, 0}}))
	ctx := context.Background()

	require.NoError(t, e.Upsert(ctx, "default", "gone", "gone.md", "x"))
	require.NoError(t, e.Delete(ctx, "default", "gone"))
	results, err := e.Search(ctx, "x", "default", 10)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestEmbedFallback_EmptyTableSearchIsEmptyNotError(t *testing.T) {
	t.Parallel()
	e := NewEmbedFallback(fixedRoots(t.TempDir()), fakeEmbed(map[string][]float32{"q": {1, 0}}))
	results, err := e.Search(context.Background(), "q", "default", 5)
	require.NoError(t, err)
	assert.Empty(t, results)
}
