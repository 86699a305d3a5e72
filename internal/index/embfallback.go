package index

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

// RootResolver locates a namespace's filesystem root; satisfied by the
// content-addressed store.
type RootResolver interface {
	Root(ns string) (string, error)
}

// EmbedFallback is the degraded-mode semantic index used when no external
// Index is reachable: item vectors are computed through the embeddings
// service and persisted per namespace in state/embeddings.json, and Search
// ranks by cosine similarity over that local table. It trades the external
// Index's hybrid ranking for zero extra infrastructure.
type EmbedFallback struct {
	roots RootResolver
	embed EmbedFunc

	mu sync.Mutex
}

// NewEmbedFallback wires the fallback index over a namespace-root resolver
// and an embedding function.
func NewEmbedFallback(roots RootResolver, embed EmbedFunc) *EmbedFallback {
	return &EmbedFallback{roots: roots, embed: embed}
}

type embEntry struct {
	Path    string    `json:"path"`
	Snippet string    `json:"snippet"`
	Vector  []float32 `json:"vector"`
}

type embTable struct {
	Entries map[string]embEntry `json:"entries"`
}

func (e *EmbedFallback) tablePath(collection string) (string, error) {
	root, err := e.roots.Root(collection)
	if err != nil {
		return "", err
	}
	return filepath.Join(root, "state", "embeddings.json"), nil
}

func loadTable(path string) (*embTable, error) {
	t := &embTable{Entries: map[string]embEntry{}}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return t, nil
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(data, t); err != nil {
		return nil, fmt.Errorf("index: corrupt embeddings table %s: %w", path, err)
	}
	if t.Entries == nil {
		t.Entries = map[string]embEntry{}
	}
	return t, nil
}

func saveTable(path string, t *embTable) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(t, "", "  ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// Upsert embeds text and records it under id in the collection's table.
func (e *EmbedFallback) Upsert(ctx context.Context, collection, id, path, text string) error {
	vecs, err := e.embed(ctx, []string{text})
	if err != nil {
		return fmt.Errorf("index: embedding %s: %w", id, err)
	}
	if len(vecs) != 1 {
		return fmt.Errorf("index: expected 1 embedding for %s, got %d", id, len(vecs))
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	tablePath, err := e.tablePath(collection)
	if err != nil {
		return err
	}
	table, err := loadTable(tablePath)
	if err != nil {
		return err
	}
	table.Entries[id] = embEntry{Path: path, Snippet: clampSnippet(text), Vector: vecs[0]}
	return saveTable(tablePath, table)
}

// Delete removes id from the collection's table; deleting an absent id is
// a no-op.
func (e *EmbedFallback) Delete(ctx context.Context, collection, id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	tablePath, err := e.tablePath(collection)
	if err != nil {
		return err
	}
	table, err := loadTable(tablePath)
	if err != nil {
		return err
	}
	delete(table.Entries, id)
	return saveTable(tablePath, table)
}

// Search embeds the query and returns the maxResults nearest entries by
// cosine similarity, best first.
func (e *EmbedFallback) Search(ctx context.Context, query, collection string, maxResults int) ([]Result, error) {
	vecs, err := e.embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("index: embedding query: %w", err)
	}
	if len(vecs) != 1 {
		return nil, fmt.Errorf("index: expected 1 query embedding, got %d", len(vecs))
	}

	e.mu.Lock()
	tablePath, err := e.tablePath(collection)
	if err != nil {
		e.mu.Unlock()
		return nil, err
	}
	table, err := loadTable(tablePath)
	e.mu.Unlock()
	if err != nil {
		return nil, err
	}

	results := make([]Result, 0, len(table.Entries))
	for id, entry := range table.Entries {
		results = append(results, Result{
			DocID:   id,
			Path:    entry.Path,
			Snippet: entry.Snippet,
			Score:   cosine(vecs[0], entry.Vector),
		})
	}
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].DocID < results[j].DocID
	})
	if maxResults > 0 && len(results) > maxResults {
		results = results[:maxResults]
	}
	return results, nil
}

// Update is a no-op: the table is kept current on every Upsert.
func (e *EmbedFallback) Update(ctx context.Context) error { return nil }

// Embed is a no-op for the same reason.
func (e *EmbedFallback) Embed(ctx context.Context, collection string) error { return nil }

func cosine(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func clampSnippet(text string) string {
	const max = 280
	if len(text) <= max {
		return text
	}
	return text[:max]
}
