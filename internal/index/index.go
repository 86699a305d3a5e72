// Package index defines the external hybrid-search Index collaborator
// contract (§6) and a concrete Qdrant-backed adapter.
package index

import "context"

// Result is a single hit returned by the Index collaborator.
type Result struct {
	DocID   string
	Path    string
	Snippet string
	Score   float64
}

// Index is the collaborator contract the retrieval planner and the index
// bridge consume. Implementations debounce Update/Embed internally; the
// core never blocks ingestion on them.
type Index interface {
	Search(ctx context.Context, query string, collection string, maxResults int) ([]Result, error)
	Update(ctx context.Context) error
	Embed(ctx context.Context, collection string) error
}

// NoopIndex is the degraded-mode fallback used when no Index is
// configured: Search returns no hits, so retrieval ranks items by the
// local scoring pass alone, with a semantic score of zero (see
// internal/retrieval).
type NoopIndex struct{}

func (NoopIndex) Search(context.Context, string, string, int) ([]Result, error) { return nil, nil }
func (NoopIndex) Update(context.Context) error                                  { return nil }
func (NoopIndex) Embed(context.Context, string) error                           { return nil }
