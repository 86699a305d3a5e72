// Package pgindex implements a Postgres full-text shadow index satisfying
// the index.Index collaborator contract, for deployments that want a
// lexical fallback alongside or instead of the Qdrant semantic index.
package pgindex

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"engram/internal/index"
)

// Index is an index.Index backed by a per-namespace collection column in
// a single Postgres documents table, searched through its generated
// tsvector column with plainto_tsquery and ranked with ts_rank.
type Index struct {
	pool *pgxpool.Pool
}

// New dials Postgres at dsn and ensures the documents table and its GIN
// index exist. Table creation is best-effort: a non-superuser connection
// that can't create the pg_trgm extension still gets the table and index,
// since tsvector search doesn't require it.
func New(ctx context.Context, dsn string) (*Index, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("pgindex: connecting: %w", err)
	}
	if err := bootstrap(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pgindex: bootstrap: %w", err)
	}
	return &Index{pool: pool}, nil
}

func bootstrap(ctx context.Context, pool *pgxpool.Pool) error {
	_, _ = pool.Exec(ctx, `CREATE EXTENSION IF NOT EXISTS pg_trgm`)
	if _, err := pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS memory_documents (
  collection TEXT NOT NULL,
  id TEXT NOT NULL,
  path TEXT NOT NULL DEFAULT '',
  text TEXT NOT NULL,
  ts tsvector GENERATED ALWAYS AS (to_tsvector('simple', coalesce(text,''))) STORED,
  PRIMARY KEY (collection, id)
)
`); err != nil {
		return err
	}
	_, err := pool.Exec(ctx, `CREATE INDEX IF NOT EXISTS memory_documents_ts_idx ON memory_documents USING GIN (ts)`)
	return err
}

// Upsert indexes or re-indexes a single document under collection.
func (i *Index) Upsert(ctx context.Context, collection, id, path, text string) error {
	_, err := i.pool.Exec(ctx, `
INSERT INTO memory_documents(collection, id, path, text) VALUES ($1, $2, $3, $4)
ON CONFLICT (collection, id) DO UPDATE SET path = EXCLUDED.path, text = EXCLUDED.text
`, collection, id, path, text)
	return err
}

// Delete removes a single document from the index.
func (i *Index) Delete(ctx context.Context, collection, id string) error {
	_, err := i.pool.Exec(ctx, `DELETE FROM memory_documents WHERE collection = $1 AND id = $2`, collection, id)
	return err
}

// Search runs a plainto_tsquery lookup scoped to collection, ranked by
// ts_rank, highest first.
func (i *Index) Search(ctx context.Context, query string, collection string, maxResults int) ([]index.Result, error) {
	q := strings.TrimSpace(query)
	if q == "" {
		return nil, nil
	}
	if maxResults <= 0 {
		maxResults = 10
	}
	rows, err := i.pool.Query(ctx, `
SELECT id, path, left(text, 280) AS snippet, ts_rank(ts, plainto_tsquery('simple', $1)) AS score
FROM memory_documents
WHERE collection = $2 AND ts @@ plainto_tsquery('simple', $1)
ORDER BY score DESC
LIMIT $3
`, q, collection, maxResults)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]index.Result, 0, maxResults)
	for rows.Next() {
		var r index.Result
		if err := rows.Scan(&r.DocID, &r.Path, &r.Snippet, &r.Score); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Update is a no-op: Upsert/Delete keep the index current as the store
// mutates, so there's no batch reconciliation step to run.
func (i *Index) Update(ctx context.Context) error { return nil }

// Embed is a no-op: this index is purely lexical and never vectorizes
// content. It satisfies index.Index so callers can swap it in for Qdrant
// without branching on which index they're talking to.
func (i *Index) Embed(ctx context.Context, collection string) error { return nil }

// Close releases the connection pool.
func (i *Index) Close() error {
	i.pool.Close()
	return nil
}

var _ index.Index = (*Index)(nil)
