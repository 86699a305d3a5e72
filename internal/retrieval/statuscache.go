package retrieval

import (
	"context"
	"sync"

	"engram/internal/model"
)

// StatusSource is the subset of the content-addressed store the status
// cache reads: the status-mutation counter plus the item scan behind it.
type StatusSource interface {
	StatusVersion() uint64
	ListAll(ctx context.Context, ns string) ([]*model.MemoryItem, error)
}

// StatusCache memoizes per-namespace id→status maps keyed by the store's
// status version, so a snapshot is reused only while it is provably
// stable; any status-relevant mutation churns the version and forces a
// re-read.
type StatusCache struct {
	mu      sync.Mutex
	entries map[string]statusEntry
}

type statusEntry struct {
	version  uint64
	statuses map[string]model.Status
}

// NewStatusCache returns an empty cache.
func NewStatusCache() *StatusCache {
	return &StatusCache{entries: map[string]statusEntry{}}
}

// Snapshot returns the id→status map for ns, reusing a cached snapshot
// when src.StatusVersion() is unchanged since it was taken. A nil cache or
// source yields a nil map, which consumers treat as "no status filter".
func (c *StatusCache) Snapshot(ctx context.Context, src StatusSource, ns string) (map[string]model.Status, error) {
	if c == nil || src == nil {
		return nil, nil
	}
	version := src.StatusVersion()

	c.mu.Lock()
	if e, ok := c.entries[ns]; ok && e.version == version {
		c.mu.Unlock()
		return e.statuses, nil
	}
	c.mu.Unlock()

	items, err := src.ListAll(ctx, ns)
	if err != nil {
		return nil, err
	}
	statuses := make(map[string]model.Status, len(items))
	for _, it := range items {
		statuses[it.ID] = it.Status
	}

	c.mu.Lock()
	c.entries[ns] = statusEntry{version: version, statuses: statuses}
	c.mu.Unlock()
	return statuses, nil
}
