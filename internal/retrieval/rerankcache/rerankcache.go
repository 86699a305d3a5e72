// Package rerankcache provides a TTL-bounded cache for rerank results,
// backed by Redis when configured and falling back to an in-process map
// otherwise — the same nil-receiver-safe, cfg.Enabled pattern used
// elsewhere in the codebase for optional Redis-backed caches.
package rerankcache

import (
	"context"
	"crypto/tls"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Config configures the optional Redis backing store.
type Config struct {
	Enabled               bool
	Addr                  string
	Password              string
	DB                    int
	TLSInsecureSkipVerify bool
}

// Cache stores a raw rerank response string keyed by the stable cache key
// `lowercase(trim(query)) + "|" + ids.join(",")`, bounded by TTL.
type Cache struct {
	client redis.UniversalClient
	ttl    time.Duration
	log    *zerolog.Logger

	mu     sync.Mutex
	memory map[string]entry
}

type entry struct {
	value     string
	expiresAt time.Time
}

// New builds a Cache. When cfg.Enabled is false, it falls back to an
// in-process map transparently — callers never branch on which backend is
// active.
func New(ctx context.Context, cfg Config, ttl time.Duration, log *zerolog.Logger) (*Cache, error) {
	if ttl <= 0 {
		ttl = time.Hour
	}
	c := &Cache{ttl: ttl, log: log, memory: map[string]entry{}}
	if !cfg.Enabled {
		return c, nil
	}
	opts := &redis.Options{Addr: cfg.Addr, Password: cfg.Password, DB: cfg.DB}
	if cfg.TLSInsecureSkipVerify {
		opts.TLSConfig = &tls.Config{InsecureSkipVerify: true}
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("rerankcache: redis ping: %w", err)
	}
	c.client = client
	return c, nil
}

// Get returns the cached raw rerank response, if present and unexpired.
func (c *Cache) Get(ctx context.Context, key string) (string, bool) {
	if c == nil {
		return "", false
	}
	if c.client != nil {
		val, err := c.client.Get(ctx, key).Result()
		if err != nil {
			if err != redis.Nil && c.log != nil {
				c.log.Debug().Err(err).Str("key", key).Msg("rerankcache: get failed")
			}
			return "", false
		}
		return val, true
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.memory[key]
	if !ok || time.Now().After(e.expiresAt) {
		return "", false
	}
	return e.value, true
}

// Set stores raw under key with the cache's configured TTL.
func (c *Cache) Set(ctx context.Context, key, raw string) {
	if c == nil {
		return
	}
	if c.client != nil {
		if err := c.client.Set(ctx, key, raw, c.ttl).Err(); err != nil && c.log != nil {
			c.log.Debug().Err(err).Str("key", key).Msg("rerankcache: set failed")
		}
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.memory[key] = entry{value: raw, expiresAt: time.Now().Add(c.ttl)}
}

// Close releases the Redis client, if any.
func (c *Cache) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}
