// Package store implements the content-addressed, markdown-with-frontmatter
// memory store: filesystem layout, namespace routing, lifecycle
// transitions, expiration sweep, and file-hygiene rotation.
package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"engram/internal/model"
	"engram/internal/validation"
)

// Config configures namespace routing for a Store rooted at Dir.
type Config struct {
	Dir                string
	NamespacesEnabled  bool
	DefaultNamespace   string
	SharedNamespace    string
}

// Store owns every on-disk item file beneath its root. No other component
// writes to these paths directly.
type Store struct {
	cfg Config
	log *zerolog.Logger

	// statusVersion is bumped on any status-relevant mutation; consumers
	// cache status maps keyed by (storage identity, version).
	statusVersion atomic.Uint64
}

// New constructs a Store rooted at cfg.Dir, creating it if necessary.
func New(cfg Config, log *zerolog.Logger) (*Store, error) {
	if cfg.Dir == "" {
		return nil, fmt.Errorf("store: Dir is required")
	}
	if cfg.DefaultNamespace == "" {
		cfg.DefaultNamespace = "default"
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("store: creating root %s: %w", cfg.Dir, err)
	}
	return &Store{cfg: cfg, log: log}, nil
}

// StatusVersion returns the current status-mutation counter.
func (s *Store) StatusVersion() uint64 { return s.statusVersion.Load() }

func (s *Store) bumpStatusVersion() { s.statusVersion.Add(1) }

// namespaceRoot resolves a namespace to its filesystem root. The default
// namespace uses the legacy (non-namespaced) root unless a corresponding
// namespaces/<default> directory already exists — existing data is never
// silently moved.
func (s *Store) namespaceRoot(ns string) (string, error) {
	if ns == "" {
		ns = s.cfg.DefaultNamespace
	}
	if !s.cfg.NamespacesEnabled {
		return s.cfg.Dir, nil
	}
	clean, err := validation.PathSegment(ns)
	if err != nil {
		return "", fmt.Errorf("store: %w", err)
	}
	nsDir := filepath.Join(s.cfg.Dir, "namespaces", clean)
	if ns == s.cfg.DefaultNamespace {
		if _, err := os.Stat(nsDir); os.IsNotExist(err) {
			return s.cfg.Dir, nil
		}
	}
	return nsDir, nil
}

// Root exposes a namespace's filesystem root for collaborators (e.g. the
// index.EmbedFallback vector table) that need a plain directory handle.
func (s *Store) Root(ns string) (string, error) { return s.namespaceRoot(ns) }

func categoryDir(category model.Category) string {
	return string(category) + "s"
}

func itemPath(nsRoot string, category model.Category, id string, created time.Time) string {
	date := created.Format("2006-01-02")
	return filepath.Join(nsRoot, categoryDir(category), date, id+".md")
}

// validID returns a cleaned, traversal-safe id, or an error.
func validID(id string) (string, error) {
	clean, err := validation.PathSegment(id)
	if err != nil {
		return "", fmt.Errorf("store: %w", err)
	}
	return clean, nil
}

func fsync(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// ctxOrBackground is a defensive helper: every public method takes a
// context for cancellation-propagation symmetry with the rest of the
// subsystem, even though filesystem calls here don't yet honor it.
func ctxOrBackground(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}
