// Package buffer holds the rolling turn window and the trigger engine that
// decides when a window is worth extracting.
package buffer

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"engram/internal/model"
	"engram/internal/signal"
)

// TriggerMode selects which decision table addTurn consults.
type TriggerMode string

const (
	ModeSmart      TriggerMode = "smart"
	ModeEveryN     TriggerMode = "every_n"
	ModeTimeBased  TriggerMode = "time_based"
)

// Decision is the outcome of feeding a turn into the buffer.
type Decision string

const (
	ExtractNow      Decision = "extract_now"
	ExtractBatch    Decision = "extract_batch"
	KeepBuffering   Decision = "keep_buffering"
)

// Config carries the trigger parameters relevant to the buffer.
type Config struct {
	Mode              TriggerMode
	MaxTurns          int
	MaxMinutes        int
	HighSignalPatterns []string
}

// Store is the minimal persistence contract the buffer needs; satisfied by
// the content-addressed store's state-file helpers.
type Store interface {
	ReadBufferState(ctx context.Context) (*model.BufferState, error)
	WriteBufferState(ctx context.Context, state *model.BufferState) error
}

// Buffer is the in-memory window of recent turns, lazily loaded from Store
// and persisted after every mutation.
type Buffer struct {
	mu     sync.Mutex
	store  Store
	cfg    Config
	panel  *signal.Panel
	log    *zerolog.Logger
	now    func() time.Time

	state  *model.BufferState
}

// New constructs a Buffer. now defaults to time.Now when nil.
func New(store Store, cfg Config, log *zerolog.Logger, now func() time.Time) (*Buffer, error) {
	panel, err := signal.NewPanel(cfg.HighSignalPatterns)
	if err != nil {
		return nil, fmt.Errorf("buffer: compiling high-signal patterns: %w", err)
	}
	if now == nil {
		now = time.Now
	}
	return &Buffer{store: store, cfg: cfg, panel: panel, log: log, now: now}, nil
}

func (b *Buffer) load(ctx context.Context) error {
	if b.state != nil {
		return nil
	}
	st, err := b.store.ReadBufferState(ctx)
	if err != nil {
		return fmt.Errorf("buffer: loading state: %w", err)
	}
	if st == nil {
		st = &model.BufferState{}
	}
	b.state = st
	return nil
}

// AddTurn appends a turn to the window, persists, and returns the trigger
// decision. Pure in (turn, state, config) aside from the persistence
// side effect.
func (b *Buffer) AddTurn(ctx context.Context, turn model.Turn) (Decision, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.load(ctx); err != nil {
		return KeepBuffering, err
	}

	b.state.Turns = append(b.state.Turns, turn)

	level := b.panel.ScanTurn(turn.Content)
	decision := b.decide(level)

	if err := b.store.WriteBufferState(ctx, b.state); err != nil {
		return decision, fmt.Errorf("buffer: persisting state: %w", err)
	}
	if b.log != nil {
		b.log.Debug().Str("decision", string(decision)).Str("signal", string(level)).Int("turns", len(b.state.Turns)).Msg("buffer: turn added")
	}
	return decision, nil
}

func (b *Buffer) decide(level signal.TurnLevel) Decision {
	now := b.now()

	switch b.cfg.Mode {
	case ModeEveryN:
		if len(b.state.Turns) >= b.cfg.MaxTurns {
			return ExtractBatch
		}
		return KeepBuffering
	case ModeTimeBased:
		if b.elapsedExceeded(now) {
			return ExtractBatch
		}
		return KeepBuffering
	default: // smart
		if level == signal.TurnHigh {
			return ExtractNow
		}
		if len(b.state.Turns) >= b.cfg.MaxTurns {
			return ExtractBatch
		}
		if b.elapsedExceeded(now) {
			return ExtractBatch
		}
		return KeepBuffering
	}
}

func (b *Buffer) elapsedExceeded(now time.Time) bool {
	if b.state.LastExtractionAt == nil {
		return false
	}
	return now.Sub(*b.state.LastExtractionAt) >= time.Duration(b.cfg.MaxMinutes)*time.Minute
}

// Turns returns a copy of the substantive subset of the current buffer
// (turns with more than three non-whitespace characters), for handoff to
// the extraction pipeline.
func (b *Buffer) Turns(ctx context.Context) ([]model.Turn, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.load(ctx); err != nil {
		return nil, err
	}
	out := make([]model.Turn, 0, len(b.state.Turns))
	for _, t := range b.state.Turns {
		if isSubstantive(t.Content) {
			out = append(out, t)
		}
	}
	return out, nil
}

func isSubstantive(content string) bool {
	trimmed := 0
	for _, r := range content {
		if r != ' ' && r != '\t' && r != '\n' && r != '\r' {
			trimmed++
		}
	}
	return trimmed > 3
}

// ClearAfterExtraction empties the turn list, stamps lastExtractionAt, and
// bumps extractionCount. Called only after a successful extraction.
func (b *Buffer) ClearAfterExtraction(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.load(ctx); err != nil {
		return err
	}
	now := b.now()
	b.state.Turns = nil
	b.state.LastExtractionAt = &now
	b.state.ExtractionCount++
	return b.store.WriteBufferState(ctx, b.state)
}

// ExtractionCount reports the persisted extraction counter, lazily loading
// state if needed.
func (b *Buffer) ExtractionCount(ctx context.Context) (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.load(ctx); err != nil {
		return 0, err
	}
	return b.state.ExtractionCount, nil
}

// fileStore is a small JSON-file-backed Store implementation used when no
// richer store (e.g. the content-addressed store) is wired in, and in
// tests.
type fileStore struct {
	path string
	mu   sync.Mutex
}

// NewFileStore returns a Store that round-trips BufferState as
// state/buffer.json beneath root.
func NewFileStore(root string) Store {
	return &fileStore{path: filepath.Join(root, "state", "buffer.json")}
}

func (f *fileStore) ReadBufferState(_ context.Context) (*model.BufferState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, err := os.ReadFile(f.path)
	if os.IsNotExist(err) {
		return &model.BufferState{}, nil
	}
	if err != nil {
		return nil, err
	}
	var st model.BufferState
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("buffer: corrupt state file %s: %w", f.path, err)
	}
	return &st, nil
}

func (f *fileStore) WriteBufferState(_ context.Context, state *model.BufferState) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return err
	}
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, f.path)
}
