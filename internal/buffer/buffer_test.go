package buffer

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"engram/internal/model"
)

func newTestBuffer(t *testing.T, cfg Config, now func() time.Time) *Buffer {
	t.Helper()
	b, err := New(NewFileStore(t.TempDir()), cfg, nil, now)
	require.NoError(t, err)
	return b
}

func TestAddTurn_HighSignalExtractsNow(t *testing.T) {
	t.Parallel()
	b := newTestBuffer(t, Config{Mode: ModeSmart, MaxTurns: 100, MaxMinutes: 60}, nil)
	d, err := b.AddTurn(context.Background(), model.Turn{Role: model.RoleUser, Content: "Actually, I prefer spaces."})
	require.NoError(t, err)
	assert.Equal(t, ExtractNow, d)
}

// TestAddTurn_MaxTurnsBoundary covers the spec's boundary scenario: exactly
// bufferMaxTurns turns returns extract_batch.
func TestAddTurn_MaxTurnsBoundary(t *testing.T) {
	t.Parallel()
	b := newTestBuffer(t, Config{Mode: ModeSmart, MaxTurns: 3, MaxMinutes: 1000}, nil)
	ctx := context.Background()

	d, err := b.AddTurn(ctx, model.Turn{Role: model.RoleUser, Content: "hello there"})
	require.NoError(t, err)
	assert.Equal(t, KeepBuffering, d)

	d, err = b.AddTurn(ctx, model.Turn{Role: model.RoleUser, Content: "how are you doing"})
	require.NoError(t, err)
	assert.Equal(t, KeepBuffering, d)

	d, err = b.AddTurn(ctx, model.Turn{Role: model.RoleUser, Content: "fine thanks for asking"})
	require.NoError(t, err)
	assert.Equal(t, ExtractBatch, d)
}

func TestAddTurn_EveryNModeIgnoresSignal(t *testing.T) {
	t.Parallel()
	b := newTestBuffer(t, Config{Mode: ModeEveryN, MaxTurns: 2, MaxMinutes: 1000}, nil)
	ctx := context.Background()

	d, err := b.AddTurn(ctx, model.Turn{Role: model.RoleUser, Content: "Actually, I prefer spaces."})
	require.NoError(t, err)
	assert.Equal(t, KeepBuffering, d, "every_n ignores high signal")

	d, err = b.AddTurn(ctx, model.Turn{Role: model.RoleUser, Content: "more words here"})
	require.NoError(t, err)
	assert.Equal(t, ExtractBatch, d)
}

// TestAddTurn_TimeBasedBoundary covers "lastExtractionAt older than
// bufferMaxMinutes returns extract_batch".
func TestAddTurn_TimeBasedBoundary(t *testing.T) {
	t.Parallel()
	clock := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	now := func() time.Time { return clock }
	b := newTestBuffer(t, Config{Mode: ModeTimeBased, MaxMinutes: 10}, now)
	ctx := context.Background()

	require.NoError(t, b.ClearAfterExtraction(ctx)) // stamps lastExtractionAt at clock

	clock = clock.Add(11 * time.Minute)
	d, err := b.AddTurn(ctx, model.Turn{Role: model.RoleUser, Content: "anything at all"})
	require.NoError(t, err)
	assert.Equal(t, ExtractBatch, d)
}

func TestClearAfterExtraction_ResetsStateAndIncrementsCount(t *testing.T) {
	t.Parallel()
	b := newTestBuffer(t, Config{Mode: ModeSmart, MaxTurns: 100, MaxMinutes: 1000}, nil)
	ctx := context.Background()

	_, err := b.AddTurn(ctx, model.Turn{Role: model.RoleUser, Content: "hello there friend"})
	require.NoError(t, err)

	require.NoError(t, b.ClearAfterExtraction(ctx))

	turns, err := b.Turns(ctx)
	require.NoError(t, err)
	assert.Empty(t, turns)

	count, err := b.ExtractionCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), count)
}

func TestTurns_FiltersNonSubstantive(t *testing.T) {
	t.Parallel()
	b := newTestBuffer(t, Config{Mode: ModeSmart, MaxTurns: 100, MaxMinutes: 1000}, nil)
	ctx := context.Background()

	_, err := b.AddTurn(ctx, model.Turn{Role: model.RoleUser, Content: "ok"})
	require.NoError(t, err)
	_, err = b.AddTurn(ctx, model.Turn{Role: model.RoleUser, Content: "a real substantive message"})
	require.NoError(t, err)

	turns, err := b.Turns(ctx)
	require.NoError(t, err)
	require.Len(t, turns, 1)
	assert.Equal(t, "a real substantive message", turns[0].Content)
}
