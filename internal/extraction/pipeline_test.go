package extraction

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"engram/internal/buffer"
	"engram/internal/config"
	"engram/internal/llm"
	"engram/internal/model"
	"engram/internal/store"
)

func newTestPipeline(t *testing.T, now time.Time) (*Pipeline, *store.Store, *buffer.Buffer) {
	t.Helper()
	st, err := store.New(store.Config{Dir: t.TempDir()}, nil)
	require.NoError(t, err)

	buf, err := buffer.New(st, buffer.Config{Mode: buffer.ModeEveryN, MaxTurns: 1}, nil, func() time.Time { return now })
	require.NoError(t, err)

	p := &Pipeline{
		Store:  st,
		Buffer: buf,
		Cfg:    config.Defaults().Extraction,
		Now:    func() time.Time { return now },
	}
	return p, st, buf
}

func addTurn(t *testing.T, buf *buffer.Buffer, content string) {
	t.Helper()
	addTurnAt(t, buf, content, time.Now())
}

func addTurnAt(t *testing.T, buf *buffer.Buffer, content string, ts time.Time) {
	t.Helper()
	_, err := buf.AddTurn(context.Background(), model.Turn{Role: model.RoleUser, Content: content, Timestamp: ts})
	require.NoError(t, err)
}

func constClient(content string) llm.Client {
	return llm.ClientFunc(func(ctx context.Context, messages []llm.Message, opts llm.Options) (*llm.Result, error) {
		return &llm.Result{Content: content}, nil
	})
}

func TestPipeline_ExtractsAndWritesFact(t *testing.T) {
	t.Parallel()
	now := time.Now()
	p, st, buf := newTestPipeline(t, now)
	addTurn(t, buf, "I always prefer dark mode in every editor I use.")

	p.ExtractionLLM = constClient(`{"facts":[{"content":"Prefers dark mode","category":"preference","confidence":0.9,"tags":["ui"]}],"topics":["ui"]}`)

	var capturedEvent model.ExtractionEvent
	p.OnExtracted = func(ctx context.Context, ns string, ev model.ExtractionEvent) {
		capturedEvent = ev
	}

	p.Trigger(context.Background(), "")
	require.NoError(t, p.WaitForExtractionIdle(context.Background()))

	items, err := st.ListAll(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, model.CategoryPreference, items[0].Category)
	assert.Equal(t, model.StatusActive, items[0].Status)
	assert.Equal(t, []string{"ui"}, capturedEvent.Topics)
	require.Len(t, capturedEvent.MemoryIDs, 1)

	remaining, err := buf.Turns(context.Background())
	require.NoError(t, err)
	assert.Empty(t, remaining)
}

func TestPipeline_DuplicateWindowIsSkipped(t *testing.T) {
	t.Parallel()
	now := time.Now()
	turnTime := now.Add(-time.Minute)
	p, st, buf := newTestPipeline(t, now)
	addTurnAt(t, buf, "I always prefer dark mode in every editor I use.", turnTime)

	calls := 0
	p.ExtractionLLM = llm.ClientFunc(func(ctx context.Context, messages []llm.Message, opts llm.Options) (*llm.Result, error) {
		calls++
		return &llm.Result{Content: `{"facts":[{"content":"Prefers dark mode","category":"preference","confidence":0.9}]}`}, nil
	})

	p.Trigger(context.Background(), "")
	require.NoError(t, p.WaitForExtractionIdle(context.Background()))
	assert.Equal(t, 1, calls)

	// Re-add the identical turn (same content, same timestamp) within the
	// dedupe window and trigger again; the fingerprint matches so the
	// second run must not re-call the model.
	addTurnAt(t, buf, "I always prefer dark mode in every editor I use.", turnTime)
	p.Trigger(context.Background(), "")
	require.NoError(t, p.WaitForExtractionIdle(context.Background()))
	assert.Equal(t, 1, calls, "duplicate window should not re-invoke the extraction model")

	items, err := st.ListAll(context.Background(), "")
	require.NoError(t, err)
	assert.Len(t, items, 1)
}

func TestPipeline_ConsolidationMergesIntoExisting(t *testing.T) {
	t.Parallel()
	now := time.Now()
	p, st, buf := newTestPipeline(t, now)

	existing := &model.MemoryItem{
		ID: "existing-pref", Category: model.CategoryPreference, Created: now, Updated: now,
		Confidence: 0.8, Status: model.StatusActive, Body: "Prefers dark mode in editors",
	}
	existing.Normalize()
	require.NoError(t, st.WriteItem(context.Background(), "", existing))

	addTurn(t, buf, "Also prefers dark mode in the terminal, not just editors.")
	p.ExtractionLLM = constClient(`{"facts":[{"content":"Prefers dark mode in the terminal too","category":"preference","confidence":0.85}]}`)
	p.ConsolidationLLM = constClient(`{"decisions":[{"factIndex":0,"action":"merge","existingId":"existing-pref","mergedBody":"Prefers dark mode across editors and terminal"}]}`)

	p.Trigger(context.Background(), "")
	require.NoError(t, p.WaitForExtractionIdle(context.Background()))

	items, err := st.ListAll(context.Background(), "")
	require.NoError(t, err)

	var supersededCount, activeCount int
	for _, it := range items {
		switch it.Status {
		case model.StatusSuperseded:
			supersededCount++
			assert.Equal(t, "existing-pref", it.ID)
		case model.StatusActive:
			activeCount++
			assert.Contains(t, it.Lineage, "existing-pref")
		}
	}
	assert.Equal(t, 1, supersededCount)
	assert.Equal(t, 1, activeCount)
}

func TestPipeline_NilExtractionModelSkipsRun(t *testing.T) {
	t.Parallel()
	now := time.Now()
	p, st, buf := newTestPipeline(t, now)
	addTurn(t, buf, "some substantive turn content here")

	p.Trigger(context.Background(), "")
	require.NoError(t, p.WaitForExtractionIdle(context.Background()))

	items, err := st.ListAll(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, items)

	// Buffer is left intact so a later, properly configured run can still
	// pick up the window.
	remaining, err := buf.Turns(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, remaining)
}

func TestPipeline_TrivialWindowMakesNoModelCall(t *testing.T) {
	t.Parallel()
	now := time.Now()
	p, st, buf := newTestPipeline(t, now)
	addTurn(t, buf, "ok")

	calls := 0
	p.ExtractionLLM = llm.ClientFunc(func(ctx context.Context, messages []llm.Message, opts llm.Options) (*llm.Result, error) {
		calls++
		return &llm.Result{Content: `{}`}, nil
	})

	p.Trigger(context.Background(), "")
	require.NoError(t, p.WaitForExtractionIdle(context.Background()))

	assert.Zero(t, calls, "a window with no substantive turns must not reach the model")
	items, err := st.ListAll(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, items)

	count, err := buf.ExtractionCount(context.Background())
	require.NoError(t, err)
	assert.Zero(t, count, "skipped runs must not count as extractions")
}

func TestPipeline_CommitmentGetsDecayExpiry(t *testing.T) {
	t.Parallel()
	now := time.Now()
	p, st, buf := newTestPipeline(t, now)
	addTurn(t, buf, "I'll send the migration report to the team by Friday.")

	p.ExtractionLLM = constClient(`{"facts":[{"content":"Will send the migration report by Friday","category":"commitment","confidence":0.9}]}`)

	p.Trigger(context.Background(), "")
	require.NoError(t, p.WaitForExtractionIdle(context.Background()))

	items, err := st.ListAll(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.NotNil(t, items[0].ExpiresAt)
	want := now.Add(time.Duration(p.Cfg.CommitmentDecayDays) * 24 * time.Hour)
	assert.WithinDuration(t, want, *items[0].ExpiresAt, time.Second)
}

func TestPipeline_SweepsExpiredItemsAfterRun(t *testing.T) {
	t.Parallel()
	now := time.Now()
	p, st, buf := newTestPipeline(t, now)

	expired := now.Add(-time.Hour)
	stale := &model.MemoryItem{
		ID: "stale-speculation", Category: model.CategoryFact, Created: now.Add(-48 * time.Hour),
		Updated: now.Add(-48 * time.Hour), Confidence: 0.2, Status: model.StatusActive,
		ExpiresAt: &expired, Body: "Might be moving to Berlin",
	}
	require.NoError(t, st.WriteItem(context.Background(), "", stale))

	addTurn(t, buf, "I always prefer dark mode in every editor I use.")
	p.ExtractionLLM = constClient(`{"facts":[{"content":"Prefers dark mode","category":"preference","confidence":0.9}]}`)

	p.Trigger(context.Background(), "")
	require.NoError(t, p.WaitForExtractionIdle(context.Background()))

	got, err := st.ReadItem(context.Background(), "", "stale-speculation")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, model.StatusArchived, got.Status)
}

func TestPipeline_ConcurrentTriggersCoalesce(t *testing.T) {
	t.Parallel()
	now := time.Now()
	p, _, buf := newTestPipeline(t, now)
	addTurn(t, buf, "first substantive turn for the window")

	started := make(chan struct{})
	release := make(chan struct{})
	calls := 0
	p.ExtractionLLM = llm.ClientFunc(func(ctx context.Context, messages []llm.Message, opts llm.Options) (*llm.Result, error) {
		calls++
		if calls == 1 {
			close(started)
			<-release
		}
		return &llm.Result{Content: `{}`}, nil
	})

	p.Trigger(context.Background(), "")
	<-started
	// These triggers arrive while the first run is in flight; they should
	// coalesce into at most one rerun, not queue one run per call.
	p.Trigger(context.Background(), "")
	p.Trigger(context.Background(), "")
	close(release)

	require.NoError(t, p.WaitForExtractionIdle(context.Background()))
	assert.LessOrEqual(t, calls, 2)
}
