package orchestrator

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"engram/internal/config"
	"engram/internal/model"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	cfg := config.Defaults()
	cfg.Store.MemoryDir = filepath.Join(t.TempDir(), "memory")
	cfg.Buffer.MaxTurns = 3
	cfg.Buffer.TriggerMode = "every_n"
	cfg.Index.Enabled = false
	cfg.RerankCache.Enabled = false
	return cfg
}

func TestNew_AssemblesWithoutLLMConfigured(t *testing.T) {
	t.Parallel()
	o, err := New(context.Background(), testConfig(t), nil, func() time.Time { return time.Unix(0, 0) })
	require.NoError(t, err)
	require.NotNil(t, o.Store)
	require.NotNil(t, o.Buffer)
	require.NotNil(t, o.Pipeline)
	require.NotNil(t, o.Boxes)
	require.NotNil(t, o.Planner)
	assert.Nil(t, o.Pipeline.ExtractionLLM)
}

func TestProcessTurn_TriggersExtractionAndStaysIdleSafe(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	o, err := New(ctx, testConfig(t), nil, nil)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		o.ProcessTurn(ctx, "", model.Turn{Role: model.RoleUser, Content: "hello there", Timestamp: time.Now()})
	}

	waitCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	require.NoError(t, o.WaitForExtractionIdle(waitCtx))
}

func TestRecall_NeverErrorsWithoutIndexOrLLM(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	o, err := New(ctx, testConfig(t), nil, nil)
	require.NoError(t, err)

	res := o.Recall(ctx, "default", "what did we discuss about the database migration", nil)
	assert.NotNil(t, res)
	assert.Empty(t, res.Candidates)
}

func TestProcessTurn_AppendsTranscript(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	cfg := testConfig(t)
	o, err := New(ctx, cfg, nil, nil)
	require.NoError(t, err)

	ts := time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)
	o.ProcessTurn(ctx, "", model.Turn{
		Role:       model.RoleUser,
		Content:    "we shipped the ledger migration",
		Timestamp:  ts,
		SessionKey: "agent:claude:slack:C42",
	})

	path := filepath.Join(cfg.Store.MemoryDir, "transcripts", "slack", "C42", "2026-07-30.jsonl")
	_, err = os.Stat(path)
	assert.NoError(t, err)
}

func TestNew_EmbeddingFallbackIndexWiredWhenConfigured(t *testing.T) {
	t.Parallel()
	cfg := testConfig(t)
	cfg.Embedding.BaseURL = "http://127.0.0.1:9"
	o, err := New(context.Background(), cfg, nil, nil)
	require.NoError(t, err)
	// The embedding-table fallback implements Upsert, so the pipeline's
	// index sync hook must be live rather than the NoopIndex degradation.
	assert.NotNil(t, o.Pipeline.IndexSync)
}

func TestFlushBox_NoOpWhenNothingOpen(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	o, err := New(ctx, testConfig(t), nil, nil)
	require.NoError(t, err)
	require.NoError(t, o.FlushBox(ctx, ""))
}
