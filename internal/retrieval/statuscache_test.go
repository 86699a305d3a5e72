package retrieval

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"engram/internal/model"
)

type fakeStatusSource struct {
	version   uint64
	listCalls int
	items     []*model.MemoryItem
}

func (f *fakeStatusSource) StatusVersion() uint64 { return f.version }

func (f *fakeStatusSource) ListAll(ctx context.Context, ns string) ([]*model.MemoryItem, error) {
	f.listCalls++
	return f.items, nil
}

func TestStatusCache_ReusedOnlyWhileVersionUnchanged(t *testing.T) {
	t.Parallel()
	src := &fakeStatusSource{
		version: 1,
		items: []*model.MemoryItem{
			{ID: "a", Status: model.StatusActive},
			{ID: "b", Status: model.StatusSuperseded},
		},
	}
	c := NewStatusCache()
	ctx := context.Background()

	first, err := c.Snapshot(ctx, src, "default")
	require.NoError(t, err)
	assert.Equal(t, model.StatusActive, first["a"])
	assert.Equal(t, 1, src.listCalls)

	_, err = c.Snapshot(ctx, src, "default")
	require.NoError(t, err)
	assert.Equal(t, 1, src.listCalls, "unchanged version must reuse the snapshot")

	src.version = 2
	src.items[1].Status = model.StatusArchived
	second, err := c.Snapshot(ctx, src, "default")
	require.NoError(t, err)
	assert.Equal(t, 2, src.listCalls, "churned version must force a re-read")
	assert.Equal(t, model.StatusArchived, second["b"])
}

func TestStatusCache_NamespacesAreIndependent(t *testing.T) {
	t.Parallel()
	src := &fakeStatusSource{version: 1}
	c := NewStatusCache()
	ctx := context.Background()

	_, err := c.Snapshot(ctx, src, "default")
	require.NoError(t, err)
	_, err = c.Snapshot(ctx, src, "shared")
	require.NoError(t, err)
	assert.Equal(t, 2, src.listCalls)
}

func TestStatusCache_NilReceiverAndSourceAreValid(t *testing.T) {
	t.Parallel()
	var c *StatusCache
	m, err := c.Snapshot(context.Background(), nil, "default")
	require.NoError(t, err)
	assert.Nil(t, m)
}
