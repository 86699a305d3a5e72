package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestConfidenceTierOf_Boundaries(t *testing.T) {
	t.Parallel()
	assert.Equal(t, TierExplicit, ConfidenceTierOf(0.95))
	assert.Equal(t, TierExplicit, ConfidenceTierOf(1.0))
	assert.Equal(t, TierImplied, ConfidenceTierOf(0.70))
	assert.Equal(t, TierImplied, ConfidenceTierOf(0.94))
	assert.Equal(t, TierInferred, ConfidenceTierOf(0.40))
	assert.Equal(t, TierInferred, ConfidenceTierOf(0.69))
	assert.Equal(t, TierSpeculative, ConfidenceTierOf(0.39))
	assert.Equal(t, TierSpeculative, ConfidenceTierOf(0))
}

func TestNormalize_SpeculativeGetsDefaultExpiry(t *testing.T) {
	t.Parallel()
	created := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	item := &MemoryItem{Confidence: 0.1, Created: created}
	item.Normalize()

	assert.Equal(t, TierSpeculative, item.ConfidenceTier)
	if assert.NotNil(t, item.ExpiresAt) {
		assert.Equal(t, created.Add(SpeculativeTTL), *item.ExpiresAt)
	}
}

func TestNormalize_NonSpeculativeLeavesExpiryUnset(t *testing.T) {
	t.Parallel()
	item := &MemoryItem{Confidence: 0.8, Created: time.Now()}
	item.Normalize()
	assert.Equal(t, TierImplied, item.ConfidenceTier)
	assert.Nil(t, item.ExpiresAt)
}

func TestNormalize_ExplicitOverrideNotClobbered(t *testing.T) {
	t.Parallel()
	override := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	item := &MemoryItem{Confidence: 0.1, Created: time.Now(), ExpiresAt: &override}
	item.Normalize()
	assert.Equal(t, override, *item.ExpiresAt)
}
