package retrieval

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"engram/internal/intent"
	"engram/internal/model"
)

func TestScore_RecencyDecaysWithAge(t *testing.T) {
	t.Parallel()
	now := time.Now()
	w := Weights{RecencyWeight: 1, RecencyTauDays: 14}

	fresh := &Candidate{Item: &model.MemoryItem{Created: now, Category: model.CategoryFact}}
	old := &Candidate{Item: &model.MemoryItem{Created: now.Add(-30 * 24 * time.Hour), Category: model.CategoryFact}}

	Score(fresh, w, now, intent.Intent{}, 0)
	Score(old, w, now, intent.Intent{}, 0)

	assert.Greater(t, fresh.Score, old.Score)
}

func TestScore_NegativeHitsCapped(t *testing.T) {
	t.Parallel()
	now := time.Now()
	w := Weights{NegativeExamplesPenaltyPerHit: 0.5, NegativeExamplesPenaltyCap: 1.0}
	item := &model.MemoryItem{Created: now, Category: model.CategoryFact}

	uncapped := &Candidate{Item: item}
	Score(uncapped, w, now, intent.Intent{}, 2) // 2*0.5 = 1.0, at cap
	manyHits := &Candidate{Item: item}
	Score(manyHits, w, now, intent.Intent{}, 50) // clamped to 10 hits, still capped at 1.0

	assert.Equal(t, uncapped.Score, manyHits.Score)
}

func TestScore_IntentBoostAppliedOnTagMatch(t *testing.T) {
	t.Parallel()
	now := time.Now()
	w := Weights{IntentRoutingBoost: 0.25}
	parsed := intent.Parse("please fix the deploy script")

	matching := &Candidate{Item: &model.MemoryItem{Created: now, Category: model.CategoryFact, Tags: []string{"fix"}}}
	nonMatching := &Candidate{Item: &model.MemoryItem{Created: now, Category: model.CategoryFact, Tags: []string{"unrelated"}}}

	Score(matching, w, now, parsed, 0)
	Score(nonMatching, w, now, parsed, 0)

	assert.Greater(t, matching.Score, nonMatching.Score)
}

func TestScore_AccessCountBoostOnlyWhenEnabled(t *testing.T) {
	t.Parallel()
	now := time.Now()
	item := &model.MemoryItem{Created: now, Category: model.CategoryFact}

	disabled := &Candidate{Item: item, AccessCount: 20}
	Score(disabled, Weights{BoostAccessCount: false}, now, intent.Intent{}, 0)

	enabled := &Candidate{Item: item, AccessCount: 20}
	Score(enabled, Weights{BoostAccessCount: true}, now, intent.Intent{}, 0)

	assert.Greater(t, enabled.Score, disabled.Score)
}
