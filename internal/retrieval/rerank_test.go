package retrieval

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"engram/internal/model"
)

func candFor(id string) Candidate {
	return Candidate{Item: &model.MemoryItem{ID: id}}
}

// TestParseRerankResponse_SeedScenario5 is the spec's seed scenario 5:
// missing ids are ignored, unscored candidates retain their original order
// after scored ones, stable tie-break on original index.
func TestParseRerankResponse_SeedScenario5(t *testing.T) {
	t.Parallel()
	raw := `{"scores":[{"id":"a","score":90},{"id":"missing","score":100},{"id":"b","score":10}]}`
	candidates := []Candidate{candFor("a"), candFor("b"), candFor("c")}

	out := ParseRerankResponse(raw, candidates)

	ids := make([]string, len(out))
	for i, c := range out {
		ids[i] = c.Item.ID
	}
	assert.Equal(t, []string{"a", "b", "c"}, ids)
}

func TestParseRerankResponse_Determinism(t *testing.T) {
	t.Parallel()
	raw := `{"scores":[{"id":"x","score":5},{"id":"y","score":5}]}`
	candidates := []Candidate{candFor("x"), candFor("y"), candFor("z")}

	out1 := ParseRerankResponse(raw, candidates)
	out2 := ParseRerankResponse(raw, candidates)
	assert.Equal(t, out1, out2)
}

func TestParseRerankResponse_FallsOpenOnParseFailure(t *testing.T) {
	t.Parallel()
	candidates := []Candidate{candFor("a"), candFor("b")}
	out := ParseRerankResponse("not json at all", candidates)
	assert.Equal(t, candidates, out)
}

func TestCacheKey_StableAcrossCaseAndWhitespace(t *testing.T) {
	t.Parallel()
	a := CacheKey("  Hello World  ", []string{"1", "2"})
	b := CacheKey("hello world", []string{"1", "2"})
	assert.Equal(t, a, b)
}

// TestCacheValue_RoundTripsThroughParseRerankResponse verifies that caching
// a live rerank's order and replaying it through ParseRerankResponse later
// reproduces the same order, so a cache hit is faithful to the original
// rerank rather than just falling open.
func TestCacheValue_RoundTripsThroughParseRerankResponse(t *testing.T) {
	t.Parallel()
	reranked := []Candidate{candFor("b"), candFor("c"), candFor("a")}

	raw := CacheValue(reranked)
	assert.NotEmpty(t, raw)

	replayed := ParseRerankResponse(raw, []Candidate{candFor("a"), candFor("b"), candFor("c")})
	ids := make([]string, len(replayed))
	for i, c := range replayed {
		ids[i] = c.Item.ID
	}
	assert.Equal(t, []string{"b", "c", "a"}, ids)
}
