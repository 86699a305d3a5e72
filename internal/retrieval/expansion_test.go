package retrieval

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExpand_FirstElementIsOriginal(t *testing.T) {
	t.Parallel()
	out := Expand("what database should I use for analytics", 4, 3)
	assert.Equal(t, "what database should I use for analytics", out[0])
	assert.LessOrEqual(t, len(out), 4)
}

// TestExpand_Idempotent covers the spec's round-trip property:
// expand(expand(q)) has the same first element q, and its candidate set is
// a subset of expand(q)'s candidate set.
func TestExpand_Idempotent(t *testing.T) {
	t.Parallel()
	q := "what database should I use for analytics workloads"
	once := Expand(q, 5, 3)
	twice := Expand(once[0], 5, 3)

	assert.Equal(t, q, twice[0])

	onceSet := map[string]bool{}
	for _, s := range once {
		onceSet[s] = true
	}
	for _, s := range twice {
		assert.True(t, onceSet[s], "expand(expand(q)) introduced a candidate not in expand(q): %q", s)
	}
}

func TestExpand_DropsStopwordsAndShortTokens(t *testing.T) {
	t.Parallel()
	out := Expand("the cat is on a mat", 5, 4)
	// every stopword/short token filtered; with nothing salient left beyond
	// "mat" (len 3 < minTokenLen 4), only the original query should survive.
	assert.Equal(t, []string{"the cat is on a mat"}, out)
}

func TestExpand_MaxQueriesOne(t *testing.T) {
	t.Parallel()
	out := Expand("find my postgres database preferences", 1, 3)
	assert.Equal(t, []string{"find my postgres database preferences"}, out)
}

func TestIsNoRecall(t *testing.T) {
	t.Parallel()
	assert.True(t, IsNoRecall(""))
	assert.True(t, IsNoRecall("   "))
	assert.True(t, IsNoRecall("ok"))
	assert.True(t, IsNoRecall("thanks"))
	assert.False(t, IsNoRecall("what database should I use"))
}
