package intent

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParse_ClassifiesTokens(t *testing.T) {
	t.Parallel()
	got := Parse("I want to fix the Postgres connection")
	assert.Contains(t, got.GoalTokens, "want")
	assert.Contains(t, got.ActionTokens, "fix")
	assert.Contains(t, got.EntityTokens, "postgres")
}

func TestParse_Purity(t *testing.T) {
	t.Parallel()
	q := "we should deploy the new Search service"
	a := Parse(q)
	b := Parse(q)
	assert.Equal(t, a, b)
}

func TestMatches(t *testing.T) {
	t.Parallel()
	i := Parse("please fix the deploy script")
	assert.True(t, i.Matches([]string{"fix"}, "fact"))
	assert.False(t, i.Matches([]string{"unrelated"}, "fact"))
	assert.True(t, i.Matches(nil, "fix")) // category itself can match a token
}
