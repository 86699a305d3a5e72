package frontmatter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundTrip(t *testing.T) {
	t.Parallel()
	fields := map[string]any{
		"id":       "f-1",
		"category": "preference",
		"tags":     []string{"tabs", "editor"},
		"priority": 0.5,
	}
	body := "Prefers tabs over spaces.\n"

	raw := Serialize(fields, body)
	doc, err := Parse(raw)
	require.NoError(t, err)

	assert.Equal(t, "f-1", String(doc.Fields["id"]))
	assert.Equal(t, "preference", String(doc.Fields["category"]))
	assert.Equal(t, []string{"tabs", "editor"}, StringSlice(doc.Fields["tags"]))
	assert.Equal(t, 0.5, Float64(doc.Fields["priority"]))
	assert.Equal(t, body, doc.Body)
}

func TestRoundTrip_EmptyFieldsAndBody(t *testing.T) {
	t.Parallel()
	raw := Serialize(map[string]any{}, "")
	doc, err := Parse(raw)
	require.NoError(t, err)
	assert.Empty(t, doc.Fields)
	assert.Empty(t, doc.Body)
}

func TestParse_MalformedFenceRejected(t *testing.T) {
	t.Parallel()
	_, err := Parse([]byte("no opening fence here"))
	assert.Error(t, err)

	_, err = Parse([]byte("---\nid: a\nnever closed"))
	assert.Error(t, err)
}

func TestParse_TolerantOfMissingFields(t *testing.T) {
	t.Parallel()
	doc, err := Parse([]byte("---\nid: only-id\n---\nbody text\n"))
	require.NoError(t, err)
	assert.Equal(t, "only-id", String(doc.Fields["id"]))
	assert.Equal(t, "", String(doc.Fields["category"]))
	assert.Equal(t, "body text\n", doc.Body)
}

func TestCoercions_DefaultOnWrongType(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "", String(42))
	assert.Equal(t, float64(0), Float64("not a number"))
	assert.False(t, Bool("not a bool"))
	assert.Nil(t, StringSlice(42))
}
