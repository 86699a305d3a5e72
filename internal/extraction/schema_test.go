package extraction

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseExtractionResult(t *testing.T) {
	t.Parallel()

	t.Run("valid envelope with one invalid fact dropped", func(t *testing.T) {
		raw := `{
			"facts": [
				{"content": "prefers dark mode", "category": "preference", "confidence": 0.9, "tags": ["ui"]},
				{"content": "", "category": "fact", "confidence": 0.5}
			],
			"entities": [{"name": "Acme", "type": "company", "facts": ["client"]}],
			"questions": [{"question": "what timezone?", "context": "scheduling", "priority": 0.4}],
			"topics": ["ui", "acme"]
		}`
		result, ok := ParseExtractionResult(raw)
		require.True(t, ok)
		require.Len(t, result.Facts, 1)
		assert.Equal(t, "prefers dark mode", result.Facts[0].Content)
		require.Len(t, result.Entities, 1)
		require.Len(t, result.Questions, 1)
		assert.Equal(t, []string{"ui", "acme"}, result.Topics)
	})

	t.Run("malformed json fails the whole parse", func(t *testing.T) {
		_, ok := ParseExtractionResult("not json")
		assert.False(t, ok)
	})

	t.Run("code-fenced response is unwrapped", func(t *testing.T) {
		raw := "```json\n{\"facts\":[{\"content\":\"x\",\"category\":\"fact\",\"confidence\":0.8}]}\n```"
		result, ok := ParseExtractionResult(raw)
		require.True(t, ok)
		require.Len(t, result.Facts, 1)
	})

	t.Run("out of range confidence drops the fact", func(t *testing.T) {
		raw := `{"facts":[{"content":"x","category":"fact","confidence":1.5}]}`
		result, ok := ParseExtractionResult(raw)
		require.True(t, ok)
		assert.Empty(t, result.Facts)
	})
}

func TestParseConsolidationResult(t *testing.T) {
	t.Parallel()

	t.Run("drops decisions referencing an out of range fact", func(t *testing.T) {
		raw := `{"decisions": [
			{"factIndex": 0, "action": "add"},
			{"factIndex": 5, "action": "add"}
		]}`
		result, ok := ParseConsolidationResult(raw, 1)
		require.True(t, ok)
		require.Len(t, result.Decisions, 1)
		assert.Equal(t, 0, result.Decisions[0].FactIndex)
	})

	t.Run("merge without existingId is dropped", func(t *testing.T) {
		raw := `{"decisions": [{"factIndex": 0, "action": "merge"}]}`
		result, ok := ParseConsolidationResult(raw, 1)
		require.True(t, ok)
		assert.Empty(t, result.Decisions)
	})

	t.Run("malformed json fails the whole parse", func(t *testing.T) {
		_, ok := ParseConsolidationResult("{", 1)
		assert.False(t, ok)
	})
}
