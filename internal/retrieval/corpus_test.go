package retrieval

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/satriahrh/suara/domain/entities"
)

func TestRelevance(t *testing.T) {
	assert.Equal(t, 88, relevance(0.876))
	assert.Equal(t, 50, relevance(0.5))
	assert.Equal(t, 0, relevance(-0.3))
	assert.Equal(t, 100, relevance(1.7))
}

func TestTokenize(t *testing.T) {
	assert.Equal(t, []string{"what", "experience", "does", "x", "have"}, tokenize("What experience does X have?"))
	assert.Empty(t, tokenize("?!"))
}

func TestCosineSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, cosineSimilarity([]float32{1, 2}, []float32{2, 4}), 1e-9)
	assert.InDelta(t, 0.0, cosineSimilarity([]float32{1, 0}, []float32{0, 1}), 1e-9)
	assert.Zero(t, cosineSimilarity([]float32{1}, []float32{1, 2}))
	assert.Zero(t, cosineSimilarity([]float32{0, 0}, []float32{1, 2}))
}

func TestKeywordMatchesTopThree(t *testing.T) {
	c := (*corpus)(nil).with(nil, []entities.Document{
		{Text: "apple"},
		{Text: "apple banana"},
		{Text: "apple banana cherry"},
		{Text: "Apple Banana Cherry Date"},
		{Text: "nothing relevant"},
	})

	got := c.keywordMatches("apple banana cherry date", KeywordTopK)
	assert.Len(t, got, 3)
	assert.Equal(t, "Apple Banana Cherry Date", got[0].content)
	assert.Equal(t, 1.0, got[0].score)
	assert.Equal(t, 0.75, got[1].score)
	assert.Equal(t, 0.5, got[2].score)
}

func TestBuildContext(t *testing.T) {
	got := BuildContext([]entities.Source{
		{Content: "first", Relevance: 91},
		{Content: "second", Relevance: 7},
	})
	assert.Equal(t, "first\nRelevance: 91%\n\nsecond\nRelevance: 7%", got)
}
