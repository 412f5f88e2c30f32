package retrieval

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSplitter(t *testing.T) {
	_, err := NewSplitter(0, 0)
	assert.Error(t, err)
	_, err = NewSplitter(100, 100)
	assert.Error(t, err)
	_, err = NewSplitter(100, -1)
	assert.Error(t, err)

	s, err := NewSplitter(DefaultChunkSize, DefaultChunkOverlap)
	require.NoError(t, err)
	assert.Equal(t, DefaultSeparators, s.Separators)
}

func TestSplitShortText(t *testing.T) {
	s, _ := NewSplitter(DefaultChunkSize, DefaultChunkOverlap)
	assert.Equal(t, []string{"X has 10 years experience"}, s.Split("X has 10 years experience"))
	assert.Empty(t, s.Split(""))
}

func TestSplitPrefersParagraphs(t *testing.T) {
	s, _ := NewSplitter(50, 10)
	first := strings.Repeat("a", 30)
	second := strings.Repeat("b", 30)
	third := strings.Repeat("c", 15)

	chunks := s.Split(first + "\n\n" + second + "\n\n" + third)
	assert.Equal(t, []string{first, second + "\n\n" + third}, chunks)
}

func TestSplitFallsBackToWordsWithOverlap(t *testing.T) {
	s, _ := NewSplitter(20, 8)
	chunks := s.Split("one two three four five six seven eight nine ten")

	require.Greater(t, len(chunks), 1)
	for _, c := range chunks {
		assert.LessOrEqual(t, utf8.RuneCountInString(c), 20, c)
	}
	for i := 1; i < len(chunks); i++ {
		prevWords := strings.Fields(chunks[i-1])
		nextWords := strings.Fields(chunks[i])
		assert.Equal(t, prevWords[len(prevWords)-1], nextWords[0], "chunk %d should start with the previous chunk's tail", i)
	}
	assert.True(t, strings.HasPrefix(chunks[0], "one"))
	assert.True(t, strings.HasSuffix(chunks[len(chunks)-1], "ten"))
}

func TestSplitCharactersWhenNoSeparator(t *testing.T) {
	s, _ := NewSplitter(DefaultChunkSize, DefaultChunkOverlap)
	text := strings.Repeat("a", 1000) + strings.Repeat("b", 1000) + strings.Repeat("c", 500)

	chunks := s.Split(text)
	require.Len(t, chunks, 3)
	assert.Len(t, chunks[0], 1000)
	assert.Len(t, chunks[1], 1000)
	assert.Len(t, chunks[2], 900)
	assert.Equal(t, text[800:1000], chunks[1][:200])
	assert.Equal(t, text[1600:], chunks[2])
}

func TestSplitCountsRunes(t *testing.T) {
	s, _ := NewSplitter(10, 0)
	chunks := s.Split("ééééé ééééé ééééé")
	for _, c := range chunks {
		assert.LessOrEqual(t, utf8.RuneCountInString(c), 10)
	}
	assert.Equal(t, []string{"ééééé", "ééééé", "ééééé"}, chunks)
}
