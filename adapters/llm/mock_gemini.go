package llm

import (
	"context"
	"hash/fnv"
	"strings"
	"unicode"

	"github.com/satriahrh/suara/domain/repositories"
)

const mockDimensions = 256

// MockGemini is an offline stand-in used when no API key is configured. It
// embeds text as hashed word counts and answers with the best context entry.
type MockGemini struct{}

var (
	_ repositories.Embedder        = MockGemini{}
	_ repositories.AnswerGenerator = MockGemini{}
)

// NewMockGemini creates a new offline model
func NewMockGemini() MockGemini {
	return MockGemini{}
}

func (MockGemini) Embed(_ context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		v := make([]float32, mockDimensions)
		words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r)
		})
		for _, w := range words {
			h := fnv.New32a()
			_, _ = h.Write([]byte(w))
			v[h.Sum32()%mockDimensions]++
		}
		vectors[i] = v
	}
	return vectors, nil
}

// Generate returns the first context entry of the prompt.
func (MockGemini) Generate(_ context.Context, _, prompt string) (string, error) {
	first, _, found := strings.Cut(strings.TrimPrefix(prompt, "Context:\n"), "\nRelevance:")
	if !found || strings.TrimSpace(first) == "" {
		return "I don't have enough information to answer that.", nil
	}
	return strings.TrimSpace(first), nil
}
