package retrieval

import (
	"fmt"
	"strings"

	"github.com/satriahrh/suara/domain/entities"
)

// AnswerInstruction is the fixed system instruction for grounded answers.
const AnswerInstruction = "You are a helpful assistant. Answer the question using only the information in the given context. " +
	"If the context does not contain enough information to answer, say that you don't have enough information."

// BuildContext renders sources as text followed by their relevance percentage.
func BuildContext(sources []entities.Source) string {
	parts := make([]string, len(sources))
	for i, s := range sources {
		parts[i] = fmt.Sprintf("%s\nRelevance: %d%%", s.Content, s.Relevance)
	}
	return strings.Join(parts, "\n\n")
}

// BuildPrompt combines the context and the question.
func BuildPrompt(question string, sources []entities.Source) string {
	return fmt.Sprintf("Context:\n%s\n\nQuestion: %s", BuildContext(sources), question)
}
