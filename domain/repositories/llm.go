package repositories

import "context"

// Embedder turns texts into dense vectors, one per text in the same order.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// AnswerGenerator abstracts the language model that writes grounded answers.
type AnswerGenerator interface {
	// Generate takes a system instruction and a user prompt and returns the model's reply
	Generate(ctx context.Context, instruction, prompt string) (string, error)
}

// Reranker scores candidate documents against a query.
// Scores are returned in the order of the input documents and lie in [0,1].
type Reranker interface {
	Rerank(ctx context.Context, query string, documents []string) ([]float64, error)
}
