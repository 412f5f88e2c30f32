package retrieval

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/satriahrh/suara/domain/entities"
)

// bagOfWords embeds text as hashed word counts.
type bagOfWords struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (b *bagOfWords) Embed(_ context.Context, texts []string) ([][]float32, error) {
	b.mu.Lock()
	b.calls++
	b.mu.Unlock()
	if b.err != nil {
		return nil, b.err
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		v := make([]float32, 64)
		for _, w := range tokenize(text) {
			h := fnv.New32a()
			_, _ = h.Write([]byte(w))
			v[h.Sum32()%64]++
		}
		out[i] = v
	}
	return out, nil
}

type recordingGenerator struct {
	mu          sync.Mutex
	instruction string
	prompt      string
	calls       int
	err         error
}

func (g *recordingGenerator) Generate(_ context.Context, instruction, prompt string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.instruction = instruction
	g.prompt = prompt
	g.calls++
	if g.err != nil {
		return "", g.err
	}
	return " generated answer \n", nil
}

type fixedReranker struct {
	mu     sync.Mutex
	scores map[string]float64
	seen   []string
}

func (r *fixedReranker) Rerank(_ context.Context, _ string, docs []string) ([]float64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen = docs
	out := make([]float64, len(docs))
	for i, d := range docs {
		out[i] = r.scores[d]
	}
	return out, nil
}

func TestQueryBeforeIngest(t *testing.T) {
	e := NewEngine(&bagOfWords{}, &recordingGenerator{}, zaptest.NewLogger(t))
	_, err := e.Query(context.Background(), "anything?")
	assert.ErrorIs(t, err, ErrNotInitialized)
}

func TestQueryExperienceScenario(t *testing.T) {
	gen := &recordingGenerator{}
	e := NewEngine(&bagOfWords{}, gen, zaptest.NewLogger(t))
	ctx := context.Background()

	require.NoError(t, e.Ingest(ctx, []entities.Document{
		{Text: "X has 10 years experience", Metadata: map[string]any{"source": "cv"}},
	}))

	answer, err := e.Query(ctx, "What experience does X have?")
	require.NoError(t, err)
	assert.Equal(t, "generated answer", answer.Answer)
	require.Len(t, answer.Sources, 2)

	types := map[entities.SearchType]entities.Source{}
	for _, s := range answer.Sources {
		assert.Equal(t, "X has 10 years experience", s.Content)
		assert.Equal(t, "cv", s.Metadata["source"])
		assert.Greater(t, s.Relevance, 0)
		assert.LessOrEqual(t, s.Relevance, 100)
		types[s.SearchType] = s
	}
	require.Contains(t, types, entities.SearchTypeVector)
	require.Contains(t, types, entities.SearchTypeKeyword)
	// "x" and "experience" out of five query words
	assert.Equal(t, 40, types[entities.SearchTypeKeyword].Relevance)

	assert.Equal(t, AnswerInstruction, gen.instruction)
	assert.Contains(t, gen.prompt, "X has 10 years experience\nRelevance: ")
	assert.Contains(t, gen.prompt, "Question: What experience does X have?")
}

func TestQuerySourcesDoNotAliasCorpus(t *testing.T) {
	e := NewEngine(&bagOfWords{}, &recordingGenerator{}, zaptest.NewLogger(t))
	ctx := context.Background()
	require.NoError(t, e.Ingest(ctx, []entities.Document{
		{Text: "The shop opens at nine", Metadata: map[string]any{"source": "hours"}},
	}))

	first, err := e.Query(ctx, "When does the shop open?")
	require.NoError(t, err)
	require.NotEmpty(t, first.Sources)
	for _, s := range first.Sources {
		s.Metadata["source"] = "tampered"
	}

	second, err := e.Query(ctx, "When does the shop open?")
	require.NoError(t, err)
	require.NotEmpty(t, second.Sources)
	for _, s := range second.Sources {
		assert.Equal(t, "hours", s.Metadata["source"])
	}
}

func TestQueryWithoutKeywordMatches(t *testing.T) {
	e := NewEngine(&bagOfWords{}, &recordingGenerator{}, zaptest.NewLogger(t))
	ctx := context.Background()
	require.NoError(t, e.Ingest(ctx, []entities.Document{
		{Text: "alpha beta"},
		{Text: "gamma delta"},
		{Text: "epsilon zeta"},
	}))

	answer, err := e.Query(ctx, "qqq rrr")
	require.NoError(t, err)
	assert.LessOrEqual(t, len(answer.Sources), 2)
	for _, s := range answer.Sources {
		assert.Equal(t, entities.SearchTypeVector, s.SearchType)
	}
}

func TestQueryRerankerReplacesScores(t *testing.T) {
	docs := []entities.Document{
		{Text: "refund policy allows returns within 30 days"},
		{Text: "shipping takes five days"},
		{Text: "our office opens at nine"},
	}
	reranker := &fixedReranker{scores: map[string]float64{
		docs[2].Text: 0.91,
		docs[1].Text: 0.42,
	}}
	e := NewEngine(&bagOfWords{}, &recordingGenerator{}, zaptest.NewLogger(t), WithReranker(reranker))
	require.True(t, e.Reranking())

	ctx := context.Background()
	require.NoError(t, e.Ingest(ctx, docs))

	answer, err := e.Query(ctx, "refund policy")
	require.NoError(t, err)
	require.Len(t, answer.Sources, 2)
	assert.Equal(t, docs[2].Text, answer.Sources[0].Content)
	assert.Equal(t, 91, answer.Sources[0].Relevance)
	assert.Equal(t, docs[1].Text, answer.Sources[1].Content)
	assert.Equal(t, 42, answer.Sources[1].Relevance)

	// three vector hits plus one keyword hit
	assert.Len(t, reranker.seen, 4)
}

func TestIngestFailureLeavesCorpusUntouched(t *testing.T) {
	embedder := &bagOfWords{}
	e := NewEngine(embedder, &recordingGenerator{}, zaptest.NewLogger(t))
	ctx := context.Background()

	require.NoError(t, e.Ingest(ctx, []entities.Document{{Text: "first"}}))

	embedder.err = errors.New("quota exceeded")
	err := e.Ingest(ctx, []entities.Document{{Text: "second"}})
	require.ErrorContains(t, err, "quota exceeded")

	docs, chunks := e.Stats()
	assert.Equal(t, 1, docs)
	assert.Equal(t, 1, chunks)

	_, err = e.Query(ctx, "first")
	assert.ErrorContains(t, err, "quota exceeded")
}

func TestIngestRejectsEmptyInput(t *testing.T) {
	e := NewEngine(&bagOfWords{}, &recordingGenerator{}, zaptest.NewLogger(t))
	assert.Error(t, e.Ingest(context.Background(), nil))
	assert.Error(t, e.Ingest(context.Background(), []entities.Document{{Text: "  "}}))
	_, err := e.Query(context.Background(), "x")
	assert.ErrorIs(t, err, ErrNotInitialized)
}

func TestIngestBatchesEmbeddings(t *testing.T) {
	embedder := &bagOfWords{}
	splitter, err := NewSplitter(10, 0)
	require.NoError(t, err)
	e := NewEngine(embedder, &recordingGenerator{}, zaptest.NewLogger(t),
		WithSplitter(splitter), WithEmbedBatching(2, 3))

	// 7 chunks of one word each
	require.NoError(t, e.Ingest(context.Background(), []entities.Document{
		{Text: "aaaaaaa bbbbbbb ccccccc ddddddd eeeeeee fffffff ggggggg"},
	}))
	docs, chunks := e.Stats()
	assert.Equal(t, 1, docs)
	assert.Equal(t, 7, chunks)
	assert.Equal(t, 4, embedder.calls)
}

func TestIngestAppendsWithoutDeduplication(t *testing.T) {
	e := NewEngine(&bagOfWords{}, &recordingGenerator{}, zaptest.NewLogger(t))
	doc := entities.Document{Text: "same text"}
	require.NoError(t, e.Ingest(context.Background(), []entities.Document{doc}))
	require.NoError(t, e.Ingest(context.Background(), []entities.Document{doc}))
	docs, chunks := e.Stats()
	assert.Equal(t, 2, docs)
	assert.Equal(t, 2, chunks)
}

func TestConcurrentIngestAndQuery(t *testing.T) {
	gen := &recordingGenerator{}
	e := NewEngine(&bagOfWords{}, gen, zaptest.NewLogger(t))
	ctx := context.Background()
	require.NoError(t, e.Ingest(ctx, []entities.Document{{Text: "seed document"}}))

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, e.Ingest(ctx, []entities.Document{{Text: fmt.Sprintf("document number %d", i)}}))
		}(i)
		go func() {
			defer wg.Done()
			answer, err := e.Query(ctx, "document")
			if assert.NoError(t, err) {
				assert.LessOrEqual(t, len(answer.Sources), 2)
			}
		}()
	}
	wg.Wait()

	docs, chunks := e.Stats()
	assert.Equal(t, 21, docs)
	assert.Equal(t, 21, chunks)
	assert.Equal(t, 20, gen.calls)
}
