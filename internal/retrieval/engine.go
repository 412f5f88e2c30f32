// Package retrieval keeps an in-memory knowledge corpus and answers questions
// with hybrid vector and keyword search, optional reranking and an LLM answer
// grounded on the two best sources.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/satriahrh/suara/domain/entities"
	"github.com/satriahrh/suara/domain/repositories"
	"github.com/satriahrh/suara/internal/metrics"
)

const (
	VectorTopK  = 4
	KeywordTopK = 3
	ContextTopK = 2

	defaultEmbedBatchSize   = 16
	defaultEmbedConcurrency = 4
)

// ErrNotInitialized is returned by Query before anything has been ingested.
var ErrNotInitialized = errors.New("retrieval engine not initialized: ingest documents first")

// Engine is safe for concurrent Ingest and Query calls. Queries see the corpus
// either before or after a concurrent ingestion, never in between.
type Engine struct {
	embedder  repositories.Embedder
	generator repositories.AnswerGenerator
	reranker  repositories.Reranker
	splitter  *Splitter
	logger    *zap.Logger
	metrics   *metrics.Metrics

	batchSize   int
	concurrency int

	ingestMu sync.Mutex
	current  atomic.Pointer[corpus]
}

// Option configures an Engine.
type Option func(*Engine)

// WithReranker rescores fused candidates before the final cut.
func WithReranker(r repositories.Reranker) Option {
	return func(e *Engine) {
		e.reranker = r
	}
}

// WithSplitter overrides the default 1000/200 splitter.
func WithSplitter(s *Splitter) Option {
	return func(e *Engine) {
		e.splitter = s
	}
}

// WithEmbedBatching sets how many chunks go into one embedding call and how
// many calls run at once.
func WithEmbedBatching(batchSize, concurrency int) Option {
	return func(e *Engine) {
		if batchSize > 0 {
			e.batchSize = batchSize
		}
		if concurrency > 0 {
			e.concurrency = concurrency
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// NewEngine creates an empty engine.
func NewEngine(embedder repositories.Embedder, generator repositories.AnswerGenerator, logger *zap.Logger, opts ...Option) *Engine {
	splitter, _ := NewSplitter(DefaultChunkSize, DefaultChunkOverlap)
	e := &Engine{
		embedder:    embedder,
		generator:   generator,
		splitter:    splitter,
		logger:      logger,
		batchSize:   defaultEmbedBatchSize,
		concurrency: defaultEmbedConcurrency,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Reranking reports whether a reranker was configured.
func (e *Engine) Reranking() bool {
	return e.reranker != nil
}

// Stats returns the number of retained documents and indexed chunks.
func (e *Engine) Stats() (documents, chunks int) {
	c := e.current.Load()
	if c == nil {
		return 0, 0
	}
	return len(c.documents), len(c.chunks)
}

// Ingest splits, embeds and appends documents. Nothing is visible to queries
// unless every chunk embedded successfully.
func (e *Engine) Ingest(ctx context.Context, docs []entities.Document) (err error) {
	started := time.Now()
	defer func() { e.metrics.ObserveRetrieval("ingest", err, time.Since(started)) }()

	if len(docs) == 0 {
		return fmt.Errorf("no documents to ingest")
	}

	var chunks []entities.Chunk
	retained := make([]entities.Document, 0, len(docs))
	for _, doc := range docs {
		if strings.TrimSpace(doc.Text) == "" {
			continue
		}
		retained = append(retained, entities.Document{Text: doc.Text, Metadata: maps.Clone(doc.Metadata)})
		for _, text := range e.splitter.Split(doc.Text) {
			chunks = append(chunks, entities.Chunk{Text: text, Metadata: maps.Clone(doc.Metadata)})
		}
	}
	if len(retained) == 0 {
		return fmt.Errorf("documents contain no text")
	}

	if err := e.embedChunks(ctx, chunks); err != nil {
		return err
	}

	e.ingestMu.Lock()
	e.current.Store(e.current.Load().with(chunks, retained))
	e.ingestMu.Unlock()

	e.logger.Info("Ingested documents",
		zap.Int("documents", len(retained)),
		zap.Int("chunks", len(chunks)))
	return nil
}

func (e *Engine) embedChunks(ctx context.Context, chunks []entities.Chunk) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)

	for start := 0; start < len(chunks); start += e.batchSize {
		end := min(start+e.batchSize, len(chunks))
		batch := chunks[start:end]
		g.Go(func() error {
			texts := make([]string, len(batch))
			for i, c := range batch {
				texts[i] = c.Text
			}
			vectors, err := e.embedder.Embed(gctx, texts)
			if err != nil {
				return fmt.Errorf("embed chunks: %w", err)
			}
			if len(vectors) != len(batch) {
				return fmt.Errorf("embed chunks: got %d vectors for %d texts", len(vectors), len(batch))
			}
			for i := range batch {
				batch[i].Embedding = vectors[i]
			}
			return nil
		})
	}
	return g.Wait()
}

// Query answers question from the two most relevant sources.
func (e *Engine) Query(ctx context.Context, question string) (answer *entities.Answer, err error) {
	started := time.Now()
	defer func() { e.metrics.ObserveRetrieval("query", err, time.Since(started)) }()

	c := e.current.Load()
	if c == nil {
		return nil, ErrNotInitialized
	}
	if strings.TrimSpace(question) == "" {
		return nil, fmt.Errorf("question cannot be empty")
	}

	vectors, err := e.embedder.Embed(ctx, []string{question})
	if err != nil {
		return nil, fmt.Errorf("embed question: %w", err)
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("embed question: got %d vectors", len(vectors))
	}

	fused := append(c.nearest(vectors[0], VectorTopK), c.keywordMatches(question, KeywordTopK)...)

	if e.reranker != nil && len(fused) > 0 {
		if err := e.rerank(ctx, question, fused); err != nil {
			return nil, err
		}
	}

	sortByScore(fused)
	if len(fused) > ContextTopK {
		fused = fused[:ContextTopK]
	}

	sources := make([]entities.Source, len(fused))
	for i, cand := range fused {
		sources[i] = entities.Source{
			Content:    cand.content,
			Metadata:   maps.Clone(cand.metadata),
			Relevance:  relevance(cand.score),
			SearchType: cand.searchType,
		}
	}

	text, err := e.generator.Generate(ctx, AnswerInstruction, BuildPrompt(question, sources))
	if err != nil {
		return nil, fmt.Errorf("generate answer: %w", err)
	}

	e.logger.Debug("Answered question",
		zap.Int("sources", len(sources)),
		zap.Bool("reranked", e.reranker != nil))

	return &entities.Answer{Answer: strings.TrimSpace(text), Sources: sources}, nil
}

func (e *Engine) rerank(ctx context.Context, question string, cands []candidate) error {
	texts := make([]string, len(cands))
	for i, c := range cands {
		texts[i] = c.content
	}
	scores, err := e.reranker.Rerank(ctx, question, texts)
	if err != nil {
		return fmt.Errorf("rerank: %w", err)
	}
	if len(scores) != len(cands) {
		return fmt.Errorf("rerank: got %d scores for %d candidates", len(scores), len(cands))
	}
	for i := range cands {
		cands[i].score = scores[i]
	}
	return nil
}
