// Package rerank scores retrieval candidates with a hosted reranking model.
package rerank

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/satriahrh/suara/domain/repositories"
)

const (
	DefaultModel = "rerank-2-lite"

	defaultBaseURL = "https://api.voyageai.com/v1"
	rerankPath     = "/rerank"
	defaultTimeout = 30 * time.Second
)

// VoyageReranker calls the Voyage AI rerank endpoint.
type VoyageReranker struct {
	apiKey  string
	model   string
	baseURL string
	client  *http.Client
	logger  *zap.Logger
}

var _ repositories.Reranker = (*VoyageReranker)(nil)

// Option configures the VoyageReranker.
type Option func(*VoyageReranker)

func WithModel(model string) Option {
	return func(r *VoyageReranker) {
		if model != "" {
			r.model = model
		}
	}
}

func WithBaseURL(url string) Option {
	return func(r *VoyageReranker) {
		r.baseURL = url
	}
}

func WithAPIKey(key string) Option {
	return func(r *VoyageReranker) {
		r.apiKey = key
	}
}

func WithHTTPClient(client *http.Client) Option {
	return func(r *VoyageReranker) {
		r.client = client
	}
}

// NewVoyageReranker creates a reranker. The API key falls back to VOYAGE_API_KEY.
func NewVoyageReranker(logger *zap.Logger, opts ...Option) (*VoyageReranker, error) {
	r := &VoyageReranker{
		model:   DefaultModel,
		baseURL: defaultBaseURL,
		client:  &http.Client{Timeout: defaultTimeout},
		logger:  logger,
	}
	for _, opt := range opts {
		opt(r)
	}

	if r.apiKey == "" {
		r.apiKey = os.Getenv("VOYAGE_API_KEY")
	}
	if r.apiKey == "" {
		return nil, fmt.Errorf("voyage AI API key not found: set VOYAGE_API_KEY environment variable")
	}
	return r, nil
}

type rerankRequest struct {
	Query     string   `json:"query"`
	Documents []string `json:"documents"`
	Model     string   `json:"model"`
}

type rerankResponse struct {
	Data []struct {
		Index          int     `json:"index"`
		RelevanceScore float64 `json:"relevance_score"`
	} `json:"data"`
	Usage struct {
		TotalTokens int `json:"total_tokens"`
	} `json:"usage"`
}

// Rerank returns one relevance score per document, in input order.
func (r *VoyageReranker) Rerank(ctx context.Context, query string, documents []string) ([]float64, error) {
	if len(documents) == 0 {
		return nil, nil
	}

	body, err := json.Marshal(rerankRequest{Query: query, Documents: documents, Model: r.model})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+rerankPath, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+r.apiKey)

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("rerank request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		errorBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("voyage rerank returned %d: %s", resp.StatusCode, string(errorBody))
	}

	var parsed rerankResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	scores := make([]float64, len(documents))
	seen := make([]bool, len(documents))
	for _, d := range parsed.Data {
		if d.Index < 0 || d.Index >= len(documents) {
			return nil, fmt.Errorf("voyage rerank returned index %d for %d documents", d.Index, len(documents))
		}
		scores[d.Index] = d.RelevanceScore
		seen[d.Index] = true
	}
	for i, ok := range seen {
		if !ok {
			return nil, fmt.Errorf("voyage rerank returned no score for document %d", i)
		}
	}

	r.logger.Debug("Reranked candidates",
		zap.Int("documents", len(documents)),
		zap.Int("totalTokens", parsed.Usage.TotalTokens))
	return scores, nil
}
