package llm

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/satriahrh/suara/domain/repositories"
)

const (
	defaultModel          = "gemini-2.0-flash"
	defaultEmbeddingModel = "text-embedding-004"
	defaultTemperature    = 0.2
	defaultMaxTokens      = 1024
	defaultTimeoutSeconds = 30
	maxAttempts           = 3
)

// GeminiConfig holds configuration for the Gemini adapter
// Required fields:
// - APIKey: Google AI API key
// Optional fields with defaults:
// - Model: model used for answers (default: "gemini-2.0-flash")
// - EmbeddingModel: model used for embeddings (default: "text-embedding-004")
// - Temperature: between 0 and 1 (default: 0.2)
// - MaxOutputTokens: answer length cap (default: 1024)
// - TimeoutSeconds: per call timeout (default: 30)
type GeminiConfig struct {
	APIKey          string
	Model           string
	EmbeddingModel  string
	Temperature     float32
	MaxOutputTokens int
	TimeoutSeconds  int
}

// contentModels is the part of *genai.Models the adapter calls.
type contentModels interface {
	EmbedContent(ctx context.Context, model string, contents []*genai.Content, config *genai.EmbedContentConfig) (*genai.EmbedContentResponse, error)
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// GeminiLLM embeds knowledge chunks and writes grounded answers with Gemini.
type GeminiLLM struct {
	models          contentModels
	logger          *zap.Logger
	model           string
	embeddingModel  string
	temperature     float32
	maxOutputTokens int
	timeout         time.Duration
	retryBackoff    time.Duration
}

var (
	_ repositories.Embedder        = (*GeminiLLM)(nil)
	_ repositories.AnswerGenerator = (*GeminiLLM)(nil)
)

// ValidateGeminiConfig validates the GeminiConfig
func ValidateGeminiConfig(config GeminiConfig) error {
	if config.APIKey == "" {
		return fmt.Errorf("google AI API key is required")
	}

	if config.Temperature != 0 && (config.Temperature < 0 || config.Temperature > 1) {
		return fmt.Errorf("temperature must be between 0 and 1, got %f", config.Temperature)
	}

	if config.MaxOutputTokens < 0 {
		return fmt.Errorf("max output tokens must be positive, got %d", config.MaxOutputTokens)
	}

	if config.TimeoutSeconds < 0 {
		return fmt.Errorf("timeout must be positive, got %d", config.TimeoutSeconds)
	}

	return nil
}

// NewGeminiConfigFromEnv creates a new GeminiConfig from environment variables
func NewGeminiConfigFromEnv() GeminiConfig {
	config := GeminiConfig{
		APIKey:         os.Getenv("GEMINI_API_KEY"),
		Model:          os.Getenv("GEMINI_MODEL"),
		EmbeddingModel: os.Getenv("GEMINI_EMBEDDING_MODEL"),
	}

	if raw := os.Getenv("GEMINI_TEMPERATURE"); raw != "" {
		if t, err := strconv.ParseFloat(raw, 32); err == nil && t >= 0 && t <= 1 {
			config.Temperature = float32(t)
		}
	}

	return config
}

// NewGeminiLLM creates a new Gemini client
func NewGeminiLLM(ctx context.Context, config GeminiConfig, logger *zap.Logger) (*GeminiLLM, error) {
	if err := ValidateGeminiConfig(config); err != nil {
		return nil, err
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  config.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return newGeminiLLM(client.Models, config, logger), nil
}

func newGeminiLLM(models contentModels, config GeminiConfig, logger *zap.Logger) *GeminiLLM {
	model := config.Model
	if model == "" {
		model = defaultModel
		logger.Info("Using default model", zap.String("model", model))
	}

	embeddingModel := config.EmbeddingModel
	if embeddingModel == "" {
		embeddingModel = defaultEmbeddingModel
		logger.Info("Using default embedding model", zap.String("embeddingModel", embeddingModel))
	}

	temperature := config.Temperature
	if temperature == 0 {
		temperature = defaultTemperature
	}

	maxOutputTokens := config.MaxOutputTokens
	if maxOutputTokens == 0 {
		maxOutputTokens = defaultMaxTokens
	}

	timeoutSeconds := config.TimeoutSeconds
	if timeoutSeconds == 0 {
		timeoutSeconds = defaultTimeoutSeconds
	}

	return &GeminiLLM{
		models:          models,
		logger:          logger,
		model:           model,
		embeddingModel:  embeddingModel,
		temperature:     temperature,
		maxOutputTokens: maxOutputTokens,
		timeout:         time.Duration(timeoutSeconds) * time.Second,
		retryBackoff:    time.Second,
	}
}

// Embed returns one vector per text.
func (g *GeminiLLM) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	contents := make([]*genai.Content, len(texts))
	for i, text := range texts {
		contents[i] = genai.NewContentFromText(text, genai.RoleUser)
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	var resp *genai.EmbedContentResponse
	err := g.retry(ctx, "embed", func() error {
		var err error
		resp, err = g.models.EmbedContent(ctx, g.embeddingModel, contents, nil)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("gemini embed: %w", err)
	}

	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("gemini embed: got %d embeddings for %d texts", len(resp.Embeddings), len(texts))
	}

	vectors := make([][]float32, len(resp.Embeddings))
	for i, e := range resp.Embeddings {
		if e == nil || len(e.Values) == 0 {
			return nil, fmt.Errorf("gemini embed: empty embedding at %d", i)
		}
		vectors[i] = e.Values
	}
	return vectors, nil
}

// Generate answers prompt under the given system instruction.
func (g *GeminiLLM) Generate(ctx context.Context, instruction, prompt string) (string, error) {
	config := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(g.temperature),
		MaxOutputTokens: int32(g.maxOutputTokens),
	}
	if instruction != "" {
		config.SystemInstruction = genai.NewContentFromText(instruction, genai.RoleUser)
	}
	contents := []*genai.Content{genai.NewContentFromText(prompt, genai.RoleUser)}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	var resp *genai.GenerateContentResponse
	err := g.retry(ctx, "generate", func() error {
		var err error
		resp, err = g.models.GenerateContent(ctx, g.model, contents, config)
		return err
	})
	if err != nil {
		return "", fmt.Errorf("gemini generate: %w", err)
	}

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", fmt.Errorf("gemini generate: empty response")
	}

	g.logger.Debug("Generated answer",
		zap.String("responsePreview", text[:min(50, len(text))]))
	return text, nil
}

// retry runs call up to maxAttempts times with linear backoff.
func (g *GeminiLLM) retry(ctx context.Context, op string, call func() error) error {
	var err error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if err = call(); err == nil {
			return nil
		}

		g.logger.Warn("Gemini call failed, retrying",
			zap.String("operation", op),
			zap.Int("attempt", attempt+1),
			zap.Error(err))

		if attempt == maxAttempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt+1) * g.retryBackoff):
		}
	}
	return err
}
