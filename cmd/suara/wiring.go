package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/satriahrh/suara/adapters/llm"
	"github.com/satriahrh/suara/adapters/memory"
	"github.com/satriahrh/suara/adapters/mongo"
	"github.com/satriahrh/suara/adapters/redis"
	"github.com/satriahrh/suara/adapters/rerank"
	"github.com/satriahrh/suara/adapters/stt"
	"github.com/satriahrh/suara/adapters/tts"
	"github.com/satriahrh/suara/domain/repositories"
	"github.com/satriahrh/suara/internal/config"
	"github.com/satriahrh/suara/internal/metrics"
	"github.com/satriahrh/suara/internal/retrieval"
	"github.com/satriahrh/suara/internal/streaming"
)

// closer releases a resource on shutdown.
type closer func(ctx context.Context) error

func newLogger() (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func loadConfig(logger *zap.Logger) (config.Config, error) {
	if envFile != "" {
		return config.Load(logger, envFile)
	}
	return config.Load(logger)
}

func buildKnowledge(ctx context.Context, cfg config.Config, m *metrics.Metrics, logger *zap.Logger) (*retrieval.Engine, error) {
	var (
		embedder  repositories.Embedder
		generator repositories.AnswerGenerator
	)
	if cfg.Gemini.APIKey != "" {
		gemini, err := llm.NewGeminiLLM(ctx, cfg.Gemini, logger)
		if err != nil {
			return nil, err
		}
		embedder, generator = gemini, gemini
	} else {
		logger.Warn("GEMINI_API_KEY not set, using the offline mock model")
		mock := llm.NewMockGemini()
		embedder, generator = mock, mock
	}

	opts := []retrieval.Option{retrieval.WithMetrics(m)}
	if cfg.VoyageAPIKey != "" {
		rerankOpts := []rerank.Option{rerank.WithAPIKey(cfg.VoyageAPIKey)}
		if cfg.VoyageRerankModel != "" {
			rerankOpts = append(rerankOpts, rerank.WithModel(cfg.VoyageRerankModel))
		}
		reranker, err := rerank.NewVoyageReranker(logger, rerankOpts...)
		if err != nil {
			return nil, err
		}
		opts = append(opts, retrieval.WithReranker(reranker))
	}

	return retrieval.NewEngine(embedder, generator, logger, opts...), nil
}

// buildSynthesis returns nil when no provider has credentials; the server then
// serves chat only.
func buildSynthesis(cfg config.Config, m *metrics.Metrics, logger *zap.Logger) (*streaming.Engine, error) {
	var providers []repositories.Synthesizer
	if cfg.HasElevenLabs() {
		elevenLabs, err := tts.NewElevenLabsTTS(cfg.ElevenLabs, logger)
		if err != nil {
			return nil, err
		}
		providers = append(providers, elevenLabs)
	}
	if cfg.HasAzure() {
		azure, err := tts.NewAzureTTS(cfg.Azure, nil, logger)
		if err != nil {
			return nil, err
		}
		providers = append(providers, azure)
	}
	if len(providers) == 0 {
		logger.Warn("No synthesis provider configured, calls will not hear the agent")
		return nil, nil
	}

	opts := []streaming.Option{streaming.WithMetrics(m)}
	if cfg.TTSProvider != "" {
		opts = append(opts, streaming.WithDefaultProvider(cfg.TTSProvider))
	}
	return streaming.NewEngine(logger, providers, opts...)
}

// buildAgents returns the published-agent lookup: MongoDB when configured,
// fronted by Redis when REDIS_ADDR is set, else an empty in-memory store.
func buildAgents(ctx context.Context, cfg config.Config, logger *zap.Logger) (repositories.AgentRepository, []closer, error) {
	var (
		agents  repositories.AgentRepository
		closers []closer
	)

	if cfg.Mongo.URI != "" {
		client, err := mongo.NewClient(ctx, cfg.Mongo, logger)
		if err != nil {
			return nil, nil, err
		}
		closers = append(closers, client.Close)

		repo := mongo.NewAgentRepository(client.Database, logger)
		if err := repo.EnsureIndexes(ctx); err != nil {
			logger.Warn("Failed to ensure agent indexes", zap.Error(err))
		}
		agents = repo
	} else {
		logger.Warn("MONGODB_URI not set, widget lookups use an empty in-memory store")
		repo, err := memory.NewAgentRepository()
		if err != nil {
			return nil, nil, err
		}
		agents = repo
	}

	if cfg.RedisAddr != "" {
		client := goredis.NewClient(&goredis.Options{Addr: cfg.RedisAddr})
		if err := client.Ping(ctx).Err(); err != nil {
			logger.Warn("Redis unreachable, agent cache will fall through", zap.Error(err))
		}
		closers = append(closers, func(context.Context) error { return client.Close() })
		agents = redis.NewAgentCache(client, agents, logger, redis.WithTTL(cfg.AgentCacheTTL))
	}

	return agents, closers, nil
}

// buildSpeechToText uses Google Cloud Speech when application credentials are
// available and the scripted mock otherwise.
func buildSpeechToText(ctx context.Context, logger *zap.Logger) (repositories.SpeechToText, []closer, error) {
	if os.Getenv("GOOGLE_APPLICATION_CREDENTIALS") == "" {
		logger.Warn("GOOGLE_APPLICATION_CREDENTIALS not set, using mock speech recognition")
		return stt.NewMockSpeechToText(logger), nil, nil
	}

	google, err := stt.NewGoogleSpeechToText(ctx, logger)
	if err != nil {
		return nil, nil, err
	}
	return google, []closer{func(context.Context) error { return google.Close() }}, nil
}

func closeAll(ctx context.Context, closers []closer) error {
	var errs []error
	for i := len(closers) - 1; i >= 0; i-- {
		if err := closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("shutdown: %w", errors.Join(errs...))
	}
	return nil
}
