// Package config loads server settings from the environment, optionally
// seeded from a .env file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/satriahrh/suara/adapters/llm"
	"github.com/satriahrh/suara/adapters/mongo"
	"github.com/satriahrh/suara/adapters/tts"
)

const (
	defaultPort             = "8080"
	defaultBootstrapTimeout = 30 * time.Second
	defaultAgentCacheTTL    = 5 * time.Minute
	defaultSTTLanguage      = "en-US"
)

// Config is everything the server reads from its environment.
type Config struct {
	Port             string
	JWTSecret        string
	BootstrapTimeout time.Duration

	// TTSProvider names the default synthesis provider.
	TTSProvider string
	ElevenLabs  tts.ElevenLabsConfig
	Azure       tts.AzureConfig

	Gemini            llm.GeminiConfig
	VoyageAPIKey      string
	VoyageRerankModel string

	Mongo         mongo.Config
	RedisAddr     string
	AgentCacheTTL time.Duration

	STTLanguage string
}

// Load reads a .env file if one exists, then the environment.
func Load(logger *zap.Logger, files ...string) (Config, error) {
	if err := godotenv.Load(files...); err != nil {
		logger.Debug("No .env file loaded", zap.Error(err))
	}
	return FromEnv(logger)
}

// FromEnv builds a Config from the current environment.
func FromEnv(logger *zap.Logger) (Config, error) {
	config := Config{
		Port:              os.Getenv("PORT"),
		JWTSecret:         os.Getenv("JWT_SECRET"),
		TTSProvider:       os.Getenv("TTS_PROVIDER"),
		ElevenLabs:        tts.NewElevenLabsConfigFromEnv(),
		Azure:             tts.NewAzureConfigFromEnv(),
		Gemini:            llm.NewGeminiConfigFromEnv(),
		VoyageAPIKey:      os.Getenv("VOYAGE_API_KEY"),
		VoyageRerankModel: os.Getenv("VOYAGE_RERANK_MODEL"),
		Mongo:             mongo.NewConfigFromEnv(),
		RedisAddr:         os.Getenv("REDIS_ADDR"),
		STTLanguage:       os.Getenv("STT_LANGUAGE"),
	}

	if config.Port == "" {
		config.Port = defaultPort
		logger.Info("Using default port", zap.String("port", config.Port))
	}
	if config.STTLanguage == "" {
		config.STTLanguage = defaultSTTLanguage
	}

	var err error
	config.BootstrapTimeout, err = durationFromEnv("BOOTSTRAP_TIMEOUT", defaultBootstrapTimeout)
	if err != nil {
		return Config{}, err
	}
	config.AgentCacheTTL, err = durationFromEnv("AGENT_CACHE_TTL", defaultAgentCacheTTL)
	if err != nil {
		return Config{}, err
	}

	if config.TTSProvider == "" {
		config.TTSProvider = defaultProvider(config)
		logger.Info("Using default synthesis provider", zap.String("provider", config.TTSProvider))
	}

	return config, ValidateConfig(config)
}

// ValidateConfig validates the server configuration
func ValidateConfig(config Config) error {
	if config.BootstrapTimeout <= 0 {
		return fmt.Errorf("bootstrap timeout must be positive, got %s", config.BootstrapTimeout)
	}
	switch config.TTSProvider {
	case "", tts.ElevenLabsName, tts.AzureName:
	default:
		return fmt.Errorf("unsupported TTS_PROVIDER %q", config.TTSProvider)
	}
	return nil
}

// HasElevenLabs reports whether ElevenLabs credentials are set.
func (c Config) HasElevenLabs() bool {
	return c.ElevenLabs.APIKey != ""
}

// HasAzure reports whether Azure Speech credentials are set.
func (c Config) HasAzure() bool {
	return c.Azure.SubscriptionKey != "" && c.Azure.Region != ""
}

func defaultProvider(c Config) string {
	switch {
	case c.HasElevenLabs():
		return tts.ElevenLabsName
	case c.HasAzure():
		return tts.AzureName
	default:
		return ""
	}
}

// durationFromEnv accepts Go durations ("45s") or plain seconds ("45").
func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	if seconds, err := strconv.Atoi(raw); err == nil {
		return time.Duration(seconds) * time.Second, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return d, nil
}
