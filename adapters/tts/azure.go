package tts

import (
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/satriahrh/suara/domain/repositories"
)

const (
	AzureName = "azure"

	defaultAzureVoice    = "en-US-JennyNeural"
	defaultAzureLanguage = "en-US"
	azureOutputFormat    = "raw-8khz-8bit-mono-mulaw"
	azureUserAgent       = "suara"
)

// AzureConfig holds configuration for the Azure speech adapter
// Required fields:
// - SubscriptionKey: Azure Speech resource key
// - Region: Azure region of the resource, e.g. "eastus"
// Optional fields:
// - VoiceName, Language: used when the agent names none
// - Endpoint, TokenEndpoint: override the regional URLs
type AzureConfig struct {
	SubscriptionKey string
	Region          string
	VoiceName       string
	Language        string
	Endpoint        string
	TokenEndpoint   string
	Timeout         time.Duration
}

// AzureTTS synthesizes one sentence per request so the first audio is ready
// before the whole reply is rendered.
type AzureTTS struct {
	endpoint  string
	voiceName string
	language  string
	tokens    *TokenCache
	client    *http.Client
	logger    *zap.Logger
}

var _ repositories.Synthesizer = (*AzureTTS)(nil)

// ValidateAzureConfig validates the AzureConfig
func ValidateAzureConfig(config AzureConfig) error {
	if config.SubscriptionKey == "" {
		return fmt.Errorf("azure speech subscription key is required")
	}
	if config.Region == "" && (config.Endpoint == "" || config.TokenEndpoint == "") {
		return fmt.Errorf("azure speech region is required")
	}
	return nil
}

// NewAzureTTS creates an Azure synthesizer. tokens may be nil, in which case a
// cache over the regional issueToken endpoint is created.
func NewAzureTTS(config AzureConfig, tokens *TokenCache, logger *zap.Logger) (*AzureTTS, error) {
	if err := ValidateAzureConfig(config); err != nil {
		return nil, err
	}

	timeout := config.Timeout
	if timeout == 0 {
		timeout = defaultTimeout
	}
	client := &http.Client{Timeout: timeout}

	endpoint := config.Endpoint
	if endpoint == "" {
		endpoint = fmt.Sprintf("https://%s.tts.speech.microsoft.com/cognitiveservices/v1", config.Region)
	}

	if tokens == nil {
		tokenEndpoint := config.TokenEndpoint
		if tokenEndpoint == "" {
			tokenEndpoint = fmt.Sprintf("https://%s.api.cognitive.microsoft.com/sts/v1.0/issueToken", config.Region)
		}
		tokens = NewTokenCache(IssueTokenFetcher(client, tokenEndpoint, config.SubscriptionKey), DefaultTokenTTL, nil, logger)
	}

	voiceName := config.VoiceName
	if voiceName == "" {
		voiceName = defaultAzureVoice
		logger.Info("Using default Azure voice", zap.String("voice", voiceName))
	}

	language := config.Language
	if language == "" {
		language = defaultAzureLanguage
	}

	return &AzureTTS{
		endpoint:  endpoint,
		voiceName: voiceName,
		language:  language,
		tokens:    tokens,
		client:    client,
		logger:    logger,
	}, nil
}

func (a *AzureTTS) Name() string {
	return AzureName
}

func (a *AzureTTS) Segmentation() repositories.Segmentation {
	return repositories.SegmentSentences
}

// Synthesize renders one segment. A rejected token is refreshed and the
// request retried once.
func (a *AzureTTS) Synthesize(ctx context.Context, text string, voice repositories.VoiceConfig) ([]byte, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyText
	}

	body, err := a.ssml(text, voice)
	if err != nil {
		return nil, err
	}

	audio, err := a.synthesize(ctx, body)
	var synthErr *SynthesisError
	if errors.As(err, &synthErr) && synthErr.StatusCode == http.StatusUnauthorized {
		a.logger.Info("Azure rejected access token, refreshing")
		a.tokens.Invalidate()
		audio, err = a.synthesize(ctx, body)
	}
	return audio, err
}

func (a *AzureTTS) synthesize(ctx context.Context, ssml []byte) ([]byte, error) {
	token, err := a.tokens.Token(ctx)
	if err != nil {
		return nil, &SynthesisError{Provider: AzureName, Message: "fetching access token", Cause: err, Retryable: true}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.endpoint, bytes.NewReader(ssml))
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/ssml+xml")
	req.Header.Set("X-Microsoft-OutputFormat", azureOutputFormat)
	req.Header.Set("User-Agent", azureUserAgent)

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, &SynthesisError{Provider: AzureName, Message: "request failed", Cause: err, Retryable: true}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		errorBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		a.logger.Warn("Azure speech returned error",
			zap.Int("statusCode", resp.StatusCode),
			zap.String("response", string(errorBody)))
		return nil, statusError(AzureName, resp.StatusCode, string(errorBody))
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &SynthesisError{Provider: AzureName, Message: "reading audio", Cause: err, Retryable: true}
	}
	return audio, nil
}

func (a *AzureTTS) ssml(text string, voice repositories.VoiceConfig) ([]byte, error) {
	voiceName := voice.VoiceID
	if voiceName == "" {
		voiceName = a.voiceName
	}
	language := voice.Language
	if language == "" {
		language = a.language
	}

	var buf bytes.Buffer
	buf.WriteString("<speak version='1.0' xml:lang='")
	if err := xml.EscapeText(&buf, []byte(language)); err != nil {
		return nil, fmt.Errorf("failed to escape language: %w", err)
	}
	buf.WriteString("'><voice name='")
	if err := xml.EscapeText(&buf, []byte(voiceName)); err != nil {
		return nil, fmt.Errorf("failed to escape voice: %w", err)
	}
	buf.WriteString("'>")
	if err := xml.EscapeText(&buf, []byte(text)); err != nil {
		return nil, fmt.Errorf("failed to escape text: %w", err)
	}
	buf.WriteString("</voice></speak>")
	return buf.Bytes(), nil
}

// NewAzureConfigFromEnv creates a new AzureConfig from environment variables
func NewAzureConfigFromEnv() AzureConfig {
	return AzureConfig{
		SubscriptionKey: os.Getenv("AZURE_SPEECH_KEY"),
		Region:          os.Getenv("AZURE_SPEECH_REGION"),
		VoiceName:       os.Getenv("AZURE_SPEECH_VOICE"),
		Language:        os.Getenv("AZURE_SPEECH_LANGUAGE"),
	}
}
