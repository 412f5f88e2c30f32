package tts

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/satriahrh/suara/domain/repositories"
)

func TestNewElevenLabsTTS(t *testing.T) {
	logger := zaptest.NewLogger(t)

	// Test without API key
	t.Setenv("ELEVEN_LABS_API_KEY", "")
	config := NewElevenLabsConfigFromEnv()
	_, err := NewElevenLabsTTS(config, logger)
	if err == nil {
		t.Error("Expected error when API key is not set")
	}

	// Test with API key
	t.Setenv("ELEVEN_LABS_API_KEY", "test-api-key")

	config = NewElevenLabsConfigFromEnv()
	tts, err := NewElevenLabsTTS(config, logger)
	if err != nil {
		t.Fatalf("Failed to create ElevenLabsTTS: %v", err)
	}

	if tts.apiKey != "test-api-key" {
		t.Errorf("Expected API key 'test-api-key', got '%s'", tts.apiKey)
	}

	if tts.voiceID != defaultVoiceID {
		t.Errorf("Expected default voice ID '%s', got '%s'", defaultVoiceID, tts.voiceID)
	}

	if tts.outputFormat != "ulaw_8000" {
		t.Errorf("Expected output format ulaw_8000, got '%s'", tts.outputFormat)
	}

	if tts.Segmentation() != repositories.SegmentWholeText {
		t.Error("Expected whole-text segmentation")
	}
}

func TestValidateElevenLabsConfig(t *testing.T) {
	tests := []struct {
		name    string
		config  ElevenLabsConfig
		wantErr bool
	}{
		{"valid", ElevenLabsConfig{APIKey: "k"}, false},
		{"missing key", ElevenLabsConfig{}, true},
		{"stability out of range", ElevenLabsConfig{APIKey: "k", Stability: 1.5}, true},
		{"clarity out of range", ElevenLabsConfig{APIKey: "k", Clarity: -0.1}, true},
		{"negative chunk size", ElevenLabsConfig{APIKey: "k", ChunkSize: -1}, true},
		{"non telephony format", ElevenLabsConfig{APIKey: "k", OutputFormat: "pcm_24000"}, true},
		{"explicit telephony format", ElevenLabsConfig{APIKey: "k", OutputFormat: "ulaw_8000"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateElevenLabsConfig(tt.config)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateElevenLabsConfig() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestElevenLabsTTS_Synthesize(t *testing.T) {
	var gotPath, gotFormat, gotKey string
	var gotRequest ElevenLabsRequest

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotFormat = r.URL.Query().Get("output_format")
		gotKey = r.Header.Get("xi-api-key")
		_ = json.NewDecoder(r.Body).Decode(&gotRequest)

		flusher := w.(http.Flusher)
		w.WriteHeader(http.StatusOK)
		for i := 0; i < 3; i++ {
			_, _ = w.Write([]byte(strings.Repeat(string(rune('a'+i)), 500)))
			flusher.Flush()
		}
	}))
	defer server.Close()

	tts, err := NewElevenLabsTTS(ElevenLabsConfig{APIKey: "secret", APIBaseURL: server.URL, ChunkSize: 256}, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("Failed to create ElevenLabsTTS: %v", err)
	}

	audio, err := tts.Synthesize(context.Background(), "Hello. How are you?", repositories.VoiceConfig{VoiceID: "voice-9", Language: "en"})
	if err != nil {
		t.Fatalf("Synthesize failed: %v", err)
	}

	if len(audio) != 1500 {
		t.Errorf("Expected 1500 bytes, got %d", len(audio))
	}
	if audio[0] != 'a' || audio[500] != 'b' || audio[1499] != 'c' {
		t.Error("Audio chunks arrived out of order")
	}
	if gotPath != "/text-to-speech/voice-9/stream" {
		t.Errorf("Unexpected path %s", gotPath)
	}
	if gotFormat != "ulaw_8000" {
		t.Errorf("Unexpected output format %s", gotFormat)
	}
	if gotKey != "secret" {
		t.Errorf("Unexpected API key %s", gotKey)
	}
	if gotRequest.Text != "Hello. How are you?" || gotRequest.LanguageCode != "en" {
		t.Errorf("Unexpected request payload %+v", gotRequest)
	}
}

func TestElevenLabsTTS_StreamChunks(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(make([]byte, 2048))
	}))
	defer server.Close()

	tts, err := NewElevenLabsTTS(ElevenLabsConfig{APIKey: "k", APIBaseURL: server.URL, ChunkSize: 512}, zap.NewNop())
	if err != nil {
		t.Fatalf("Failed to create ElevenLabsTTS: %v", err)
	}

	total := 0
	err = tts.Stream(context.Background(), "Hi", repositories.VoiceConfig{}, func(chunk []byte) {
		if len(chunk) == 0 || len(chunk) > 512 {
			t.Errorf("Unexpected chunk size %d", len(chunk))
		}
		total += len(chunk)
	})
	if err != nil {
		t.Fatalf("Stream failed: %v", err)
	}
	if total != 2048 {
		t.Errorf("Expected 2048 bytes, got %d", total)
	}
}

func TestElevenLabsTTS_UpstreamError(t *testing.T) {
	tests := []struct {
		status    int
		cause     error
		retryable bool
	}{
		{http.StatusTooManyRequests, ErrRateLimited, true},
		{http.StatusUnauthorized, ErrUnauthorized, false},
		{http.StatusNotFound, ErrInvalidVoice, false},
		{http.StatusBadGateway, nil, true},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, `{"detail":"nope"}`, tt.status)
			}))
			defer server.Close()

			tts, err := NewElevenLabsTTS(ElevenLabsConfig{APIKey: "k", APIBaseURL: server.URL}, zap.NewNop())
			if err != nil {
				t.Fatalf("Failed to create ElevenLabsTTS: %v", err)
			}

			_, err = tts.Synthesize(context.Background(), "Hi", repositories.VoiceConfig{})
			var synthErr *SynthesisError
			if !errors.As(err, &synthErr) {
				t.Fatalf("Expected SynthesisError, got %T", err)
			}
			if synthErr.StatusCode != tt.status {
				t.Errorf("StatusCode = %d, want %d", synthErr.StatusCode, tt.status)
			}
			if synthErr.Retryable != tt.retryable {
				t.Errorf("Retryable = %v, want %v", synthErr.Retryable, tt.retryable)
			}
			if tt.cause != nil && !errors.Is(err, tt.cause) {
				t.Errorf("Expected cause %v, got %v", tt.cause, err)
			}
		})
	}
}

func TestElevenLabsTTS_Synthesize_EmptyText(t *testing.T) {
	tts, err := NewElevenLabsTTS(ElevenLabsConfig{APIKey: "test-api-key"}, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("Failed to create ElevenLabsTTS: %v", err)
	}

	ctx := context.Background()
	if _, err := tts.Synthesize(ctx, "", repositories.VoiceConfig{}); !errors.Is(err, ErrEmptyText) {
		t.Errorf("Expected ErrEmptyText for empty text, got %v", err)
	}
	if _, err := tts.Synthesize(ctx, "   ", repositories.VoiceConfig{}); !errors.Is(err, ErrEmptyText) {
		t.Errorf("Expected ErrEmptyText for whitespace-only text, got %v", err)
	}
}

// Integration test - only runs if ELEVEN_LABS_API_KEY is set with real API key
func TestElevenLabsTTS_Synthesize_Integration(t *testing.T) {
	apiKey := os.Getenv("ELEVEN_LABS_API_KEY")
	if apiKey == "" || apiKey == "test-api-key" {
		t.Skip("Skipping integration test - set ELEVEN_LABS_API_KEY environment variable with real API key")
	}

	tts, err := NewElevenLabsTTS(NewElevenLabsConfigFromEnv(), zap.NewNop())
	if err != nil {
		t.Fatalf("Failed to create ElevenLabsTTS: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	audio, err := tts.Synthesize(ctx, "Hello, this is an ElevenLabs integration test.", repositories.VoiceConfig{})
	if err != nil {
		t.Fatalf("Failed to synthesize: %v", err)
	}
	if len(audio) == 0 {
		t.Error("No audio data received")
	}

	t.Logf("Integration test completed: received %d bytes of μ-law audio", len(audio))
}
