package tts

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/satriahrh/suara/domain/repositories"
)

type azureStub struct {
	mu       sync.Mutex
	bodies   []string
	tokens   atomic.Int32
	rejectOn string
	server   *httptest.Server
}

func newAzureStub(t *testing.T) *azureStub {
	s := &azureStub{}
	mux := http.NewServeMux()
	mux.HandleFunc("/sts/v1.0/issueToken", func(w http.ResponseWriter, r *http.Request) {
		n := s.tokens.Add(1)
		_, _ = w.Write([]byte("token-" + string(rune('0'+n))))
	})
	mux.HandleFunc("/cognitiveservices/v1", func(w http.ResponseWriter, r *http.Request) {
		auth := r.Header.Get("Authorization")
		if auth == s.rejectOn {
			http.Error(w, "expired", http.StatusUnauthorized)
			return
		}
		if r.Header.Get("X-Microsoft-OutputFormat") != "raw-8khz-8bit-mono-mulaw" {
			http.Error(w, "bad format", http.StatusBadRequest)
			return
		}
		body, _ := io.ReadAll(r.Body)
		s.mu.Lock()
		s.bodies = append(s.bodies, string(body))
		s.mu.Unlock()
		_, _ = w.Write(make([]byte, 800))
	})
	s.server = httptest.NewServer(mux)
	t.Cleanup(s.server.Close)
	return s
}

func (s *azureStub) config() AzureConfig {
	return AzureConfig{
		SubscriptionKey: "sub",
		Endpoint:        s.server.URL + "/cognitiveservices/v1",
		TokenEndpoint:   s.server.URL + "/sts/v1.0/issueToken",
	}
}

func TestValidateAzureConfig(t *testing.T) {
	assert.Error(t, ValidateAzureConfig(AzureConfig{}))
	assert.Error(t, ValidateAzureConfig(AzureConfig{SubscriptionKey: "k"}))
	assert.NoError(t, ValidateAzureConfig(AzureConfig{SubscriptionKey: "k", Region: "eastus"}))
}

func TestAzureTTS_Synthesize(t *testing.T) {
	stub := newAzureStub(t)
	tts, err := NewAzureTTS(stub.config(), nil, zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.Equal(t, repositories.SegmentSentences, tts.Segmentation())

	audio, err := tts.Synthesize(context.Background(), "Fish & chips <today>.", repositories.VoiceConfig{VoiceID: "en-GB-RyanNeural", Language: "en-GB"})
	require.NoError(t, err)
	assert.Len(t, audio, 800)

	_, err = tts.Synthesize(context.Background(), "Second sentence.", repositories.VoiceConfig{})
	require.NoError(t, err)

	require.Len(t, stub.bodies, 2)
	assert.Equal(t,
		"<speak version='1.0' xml:lang='en-GB'><voice name='en-GB-RyanNeural'>Fish &amp; chips &lt;today&gt;.</voice></speak>",
		stub.bodies[0])
	assert.Contains(t, stub.bodies[1], "en-US-JennyNeural")
	assert.EqualValues(t, 1, stub.tokens.Load(), "token is cached across sentences")
}

func TestAzureTTS_RefreshesRejectedToken(t *testing.T) {
	stub := newAzureStub(t)
	stub.rejectOn = "Bearer token-1"

	tokens := NewTokenCache(IssueTokenFetcher(http.DefaultClient, stub.config().TokenEndpoint, "sub"), 0, clock.NewMock(), zaptest.NewLogger(t))
	tts, err := NewAzureTTS(stub.config(), tokens, zaptest.NewLogger(t))
	require.NoError(t, err)

	audio, err := tts.Synthesize(context.Background(), "Hello.", repositories.VoiceConfig{})
	require.NoError(t, err)
	assert.Len(t, audio, 800)
	assert.EqualValues(t, 2, stub.tokens.Load())
}

func TestAzureTTS_EmptyText(t *testing.T) {
	stub := newAzureStub(t)
	tts, err := NewAzureTTS(stub.config(), nil, zaptest.NewLogger(t))
	require.NoError(t, err)

	_, err = tts.Synthesize(context.Background(), " ", repositories.VoiceConfig{})
	assert.ErrorIs(t, err, ErrEmptyText)
	assert.Zero(t, stub.tokens.Load())
}
