package rerank

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestNewVoyageRerankerRequiresKey(t *testing.T) {
	t.Setenv("VOYAGE_API_KEY", "")
	_, err := NewVoyageReranker(zaptest.NewLogger(t))
	assert.Error(t, err)

	t.Setenv("VOYAGE_API_KEY", "env-key")
	r, err := NewVoyageReranker(zaptest.NewLogger(t), WithModel(""))
	require.NoError(t, err)
	assert.Equal(t, "env-key", r.apiKey)
	assert.Equal(t, DefaultModel, r.model)
}

func TestRerankMapsScoresToInputOrder(t *testing.T) {
	var got rerankRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/rerank", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"object":"list","data":[
			{"index":2,"relevance_score":0.93},
			{"index":0,"relevance_score":0.41},
			{"index":1,"relevance_score":0.05}
		],"usage":{"total_tokens":31}}`))
	}))
	defer server.Close()

	r, err := NewVoyageReranker(zaptest.NewLogger(t), WithAPIKey("secret"), WithBaseURL(server.URL), WithModel("rerank-2"))
	require.NoError(t, err)

	scores, err := r.Rerank(context.Background(), "refunds", []string{"a", "b", "c"})
	require.NoError(t, err)
	assert.Equal(t, []float64{0.41, 0.05, 0.93}, scores)
	assert.Equal(t, "refunds", got.Query)
	assert.Equal(t, "rerank-2", got.Model)
	assert.Equal(t, []string{"a", "b", "c"}, got.Documents)
}

func TestRerankErrors(t *testing.T) {
	respond := func(status int, body string) *httptest.Server {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(status)
			_, _ = w.Write([]byte(body))
		}))
		t.Cleanup(server.Close)
		return server
	}

	limited := respond(http.StatusTooManyRequests, `{"detail":"slow down"}`)
	r, err := NewVoyageReranker(zaptest.NewLogger(t), WithAPIKey("k"), WithBaseURL(limited.URL))
	require.NoError(t, err)
	_, err = r.Rerank(context.Background(), "q", []string{"a"})
	assert.ErrorContains(t, err, "429")

	partial := respond(http.StatusOK, `{"data":[{"index":0,"relevance_score":0.5}]}`)
	r, err = NewVoyageReranker(zaptest.NewLogger(t), WithAPIKey("k"), WithBaseURL(partial.URL))
	require.NoError(t, err)
	_, err = r.Rerank(context.Background(), "q", []string{"a", "b"})
	assert.ErrorContains(t, err, "no score for document 1")

	scores, err := r.Rerank(context.Background(), "q", nil)
	assert.NoError(t, err)
	assert.Nil(t, scores)
}
