package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"google.golang.org/genai"
)

type fakeModels struct {
	embedErrs    []error
	generateErrs []error
	embedCalls   int
	genCalls     int
	lastModel    string
	lastConfig   *genai.GenerateContentConfig
	reply        string
}

func (f *fakeModels) EmbedContent(_ context.Context, model string, contents []*genai.Content, _ *genai.EmbedContentConfig) (*genai.EmbedContentResponse, error) {
	f.embedCalls++
	f.lastModel = model
	if len(f.embedErrs) > 0 {
		err := f.embedErrs[0]
		f.embedErrs = f.embedErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	resp := &genai.EmbedContentResponse{}
	for i := range contents {
		resp.Embeddings = append(resp.Embeddings, &genai.ContentEmbedding{Values: []float32{float32(i), 1}})
	}
	return resp, nil
}

func (f *fakeModels) GenerateContent(_ context.Context, model string, _ []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	f.genCalls++
	f.lastModel = model
	f.lastConfig = config
	if len(f.generateErrs) > 0 {
		err := f.generateErrs[0]
		f.generateErrs = f.generateErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: genai.NewContentFromText(f.reply, genai.RoleModel),
		}},
	}, nil
}

func newTestGemini(t *testing.T, models *fakeModels) *GeminiLLM {
	g := newGeminiLLM(models, GeminiConfig{APIKey: "k"}, zaptest.NewLogger(t))
	g.retryBackoff = time.Millisecond
	return g
}

func TestValidateGeminiConfig(t *testing.T) {
	assert.Error(t, ValidateGeminiConfig(GeminiConfig{}))
	assert.Error(t, ValidateGeminiConfig(GeminiConfig{APIKey: "k", Temperature: 2}))
	assert.Error(t, ValidateGeminiConfig(GeminiConfig{APIKey: "k", TimeoutSeconds: -1}))
	assert.NoError(t, ValidateGeminiConfig(GeminiConfig{APIKey: "k"}))
}

func TestGeminiEmbed(t *testing.T) {
	models := &fakeModels{}
	g := newTestGemini(t, models)

	vectors, err := g.Embed(context.Background(), []string{"a", "b", "c"})
	require.NoError(t, err)
	require.Len(t, vectors, 3)
	assert.Equal(t, []float32{2, 1}, vectors[2])
	assert.Equal(t, defaultEmbeddingModel, models.lastModel)

	vectors, err = g.Embed(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, vectors)
}

func TestGeminiRetriesTransientFailures(t *testing.T) {
	models := &fakeModels{embedErrs: []error{errors.New("503"), nil}}
	g := newTestGemini(t, models)

	_, err := g.Embed(context.Background(), []string{"a"})
	require.NoError(t, err)
	assert.Equal(t, 2, models.embedCalls)

	models = &fakeModels{generateErrs: []error{errors.New("a"), errors.New("b"), errors.New("c")}}
	g = newTestGemini(t, models)
	_, err = g.Generate(context.Background(), "inst", "prompt")
	assert.ErrorContains(t, err, "c")
	assert.Equal(t, maxAttempts, models.genCalls)
}

func TestGeminiGenerate(t *testing.T) {
	models := &fakeModels{reply: "  Ten years.  "}
	g := newTestGemini(t, models)

	answer, err := g.Generate(context.Background(), "only use context", "Context: ...")
	require.NoError(t, err)
	assert.Equal(t, "Ten years.", answer)
	assert.Equal(t, defaultModel, models.lastModel)
	require.NotNil(t, models.lastConfig.SystemInstruction)
	assert.Equal(t, "only use context", models.lastConfig.SystemInstruction.Parts[0].Text)
	assert.InDelta(t, defaultTemperature, *models.lastConfig.Temperature, 1e-6)

	models.reply = ""
	_, err = g.Generate(context.Background(), "", "prompt")
	assert.ErrorContains(t, err, "empty response")
}

func TestMockGemini(t *testing.T) {
	m := NewMockGemini()
	vectors, err := m.Embed(context.Background(), []string{"Hello world", "hello, WORLD!"})
	require.NoError(t, err)
	assert.Equal(t, vectors[0], vectors[1])

	answer, err := m.Generate(context.Background(), "", "Context:\nX has 10 years experience\nRelevance: 80%\n\nQuestion: q")
	require.NoError(t, err)
	assert.Equal(t, "X has 10 years experience", answer)

	answer, err = m.Generate(context.Background(), "", "Context:\n\n\nQuestion: q")
	require.NoError(t, err)
	assert.Contains(t, answer, "enough information")
}
