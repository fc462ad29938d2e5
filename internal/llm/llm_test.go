package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"zweefhulp/internal/config"
)

func TestOllamaGenerateConcatenatesStream(t *testing.T) {
	var options map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/generate", r.URL.Path)
		var req struct {
			Model   string         `json:"model"`
			Options map[string]any `json:"options"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		options = req.Options
		w.Header().Set("Content-Type", "application/x-ndjson")
		_, _ = w.Write([]byte(`{"model":"llama3.1","response":"tr","done":false}` + "\n"))
		_, _ = w.Write([]byte(`{"model":"llama3.1","response":"ue","done":true}` + "\n"))
	}))
	defer srv.Close()

	gen, err := NewOllamaLLM(srv.URL, "llama3.1", 5*time.Second)
	require.NoError(t, err)

	out, err := gen.Generate(context.Background(), "prompt", Options{Temperature: 0, MaxTokens: 10})
	require.NoError(t, err)
	assert.Equal(t, "true", out)
	assert.EqualValues(t, 10, options["num_predict"])
	assert.EqualValues(t, 0, options["temperature"])
}

func TestOllamaGenerateError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"model not found"}`))
	}))
	defer srv.Close()

	gen, err := NewOllamaLLM(srv.URL, "missing", time.Second)
	require.NoError(t, err)

	_, err = gen.Generate(context.Background(), "prompt", Options{})
	assert.Error(t, err)
}

func TestOpenAIGenerate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		var req chatCompletionRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "gpt-4o", req.Model)
		assert.Equal(t, 10, req.MaxTokens)
		if assert.Len(t, req.Messages, 1) {
			assert.Equal(t, "user", req.Messages[0].Role)
		}
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"false"}}]}`))
	}))
	defer srv.Close()

	gen, err := NewOpenAILLM(OpenAIConfig{APIKey: "sk-test", BaseURL: srv.URL})
	require.NoError(t, err)

	out, err := gen.Generate(context.Background(), "is dit beleid?", Options{MaxTokens: 10})
	require.NoError(t, err)
	assert.Equal(t, "false", out)
}

func TestOpenAIGenerateAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"invalid key"}}`))
	}))
	defer srv.Close()

	gen, err := NewOpenAILLM(OpenAIConfig{APIKey: "sk-bad", BaseURL: srv.URL})
	require.NoError(t, err)

	_, err = gen.Generate(context.Background(), "x", Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid key")
}

type countingGenerator struct {
	calls atomic.Int32
}

func (c *countingGenerator) Generate(context.Context, string, Options) (string, error) {
	c.calls.Add(1)
	return "ok", nil
}

func (c *countingGenerator) ModelName() string { return "counting" }

func TestRateLimitedHonoursContext(t *testing.T) {
	next := &countingGenerator{}
	rl := NewRateLimited(next, 0.001, 1)

	_, err := rl.Generate(context.Background(), "first", Options{})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = rl.Generate(ctx, "second", Options{})
	assert.Error(t, err)
	assert.Equal(t, int32(1), next.calls.Load())
	assert.Equal(t, "counting", rl.ModelName())
}

func TestRateLimitedUnlimited(t *testing.T) {
	next := &countingGenerator{}
	rl := NewRateLimited(next, 0, 0)
	for i := 0; i < 50; i++ {
		_, err := rl.Generate(context.Background(), "p", Options{})
		require.NoError(t, err)
	}
	assert.Equal(t, int32(50), next.calls.Load())
}

func TestNewFromConfig(t *testing.T) {
	gen, err := New(config.ProviderConfig{Provider: "ollama", BaseURL: "http://localhost:11434", Model: "llama3.1"})
	require.NoError(t, err)
	assert.Equal(t, "llama3.1", gen.ModelName())

	t.Setenv("ZWEEFHULP_TEST_KEY", "sk-test")
	gen, err = New(config.ProviderConfig{Provider: "openai", APIKeyEnv: "ZWEEFHULP_TEST_KEY", Model: "gpt-4o"})
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o", gen.ModelName())

	_, err = New(config.ProviderConfig{Provider: "bard"})
	assert.Error(t, err)
}
