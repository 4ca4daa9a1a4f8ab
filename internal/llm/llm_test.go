package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kestrelhq/coderag/internal/config"
)

func TestNewFromConfigNoKey(t *testing.T) {
	cfg := &config.Config{LLMProvider: "openai"}
	_, err := NewFromConfig(cfg)
	assert.ErrorIs(t, err, ErrNoProvider)
}

func TestNewFromConfigUnknownProvider(t *testing.T) {
	cfg := &config.Config{LLMProvider: "carrier-pigeon"}
	_, err := NewFromConfig(cfg)
	assert.Error(t, err)
}

func TestOllamaComplete(t *testing.T) {
	var reqBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/generate", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&reqBody))
		w.Write([]byte(`{"response":"the answer","done":true}`))
	}))
	defer srv.Close()

	client, err := NewOllamaClient(srv.URL, "qwen2.5-coder")
	require.NoError(t, err)

	out, err := client.Complete(context.Background(), "sys", "user question")
	require.NoError(t, err)
	assert.Equal(t, "the answer", out)
	assert.Equal(t, "qwen2.5-coder", reqBody["model"])
	assert.Equal(t, false, reqBody["stream"])
}

func TestOllamaRequiresModel(t *testing.T) {
	_, err := NewOllamaClient("http://localhost:11434", "")
	assert.ErrorIs(t, err, ErrNoProvider)
}

func TestBuildUserPrompt(t *testing.T) {
	assert.Equal(t, "q", BuildUserPrompt("q", ""))
	withCtx := BuildUserPrompt("how?", "[a.go:1-2] Run\nfunc Run() {}")
	assert.Contains(t, withCtx, "Context:")
	assert.Contains(t, withCtx, "Question: how?")
}
