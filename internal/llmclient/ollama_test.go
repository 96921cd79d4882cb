package llmclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ternarybob/memorybank/internal/config"
)

func newTestOllamaClient(t *testing.T, handler http.HandlerFunc) *OllamaClient {
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewOllamaClient(
		config.OllamaConfig{BaseURL: srv.URL, EmbedModel: "nomic-embed-text", ChatModel: "llama3"},
		config.LLMConfig{EmbedTimeoutSeconds: 5, ChatTimeoutSeconds: 5},
	)
}

func TestOllamaEmbed(t *testing.T) {
	c := newTestOllamaClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/embed", r.URL.Path)
		var req embedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "nomic-embed-text", req.Model)

		resp := embedResponse{Embeddings: make([][]float32, len(req.Input))}
		for i := range req.Input {
			resp.Embeddings[i] = []float32{1, 0, 0}
		}
		json.NewEncoder(w).Encode(resp)
	})

	vecs, err := c.Embed(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	require.Len(t, vecs, 2)
	assert.Equal(t, []float32{1, 0, 0}, vecs[0])
}

func TestOllamaChat(t *testing.T) {
	c := newTestOllamaClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat", r.URL.Path)
		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.False(t, req.Stream)
		assert.Equal(t, "json", req.Format)

		json.NewEncoder(w).Encode(chatResponse{Message: chatMessage{Role: "assistant", Content: `{"summary":"ok"}`}})
	})

	out, err := c.Chat(context.Background(), "system", "user", ChatOptions{Temperature: 0, Seed: 42, JSONMode: true})
	require.NoError(t, err)
	assert.Equal(t, `{"summary":"ok"}`, out)
}

func TestOllamaChatModelNotFound(t *testing.T) {
	c := newTestOllamaClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	_, err := c.Chat(context.Background(), "s", "u", ChatOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestOllamaAvailableUnreachable(t *testing.T) {
	c := NewOllamaClient(config.OllamaConfig{BaseURL: "http://127.0.0.1:1"}, config.LLMConfig{})
	err := c.Available(context.Background())
	require.Error(t, err)
}
