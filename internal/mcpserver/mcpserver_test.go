package mcpserver

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ternarybob/memorybank/internal/config"
	"github.com/ternarybob/memorybank/internal/index"
	"github.com/ternarybob/memorybank/internal/llmclient"
	"github.com/ternarybob/memorybank/internal/storage"
)

type fakeEmbedClient struct{}

func (fakeEmbedClient) Chat(ctx context.Context, systemPrompt, userPrompt string, opts llmclient.ChatOptions) (string, error) {
	return "{}", nil
}

func (fakeEmbedClient) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	for i := range texts {
		vectors[i] = []float32{1, 0, 0, 0}
	}
	return vectors, nil
}

func (fakeEmbedClient) Available(ctx context.Context) error { return nil }

func newTestServer(t *testing.T) *Server {
	s := storage.Open(filepath.Join(t.TempDir(), "project"))
	_, err := s.Init()
	require.NoError(t, err)

	cfg := config.DefaultConfig()
	cfg.Ollama.EmbedDim = 4

	return New(s, cfg, fakeEmbedClient{})
}

func callToolRequest(args map[string]any) mcp.CallToolRequest {
	req := mcp.CallToolRequest{}
	req.Params.Arguments = args
	return req
}

func TestHandleSearchRejectsEmptyQuery(t *testing.T) {
	srv := newTestServer(t)
	res, err := srv.handleSearch(context.Background(), callToolRequest(map[string]any{}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
}

func TestHandleSearchReturnsResults(t *testing.T) {
	srv := newTestServer(t)

	sessionID := "20260101-000000-aaaa"
	require.NoError(t, srv.storage.CreateSession(&storage.Session{SessionID: sessionID, StartedAt: 0}))
	require.NoError(t, srv.index.Add([]float32{1, 0, 0, 0}, index.MetadataRow{
		ChunkID:   "c0",
		SessionID: sessionID,
		Text:      "building the project",
	}))

	res, err := srv.handleSearch(context.Background(), callToolRequest(map[string]any{"query": "anything"}))
	require.NoError(t, err)
	assert.False(t, res.IsError)
}

func TestHandleSearchWithRerankFallsBackOnUnparseableChatResponse(t *testing.T) {
	srv := newTestServer(t)

	sessionID := "20260101-000000-bbbb"
	require.NoError(t, srv.storage.CreateSession(&storage.Session{SessionID: sessionID, StartedAt: 0}))
	require.NoError(t, srv.index.Add([]float32{1, 0, 0, 0}, index.MetadataRow{
		ChunkID:   "c0",
		SessionID: sessionID,
		Text:      "building the project",
	}))

	res, err := srv.handleSearch(context.Background(), callToolRequest(map[string]any{"query": "anything", "rerank": true}))
	require.NoError(t, err)
	assert.False(t, res.IsError)
}

func TestHandleSessionsListsNewestFirst(t *testing.T) {
	srv := newTestServer(t)
	require.NoError(t, srv.storage.CreateSession(&storage.Session{SessionID: "s1", StartedAt: 1}))
	require.NoError(t, srv.storage.CreateSession(&storage.Session{SessionID: "s2", StartedAt: 2}))

	res, err := srv.handleSessions(context.Background(), callToolRequest(map[string]any{}))
	require.NoError(t, err)
	assert.False(t, res.IsError)
}

func TestHandleGraphBuildsOneNodePerSession(t *testing.T) {
	srv := newTestServer(t)
	require.NoError(t, srv.storage.CreateSession(&storage.Session{SessionID: "s1", StartedAt: 1, Command: []string{"go", "build"}}))

	res, err := srv.handleGraph(context.Background(), callToolRequest(map[string]any{}))
	require.NoError(t, err)
	assert.False(t, res.IsError)
}
