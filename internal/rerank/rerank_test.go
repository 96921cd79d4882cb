package rerank

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ternarybob/memorybank/internal/index"
	"github.com/ternarybob/memorybank/internal/llmclient"
)

type fakeChatClient struct {
	response string
	err      error
	gotUser  string
}

func (f *fakeChatClient) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	return nil, nil
}

func (f *fakeChatClient) Chat(ctx context.Context, systemPrompt, userPrompt string, opts llmclient.ChatOptions) (string, error) {
	f.gotUser = userPrompt
	return f.response, f.err
}

func (f *fakeChatClient) Available(ctx context.Context) error { return nil }

func result(chunkID, text string, score float64) index.Result {
	return index.Result{
		MetadataRow: index.MetadataRow{ChunkID: chunkID, SessionID: "s1", Text: text},
		Score:       score,
	}
}

func TestRerankReordersByLLMScore(t *testing.T) {
	candidates := []index.Result{
		result("a", "low relevance", 0.9),
		result("b", "high relevance", 0.8),
		result("c", "medium relevance", 0.7),
	}
	client := &fakeChatClient{response: `{"scores": [2, 9, 5]}`}

	out := Rerank(context.Background(), "test query", candidates, client, 3)

	require.Len(t, out, 3)
	assert.Equal(t, []string{"b", "c", "a"}, []string{out[0].ChunkID, out[1].ChunkID, out[2].ChunkID})
}

func TestRerankNormalizesScoresToUnitRange(t *testing.T) {
	candidates := []index.Result{result("a", "text", 0)}
	client := &fakeChatClient{response: `{"scores": [7]}`}

	out := Rerank(context.Background(), "query", candidates, client, 1)

	require.Len(t, out, 1)
	assert.InDelta(t, 0.7, out[0].Score, 1e-9)
}

func TestRerankRespectsTopK(t *testing.T) {
	candidates := []index.Result{
		result("a", "x", 0), result("b", "y", 0), result("c", "z", 0),
	}
	client := &fakeChatClient{response: `{"scores": [8, 3, 5]}`}

	out := Rerank(context.Background(), "query", candidates, client, 2)

	require.Len(t, out, 2)
	assert.Equal(t, "a", out[0].ChunkID)
	assert.Equal(t, "c", out[1].ChunkID)
}

func TestRerankFallsBackOnChatError(t *testing.T) {
	candidates := []index.Result{result("a", "x", 0), result("b", "y", 0)}
	client := &fakeChatClient{err: errors.New("ollama not running")}

	out := Rerank(context.Background(), "query", candidates, client, 2)

	require.Len(t, out, 2)
	assert.Equal(t, []string{"a", "b"}, []string{out[0].ChunkID, out[1].ChunkID})
}

func TestRerankFallsBackOnUnparseableResponse(t *testing.T) {
	candidates := []index.Result{result("a", "x", 0)}
	client := &fakeChatClient{response: `{"not_scores": [1]}`}

	out := Rerank(context.Background(), "query", candidates, client, 1)

	require.Len(t, out, 1)
	assert.Equal(t, "a", out[0].ChunkID)
}

func TestRerankFallsBackOnWrongScoreCount(t *testing.T) {
	candidates := []index.Result{result("a", "x", 0), result("b", "y", 0)}
	client := &fakeChatClient{response: `{"scores": [5]}`}

	out := Rerank(context.Background(), "query", candidates, client, 2)

	require.Len(t, out, 2)
	assert.Equal(t, []string{"a", "b"}, []string{out[0].ChunkID, out[1].ChunkID})
}

func TestRerankEmptyCandidatesReturnsEmpty(t *testing.T) {
	client := &fakeChatClient{}
	out := Rerank(context.Background(), "query", nil, client, 5)
	assert.Empty(t, out)
}

func TestRerankPromptContainsQueryAndSnippets(t *testing.T) {
	candidates := []index.Result{
		result("a", "alpha content", 0),
		result("b", "beta content", 0),
	}
	client := &fakeChatClient{response: `{"scores": [5, 5]}`}

	Rerank(context.Background(), "architecture design", candidates, client, 2)

	assert.Contains(t, client.gotUser, "architecture design")
	assert.Contains(t, client.gotUser, "alpha content")
	assert.Contains(t, client.gotUser, "beta content")
	assert.Contains(t, client.gotUser, "[0]")
	assert.Contains(t, client.gotUser, "[1]")
}
