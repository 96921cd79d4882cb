package pack

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ternarybob/memorybank/internal/config"
	"github.com/ternarybob/memorybank/internal/llmclient"
	"github.com/ternarybob/memorybank/internal/render"
	"github.com/ternarybob/memorybank/internal/storage"
)

type fakeClient struct{}

func (fakeClient) Embed(ctx context.Context, texts []string) ([][]float32, error) { return nil, nil }

func (fakeClient) Chat(ctx context.Context, systemPrompt, userPrompt string, opts llmclient.ChatOptions) (string, error) {
	return `{"summary":"a project under test","decisions":[],"constraints":[],"tasks":[]}`, nil
}

func (fakeClient) Available(ctx context.Context) error { return nil }

func newTestBuilder(t *testing.T) *Builder {
	s := storage.Open(filepath.Join(t.TempDir(), "project"))
	_, err := s.Init()
	require.NoError(t, err)

	sessID := "20260101-000000-aaaa"
	require.NoError(t, s.CreateSession(&storage.Session{SessionID: sessID, Command: []string{"go", "build"}, StartedAt: 0}))
	require.NoError(t, s.WriteEvent(storage.Event{EventID: "e1", Ts: 0, SessionID: sessID, Stream: "stdout", Content: "building the project now\n\nit compiled successfully"}))
	require.NoError(t, s.WriteTodos(sessID, []storage.TodoItem{
		{ID: "t1", SessionID: sessID, Text: "wire up retriever", Status: "in_progress", Priority: "high"},
		{ID: "t2", SessionID: sessID, Text: "write more tests", Status: "pending", Priority: "low"},
	}))
	require.NoError(t, s.WritePlan(storage.PlanMeta{Slug: "rollout", SessionID: sessID, Title: "Rollout plan", CreatedAt: 10}, "Step one.\nStep two."))

	cfg := config.DefaultConfig()
	return NewBuilder(s, cfg, fakeClient{})
}

func TestBuildProducesXMLByDefault(t *testing.T) {
	b := newTestBuilder(t)
	out, err := b.Build(context.Background(), Options{})
	require.NoError(t, err)
	assert.Contains(t, out, `<MEMORY_BANK_CONTEXT version="1.0">`)
	assert.Contains(t, out, "a project under test")
}

func TestBuildChunksUnchunkedSessions(t *testing.T) {
	b := newTestBuilder(t)
	_, err := b.Build(context.Background(), Options{})
	require.NoError(t, err)

	chunks, err := b.Storage.ReadChunks("20260101-000000-aaaa")
	require.NoError(t, err)
	assert.NotEmpty(t, chunks)
}

func TestBuildIncludesActiveItemsAndPlans(t *testing.T) {
	b := newTestBuilder(t)
	out, err := b.Build(context.Background(), Options{Format: render.FormatJSON})
	require.NoError(t, err)
	assert.Contains(t, out, "wire up retriever")
	assert.Contains(t, out, "Rollout plan")
}

func TestBuildRespectsBudget(t *testing.T) {
	b := newTestBuilder(t)
	out, err := b.Build(context.Background(), Options{BudgetTokens: 50})
	require.NoError(t, err)
	assert.LessOrEqual(t, len(out)/4, 200)
}

func TestBuildDebugModeUsesContextualRetrieverAroundFailure(t *testing.T) {
	s := storage.Open(filepath.Join(t.TempDir(), "project"))
	_, err := s.Init()
	require.NoError(t, err)

	sessID := "20260101-000000-failing"
	one := 1
	require.NoError(t, s.CreateSession(&storage.Session{SessionID: sessID, Command: []string{"go", "test"}, StartedAt: 0, ExitCode: &one}))
	require.NoError(t, s.WriteChunks(sessID, []storage.Chunk{
		{ChunkID: "c1", SessionID: sessID, Text: "panic: nil pointer dereference in handler", QualityScore: 0.8, TsEnd: 10},
	}))

	cfg := config.DefaultConfig()
	b := NewBuilder(s, cfg, fakeClient{})
	out, err := b.Build(context.Background(), Options{Mode: "debug", Format: render.FormatJSON})
	require.NoError(t, err)
	assert.Contains(t, out, "panic: nil pointer")
}
