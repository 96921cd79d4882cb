package render

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ternarybob/memorybank/internal/storage"
)

func sampleContext() Context {
	return Context{
		State: storage.ProjectState{
			Summary:     "Building a caching layer for the API gateway.",
			Decisions:   []storage.Decision{{ID: "d1", Statement: "Use Redis", Rationale: "already deployed"}},
			Constraints: []string{"must support TTL eviction"},
		},
		ActiveItems: []ActiveItem{
			{ID: "t1", SessionID: "s1", Text: "wire up the cache client", Status: "in_progress", Priority: "high"},
		},
		Plans: []Plan{
			{Slug: "cache-rollout", Title: "Cache rollout", Body: "Step one, step two."},
		},
		Excerpts: []storage.Chunk{
			{SessionID: "s1", Text: "ran the integration tests, all green", TsEnd: 100},
		},
	}
}

func TestRenderXMLContainsAllSections(t *testing.T) {
	out := RenderXML(sampleContext())
	for _, want := range []string{
		"Building a caching layer",
		"Use Redis",
		"must support TTL eviction",
		"wire up the cache client",
		"Cache rollout",
		"ran the integration tests",
	} {
		assert.Contains(t, out, want)
	}
	assert.True(t, strings.HasPrefix(out, `<MEMORY_BANK_CONTEXT version="1.0">`))
}

func TestRenderXMLEscapesUserText(t *testing.T) {
	ctx := sampleContext()
	ctx.State.Summary = "a <b> & c"
	out := RenderXML(ctx)
	assert.Contains(t, out, "&lt;b&gt;")
	assert.Contains(t, out, "&amp;")
}

func TestRenderXMLEmptySectionsSelfClose(t *testing.T) {
	out := RenderXML(Context{})
	assert.Contains(t, out, "<DECISIONS></DECISIONS>")
	assert.Contains(t, out, "<CONSTRAINTS></CONSTRAINTS>")
	assert.Contains(t, out, "<ACTIVE_TASKS></ACTIVE_TASKS>")
	assert.Contains(t, out, "<RECENT_CONTEXT_EXCERPTS></RECENT_CONTEXT_EXCERPTS>")
	assert.NotContains(t, out, "<PLANS>")
}

func TestRenderJSONRoundTrips(t *testing.T) {
	out, err := RenderJSON(sampleContext())
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &doc))
	assert.Equal(t, "Building a caching layer for the API gateway.", doc["project_state"])
	assert.NotEmpty(t, doc["decisions"])
	assert.NotEmpty(t, doc["active_tasks"])
	assert.NotEmpty(t, doc["recent_excerpts"])
}

func TestRenderMarkdownContainsAllSections(t *testing.T) {
	out := RenderMarkdown(sampleContext())
	for _, want := range []string{
		"# Memory Bank Context",
		"Building a caching layer",
		"Use Redis",
		"must support TTL eviction",
		"wire up the cache client",
		"Cache rollout",
		"ran the integration tests",
	} {
		assert.Contains(t, out, want)
	}
}

func TestAllThreeFormatsCarryEquivalentContent(t *testing.T) {
	ctx := sampleContext()

	xmlOut := RenderXML(ctx)
	jsonOut, err := RenderJSON(ctx)
	require.NoError(t, err)
	mdOut := RenderMarkdown(ctx)

	probes := []string{ctx.State.Summary, ctx.State.Decisions[0].Statement, ctx.ActiveItems[0].Text, ctx.Plans[0].Title, ctx.Excerpts[0].Text}
	for _, p := range probes {
		assert.Contains(t, xmlOut, p)
		assert.Contains(t, jsonOut, p)
		assert.Contains(t, mdOut, p)
	}
}

func TestRenderDispatchesOnFormat(t *testing.T) {
	ctx := sampleContext()
	_, err := Render(ctx, FormatXML)
	require.NoError(t, err)
	_, err = Render(ctx, FormatJSON)
	require.NoError(t, err)
	_, err = Render(ctx, FormatMarkdown)
	require.NoError(t, err)
	_, err = Render(ctx, "bogus")
	assert.Error(t, err)
}
