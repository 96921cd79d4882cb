package chunker

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ternarybob/memorybank/internal/storage"
)

func TestQualityScoreBounds(t *testing.T) {
	assert.Equal(t, 0.0, QualityScore(""))
	assert.Equal(t, 0.0, QualityScore("   \n\t  "))
	assert.Equal(t, 1.0, QualityScore("abc123"))
}

func TestTerminalEmptyEventsYieldsNoChunks(t *testing.T) {
	chunks := Terminal("sess1", nil, 500)
	assert.Empty(t, chunks)
}

func TestTerminalForceSplitsHugeMessage(t *testing.T) {
	big := make([]byte, 5000)
	for i := range big {
		big[i] = 'a'
	}
	events := []storage.Event{
		{Stream: "stdout", Ts: 1, Content: string(big)},
	}
	chunks := Terminal("sess1", events, 100) // max_chars = 400
	require.NotEmpty(t, chunks)
	for i, c := range chunks {
		assert.Equal(t, i, c.Index)
		assert.GreaterOrEqual(t, c.TsEnd, c.TsStart)
	}
}

func TestTerminalIsDeterministic(t *testing.T) {
	events := []storage.Event{
		{Stream: "stdout", Ts: 1, Content: "hello\n\nworld"},
		{Stream: "stdin", Ts: 2, Content: "ignored"},
		{Stream: "stdout", Ts: 3, Content: "more output here"},
	}
	a := Terminal("sess1", events, 500)
	b := Terminal("sess1", events, 500)
	assert.Equal(t, a, b)
}

func TestTranscriptGroupsTurnsAndSkipsNonTurnMessages(t *testing.T) {
	messages := []TranscriptMessage{
		{Role: "user", Text: "<system-reminder>ignore me</system-reminder>", Ts: 0},
		{Role: "user", Text: "please add a health check", Ts: 1},
		{Role: "assistant", Text: "sure, here is the plan", Ts: 2},
		{Role: "assistant", IsToolUse: true, Text: "tool call", Ts: 3},
		{Role: "user", IsToolResult: true, Text: "tool output", Ts: 4},
		{Role: "user", Text: "looks good, ship it", Ts: 5},
	}
	chunks := Transcript("sess2", messages, 500, 50)
	require.Len(t, chunks, 2)
	assert.Equal(t, 1, chunks[0].TurnNumber)
	assert.Contains(t, chunks[0].Text, "User: please add a health check")
	assert.Contains(t, chunks[0].Text, "Assistant: sure, here is the plan")
	assert.Equal(t, 2, chunks[1].TurnNumber)
	assert.Equal(t, "claude_native", chunks[1].Source)
}
