package pipeline

import (
	"bufio"
	"encoding/json"
	"os"
	"time"

	"github.com/ternarybob/memorybank/internal/chunker"
	"github.com/ternarybob/memorybank/internal/logger"
)

// rawTranscriptLine mirrors one JSONL record from the external AI CLI's
// native conversation log. Content is a union: a plain string, or an
// array of typed blocks (text/tool_use/tool_result/thinking).
type rawTranscriptLine struct {
	Type        string          `json:"type"`
	IsSidechain bool            `json:"isSidechain"`
	IsMeta      bool            `json:"isMeta"`
	Timestamp   string          `json:"timestamp"`
	Message     rawMessageField `json:"message"`
}

type rawMessageField struct {
	Role    string          `json:"role"`
	Content json.RawMessage `json:"content"`
}

type rawContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// parseTranscriptFile reads an external AI-CLI JSONL transcript,
// tolerating malformed lines per spec.md §7's "external-format
// malformations" policy (logged and skipped, not fatal).
func parseTranscriptFile(path string) ([]chunker.TranscriptMessage, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	var messages []chunker.TranscriptMessage
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var raw rawTranscriptLine
		if err := json.Unmarshal(line, &raw); err != nil {
			logger.GetLogger().Warn().Err(err).Int("line", lineNo).Str("path", path).Msg("skipping malformed transcript line")
			continue
		}
		if raw.Type != "user" && raw.Type != "assistant" {
			continue
		}

		text, isToolUse, isToolResult, isThinking := renderContent(raw.Message.Content)
		messages = append(messages, chunker.TranscriptMessage{
			Role:         raw.Message.Role,
			Text:         text,
			IsToolUse:    isToolUse,
			IsToolResult: isToolResult,
			IsSidechain:  raw.IsSidechain,
			IsMeta:       raw.IsMeta,
			IsThinking:   isThinking,
			Ts:           parseTimestamp(raw.Timestamp),
		})
	}
	if err := scanner.Err(); err != nil {
		return messages, err
	}
	return messages, nil
}

// renderContent normalizes the content union into plain text and flags
// describing what kind of block(s) it held. A message with both text
// and tool blocks is flagged by whichever non-text kind is present,
// matching the chunker's use of these flags purely as turn-membership
// filters (spec.md §4.5).
func renderContent(raw json.RawMessage) (text string, isToolUse, isToolResult, isThinking bool) {
	if len(raw) == 0 {
		return "", false, false, false
	}

	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		return asString, false, false, false
	}

	var blocks []rawContentBlock
	if err := json.Unmarshal(raw, &blocks); err != nil {
		return "", false, false, false
	}

	var combined string
	for _, b := range blocks {
		switch b.Type {
		case "text":
			combined += b.Text
		case "tool_use":
			isToolUse = true
		case "tool_result":
			isToolResult = true
		case "thinking":
			isThinking = true
		}
	}
	return combined, isToolUse, isToolResult, isThinking
}

func parseTimestamp(s string) float64 {
	if s == "" {
		return 0
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return float64(t.Unix())
	}
	return 0
}
