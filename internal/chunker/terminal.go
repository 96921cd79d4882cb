package chunker

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ternarybob/memorybank/internal/sanitize"
	"github.com/ternarybob/memorybank/internal/storage"
)

const suffixOverlapChars = 200

// Terminal chunks a session's events.jsonl: only stdout events, sorted
// by ts, noise-stripped, segmented on paragraph boundaries with a
// 200-character suffix overlap between consecutive chunks.
func Terminal(sessionID string, events []storage.Event, maxTokens int) []storage.Chunk {
	maxChars := maxTokens * 4

	var stdout []storage.Event
	for _, e := range events {
		if e.Stream == "stdout" {
			stdout = append(stdout, e)
		}
	}
	sort.SliceStable(stdout, func(i, j int) bool { return stdout[i].Ts < stdout[j].Ts })

	if len(stdout) == 0 {
		return nil
	}

	var chunks []storage.Chunk
	var acc strings.Builder
	segStart := stdout[0].Ts
	segmentOpen := false
	lastTs := stdout[0].Ts
	index := 0

	flush := func(tsEnd float64) {
		if acc.Len() == 0 {
			return
		}
		text := sanitize.StripNoise(acc.String())
		trimmed := strings.TrimSpace(text)
		if trimmed == "" {
			acc.Reset()
			segmentOpen = false
			return
		}
		chunks = append(chunks, storage.Chunk{
			ChunkID:       fmt.Sprintf("%s-%d", sessionID, index),
			SessionID:     sessionID,
			Index:         index,
			Text:          text,
			TsStart:       segStart,
			TsEnd:         tsEnd,
			TokenEstimate: TokenEstimate(text),
			QualityScore:  QualityScore(text),
		})
		index++

		overlap := text
		if len(text) > suffixOverlapChars {
			overlap = text[len(text)-suffixOverlapChars:]
		}
		acc.Reset()
		acc.WriteString(overlap)
		segmentOpen = false
	}

	for _, e := range stdout {
		lastTs = e.Ts
		content := sanitize.StripNoise(e.Content)
		if content == "" {
			continue
		}
		for _, para := range strings.Split(content, "\n\n") {
			if !segmentOpen {
				segStart = e.Ts
				segmentOpen = true
			}
			if acc.Len() > 0 {
				acc.WriteString("\n\n")
			}
			acc.WriteString(para)
			if acc.Len() > maxChars {
				flush(e.Ts)
			}
		}
	}
	flush(lastTs)

	return chunks
}
