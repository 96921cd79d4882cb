package chunker

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/ternarybob/memorybank/internal/storage"
)

// TranscriptMessage is one (role, content) entry from an AI-CLI's native
// JSONL conversation log.
type TranscriptMessage struct {
	Role         string // "user" | "assistant"
	Text         string
	IsToolUse    bool
	IsToolResult bool
	IsSidechain  bool
	IsMeta       bool
	IsThinking   bool
	Ts           float64
}

// skipPatterns match user messages that do not begin a real turn:
// command wrappers, local-command output tags, system reminders,
// bash stdin/stdout tags, and interruption markers.
var skipPatterns = []*regexp.Regexp{
	regexp.MustCompile(`^<command-[^>]*>`),
	regexp.MustCompile(`^<local-command-stdout>`),
	regexp.MustCompile(`^<system-reminder>`),
	regexp.MustCompile(`^<bash-std(in|out)>`),
	regexp.MustCompile(`(?i)request interrupted by user`),
}

func isTurnStart(m TranscriptMessage) bool {
	if m.Role != "user" || m.IsToolResult || m.IsSidechain || m.IsMeta {
		return false
	}
	trimmed := strings.TrimSpace(m.Text)
	if trimmed == "" {
		return false
	}
	for _, p := range skipPatterns {
		if p.MatchString(trimmed) {
			return false
		}
	}
	return true
}

type turn struct {
	userText        string
	assistantTexts  []string
	tsStart, tsEnd  float64
	turnNumber      int
}

func groupTurns(messages []TranscriptMessage) []turn {
	var turns []turn
	var current *turn
	turnNumber := 0

	for _, m := range messages {
		if isTurnStart(m) {
			if current != nil {
				turns = append(turns, *current)
			}
			turnNumber++
			current = &turn{userText: m.Text, tsStart: m.Ts, tsEnd: m.Ts, turnNumber: turnNumber}
			continue
		}
		if current == nil {
			continue
		}
		if m.Role == "assistant" && !m.IsToolUse && !m.IsThinking && strings.TrimSpace(m.Text) != "" {
			current.assistantTexts = append(current.assistantTexts, m.Text)
			current.tsEnd = m.Ts
		}
	}
	if current != nil {
		turns = append(turns, *current)
	}
	return turns
}

func (t turn) render() string {
	var b strings.Builder
	b.WriteString("User: ")
	b.WriteString(t.userText)
	for _, a := range t.assistantTexts {
		b.WriteString("\n\nAssistant: ")
		b.WriteString(a)
	}
	return b.String()
}

// Transcript chunks a structured AI-CLI conversation: turns are grouped
// from raw messages, then each turn's rendered text is split on
// paragraph boundaries with a forced hard split for any residual longer
// than maxTokens*4 characters. Overlap resets at each turn boundary.
func Transcript(sessionID string, messages []TranscriptMessage, maxTokens, overlapTokens int) []storage.Chunk {
	maxChars := maxTokens * 4
	overlapChars := overlapTokens * 4

	turns := groupTurns(messages)
	var chunks []storage.Chunk
	index := 0
	for _, t := range turns {
		text := t.render()
		for _, seg := range splitTurnText(text, maxChars, overlapChars) {
			trimmed := strings.TrimSpace(seg)
			if trimmed == "" {
				continue
			}
			chunks = append(chunks, storage.Chunk{
				ChunkID:       fmt.Sprintf("%s-%d", sessionID, index),
				SessionID:     sessionID,
				Index:         index,
				Text:          seg,
				TsStart:       t.tsStart,
				TsEnd:         t.tsEnd,
				TokenEstimate: TokenEstimate(seg),
				QualityScore:  QualityScore(seg),
				Source:        "claude_native",
				TurnNumber:    t.turnNumber,
			})
			index++
		}
	}
	return chunks
}

// splitTurnText splits text on "\n\n" paragraph boundaries, force-
// splitting any paragraph longer than maxChars, and carries an
// overlapChars suffix between consecutive segments of the same call
// (i.e. the same turn).
func splitTurnText(text string, maxChars, overlapChars int) []string {
	if len(text) <= maxChars {
		return []string{text}
	}

	var segments []string
	var acc strings.Builder

	flush := func() {
		if acc.Len() == 0 {
			return
		}
		s := acc.String()
		segments = append(segments, s)
		overlap := s
		if len(s) > overlapChars {
			overlap = s[len(s)-overlapChars:]
		}
		acc.Reset()
		acc.WriteString(overlap)
	}

	for _, para := range strings.Split(text, "\n\n") {
		for len(para) > maxChars {
			flush()
			acc.Reset()
			segments = append(segments, para[:maxChars])
			para = para[maxChars:]
		}
		if acc.Len() > 0 {
			acc.WriteString("\n\n")
		}
		acc.WriteString(para)
		if acc.Len() > maxChars {
			flush()
		}
	}
	if acc.Len() > 0 {
		segments = append(segments, acc.String())
	}
	return segments
}
