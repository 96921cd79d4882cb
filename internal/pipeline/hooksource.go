package pipeline

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/ternarybob/memorybank/internal/chunker"
	"github.com/ternarybob/memorybank/internal/config"
	"github.com/ternarybob/memorybank/internal/storage"
)

// HookPayload is the stdin-driven JSON payload the host AI CLI's hook
// passes to `membank` on a transparent pass-through invocation
// (spec.md §6's "hooks install" contract).
type HookPayload struct {
	SessionID      string `json:"session_id"`
	TranscriptPath string `json:"transcript_path"`
	Cwd            string `json:"cwd"`
	Source         string `json:"source"`
}

// HookSource ingests one hook invocation: if the named transcript has
// grown since the last time this external session was seen, it parses
// the new content and creates or appends to the corresponding Memory
// Bank session.
type HookSource struct {
	Payload HookPayload
	Config  *config.Config
}

// Ingest returns the one mb session_id touched, or no session IDs if
// the transcript had not grown since the last hook invocation.
func (src *HookSource) Ingest(ctx context.Context, s *storage.Storage) ([]string, error) {
	info, err := os.Stat(src.Payload.TranscriptPath)
	if err != nil {
		return nil, fmt.Errorf("hook: stat transcript: %w", err)
	}

	state, err := s.ReadHooksState()
	if err != nil {
		return nil, err
	}

	entry, known := state.Sessions[src.Payload.SessionID]
	if known && entry.TranscriptSize == info.Size() {
		return nil, nil
	}

	messages, err := parseTranscriptFile(src.Payload.TranscriptPath)
	if err != nil {
		return nil, fmt.Errorf("hook: parse transcript: %w", err)
	}

	mbSessionID := entry.MBSessionID
	if !known {
		mbSessionID = storage.NewSessionID(time.Now())
		startedAt := float64(info.ModTime().Unix())
		if len(messages) > 0 {
			startedAt = messages[0].Ts
		}
		if err := s.CreateSession(&storage.Session{
			SessionID: mbSessionID,
			Cwd:       src.Payload.Cwd,
			StartedAt: startedAt,
			Source:    "hook",
		}); err != nil {
			return nil, err
		}
	}

	chunks := chunker.Transcript(mbSessionID, messages, src.Config.Chunking.MaxTokens, src.Config.Chunking.OverlapTokens)
	if err := s.WriteChunks(mbSessionID, chunks); err != nil {
		return nil, err
	}

	endedAt := float64(time.Now().Unix())
	if err := s.FinalizeSession(mbSessionID, endedAt, 0); err != nil {
		return nil, err
	}

	state.Sessions[src.Payload.SessionID] = storage.HookEntry{
		MBSessionID:    mbSessionID,
		TranscriptPath: src.Payload.TranscriptPath,
		TranscriptSize: info.Size(),
		LastProcessed:  endedAt,
	}
	if err := s.WriteHooksState(state); err != nil {
		return nil, err
	}

	return []string{mbSessionID}, nil
}
