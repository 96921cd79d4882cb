package pipeline

import (
	"context"

	"github.com/ternarybob/memorybank/internal/capture"
	"github.com/ternarybob/memorybank/internal/redact"
	"github.com/ternarybob/memorybank/internal/storage"
)

// PTYSource wraps one capture.Session invocation (`membank run -- <argv>`)
// as a Source: ingesting means running the child to completion.
type PTYSource struct {
	Argv     []string
	Cwd      string
	Redactor *redact.Redactor
	ExitCode *int // populated after Ingest so the caller can set os.Exit
}

// Ingest runs the child command under PTY capture and returns the one
// session ID it created.
func (src *PTYSource) Ingest(ctx context.Context, s *storage.Storage) ([]string, error) {
	code, err := capture.Session(s, src.Argv, src.Cwd, src.Redactor)
	if src.ExitCode != nil {
		*src.ExitCode = code
	}
	if err != nil {
		return nil, err
	}

	sessions, err := s.ListSessions()
	if err != nil || len(sessions) == 0 {
		return nil, err
	}
	return []string{sessions[0].SessionID}, nil
}
