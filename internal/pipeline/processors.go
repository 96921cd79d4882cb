package pipeline

import (
	"context"

	"github.com/ternarybob/memorybank/internal/chunker"
	"github.com/ternarybob/memorybank/internal/config"
	"github.com/ternarybob/memorybank/internal/index"
	"github.com/ternarybob/memorybank/internal/storage"
)

// ChunkProcessor runs the terminal chunker over any session in the
// batch that does not yet have chunks.jsonl. Hook- and import-sourced
// sessions are chunked by their Source at ingest time (structured-
// transcript chunking needs the raw message sequence, not events.jsonl)
// so this is a no-op for them.
type ChunkProcessor struct {
	Config *config.Config
}

func (p *ChunkProcessor) Process(ctx context.Context, s *storage.Storage, sessionIDs []string) error {
	for _, id := range sessionIDs {
		existing, err := s.ReadChunks(id)
		if err != nil {
			return err
		}
		if len(existing) > 0 {
			continue
		}

		events, err := s.ReadEvents(id)
		if err != nil {
			return err
		}
		if len(events) == 0 {
			continue
		}

		chunks := chunker.Terminal(id, events, p.Config.Chunking.MaxTokens)
		if err := s.WriteChunks(id, chunks); err != nil {
			return err
		}
	}
	return nil
}

// EmbedProcessor builds the embedding index over every chunk not yet
// indexed. It operates index-wide rather than per-session-id since
// index.Build already does its own skip-already-indexed bookkeeping;
// sessionIDs is accepted to satisfy the Processor interface and to
// short-circuit when the batch is empty.
type EmbedProcessor struct {
	Index    *index.Index
	Embedder index.Embedder
}

func (p *EmbedProcessor) Process(ctx context.Context, s *storage.Storage, sessionIDs []string) error {
	if len(sessionIDs) == 0 {
		return nil
	}
	return p.Index.Build(ctx, s, p.Embedder)
}
