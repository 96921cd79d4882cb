package index

import (
	"context"
	"fmt"
	"os"

	"github.com/ternarybob/memorybank/internal/logger"
	"github.com/ternarybob/memorybank/internal/storage"
)

// Embedder turns text into vectors. Implemented by internal/llmclient's
// Ollama-compatible client; kept as a narrow interface here so the
// index package does not need to know about HTTP or provider selection.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

const embedBatchSize = 10

// Build incrementally indexes every not-yet-indexed chunk. If any
// chunks.jsonl file is newer than the index's metadata.jsonl, the whole
// index is cleared first and rebuilt from scratch.
func (ix *Index) Build(ctx context.Context, s *storage.Storage, embedder Embedder) error {
	latestChunks, err := s.LatestChunksMtime()
	if err != nil {
		return err
	}
	if info, err := os.Stat(s.IndexMetadataPath()); err == nil {
		if latestChunks.After(info.ModTime()) {
			logger.GetLogger().Info().Msg("chunks are newer than the index; clearing and rebuilding")
			if err := ix.Clear(); err != nil {
				return err
			}
		}
	}

	already, err := ix.indexedSessionIDs()
	if err != nil {
		return err
	}

	allChunks, err := s.AllChunks()
	if err != nil {
		return err
	}

	var pending []storage.Chunk
	for _, c := range allChunks {
		if already[c.SessionID] {
			continue
		}
		pending = append(pending, c)
	}

	for i := 0; i < len(pending); i += embedBatchSize {
		end := i + embedBatchSize
		if end > len(pending) {
			end = len(pending)
		}
		batch := pending[i:end]

		texts := make([]string, len(batch))
		for j, c := range batch {
			texts[j] = c.Text
		}
		vectors, err := embedder.Embed(ctx, texts)
		if err != nil {
			return fmt.Errorf("embed batch: %w", err)
		}
		if len(vectors) != len(batch) {
			return fmt.Errorf("embedder returned %d vectors for %d inputs", len(vectors), len(batch))
		}

		for j, c := range batch {
			row := MetadataRow{
				ChunkID:      c.ChunkID,
				SessionID:    c.SessionID,
				Text:         c.Text,
				TsStart:      c.TsStart,
				TsEnd:        c.TsEnd,
				ArtifactType: c.ArtifactType,
				QualityScore: c.QualityScore,
			}
			if err := ix.Add(vectors[j], row); err != nil {
				return err
			}
		}
	}

	return nil
}

// indexedSessionIDs returns the set of session_ids already present in
// the index's metadata, so Build can skip them.
func (ix *Index) indexedSessionIDs() (map[string]bool, error) {
	rows, err := ix.readMetadata()
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool, len(rows))
	for _, r := range rows {
		seen[r.SessionID] = true
	}
	return seen, nil
}
