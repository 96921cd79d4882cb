package retriever

import (
	"github.com/ternarybob/memorybank/internal/graph"
	"github.com/ternarybob/memorybank/internal/storage"
)

// ContextualRetriever pulls chunks around a specific session or episode
// rather than by raw recency.
type ContextualRetriever struct {
	MaxChunks int
}

// DefaultContextualRetriever returns the spec-mandated default cap.
func DefaultContextualRetriever() ContextualRetriever {
	return ContextualRetriever{MaxChunks: 200}
}

// RetrieveAroundFailure reads chunks from sessionID plus every
// temporally related session, sorted by ts_end descending and capped at
// MaxChunks.
func (r ContextualRetriever) RetrieveAroundFailure(s *storage.Storage, sessionID string) ([]storage.Chunk, error) {
	sessions, err := s.ListSessions()
	if err != nil {
		return nil, err
	}

	var target *storage.Session
	for _, sess := range sessions {
		if sess.SessionID == sessionID {
			target = sess
			break
		}
	}
	if target == nil {
		return nil, storage.NewUserError("unknown session: %s", sessionID)
	}

	related := graph.RelatedSessions(target, sessions)
	ids := map[string]bool{sessionID: true}
	for _, id := range related {
		ids[id] = true
	}

	var chunks []storage.Chunk
	for id := range ids {
		c, err := s.ReadChunks(id)
		if err != nil {
			continue
		}
		chunks = append(chunks, c...)
	}

	sortByTsEndDescending(chunks)
	if len(chunks) > r.MaxChunks {
		chunks = chunks[:r.MaxChunks]
	}
	return chunks, nil
}

// RetrieveByEpisode classifies every session via the Session Graph and
// unions chunks from every session matching episodeType.
func (r ContextualRetriever) RetrieveByEpisode(s *storage.Storage, episodeType string) ([]storage.Chunk, error) {
	sessions, err := s.ListSessions()
	if err != nil {
		return nil, err
	}

	var chunks []storage.Chunk
	for _, sess := range sessions {
		sessChunks, err := s.ReadChunks(sess.SessionID)
		if err != nil {
			continue
		}
		if graph.Classify(sess.Command, sessChunks) != episodeType {
			continue
		}
		chunks = append(chunks, sessChunks...)
	}

	sortByTsEndDescending(chunks)
	if len(chunks) > r.MaxChunks {
		chunks = chunks[:r.MaxChunks]
	}
	return chunks, nil
}
