package storage

import (
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/ternarybob/memorybank/internal/fileutil"
	"github.com/ternarybob/memorybank/internal/logger"
)

// Storage owns every file under one project-scoped root directory.
type Storage struct {
	Root string
}

// Open returns a Storage handle for root. It does not touch the
// filesystem; call Init to create the tree.
func Open(root string) *Storage {
	return &Storage{Root: root}
}

// Path helpers, one per entry in spec §4.3's tree diagram.

func (s *Storage) ConfigPath() string       { return filepath.Join(s.Root, "config.toml") }
func (s *Storage) SessionsDir() string      { return filepath.Join(s.Root, "sessions") }
func (s *Storage) SessionDir(id string) string {
	return filepath.Join(s.SessionsDir(), id)
}
func (s *Storage) MetaPath(id string) string   { return filepath.Join(s.SessionDir(id), "meta.json") }
func (s *Storage) EventsPath(id string) string { return filepath.Join(s.SessionDir(id), "events.jsonl") }
func (s *Storage) ChunksPath(id string) string { return filepath.Join(s.SessionDir(id), "chunks.jsonl") }
func (s *Storage) IndexDir() string            { return filepath.Join(s.Root, "index") }
func (s *Storage) VectorsPath() string         { return filepath.Join(s.IndexDir(), "vectors.bin") }
func (s *Storage) IndexMetadataPath() string   { return filepath.Join(s.IndexDir(), "metadata.jsonl") }
func (s *Storage) StateDir() string             { return filepath.Join(s.Root, "state") }
func (s *Storage) StatePath() string            { return filepath.Join(s.StateDir(), "state.json") }
func (s *Storage) ArtifactsDir() string         { return filepath.Join(s.Root, "artifacts") }
func (s *Storage) PlansDir() string             { return filepath.Join(s.ArtifactsDir(), "plans") }
func (s *Storage) TodosDir() string             { return filepath.Join(s.ArtifactsDir(), "todos") }
func (s *Storage) TasksDir() string             { return filepath.Join(s.ArtifactsDir(), "tasks") }
func (s *Storage) ArtifactChunksPath() string   { return filepath.Join(s.ArtifactsDir(), "chunks.jsonl") }
func (s *Storage) HooksStatePath() string       { return filepath.Join(s.Root, "hooks_state.json") }
func (s *Storage) ImportStatePath() string      { return filepath.Join(s.Root, "import_state.json") }

// Init creates the storage tree if absent and appends "<root>/" to the
// parent directory's .gitignore if not already present. Returns whether
// it created anything; calling twice is a no-op the second time.
func (s *Storage) Init() (created bool, err error) {
	_, statErr := os.Stat(s.SessionsDir())
	alreadyInitialized := statErr == nil

	for _, dir := range []string{
		s.SessionsDir(), s.IndexDir(), s.StateDir(),
		s.PlansDir(), s.TodosDir(), s.TasksDir(),
	} {
		if err := fileutil.EnsureDir(dir); err != nil {
			return false, fmt.Errorf("create %s: %w", dir, err)
		}
	}

	if err := s.appendGitignore(); err != nil {
		logger.GetLogger().Warn().Err(err).Msg("failed to update parent .gitignore")
	}

	return !alreadyInitialized, nil
}

func (s *Storage) appendGitignore() error {
	parent := filepath.Dir(s.Root)
	entry := filepath.Base(s.Root) + "/"
	giPath := filepath.Join(parent, ".gitignore")

	existing, err := os.ReadFile(giPath)
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	for _, line := range strings.Split(string(existing), "\n") {
		if strings.TrimSpace(line) == entry || strings.TrimSpace(line) == strings.TrimSuffix(entry, "/") {
			return nil
		}
	}
	f, err := os.OpenFile(giPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer f.Close()
	if len(existing) > 0 && existing[len(existing)-1] != '\n' {
		if _, err := f.WriteString("\n"); err != nil {
			return err
		}
	}
	_, err = f.WriteString(entry + "\n")
	return err
}

// NewSessionID produces "YYYYMMDD-HHMMSS-XXXX" (UTC date/time + 2 random
// hex bytes).
func NewSessionID(now time.Time) string {
	rnd := make([]byte, 2)
	rand.Read(rnd)
	return fmt.Sprintf("%s-%s", now.UTC().Format("20060102-150405"), hex.EncodeToString(rnd))
}

// NewEventID deterministically fingerprints (session_id, ts) to at least
// 8 hex chars.
func NewEventID(sessionID string, ts float64) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%.9f", sessionID, ts)))
	return hex.EncodeToString(sum[:])[:16]
}

// CreateSession writes meta.json for a new session atomically.
func (s *Storage) CreateSession(sess *Session) error {
	if err := fileutil.EnsureDir(s.SessionDir(sess.SessionID)); err != nil {
		return err
	}
	return s.writeMeta(sess)
}

func (s *Storage) writeMeta(sess *Session) error {
	data, err := json.MarshalIndent(sess, "", "  ")
	if err != nil {
		return err
	}
	return fileutil.WriteAtomic(s.MetaPath(sess.SessionID), data)
}

// ReadMeta reads and parses meta.json for a session.
func (s *Storage) ReadMeta(sessionID string) (*Session, error) {
	data, err := os.ReadFile(s.MetaPath(sessionID))
	if err != nil {
		return nil, err
	}
	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, &StorageCorruption{Path: s.MetaPath(sessionID), Err: err}
	}
	return &sess, nil
}

// FinalizeSession sets ended_at and exit_code and rewrites meta.json
// atomically. Invariant: ended_at >= started_at.
func (s *Storage) FinalizeSession(sessionID string, endedAt float64, exitCode int) error {
	sess, err := s.ReadMeta(sessionID)
	if err != nil {
		return err
	}
	if endedAt < sess.StartedAt {
		endedAt = sess.StartedAt
	}
	sess.EndedAt = &endedAt
	sess.ExitCode = &exitCode
	return s.writeMeta(sess)
}

// WriteEvent appends one event to events.jsonl. Best-effort callers (the
// PTY capture loop) should swallow the returned error per spec §4.4/§7.
func (s *Storage) WriteEvent(ev Event) error {
	line, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return fileutil.AppendLine(s.EventsPath(ev.SessionID), line)
}

// ReadEvents reads every event for a session in file order (which is
// non-decreasing ts per the append-only invariant). Malformed lines are
// skipped with a warning rather than aborting the whole read.
func (s *Storage) ReadEvents(sessionID string) ([]Event, error) {
	f, err := os.Open(s.EventsPath(sessionID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	var events []Event
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(strings.TrimSpace(string(line))) == 0 {
			continue
		}
		var ev Event
		if err := json.Unmarshal(line, &ev); err != nil {
			logger.GetLogger().Warn().Err(err).Str("session_id", sessionID).Msg("skipping malformed event line")
			continue
		}
		events = append(events, ev)
	}
	return events, scanner.Err()
}

// WriteChunks fully rewrites chunks.jsonl for a session (chunks are
// rewritten wholesale when the source transcript grows).
func (s *Storage) WriteChunks(sessionID string, chunks []Chunk) error {
	var buf strings.Builder
	for _, c := range chunks {
		line, err := json.Marshal(c)
		if err != nil {
			return err
		}
		buf.Write(line)
		buf.WriteByte('\n')
	}
	return fileutil.WriteAtomic(s.ChunksPath(sessionID), []byte(buf.String()))
}

// ReadChunks reads a session's chunks.jsonl, skipping malformed lines.
func (s *Storage) ReadChunks(sessionID string) ([]Chunk, error) {
	return readChunksFile(s.ChunksPath(sessionID))
}

func readChunksFile(path string) ([]Chunk, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var chunks []Chunk
	for _, line := range strings.Split(string(data), "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		var c Chunk
		if err := json.Unmarshal([]byte(line), &c); err != nil {
			logger.GetLogger().Warn().Err(err).Str("path", path).Msg("skipping malformed chunk line")
			continue
		}
		chunks = append(chunks, c)
	}
	return chunks, nil
}

// ListSessions returns every session sorted by started_at descending.
// Corrupt meta.json files are skipped with a warning.
func (s *Storage) ListSessions() ([]*Session, error) {
	entries, err := os.ReadDir(s.SessionsDir())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var sessions []*Session
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		sess, err := s.ReadMeta(e.Name())
		if err != nil {
			logger.GetLogger().Warn().Err(err).Str("session_id", e.Name()).Msg("skipping corrupt session")
			continue
		}
		sessions = append(sessions, sess)
	}
	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].StartedAt > sessions[j].StartedAt
	})
	return sessions, nil
}

// DeleteSession removes a session directory entirely. Callers are
// responsible for clearing the embedding index afterward.
func (s *Storage) DeleteSession(sessionID string) error {
	dir := s.SessionDir(sessionID)
	if !fileutil.Exists(dir) {
		return NewUserError("unknown session: %s", sessionID)
	}
	return fileutil.RemoveAll(dir)
}

// AllSessionChunks reads chunks across every session directory.
func (s *Storage) AllSessionChunks() ([]Chunk, error) {
	sessions, err := s.ListSessions()
	if err != nil {
		return nil, err
	}
	var all []Chunk
	for _, sess := range sessions {
		chunks, err := s.ReadChunks(sess.SessionID)
		if err != nil {
			logger.GetLogger().Warn().Err(err).Str("session_id", sess.SessionID).Msg("skipping unreadable chunks file")
			continue
		}
		all = append(all, chunks...)
	}
	return all, nil
}

// ReadArtifactChunks reads artifacts/chunks.jsonl.
func (s *Storage) ReadArtifactChunks() ([]Chunk, error) {
	return readChunksFile(s.ArtifactChunksPath())
}

// AppendArtifactChunk appends one artifact-derived chunk.
func (s *Storage) AppendArtifactChunk(c Chunk) error {
	line, err := json.Marshal(c)
	if err != nil {
		return err
	}
	return fileutil.AppendLine(s.ArtifactChunksPath(), line)
}

// AllChunks returns session chunks plus artifact chunks together, as
// consumed by the Retriever and Embedding Index.
func (s *Storage) AllChunks() ([]Chunk, error) {
	sessionChunks, err := s.AllSessionChunks()
	if err != nil {
		return nil, err
	}
	artifactChunks, err := s.ReadArtifactChunks()
	if err != nil {
		return nil, err
	}
	return append(sessionChunks, artifactChunks...), nil
}

// LatestChunksMtime returns the newest mtime across every chunks.jsonl
// (session and artifact), used to decide index/state invalidation.
func (s *Storage) LatestChunksMtime() (time.Time, error) {
	var latest time.Time
	sessions, err := s.ListSessions()
	if err != nil {
		return latest, err
	}
	paths := []string{s.ArtifactChunksPath()}
	for _, sess := range sessions {
		paths = append(paths, s.ChunksPath(sess.SessionID))
	}
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			continue
		}
		if info.ModTime().After(latest) {
			latest = info.ModTime()
		}
	}
	return latest, nil
}

// ReadHooksState reads hooks_state.json, returning an empty state if
// absent.
func (s *Storage) ReadHooksState() (*HooksState, error) {
	data, err := os.ReadFile(s.HooksStatePath())
	if err != nil {
		if os.IsNotExist(err) {
			return &HooksState{Sessions: map[string]HookEntry{}}, nil
		}
		return nil, err
	}
	var st HooksState
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, &StorageCorruption{Path: s.HooksStatePath(), Err: err}
	}
	if st.Sessions == nil {
		st.Sessions = map[string]HookEntry{}
	}
	return &st, nil
}

// WriteHooksState writes hooks_state.json atomically.
func (s *Storage) WriteHooksState(st *HooksState) error {
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return err
	}
	return fileutil.WriteAtomic(s.HooksStatePath(), data)
}

// ReadImportState reads import_state.json, returning an empty state if
// absent.
func (s *Storage) ReadImportState() (*ImportState, error) {
	data, err := os.ReadFile(s.ImportStatePath())
	if err != nil {
		if os.IsNotExist(err) {
			return &ImportState{Imported: map[string]string{}}, nil
		}
		return nil, err
	}
	var st ImportState
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, &StorageCorruption{Path: s.ImportStatePath(), Err: err}
	}
	if st.Imported == nil {
		st.Imported = map[string]string{}
	}
	return &st, nil
}

// WriteImportState writes import_state.json atomically.
func (s *Storage) WriteImportState(st *ImportState) error {
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return err
	}
	return fileutil.WriteAtomic(s.ImportStatePath(), data)
}

// ReadState reads state/state.json, or nil if absent.
func (s *Storage) ReadState() (*ProjectState, error) {
	data, err := os.ReadFile(s.StatePath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var ps ProjectState
	if err := json.Unmarshal(data, &ps); err != nil {
		return nil, &StorageCorruption{Path: s.StatePath(), Err: err}
	}
	return &ps, nil
}

// WriteState writes state/state.json atomically.
func (s *Storage) WriteState(ps *ProjectState) error {
	data, err := json.MarshalIndent(ps, "", "  ")
	if err != nil {
		return err
	}
	return fileutil.WriteAtomic(s.StatePath(), data)
}
