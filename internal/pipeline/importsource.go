package pipeline

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/ternarybob/memorybank/internal/chunker"
	"github.com/ternarybob/memorybank/internal/config"
	"github.com/ternarybob/memorybank/internal/logger"
	"github.com/ternarybob/memorybank/internal/storage"
)

// ExternalProjectDir derives the host AI CLI's project directory for
// cwd: its absolute path with "/" and "_" replaced by "-", prefixed
// with "-" (spec.md's EXTERNAL INTERFACES convention), rooted under
// ~/.claude/projects.
func ExternalProjectDir(home, cwd string) string {
	encoded := strings.NewReplacer("/", "-", "_", "-").Replace(cwd)
	if !strings.HasPrefix(encoded, "-") {
		encoded = "-" + encoded
	}
	return filepath.Join(home, ".claude", "projects", encoded)
}

// ImportSource retroactively ingests an AI CLI project's own transcript
// files — ones never seen through a live hook invocation — per
// spec.md §6's `import [--dry-run]`.
type ImportSource struct {
	Cwd     string
	Home    string
	Config  *config.Config
	DryRun  bool
	Skipped []string // populated with filenames skipped as ambiguous matches
}

// Ingest scans the external project directory for transcript files not
// already accounted for (by ImportState or by a matching live-captured
// session's start time), creating one Memory Bank session per
// unaccounted transcript.
func (src *ImportSource) Ingest(ctx context.Context, s *storage.Storage) ([]string, error) {
	dir := ExternalProjectDir(src.Home, src.Cwd)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("import: read project dir: %w", err)
	}

	importState, err := s.ReadImportState()
	if err != nil {
		return nil, err
	}
	hooksState, err := s.ReadHooksState()
	if err != nil {
		return nil, err
	}
	sessions, err := s.ListSessions()
	if err != nil {
		return nil, err
	}

	knownTranscriptPaths := map[string]bool{}
	for _, entry := range hooksState.Sessions {
		knownTranscriptPaths[entry.TranscriptPath] = true
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".jsonl") {
			continue
		}
		files = append(files, e.Name())
	}
	sort.Strings(files)

	var created []string
	for _, name := range files {
		externalID := strings.TrimSuffix(name, ".jsonl")
		if _, ok := importState.Imported[externalID]; ok {
			continue
		}

		path := filepath.Join(dir, name)
		if knownTranscriptPaths[path] {
			continue
		}

		info, err := os.Stat(path)
		if err != nil {
			continue
		}

		if match, ambiguous := matchExistingSession(sessions, info.ModTime(), src.Config.Import.MatchWindowSeconds); ambiguous {
			logger.GetLogger().Warn().Str("file", name).Msg("import: ambiguous match window, skipping rather than guessing")
			src.Skipped = append(src.Skipped, name)
			continue
		} else if match != nil {
			importState.Imported[externalID] = match.SessionID
			continue
		}

		messages, err := parseTranscriptFile(path)
		if err != nil {
			logger.GetLogger().Warn().Err(err).Str("file", name).Msg("import: skipping unreadable transcript")
			continue
		}

		if src.DryRun {
			created = append(created, fmt.Sprintf("(dry-run) %s", externalID))
			continue
		}

		mbSessionID := storage.NewSessionID(info.ModTime())
		startedAt := float64(info.ModTime().Unix())
		if len(messages) > 0 {
			startedAt = messages[0].Ts
		}
		if err := s.CreateSession(&storage.Session{
			SessionID: mbSessionID,
			Cwd:       src.Cwd,
			StartedAt: startedAt,
			Source:    "import",
		}); err != nil {
			return created, err
		}

		chunks := chunker.Transcript(mbSessionID, messages, src.Config.Chunking.MaxTokens, src.Config.Chunking.OverlapTokens)
		if err := s.WriteChunks(mbSessionID, chunks); err != nil {
			return created, err
		}
		if err := s.FinalizeSession(mbSessionID, float64(time.Now().Unix()), 0); err != nil {
			return created, err
		}

		importState.Imported[externalID] = mbSessionID
		created = append(created, mbSessionID)
	}

	if !src.DryRun {
		if err := s.WriteImportState(importState); err != nil {
			return created, err
		}
	}

	return created, nil
}

// matchExistingSession looks for exactly one already-known session
// whose started_at falls within windowSeconds of fileMtime. Zero
// matches returns (nil, false); more than one is reported ambiguous
// rather than silently picking the first, per spec.md §9's note that
// the original's loose matching window could mis-attribute files.
func matchExistingSession(sessions []*storage.Session, fileMtime time.Time, windowSeconds int) (*storage.Session, bool) {
	if windowSeconds <= 0 {
		return nil, false
	}
	target := float64(fileMtime.Unix())
	var matches []*storage.Session
	for _, sess := range sessions {
		if math.Abs(sess.StartedAt-target) <= float64(windowSeconds) {
			matches = append(matches, sess)
		}
	}
	switch len(matches) {
	case 0:
		return nil, false
	case 1:
		return matches[0], false
	default:
		return nil, true
	}
}
