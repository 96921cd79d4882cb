// Package watch keeps a project's embedding index current by
// reindexing automatically whenever a session's chunks change, instead
// of requiring an explicit `membank reindex` after every capture.
package watch

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/ternarybob/memorybank/internal/config"
	"github.com/ternarybob/memorybank/internal/index"
	"github.com/ternarybob/memorybank/internal/llmclient"
	"github.com/ternarybob/memorybank/internal/logger"
	"github.com/ternarybob/memorybank/internal/storage"
)

const debounce = 500 * time.Millisecond

// Run watches a project's sessions directory and rebuilds the
// embedding index shortly after any chunks.jsonl file settles. It
// blocks until ctx is canceled.
func Run(ctx context.Context, s *storage.Storage, cfg *config.Config, client llmclient.Client) error {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("watch: create watcher: %w", err)
	}
	defer fsWatcher.Close()

	if err := os.MkdirAll(s.SessionsDir(), 0755); err != nil {
		return fmt.Errorf("watch: ensure sessions dir: %w", err)
	}
	if err := fsWatcher.Add(s.SessionsDir()); err != nil {
		return fmt.Errorf("watch: add sessions dir: %w", err)
	}

	ix := index.New(s, cfg.Ollama.EmbedDim)

	var mu sync.Mutex
	pending := false
	timer := time.NewTimer(time.Hour)
	if !timer.Stop() {
		<-timer.C
	}

	rebuild := func() {
		if err := ix.Build(ctx, s, client); err != nil {
			logger.GetLogger().Error().Err(err).Msg("watch: reindex failed")
			return
		}
		logger.GetLogger().Info().Msg("watch: reindex complete")
	}

	fmt.Println("watching for session changes, press Ctrl-C to stop")
	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-fsWatcher.Events:
			if !ok {
				return nil
			}
			if !strings.HasSuffix(event.Name, "chunks.jsonl") {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			mu.Lock()
			pending = true
			timer.Reset(debounce)
			mu.Unlock()

		case err, ok := <-fsWatcher.Errors:
			if !ok {
				return nil
			}
			logger.GetLogger().Error().Err(err).Msg("watch: fsnotify error")

		case <-timer.C:
			mu.Lock()
			shouldRebuild := pending
			pending = false
			mu.Unlock()
			if shouldRebuild {
				rebuild()
			}
		}
	}
}
