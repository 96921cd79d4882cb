// Package migrate applies in-place storage schema migrations between
// Memory Bank releases, keyed off config.SchemaVersion.
package migrate

import (
	"fmt"

	"github.com/ternarybob/memorybank/internal/config"
	"github.com/ternarybob/memorybank/internal/storage"
)

// step upgrades a project's on-disk storage from one schema version to
// the next, returning a short human-readable description of what it did.
type step struct {
	fromVersion int
	describe    string
	apply       func(s *storage.Storage, cfg *config.Config) error
}

// steps is ordered by fromVersion; Run applies every step whose
// fromVersion is >= the project's current schema_version.
var steps = []step{}

// Run brings a project's storage up to config.SchemaVersion, applying
// each pending step in order and persisting the bumped version after
// every successful step. It returns the descriptions of the steps that
// ran; an empty slice means the project was already current.
func Run(s *storage.Storage) ([]string, error) {
	cfg, err := config.Load(s.Root)
	if err != nil {
		return nil, fmt.Errorf("migrate: load config: %w", err)
	}

	applied := make([]string, 0)
	for _, st := range steps {
		if cfg.SchemaVersion > st.fromVersion {
			continue
		}
		if err := st.apply(s, cfg); err != nil {
			return applied, fmt.Errorf("migrate: %s: %w", st.describe, err)
		}
		cfg.SchemaVersion = st.fromVersion + 1
		if err := config.Save(s.Root, cfg); err != nil {
			return applied, fmt.Errorf("migrate: %s: save config: %w", st.describe, err)
		}
		applied = append(applied, st.describe)
	}

	if cfg.SchemaVersion < config.SchemaVersion {
		cfg.SchemaVersion = config.SchemaVersion
		if err := config.Save(s.Root, cfg); err != nil {
			return applied, fmt.Errorf("migrate: bump schema_version: %w", err)
		}
	}

	return applied, nil
}
