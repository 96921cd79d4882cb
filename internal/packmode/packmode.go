// Package packmode resolves the effective token-budget profile for a
// context pack: the four named modes of spec §4.10, their default
// fractions, config overrides, and inference from the most recent
// session's episode type.
package packmode

import (
	"github.com/ternarybob/memorybank/internal/config"
	"github.com/ternarybob/memorybank/internal/graph"
	"github.com/ternarybob/memorybank/internal/storage"
)

// Mode is one of the four pack modes.
type Mode string

const (
	Auto    Mode = "auto"
	Debug   Mode = "debug"
	Build   Mode = "build"
	Explore Mode = "explore"
)

// Profile is the five-fraction split over {project_state, decisions,
// active_tasks, plans, recent_context}, always summing to 1.0.
type Profile struct {
	ProjectState  float64
	Decisions     float64
	ActiveTasks   float64
	Plans         float64
	RecentContext float64
}

// defaultProfiles is the authoritative table from spec §4.10.
var defaultProfiles = map[Mode]Profile{
	Auto:    {ProjectState: 0.15, Decisions: 0.15, ActiveTasks: 0.15, Plans: 0.15, RecentContext: 0.40},
	Debug:   {ProjectState: 0.10, Decisions: 0.05, ActiveTasks: 0.05, Plans: 0.05, RecentContext: 0.75},
	Build:   {ProjectState: 0.15, Decisions: 0.20, ActiveTasks: 0.20, Plans: 0.20, RecentContext: 0.25},
	Explore: {ProjectState: 0.25, Decisions: 0.15, ActiveTasks: 0.05, Plans: 0.15, RecentContext: 0.40},
}

// episodeToMode maps a graph-classified episode type to a pack mode.
var episodeToMode = map[string]Mode{
	"debug":    Debug,
	"build":    Build,
	"refactor": Build,
	"config":   Build,
	"test":     Build,
	"deploy":   Build,
	"explore":  Explore,
	"docs":     Explore,
	"review":   Explore,
}

// Resolve returns the effective profile for mode, merging any
// per-mode override from cfg.PackModes over the default and
// renormalizing the five fractions to sum to 1.0.
func Resolve(cfg *config.Config, mode Mode) Profile {
	base, ok := defaultProfiles[mode]
	if !ok {
		base = defaultProfiles[Auto]
	}

	if cfg != nil {
		if override, ok := cfg.PackModes[string(mode)]; ok {
			if override.ProjectState != nil {
				base.ProjectState = *override.ProjectState
			}
			if override.Decisions != nil {
				base.Decisions = *override.Decisions
			}
			if override.ActiveTasks != nil {
				base.ActiveTasks = *override.ActiveTasks
			}
			if override.Plans != nil {
				base.Plans = *override.Plans
			}
			if override.RecentContext != nil {
				base.RecentContext = *override.RecentContext
			}
		}
	}

	return normalize(base)
}

func normalize(p Profile) Profile {
	sum := p.ProjectState + p.Decisions + p.ActiveTasks + p.Plans + p.RecentContext
	if sum <= 0 {
		return defaultProfiles[Auto]
	}
	return Profile{
		ProjectState:  p.ProjectState / sum,
		Decisions:     p.Decisions / sum,
		ActiveTasks:   p.ActiveTasks / sum,
		Plans:         p.Plans / sum,
		RecentContext: p.RecentContext / sum,
	}
}

// ModeForEpisode maps an episode type to a pack mode; unknown episodes
// map to Auto.
func ModeForEpisode(episode string) Mode {
	if m, ok := episodeToMode[episode]; ok {
		return m
	}
	return Auto
}

// InferMode classifies the most recent session (newest started_at) and
// maps its episode type to a mode; an empty project or unknown episode
// yields Auto.
func InferMode(s *storage.Storage) (Mode, error) {
	sessions, err := s.ListSessions()
	if err != nil {
		return Auto, err
	}
	if len(sessions) == 0 {
		return Auto, nil
	}
	latest := sessions[0]

	chunks, err := s.ReadChunks(latest.SessionID)
	if err != nil {
		return Auto, err
	}

	episode := graph.Classify(latest.Command, chunks)
	return ModeForEpisode(episode), nil
}

// FindLatestErrorSession iterates sessions newest-first and returns the
// first with has_error=true, or nil if none exists.
func FindLatestErrorSession(s *storage.Storage) (*storage.Session, error) {
	sessions, err := s.ListSessions()
	if err != nil {
		return nil, err
	}
	for _, sess := range sessions {
		chunks, err := s.ReadChunks(sess.SessionID)
		if err != nil {
			continue
		}
		if graph.HasError(sess.ExitCode, chunks) {
			return sess, nil
		}
	}
	return nil, nil
}
