package packmode

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ternarybob/memorybank/internal/config"
	"github.com/ternarybob/memorybank/internal/storage"
)

func TestResolveDefaultProfilesSumToOne(t *testing.T) {
	cfg := config.DefaultConfig()
	for _, mode := range []Mode{Auto, Debug, Build, Explore} {
		p := Resolve(cfg, mode)
		sum := p.ProjectState + p.Decisions + p.ActiveTasks + p.Plans + p.RecentContext
		assert.InDelta(t, 1.0, sum, 1e-9, "mode %s", mode)
	}
}

func TestResolveDebugProfileMatchesSpecTable(t *testing.T) {
	cfg := config.DefaultConfig()
	p := Resolve(cfg, Debug)
	assert.InDelta(t, 0.10, p.ProjectState, 1e-9)
	assert.InDelta(t, 0.05, p.Decisions, 1e-9)
	assert.InDelta(t, 0.05, p.ActiveTasks, 1e-9)
	assert.InDelta(t, 0.05, p.Plans, 1e-9)
	assert.InDelta(t, 0.75, p.RecentContext, 1e-9)
}

func TestResolveOverrideIsRenormalized(t *testing.T) {
	cfg := config.DefaultConfig()
	half := 0.5
	cfg.PackModes["auto"] = config.ModeProfile{ProjectState: &half}

	p := Resolve(cfg, Auto)
	sum := p.ProjectState + p.Decisions + p.ActiveTasks + p.Plans + p.RecentContext
	assert.InDelta(t, 1.0, sum, 1e-9)
	assert.Greater(t, p.ProjectState, 0.15)
}

func TestModeForEpisodeMapping(t *testing.T) {
	assert.Equal(t, Debug, ModeForEpisode("debug"))
	assert.Equal(t, Build, ModeForEpisode("test"))
	assert.Equal(t, Build, ModeForEpisode("deploy"))
	assert.Equal(t, Explore, ModeForEpisode("docs"))
	assert.Equal(t, Auto, ModeForEpisode("unknown-episode"))
}

func TestInferModeFromLatestSession(t *testing.T) {
	s := storage.Open(filepath.Join(t.TempDir(), "project"))
	_, err := s.Init()
	require.NoError(t, err)

	require.NoError(t, s.CreateSession(&storage.Session{SessionID: "20260101-000000-aaaa", Command: []string{"go", "test"}, StartedAt: 10}))
	require.NoError(t, s.CreateSession(&storage.Session{SessionID: "20260102-000000-bbbb", Command: []string{"gdb"}, StartedAt: 20}))

	mode, err := InferMode(s)
	require.NoError(t, err)
	assert.Equal(t, Debug, mode)
}

func TestInferModeEmptyProjectIsAuto(t *testing.T) {
	s := storage.Open(filepath.Join(t.TempDir(), "project"))
	_, err := s.Init()
	require.NoError(t, err)

	mode, err := InferMode(s)
	require.NoError(t, err)
	assert.Equal(t, Auto, mode)
}

func TestFindLatestErrorSession(t *testing.T) {
	s := storage.Open(filepath.Join(t.TempDir(), "project"))
	_, err := s.Init()
	require.NoError(t, err)

	ok := 0
	failing := 1
	require.NoError(t, s.CreateSession(&storage.Session{SessionID: "20260101-000000-aaaa", StartedAt: 10, ExitCode: &ok}))
	require.NoError(t, s.CreateSession(&storage.Session{SessionID: "20260102-000000-bbbb", StartedAt: 20, ExitCode: &failing}))

	found, err := FindLatestErrorSession(s)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, "20260102-000000-bbbb", found.SessionID)
}
