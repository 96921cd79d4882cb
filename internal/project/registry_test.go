package project

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterIsIdempotentByPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "projects.json")
	r := NewRegistry(path)

	p1, err := r.Register("/tmp/proj-a", "proj-a")
	require.NoError(t, err)
	p2, err := r.Register("/tmp/proj-a", "proj-a")
	require.NoError(t, err)
	assert.Equal(t, p1.ID, p2.ID)
	assert.Len(t, r.List(), 1)
}

func TestSaveAndLoadRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "projects.json")
	r := NewRegistry(path)

	_, err := r.Register("/tmp/proj-a", "proj-a")
	require.NoError(t, err)
	require.NoError(t, r.Save())

	reloaded := NewRegistry(path)
	require.NoError(t, reloaded.Load())
	assert.Len(t, reloaded.List(), 1)

	got, ok := reloaded.GetByPath("/tmp/proj-a")
	require.True(t, ok)
	assert.Equal(t, "proj-a", got.Name)
}

func TestLoadToleratesMissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nonexistent", "projects.json")
	r := NewRegistry(path)
	require.NoError(t, r.Load())
	assert.Empty(t, r.List())
}

func TestRemoveReturnsFalseWhenNotRegistered(t *testing.T) {
	r := NewRegistry(filepath.Join(t.TempDir(), "projects.json"))
	removed, err := r.Remove("/does/not/exist")
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestRemoveDeletesRegisteredProject(t *testing.T) {
	r := NewRegistry(filepath.Join(t.TempDir(), "projects.json"))
	_, err := r.Register("/tmp/proj-a", "proj-a")
	require.NoError(t, err)

	removed, err := r.Remove("/tmp/proj-a")
	require.NoError(t, err)
	assert.True(t, removed)
	assert.Empty(t, r.List())
}
