package index

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ternarybob/memorybank/internal/storage"
)

func newTestIndex(t *testing.T) (*Index, *storage.Storage) {
	s := storage.Open(filepath.Join(t.TempDir(), "project"))
	_, err := s.Init()
	require.NoError(t, err)
	return New(s, 4), s
}

func TestAddAndSearchReturnsHighestCosineFirst(t *testing.T) {
	ix, _ := newTestIndex(t)

	require.NoError(t, ix.Add([]float32{1, 0, 0, 0}, MetadataRow{ChunkID: "a", TsEnd: 100}))
	require.NoError(t, ix.Add([]float32{0, 1, 0, 0}, MetadataRow{ChunkID: "b", TsEnd: 100}))

	results, err := ix.Search([]float32{1, 0, 0, 0}, 2, 0, true, "", 200)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "a", results[0].ChunkID)
	assert.InDelta(t, 1.0, results[0].Score, 1e-6)
}

func TestSearchEmptyIndexReturnsEmpty(t *testing.T) {
	ix, _ := newTestIndex(t)
	results, err := ix.Search([]float32{1, 0, 0, 0}, 5, 0, true, "", 0)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestSearchTopKLargerThanNReturnsAll(t *testing.T) {
	ix, _ := newTestIndex(t)
	require.NoError(t, ix.Add([]float32{1, 0, 0, 0}, MetadataRow{ChunkID: "a"}))
	results, err := ix.Search([]float32{1, 0, 0, 0}, 50, 0, true, "", 0)
	require.NoError(t, err)
	assert.Len(t, results, 1)
}

func TestDecayBoostFavorsFreshEntries(t *testing.T) {
	ix, _ := newTestIndex(t)
	now := 30.0 * 86400
	require.NoError(t, ix.Add([]float32{1, 0, 0, 0}, MetadataRow{ChunkID: "fresh", TsEnd: now}))
	require.NoError(t, ix.Add([]float32{1, 0, 0, 0}, MetadataRow{ChunkID: "old", TsEnd: 0}))

	noDecay, err := ix.Search([]float32{1, 0, 0, 0}, 2, 14, true, "", now)
	require.NoError(t, err)
	assert.InDelta(t, noDecay[0].Score, noDecay[1].Score, 1e-5)

	withDecay, err := ix.Search([]float32{1, 0, 0, 0}, 2, 14, false, "", now)
	require.NoError(t, err)
	var freshScore, oldScore float64
	for _, r := range withDecay {
		if r.ChunkID == "fresh" {
			freshScore = r.Score
		} else {
			oldScore = r.Score
		}
	}
	assert.Greater(t, freshScore, oldScore)
	assert.LessOrEqual(t, freshScore, 1.1)
}

func TestSearchWithNoTypeFilterReturnsAllArtifactTypes(t *testing.T) {
	ix, _ := newTestIndex(t)
	require.NoError(t, ix.Add([]float32{1, 0, 0, 0}, MetadataRow{ChunkID: "sess"}))
	require.NoError(t, ix.Add([]float32{1, 0, 0, 0}, MetadataRow{ChunkID: "plan", ArtifactType: "plan"}))
	require.NoError(t, ix.Add([]float32{1, 0, 0, 0}, MetadataRow{ChunkID: "todo", ArtifactType: "todo"}))
	require.NoError(t, ix.Add([]float32{1, 0, 0, 0}, MetadataRow{ChunkID: "task", ArtifactType: "task"}))

	results, err := ix.Search([]float32{1, 0, 0, 0}, 10, 0, true, "", 0)
	require.NoError(t, err)
	require.Len(t, results, 4)

	var chunkIDs []string
	for _, r := range results {
		chunkIDs = append(chunkIDs, r.ChunkID)
	}
	assert.ElementsMatch(t, []string{"sess", "plan", "todo", "task"}, chunkIDs)
}

func TestSearchWithSessionTypeFiltersOutArtifacts(t *testing.T) {
	ix, _ := newTestIndex(t)
	require.NoError(t, ix.Add([]float32{1, 0, 0, 0}, MetadataRow{ChunkID: "sess"}))
	require.NoError(t, ix.Add([]float32{1, 0, 0, 0}, MetadataRow{ChunkID: "plan", ArtifactType: "plan"}))

	results, err := ix.Search([]float32{1, 0, 0, 0}, 10, 0, true, "session", 0)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "sess", results[0].ChunkID)
}

func TestClearRemovesBothFiles(t *testing.T) {
	ix, s := newTestIndex(t)
	require.NoError(t, ix.Add([]float32{1, 0, 0, 0}, MetadataRow{ChunkID: "a"}))
	require.NoError(t, ix.Clear())
	count, err := ix.vectorCount()
	require.NoError(t, err)
	assert.Equal(t, 0, count)
	_ = s
}
