package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ternarybob/memorybank/internal/storage"
)

func TestClassifyContentBasedTest(t *testing.T) {
	chunks := []storage.Chunk{{Text: "Running pytest test_foo PASSED test_bar FAILED"}}
	assert.Equal(t, "test", Classify([]string{"claude"}, chunks))
}

func TestClassifyContentBasedDocs(t *testing.T) {
	chunks := []storage.Chunk{{Text: "Update the README documentation"}}
	assert.Equal(t, "docs", Classify([]string{"claude"}, chunks))
}

func TestClassifyTwoWordTable(t *testing.T) {
	assert.Equal(t, "build", Classify([]string{"cargo", "build"}, nil))
}

func TestClassifyDefaultsToBuild(t *testing.T) {
	assert.Equal(t, "build", Classify([]string{"unknown-tool"}, nil))
}

func TestHasErrorByExitCode(t *testing.T) {
	code := 1
	assert.True(t, HasError(&code, nil))
}

func TestHasErrorByChunkText(t *testing.T) {
	chunks := []storage.Chunk{{Text: "panic: runtime error"}}
	assert.True(t, HasError(nil, chunks))
}

func TestRelatedSessionsWithinWindow(t *testing.T) {
	endedAt := 100.0
	target := &storage.Session{SessionID: "a", StartedAt: 0, EndedAt: &endedAt}
	near := &storage.Session{SessionID: "b", StartedAt: 200}
	far := &storage.Session{SessionID: "c", StartedAt: 10000}
	related := RelatedSessions(target, []*storage.Session{near, far})
	assert.Equal(t, []string{"b"}, related)
}
