package storage

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitIsIdempotent(t *testing.T) {
	root := filepath.Join(t.TempDir(), "project")
	s := Open(root)

	created, err := s.Init()
	require.NoError(t, err)
	assert.True(t, created)

	created, err = s.Init()
	require.NoError(t, err)
	assert.False(t, created)
}

func TestSessionLifecycle(t *testing.T) {
	s := Open(filepath.Join(t.TempDir(), "project"))
	_, err := s.Init()
	require.NoError(t, err)

	id := NewSessionID(time.Now())
	sess := &Session{SessionID: id, Command: []string{"echo", "hi"}, Cwd: "/tmp", StartedAt: 100, Source: "pty"}
	require.NoError(t, s.CreateSession(sess))

	got, err := s.ReadMeta(id)
	require.NoError(t, err)
	assert.Equal(t, sess.Command, got.Command)
	assert.Nil(t, got.EndedAt)

	require.NoError(t, s.FinalizeSession(id, 105, 0))
	got, err = s.ReadMeta(id)
	require.NoError(t, err)
	require.NotNil(t, got.EndedAt)
	assert.GreaterOrEqual(t, *got.EndedAt, got.StartedAt)
	require.NotNil(t, got.ExitCode)
	assert.Equal(t, 0, *got.ExitCode)
}

func TestListSessionsSortedDescending(t *testing.T) {
	s := Open(filepath.Join(t.TempDir(), "project"))
	_, err := s.Init()
	require.NoError(t, err)

	older := &Session{SessionID: "20260101-000000-aaaa", StartedAt: 10}
	newer := &Session{SessionID: "20260102-000000-bbbb", StartedAt: 20}
	require.NoError(t, s.CreateSession(older))
	require.NoError(t, s.CreateSession(newer))

	sessions, err := s.ListSessions()
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	assert.Equal(t, newer.SessionID, sessions[0].SessionID)
	assert.Equal(t, older.SessionID, sessions[1].SessionID)
}

func TestEventsAppendOnly(t *testing.T) {
	s := Open(filepath.Join(t.TempDir(), "project"))
	_, err := s.Init()
	require.NoError(t, err)

	id := "20260101-000000-cccc"
	require.NoError(t, s.CreateSession(&Session{SessionID: id, StartedAt: 0}))

	require.NoError(t, s.WriteEvent(Event{EventID: NewEventID(id, 0), Ts: 0, SessionID: id, Stream: "system", Role: "session_start"}))
	require.NoError(t, s.WriteEvent(Event{EventID: NewEventID(id, 1), Ts: 1, SessionID: id, Stream: "stdout", Role: "terminal", Content: "hello"}))

	events, err := s.ReadEvents(id)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "hello", events[1].Content)
}

func TestDeleteUnknownSessionIsUserError(t *testing.T) {
	s := Open(filepath.Join(t.TempDir(), "project"))
	_, err := s.Init()
	require.NoError(t, err)

	err = s.DeleteSession("nope")
	require.Error(t, err)
	var ue *UserError
	assert.ErrorAs(t, err, &ue)
}
