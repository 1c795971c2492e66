package chat_test

import (
	"context"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/northbound/deptqa/internal/chat"
	"github.com/northbound/deptqa/internal/storage"
)

func newTestSessionManager(t *testing.T) *chat.SessionManager {
	t.Helper()
	dir := t.TempDir()
	store, err := storage.Open(filepath.Join(dir, "deptqa.db"), slog.Default())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return chat.NewSessionManager(store)
}

func TestOpenCreatesNewSessionWhenIDUnknown(t *testing.T) {
	mgr := newTestSessionManager(t)
	sess, err := mgr.Open(context.Background(), "", "hr", "alice")
	require.NoError(t, err)
	require.NotEmpty(t, sess.ID)
	require.Equal(t, "hr", sess.DepartmentSlug)
}

func TestOpenReusesExistingSession(t *testing.T) {
	mgr := newTestSessionManager(t)
	first, err := mgr.Open(context.Background(), "", "hr", "alice")
	require.NoError(t, err)

	second, err := mgr.Open(context.Background(), first.ID, "hr", "alice")
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID)
}

func TestListReturnsOnlyMatchingDepartmentAndUser(t *testing.T) {
	mgr := newTestSessionManager(t)
	_, err := mgr.Open(context.Background(), "", "hr", "alice")
	require.NoError(t, err)
	_, err = mgr.Open(context.Background(), "", "legal", "alice")
	require.NoError(t, err)

	sessions, err := mgr.List(context.Background(), "hr", "alice")
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	require.Equal(t, "hr", sessions[0].DepartmentSlug)
}

func TestDeleteRemovesSession(t *testing.T) {
	mgr := newTestSessionManager(t)
	sess, err := mgr.Open(context.Background(), "", "hr", "alice")
	require.NoError(t, err)

	require.NoError(t, mgr.Delete(context.Background(), sess.ID))

	sessions, err := mgr.List(context.Background(), "hr", "alice")
	require.NoError(t, err)
	require.Empty(t, sessions)
}
