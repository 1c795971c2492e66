package chat

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/northbound/deptqa/internal/model"
	"github.com/northbound/deptqa/internal/storage"
)

// SessionManager implements get-or-create session lifecycle: a (department,
// user) pair's first message opens a session; every later message in the
// same session ID reuses it, bumping updated_at.
type SessionManager struct {
	store *storage.Store
}

// NewSessionManager builds a SessionManager.
func NewSessionManager(store *storage.Store) *SessionManager {
	return &SessionManager{store: store}
}

// Open loads sessionID if it exists, or creates a new session under that ID
// scoped to departmentSlug and userID. Passing an empty sessionID always
// creates a new session and returns its generated ID.
func (m *SessionManager) Open(ctx context.Context, sessionID, departmentSlug, userID string) (model.ChatSession, error) {
	now := time.Now().UTC()

	if sessionID != "" {
		existing, err := m.store.GetChatSession(ctx, sessionID)
		if err == nil {
			existing.UpdatedAt = now
			if err := m.store.UpsertChatSession(ctx, existing); err != nil {
				return model.ChatSession{}, err
			}
			return existing, nil
		}
	}

	sess := model.ChatSession{
		ID:             uuid.NewString(),
		DepartmentSlug: departmentSlug,
		UserID:         userID,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if sessionID != "" {
		sess.ID = sessionID
	}
	if err := m.store.UpsertChatSession(ctx, sess); err != nil {
		return model.ChatSession{}, err
	}
	return sess, nil
}

// Delete removes a session and its message history.
func (m *SessionManager) Delete(ctx context.Context, sessionID string) error {
	return m.store.DeleteChatSession(ctx, sessionID)
}

// List returns a user's sessions within a department, most recently
// updated first.
func (m *SessionManager) List(ctx context.Context, departmentSlug, userID string) ([]model.ChatSession, error) {
	return m.store.ListChatSessions(ctx, departmentSlug, userID)
}
