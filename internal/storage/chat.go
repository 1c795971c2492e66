package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/northbound/deptqa/internal/model"
)

// UpsertChatSession inserts a new session or bumps an existing one's
// updated_at, matching the get-or-create semantics of ChatSessionManager.
func (s *Store) UpsertChatSession(ctx context.Context, sess model.ChatSession) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO chat_sessions (id, department_slug, user_id, title, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET updated_at = excluded.updated_at, title = excluded.title
	`, sess.ID, sess.DepartmentSlug, sess.UserID, sess.Title, sess.CreatedAt, sess.UpdatedAt)
	if err != nil {
		return fmt.Errorf("storage: upsert chat session: %w", err)
	}
	return nil
}

// GetChatSession fetches a session by ID.
func (s *Store) GetChatSession(ctx context.Context, id string) (model.ChatSession, error) {
	var sess model.ChatSession
	err := s.db.QueryRowContext(ctx, `
		SELECT id, department_slug, user_id, title, created_at, updated_at
		FROM chat_sessions WHERE id = ?
	`, id).Scan(&sess.ID, &sess.DepartmentSlug, &sess.UserID, &sess.Title, &sess.CreatedAt, &sess.UpdatedAt)
	if err == sql.ErrNoRows {
		return model.ChatSession{}, fmt.Errorf("storage: session %q: %w", id, sql.ErrNoRows)
	}
	if err != nil {
		return model.ChatSession{}, fmt.Errorf("storage: get chat session: %w", err)
	}
	return sess, nil
}

// ListChatSessions returns a user's sessions within a department, most
// recently updated first.
func (s *Store) ListChatSessions(ctx context.Context, departmentSlug, userID string) ([]model.ChatSession, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, department_slug, user_id, title, created_at, updated_at
		FROM chat_sessions WHERE department_slug = ? AND user_id = ?
		ORDER BY updated_at DESC
	`, departmentSlug, userID)
	if err != nil {
		return nil, fmt.Errorf("storage: list chat sessions: %w", err)
	}
	defer rows.Close()

	var out []model.ChatSession
	for rows.Next() {
		var sess model.ChatSession
		if err := rows.Scan(&sess.ID, &sess.DepartmentSlug, &sess.UserID, &sess.Title, &sess.CreatedAt, &sess.UpdatedAt); err != nil {
			return nil, fmt.Errorf("storage: scan chat session: %w", err)
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

// DeleteChatSession removes a session and its messages.
func (s *Store) DeleteChatSession(ctx context.Context, id string) error {
	return s.WithTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM chat_messages WHERE session_id = ?`, id); err != nil {
			return fmt.Errorf("storage: delete chat messages: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM chat_sessions WHERE id = ?`, id); err != nil {
			return fmt.Errorf("storage: delete chat session: %w", err)
		}
		return nil
	})
}

// AppendChatMessage records one turn of a conversation.
func (s *Store) AppendChatMessage(ctx context.Context, msg model.ChatMessage) error {
	citations, err := json.Marshal(msg.Citations)
	if err != nil {
		return fmt.Errorf("storage: marshal citations: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO chat_messages (id, session_id, role, content, citations, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, msg.ID, msg.SessionID, msg.Role, msg.Content, string(citations), msg.CreatedAt)
	if err != nil {
		return fmt.Errorf("storage: append chat message: %w", err)
	}
	return nil
}

// ChatHistory returns a session's messages in chronological order, the
// window the chat orchestrator folds into its next prompt.
func (s *Store) ChatHistory(ctx context.Context, sessionID string, limit int) ([]model.ChatMessage, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, role, content, citations, created_at
		FROM chat_messages WHERE session_id = ? ORDER BY created_at DESC LIMIT ?
	`, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("storage: chat history: %w", err)
	}
	defer rows.Close()

	var out []model.ChatMessage
	for rows.Next() {
		var msg model.ChatMessage
		var citationsJSON string
		if err := rows.Scan(&msg.ID, &msg.SessionID, &msg.Role, &msg.Content, &citationsJSON, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("storage: scan chat message: %w", err)
		}
		if err := json.Unmarshal([]byte(citationsJSON), &msg.Citations); err != nil {
			return nil, fmt.Errorf("storage: unmarshal citations: %w", err)
		}
		out = append(out, msg)
	}
	// rows came back newest-first; reverse for chronological order.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, rows.Err()
}
