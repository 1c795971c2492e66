// Package storage is the SQLite-backed metadata store for departments,
// documents, chunks, chat sessions, and the audit trail. It is a thin,
// hand-written SQL layer — no ORM — opened once per process in WAL mode so
// readers don't block the ingestion writer.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // pure Go driver, no CGO
)

const schema = `
CREATE TABLE IF NOT EXISTS departments (
	slug        TEXT PRIMARY KEY,
	name        TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	created_at  TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS documents (
	id              TEXT PRIMARY KEY,
	department_slug TEXT NOT NULL,
	filename        TEXT NOT NULL,
	content_type    TEXT NOT NULL,
	size_bytes      INTEGER NOT NULL,
	content_hash    TEXT NOT NULL,
	blob_path       TEXT NOT NULL,
	status          TEXT NOT NULL,
	failure_reason  TEXT NOT NULL DEFAULT '',
	chunk_count     INTEGER NOT NULL DEFAULT 0,
	uploaded_by     TEXT NOT NULL DEFAULT '',
	created_at      TIMESTAMP NOT NULL,
	indexed_at      TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_documents_department ON documents(department_slug);

CREATE TABLE IF NOT EXISTS chunks (
	id              TEXT PRIMARY KEY,
	document_id     TEXT NOT NULL,
	department_slug TEXT NOT NULL,
	seq_no          INTEGER NOT NULL,
	page            INTEGER,
	text            TEXT NOT NULL,
	token_estimate  INTEGER NOT NULL,
	vector_id       INTEGER NOT NULL,
	created_at      TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_chunks_document ON chunks(document_id);
CREATE INDEX IF NOT EXISTS idx_chunks_department ON chunks(department_slug);

CREATE TABLE IF NOT EXISTS chat_sessions (
	id              TEXT PRIMARY KEY,
	department_slug TEXT NOT NULL,
	user_id         TEXT NOT NULL,
	title           TEXT NOT NULL DEFAULT '',
	created_at      TIMESTAMP NOT NULL,
	updated_at      TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_chat_sessions_user ON chat_sessions(user_id, department_slug);

CREATE TABLE IF NOT EXISTS chat_messages (
	id         TEXT PRIMARY KEY,
	session_id TEXT NOT NULL,
	role       TEXT NOT NULL,
	content    TEXT NOT NULL,
	citations  TEXT NOT NULL DEFAULT '[]',
	created_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_chat_messages_session ON chat_messages(session_id, created_at);

CREATE TABLE IF NOT EXISTS audit_log (
	id              TEXT PRIMARY KEY,
	department_slug TEXT NOT NULL,
	action          TEXT NOT NULL,
	outcome         TEXT NOT NULL,
	actor_id        TEXT NOT NULL DEFAULT '',
	detail          TEXT NOT NULL DEFAULT '',
	created_at      TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_audit_log_department ON audit_log(department_slug, created_at);
`

// Store wraps a single *sql.DB and exposes the department/document/chunk/
// chat/audit operations the rest of the service needs.
type Store struct {
	db *sql.DB
}

// validateIntegrity runs PRAGMA integrity_check against an existing database
// file before opening it for real use, so a crash mid-write surfaces as a
// clear error instead of silent corruption later.
func validateIntegrity(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}

	db, err := sql.Open("sqlite", path+"?mode=ro")
	if err != nil {
		return fmt.Errorf("open for validation: %w", err)
	}
	defer db.Close()

	var result string
	if err := db.QueryRow("PRAGMA integrity_check").Scan(&result); err != nil {
		return fmt.Errorf("integrity check: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("database corrupted: %s", result)
	}
	return nil
}

// Open opens (creating if necessary) the SQLite database at path in WAL
// mode and applies the schema. A corrupted database file is logged and
// replaced rather than left to fail every subsequent query.
func Open(path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("storage: create directory: %w", err)
		}
		if err := validateIntegrity(path); err != nil {
			logger.Warn("storage: database corrupted, recreating", slog.String("path", path), slog.String("error", err.Error()))
			_ = os.Remove(path)
			_ = os.Remove(path + "-wal")
			_ = os.Remove(path + "-shm")
		}
	}

	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("storage: open: %w", err)
	}

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("storage: %s: %w", pragma, err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage: apply schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// WithTx runs fn inside a transaction, committing on success and rolling
// back if fn returns an error or panics.
func (s *Store) WithTx(ctx context.Context, fn func(*sql.Tx) error) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("storage: begin tx: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
			return
		}
		err = tx.Commit()
	}()
	return fn(tx)
}
