package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/northbound/deptqa/internal/model"
)

// InsertDocument records a newly uploaded document, pending ingestion.
func (s *Store) InsertDocument(ctx context.Context, d model.Document) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO documents (id, department_slug, filename, content_type, size_bytes,
			content_hash, blob_path, status, failure_reason, chunk_count, uploaded_by, created_at, indexed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, d.ID, d.DepartmentSlug, d.Filename, d.ContentType, d.SizeBytes, d.ContentHash,
		d.BlobPath, d.Status, d.FailureReason, d.ChunkCount, d.UploadedBy, d.CreatedAt, nullTime(d.IndexedAt))
	if err != nil {
		return fmt.Errorf("storage: insert document: %w", err)
	}
	return nil
}

// UpdateDocumentStatus transitions a document's ingestion status, recording
// a chunk count on success and a failure reason on failure.
func (s *Store) UpdateDocumentStatus(ctx context.Context, id string, status model.DocumentStatus, chunkCount int, failureReason string, indexedAt sql.NullTime) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE documents SET status = ?, chunk_count = ?, failure_reason = ?, indexed_at = ?
		WHERE id = ?
	`, status, chunkCount, failureReason, indexedAt, id)
	if err != nil {
		return fmt.Errorf("storage: update document status: %w", err)
	}
	return nil
}

// GetDocument fetches a single document by ID.
func (s *Store) GetDocument(ctx context.Context, id string) (model.Document, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, department_slug, filename, content_type, size_bytes, content_hash,
			blob_path, status, failure_reason, chunk_count, uploaded_by, created_at, indexed_at
		FROM documents WHERE id = ?
	`, id)
	return scanDocument(row)
}

// ListDocuments returns documents scoped to a department, newest first.
func (s *Store) ListDocuments(ctx context.Context, departmentSlug string) ([]model.Document, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, department_slug, filename, content_type, size_bytes, content_hash,
			blob_path, status, failure_reason, chunk_count, uploaded_by, created_at, indexed_at
		FROM documents WHERE department_slug = ? ORDER BY created_at DESC
	`, departmentSlug)
	if err != nil {
		return nil, fmt.Errorf("storage: list documents: %w", err)
	}
	defer rows.Close()

	var out []model.Document
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// DeleteDocument removes a document row. Callers are responsible for
// deleting its chunks and blob first.
func (s *Store) DeleteDocument(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("storage: delete document: %w", err)
	}
	return nil
}

// AllDocuments returns every document across all departments, used by
// reindex-all.
func (s *Store) AllDocuments(ctx context.Context) ([]model.Document, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, department_slug, filename, content_type, size_bytes, content_hash,
			blob_path, status, failure_reason, chunk_count, uploaded_by, created_at, indexed_at
		FROM documents ORDER BY created_at
	`)
	if err != nil {
		return nil, fmt.Errorf("storage: all documents: %w", err)
	}
	defer rows.Close()

	var out []model.Document
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (model.Document, error) {
	var d model.Document
	var indexedAt sql.NullTime
	err := row.Scan(&d.ID, &d.DepartmentSlug, &d.Filename, &d.ContentType, &d.SizeBytes,
		&d.ContentHash, &d.BlobPath, &d.Status, &d.FailureReason, &d.ChunkCount,
		&d.UploadedBy, &d.CreatedAt, &indexedAt)
	if err == sql.ErrNoRows {
		return model.Document{}, fmt.Errorf("storage: document not found: %w", sql.ErrNoRows)
	}
	if err != nil {
		return model.Document{}, fmt.Errorf("storage: scan document: %w", err)
	}
	if indexedAt.Valid {
		d.IndexedAt = indexedAt.Time
	}
	return d, nil
}

func nullTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t, Valid: true}
}
