package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/northbound/deptqa/internal/model"
)

// InsertChunks bulk-inserts a document's chunks inside the caller's
// transaction.
func InsertChunks(ctx context.Context, tx *sql.Tx, chunks []model.Chunk) error {
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO chunks (id, document_id, department_slug, seq_no, page, text, token_estimate, vector_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("storage: prepare insert chunks: %w", err)
	}
	defer stmt.Close()

	for _, c := range chunks {
		if _, err := stmt.ExecContext(ctx, c.ID, c.DocumentID, c.DepartmentSlug, c.SeqNo,
			pageToNullInt64(c.Page), c.Text, c.TokenEstimate, c.VectorID, c.CreatedAt); err != nil {
			return fmt.Errorf("storage: insert chunk %s: %w", c.ID, err)
		}
	}
	return nil
}

// pageToNullInt64 converts a chunk's optional 1-based page number to the
// nullable integer the chunks.page column stores.
func pageToNullInt64(page *int) sql.NullInt64 {
	if page == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*page), Valid: true}
}

// nullInt64ToPage is the inverse of pageToNullInt64, applied when scanning a
// chunk row back out of the database.
func nullInt64ToPage(n sql.NullInt64) *int {
	if !n.Valid {
		return nil
	}
	v := int(n.Int64)
	return &v
}

// ChunksByDocument returns a document's chunks in sequence order.
func (s *Store) ChunksByDocument(ctx context.Context, documentID string) ([]model.Chunk, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, document_id, department_slug, seq_no, page, text, token_estimate, vector_id, created_at
		FROM chunks WHERE document_id = ? ORDER BY seq_no
	`, documentID)
	if err != nil {
		return nil, fmt.Errorf("storage: chunks by document: %w", err)
	}
	defer rows.Close()
	return scanChunks(rows)
}

// ChunksByIDs fetches chunk rows by ID for citation building, preserving no
// particular order.
func (s *Store) ChunksByIDs(ctx context.Context, ids []string) ([]model.Chunk, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	placeholders := make([]any, len(ids))
	query := "SELECT id, document_id, department_slug, seq_no, page, text, token_estimate, vector_id, created_at FROM chunks WHERE id IN ("
	for i, id := range ids {
		if i > 0 {
			query += ","
		}
		query += "?"
		placeholders[i] = id
	}
	query += ")"

	rows, err := s.db.QueryContext(ctx, query, placeholders...)
	if err != nil {
		return nil, fmt.Errorf("storage: chunks by ids: %w", err)
	}
	defer rows.Close()
	return scanChunks(rows)
}

// AllChunksOrdered returns every chunk across every document, ordered by
// id, for a full vector index rebuild.
func (s *Store) AllChunksOrdered(ctx context.Context) ([]model.Chunk, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, document_id, department_slug, seq_no, page, text, token_estimate, vector_id, created_at
		FROM chunks ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("storage: all chunks ordered: %w", err)
	}
	defer rows.Close()
	return scanChunks(rows)
}

// DeleteChunksByDocument removes all of a document's chunks, returning
// their IDs so the caller can also remove them from the vector index.
func DeleteChunksByDocument(ctx context.Context, tx *sql.Tx, documentID string) ([]string, error) {
	rows, err := tx.QueryContext(ctx, `SELECT id FROM chunks WHERE document_id = ?`, documentID)
	if err != nil {
		return nil, fmt.Errorf("storage: select chunk ids: %w", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, fmt.Errorf("storage: scan chunk id: %w", err)
		}
		ids = append(ids, id)
	}
	rows.Close()

	if _, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE document_id = ?`, documentID); err != nil {
		return nil, fmt.Errorf("storage: delete chunks: %w", err)
	}
	return ids, nil
}

func scanChunks(rows *sql.Rows) ([]model.Chunk, error) {
	var out []model.Chunk
	for rows.Next() {
		var c model.Chunk
		var page sql.NullInt64
		if err := rows.Scan(&c.ID, &c.DocumentID, &c.DepartmentSlug, &c.SeqNo, &page,
			&c.Text, &c.TokenEstimate, &c.VectorID, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("storage: scan chunk: %w", err)
		}
		c.Page = nullInt64ToPage(page)
		out = append(out, c)
	}
	return out, rows.Err()
}
