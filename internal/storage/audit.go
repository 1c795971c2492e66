package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/northbound/deptqa/internal/model"
)

// RecordAudit appends one terminal row for a mutating operation. It never
// updates or deletes existing rows: the log is append-only by construction.
func RecordAudit(ctx context.Context, tx *sql.Tx, entry model.AuditLog) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO audit_log (id, department_slug, action, outcome, actor_id, detail, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, entry.ID, entry.DepartmentSlug, entry.Action, entry.Outcome, entry.ActorID, entry.Detail, entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("storage: record audit: %w", err)
	}
	return nil
}

// RecordAuditDirect is RecordAudit for callers outside an existing
// transaction (e.g. a failure path that must still leave an audit trail).
func (s *Store) RecordAuditDirect(ctx context.Context, entry model.AuditLog) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_log (id, department_slug, action, outcome, actor_id, detail, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, entry.ID, entry.DepartmentSlug, entry.Action, entry.Outcome, entry.ActorID, entry.Detail, entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("storage: record audit: %w", err)
	}
	return nil
}

// AuditTrail returns a department's audit rows, newest first.
func (s *Store) AuditTrail(ctx context.Context, departmentSlug string, limit int) ([]model.AuditLog, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, department_slug, action, outcome, actor_id, detail, created_at
		FROM audit_log WHERE department_slug = ? ORDER BY created_at DESC LIMIT ?
	`, departmentSlug, limit)
	if err != nil {
		return nil, fmt.Errorf("storage: audit trail: %w", err)
	}
	defer rows.Close()

	var out []model.AuditLog
	for rows.Next() {
		var a model.AuditLog
		if err := rows.Scan(&a.ID, &a.DepartmentSlug, &a.Action, &a.Outcome, &a.ActorID, &a.Detail, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("storage: scan audit: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
