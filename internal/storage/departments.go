package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/northbound/deptqa/internal/model"
)

// UpsertDepartment inserts or updates a department's catalog entry.
func (s *Store) UpsertDepartment(ctx context.Context, d model.Department) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO departments (slug, name, description, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(slug) DO UPDATE SET name = excluded.name, description = excluded.description
	`, d.Slug, d.Name, d.Description, d.CreatedAt)
	if err != nil {
		return fmt.Errorf("storage: upsert department: %w", err)
	}
	return nil
}

// GetDepartment fetches a department by slug.
func (s *Store) GetDepartment(ctx context.Context, slug string) (model.Department, error) {
	var d model.Department
	err := s.db.QueryRowContext(ctx, `
		SELECT slug, name, description, created_at FROM departments WHERE slug = ?
	`, slug).Scan(&d.Slug, &d.Name, &d.Description, &d.CreatedAt)
	if err == sql.ErrNoRows {
		return model.Department{}, fmt.Errorf("storage: department %q: %w", slug, sql.ErrNoRows)
	}
	if err != nil {
		return model.Department{}, fmt.Errorf("storage: get department: %w", err)
	}
	return d, nil
}

// ListDepartments returns the full department catalog, ordered by slug.
func (s *Store) ListDepartments(ctx context.Context) ([]model.Department, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT slug, name, description, created_at FROM departments ORDER BY slug
	`)
	if err != nil {
		return nil, fmt.Errorf("storage: list departments: %w", err)
	}
	defer rows.Close()

	var out []model.Department
	for rows.Next() {
		var d model.Department
		if err := rows.Scan(&d.Slug, &d.Name, &d.Description, &d.CreatedAt); err != nil {
			return nil, fmt.Errorf("storage: scan department: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}
