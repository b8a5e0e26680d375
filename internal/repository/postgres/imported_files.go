package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
)

// ImportedFileRepo tracks report files whose records are fully committed.
type ImportedFileRepo struct{ db *sql.DB }

// NewImportedFileRepo creates a Postgres-backed imported-file repository.
func NewImportedFileRepo(db *sql.DB) *ImportedFileRepo { return &ImportedFileRepo{db: db} }

// ListFilenames returns the set of filenames already imported.
func (r *ImportedFileRepo) ListFilenames(ctx context.Context) (map[string]struct{}, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT filename FROM imported_files`)
	if err != nil {
		return nil, fmt.Errorf("list imported files: %w", err)
	}
	defer rows.Close()

	out := make(map[string]struct{})
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan imported file: %w", err)
		}
		out[name] = struct{}{}
	}
	return out, rows.Err()
}

// MarkImported records a file as fully committed. Idempotent: marking the
// same filename twice is a no-op.
func (r *ImportedFileRepo) MarkImported(ctx context.Context, filename string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO imported_files (id, filename, imported_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (filename) DO NOTHING
	`, uuid.New(), filename)
	if err != nil {
		return fmt.Errorf("mark imported %s: %w", filename, err)
	}
	return nil
}
