package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/ignite/reportsync/internal/domain"
)

// ClientRepo provides read access to billing clients.
// The sync engine only ever links campaigns to existing clients; it never
// creates clients as a side effect of a failed match.
type ClientRepo struct{ db *sql.DB }

// NewClientRepo creates a Postgres-backed client repository.
func NewClientRepo(db *sql.DB) *ClientRepo { return &ClientRepo{db: db} }

// ListBySourceType returns all clients eligible for auto-linking against the
// given external source.
func (r *ClientRepo) ListBySourceType(ctx context.Context, st domain.SourceType) ([]domain.Client, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, source_type, created_at, updated_at
		FROM clients
		WHERE source_type = $1
		ORDER BY name
	`, st)
	if err != nil {
		return nil, fmt.Errorf("list clients: %w", err)
	}
	defer rows.Close()

	var out []domain.Client
	for rows.Next() {
		var c domain.Client
		if err := rows.Scan(&c.ID, &c.Name, &c.SourceType, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan client: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Get returns a single client by id.
func (r *ClientRepo) Get(ctx context.Context, id uuid.UUID) (*domain.Client, error) {
	c := &domain.Client{}
	err := r.db.QueryRowContext(ctx, `
		SELECT id, name, source_type, created_at, updated_at
		FROM clients WHERE id = $1
	`, id).Scan(&c.ID, &c.Name, &c.SourceType, &c.CreatedAt, &c.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get client: %w", err)
	}
	return c, nil
}
