package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/ignite/reportsync/internal/domain"
)

// TenantRepo manages email-platform tenant accounts.
type TenantRepo struct{ db *sql.DB }

// NewTenantRepo creates a Postgres-backed tenant repository.
func NewTenantRepo(db *sql.DB) *TenantRepo { return &TenantRepo{db: db} }

const tenantColumns = `id, name, base_url, username, password, list_id, active, last_synced_at, created_at, updated_at`

func scanTenant(row interface{ Scan(...interface{}) error }) (*domain.Tenant, error) {
	t := &domain.Tenant{}
	err := row.Scan(&t.ID, &t.Name, &t.BaseURL, &t.Username, &t.Password,
		&t.ListID, &t.Active, &t.LastSyncedAt, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return t, nil
}

// ListActive returns all active tenants in a stable order.
func (r *TenantRepo) ListActive(ctx context.Context) ([]domain.Tenant, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+tenantColumns+` FROM tenants WHERE active = TRUE ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list tenants: %w", err)
	}
	defer rows.Close()

	var out []domain.Tenant
	for rows.Next() {
		t, err := scanTenant(rows)
		if err != nil {
			return nil, fmt.Errorf("scan tenant: %w", err)
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

// Get returns one tenant by id.
func (r *TenantRepo) Get(ctx context.Context, id uuid.UUID) (*domain.Tenant, error) {
	t, err := scanTenant(r.db.QueryRowContext(ctx,
		`SELECT `+tenantColumns+` FROM tenants WHERE id = $1`, id))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get tenant: %w", err)
	}
	return t, nil
}

// UpdateLastSynced advances the tenant's incremental-sync watermark.
func (r *TenantRepo) UpdateLastSynced(ctx context.Context, id uuid.UUID, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE tenants SET last_synced_at = $1, updated_at = NOW() WHERE id = $2
	`, at.UTC(), id)
	if err != nil {
		return fmt.Errorf("update last synced: %w", err)
	}
	return nil
}
