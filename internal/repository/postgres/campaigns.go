package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/ignite/reportsync/internal/domain"
)

// CampaignRepo manages voicemail campaigns.
type CampaignRepo struct{ db *sql.DB }

// NewCampaignRepo creates a Postgres-backed campaign repository.
func NewCampaignRepo(db *sql.DB) *CampaignRepo { return &CampaignRepo{db: db} }

// Upsert creates or updates a campaign by external id and returns the row.
// An existing non-null client link is preserved: the COALESCE keeps the
// current client_id and only fills it when the row has none.
func (r *CampaignRepo) Upsert(ctx context.Context, externalID, name string, clientID *uuid.UUID) (*domain.Campaign, error) {
	c := &domain.Campaign{}
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO campaigns (id, external_id, name, client_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, NOW(), NOW())
		ON CONFLICT (external_id) DO UPDATE SET
			name       = EXCLUDED.name,
			client_id  = COALESCE(campaigns.client_id, EXCLUDED.client_id),
			updated_at = NOW()
		RETURNING id, external_id, name, client_id, record_count, created_at, updated_at
	`, uuid.New(), externalID, name, clientID).Scan(
		&c.ID, &c.ExternalID, &c.Name, &c.ClientID, &c.RecordCount, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("upsert campaign %s: %w", externalID, err)
	}
	return c, nil
}

// Get returns a campaign by id.
func (r *CampaignRepo) Get(ctx context.Context, id uuid.UUID) (*domain.Campaign, error) {
	c := &domain.Campaign{}
	err := r.db.QueryRowContext(ctx, `
		SELECT id, external_id, name, client_id, record_count, created_at, updated_at
		FROM campaigns WHERE id = $1
	`, id).Scan(&c.ID, &c.ExternalID, &c.Name, &c.ClientID, &c.RecordCount, &c.CreatedAt, &c.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get campaign: %w", err)
	}
	return c, nil
}

// Link sets the client link explicitly (manual operation, overrides any
// existing link).
func (r *CampaignRepo) Link(ctx context.Context, campaignID, clientID uuid.UUID) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE campaigns SET client_id = $1, updated_at = NOW() WHERE id = $2
	`, clientID, campaignID)
	if err != nil {
		return fmt.Errorf("link campaign: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// Unlink clears the client link (manual operation).
func (r *CampaignRepo) Unlink(ctx context.Context, campaignID uuid.UUID) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE campaigns SET client_id = NULL, updated_at = NOW() WHERE id = $1
	`, campaignID)
	if err != nil {
		return fmt.Errorf("unlink campaign: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// RefreshRecordCount recomputes the cached record_count from the fact table.
func (r *CampaignRepo) RefreshRecordCount(ctx context.Context, campaignID uuid.UUID) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE campaigns SET
			record_count = (SELECT COUNT(*) FROM campaign_records WHERE campaign_id = $1),
			updated_at = NOW()
		WHERE id = $1
	`, campaignID)
	if err != nil {
		return fmt.Errorf("refresh record count: %w", err)
	}
	return nil
}
