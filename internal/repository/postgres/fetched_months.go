package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/ignite/reportsync/internal/domain"
)

// FetchedMonthRepo is the backfill resumability ledger.
type FetchedMonthRepo struct{ db *sql.DB }

// NewFetchedMonthRepo creates a Postgres-backed fetched-month repository.
func NewFetchedMonthRepo(db *sql.DB) *FetchedMonthRepo { return &FetchedMonthRepo{db: db} }

// ListYearMonths returns the set of "YYYY-MM" markers already written for the
// tenant.
func (r *FetchedMonthRepo) ListYearMonths(ctx context.Context, tenantID uuid.UUID) (map[string]struct{}, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT year_month FROM fetched_months WHERE tenant_id = $1`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list fetched months: %w", err)
	}
	defer rows.Close()

	out := make(map[string]struct{})
	for rows.Next() {
		var ym string
		if err := rows.Scan(&ym); err != nil {
			return nil, fmt.Errorf("scan fetched month: %w", err)
		}
		out[ym] = struct{}{}
	}
	return out, rows.Err()
}

// MarkFetched writes the completion marker for one month. Idempotent: a
// duplicate marker write for the same (tenant, month) is silently accepted.
func (r *FetchedMonthRepo) MarkFetched(ctx context.Context, m domain.FetchedMonth) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO fetched_months (id, tenant_id, year_month, from_date, to_date, created_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		ON CONFLICT (tenant_id, year_month) DO NOTHING
	`, uuid.New(), m.TenantID, m.YearMonth, m.FromDate.UTC(), m.ToDate.UTC())
	if err != nil {
		return fmt.Errorf("mark fetched month %s: %w", m.YearMonth, err)
	}
	return nil
}
