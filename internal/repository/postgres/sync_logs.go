package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/ignite/reportsync/internal/domain"
)

// SyncLogRepo is the append-only ledger of sync attempts.
type SyncLogRepo struct{ db *sql.DB }

// NewSyncLogRepo creates a Postgres-backed sync-log repository.
func NewSyncLogRepo(db *sql.DB) *SyncLogRepo { return &SyncLogRepo{db: db} }

// Start appends a running sync_logs row and returns its id.
func (r *SyncLogRepo) Start(ctx context.Context, source domain.SourceType, run domain.RunType) (uuid.UUID, error) {
	id := uuid.New()
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO sync_logs (id, source_type, run_type, status, started_at)
		VALUES ($1, $2, $3, $4, NOW())
	`, id, source, run, domain.SyncRunning)
	if err != nil {
		return uuid.Nil, fmt.Errorf("start sync log: %w", err)
	}
	return id, nil
}

// Finish finalizes a sync_logs row exactly once. Rows are never mutated
// after completion.
func (r *SyncLogRepo) Finish(ctx context.Context, id uuid.UUID, status domain.SyncStatus, items, records int, errMsg string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE sync_logs SET
			status = $1,
			items_processed = $2,
			records_processed = $3,
			error_message = $4,
			completed_at = NOW()
		WHERE id = $5 AND completed_at IS NULL
	`, status, items, records, errMsg, id)
	if err != nil {
		return fmt.Errorf("finish sync log: %w", err)
	}
	return nil
}

// Recent returns the most recent sync attempts, newest first.
func (r *SyncLogRepo) Recent(ctx context.Context, limit int) ([]domain.SyncLog, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, source_type, run_type, status, items_processed, records_processed,
		       error_message, started_at, completed_at
		FROM sync_logs
		ORDER BY started_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("recent sync logs: %w", err)
	}
	defer rows.Close()

	var out []domain.SyncLog
	for rows.Next() {
		var l domain.SyncLog
		if err := rows.Scan(&l.ID, &l.SourceType, &l.RunType, &l.Status,
			&l.ItemsProcessed, &l.RecordsProcessed, &l.ErrorMessage,
			&l.StartedAt, &l.CompletedAt); err != nil {
			return nil, fmt.Errorf("scan sync log: %w", err)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// LastCompletedAt returns when the most recent successful run finished, or
// nil if none has.
func (r *SyncLogRepo) LastCompletedAt(ctx context.Context) (*time.Time, error) {
	var at *time.Time
	err := r.db.QueryRowContext(ctx, `
		SELECT MAX(completed_at) FROM sync_logs WHERE status = $1
	`, domain.SyncSuccess).Scan(&at)
	if err != nil {
		return nil, fmt.Errorf("last completed sync: %w", err)
	}
	return at, nil
}
