package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/ignite/reportsync/internal/domain"
)

// RecordRepo is the dedup/upsert layer for campaign delivery records.
//
// Dedup happens twice: an application-level pre-filter against existing
// composite keys (cheap, avoids pointless insert traffic on re-imports) and
// the storage-level unique constraint with ON CONFLICT DO NOTHING (the
// correctness guarantee). InsertNewRecords is therefore safe to call
// repeatedly with overlapping candidate sets.
type RecordRepo struct{ db *sql.DB }

// NewRecordRepo creates a Postgres-backed record repository.
func NewRecordRepo(db *sql.DB) *RecordRepo { return &RecordRepo{db: db} }

// recordKey builds the composite uniqueness key for one delivery record.
// A nil send time is a distinct "null" bucket, matching the NULLS NOT
// DISTINCT constraint on the table.
func recordKey(phone string, sentAt *time.Time) string {
	if sentAt == nil {
		return phone + "|null"
	}
	return phone + "|" + sentAt.UTC().Format(time.RFC3339Nano)
}

// InsertNewRecords inserts the candidates that are not already present for
// the campaign and returns the number inserted. The existing-key lookup is
// bounded to the distinct phone numbers in the batch, not a full table scan.
func (r *RecordRepo) InsertNewRecords(ctx context.Context, campaignID uuid.UUID, candidates []domain.CampaignRecord) (int, error) {
	if len(candidates) == 0 {
		return 0, nil
	}

	phoneSet := make(map[string]struct{}, len(candidates))
	for i := range candidates {
		phoneSet[candidates[i].Phone] = struct{}{}
	}
	phones := make([]string, 0, len(phoneSet))
	for p := range phoneSet {
		phones = append(phones, p)
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT phone, sent_at FROM campaign_records
		WHERE campaign_id = $1 AND phone = ANY($2)
	`, campaignID, pq.Array(phones))
	if err != nil {
		return 0, fmt.Errorf("lookup existing records: %w", err)
	}
	existing := make(map[string]struct{})
	for rows.Next() {
		var phone string
		var sentAt *time.Time
		if err := rows.Scan(&phone, &sentAt); err != nil {
			rows.Close()
			return 0, fmt.Errorf("scan existing record: %w", err)
		}
		existing[recordKey(phone, sentAt)] = struct{}{}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("iterate existing records: %w", err)
	}

	// Filter candidates, also suppressing duplicates inside the batch itself.
	var fresh []domain.CampaignRecord
	for i := range candidates {
		key := recordKey(candidates[i].Phone, candidates[i].SentAt)
		if _, ok := existing[key]; ok {
			continue
		}
		existing[key] = struct{}{}
		fresh = append(fresh, candidates[i])
	}
	if len(fresh) == 0 {
		return 0, nil
	}

	var (
		sb   strings.Builder
		args []interface{}
	)
	sb.WriteString(`INSERT INTO campaign_records
		(id, campaign_id, phone, sent_at, status, duration_secs, carrier, created_at) VALUES `)
	for i := range fresh {
		if i > 0 {
			sb.WriteString(", ")
		}
		base := i * 7
		fmt.Fprintf(&sb, "($%d, $%d, $%d, $%d, $%d, $%d, $%d, NOW())",
			base+1, base+2, base+3, base+4, base+5, base+6, base+7)
		args = append(args,
			uuid.New(), campaignID, fresh[i].Phone, fresh[i].SentAt,
			fresh[i].Status, fresh[i].DurationSecs, fresh[i].Carrier)
	}
	sb.WriteString(" ON CONFLICT ON CONSTRAINT uq_campaign_records_key DO NOTHING")

	res, err := r.db.ExecContext(ctx, sb.String(), args...)
	if err != nil {
		return 0, fmt.Errorf("insert records: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}
