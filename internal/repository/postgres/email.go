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

// EmailRepo persists data synced from the email platform: campaign/segment
// metadata (idempotent upserts) and the receipt-log fact table
// (dedup-checked inserts, same two-layer scheme as RecordRepo).
type EmailRepo struct{ db *sql.DB }

// NewEmailRepo creates a Postgres-backed email repository.
func NewEmailRepo(db *sql.DB) *EmailRepo { return &EmailRepo{db: db} }

// UpsertMessages upserts message metadata rows keyed by (tenant, external id).
func (r *EmailRepo) UpsertMessages(ctx context.Context, tenantID uuid.UUID, messages []domain.EmailMessage) error {
	for i := range messages {
		m := &messages[i]
		_, err := r.db.ExecContext(ctx, `
			INSERT INTO email_messages (id, tenant_id, external_id, name, subject, status, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW())
			ON CONFLICT (tenant_id, external_id) DO UPDATE SET
				name = EXCLUDED.name,
				subject = EXCLUDED.subject,
				status = EXCLUDED.status,
				updated_at = NOW()
		`, uuid.New(), tenantID, m.ExternalID, m.Name, m.Subject, m.Status)
		if err != nil {
			return fmt.Errorf("upsert email message %s: %w", m.ExternalID, err)
		}
	}
	return nil
}

// UpsertCampaigns upserts campaign metadata rows keyed by (tenant, external id).
func (r *EmailRepo) UpsertCampaigns(ctx context.Context, tenantID uuid.UUID, campaigns []domain.EmailCampaign) error {
	for i := range campaigns {
		c := &campaigns[i]
		_, err := r.db.ExecContext(ctx, `
			INSERT INTO email_campaigns (id, tenant_id, external_id, name, subject, status, sent_count, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, NOW(), NOW())
			ON CONFLICT (tenant_id, external_id) DO UPDATE SET
				name = EXCLUDED.name,
				subject = EXCLUDED.subject,
				status = EXCLUDED.status,
				sent_count = EXCLUDED.sent_count,
				updated_at = NOW()
		`, uuid.New(), tenantID, c.ExternalID, c.Name, c.Subject, c.Status, c.SentCount)
		if err != nil {
			return fmt.Errorf("upsert email campaign %s: %w", c.ExternalID, err)
		}
	}
	return nil
}

// UpsertSegments upserts segment metadata rows keyed by (tenant, external id).
func (r *EmailRepo) UpsertSegments(ctx context.Context, tenantID uuid.UUID, segments []domain.EmailSegment) error {
	for i := range segments {
		s := &segments[i]
		_, err := r.db.ExecContext(ctx, `
			INSERT INTO email_segments (id, tenant_id, external_id, name, contact_count, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, NOW(), NOW())
			ON CONFLICT (tenant_id, external_id) DO UPDATE SET
				name = EXCLUDED.name,
				contact_count = EXCLUDED.contact_count,
				updated_at = NOW()
		`, uuid.New(), tenantID, s.ExternalID, s.Name, s.ContactCount)
		if err != nil {
			return fmt.Errorf("upsert email segment %s: %w", s.ExternalID, err)
		}
	}
	return nil
}

// reportKey builds the composite uniqueness key for one receipt-log row.
// SentAt must already be normalized to UTC by the caller.
func reportKey(messageID, recipient string, sentAt time.Time) string {
	return messageID + "|" + recipient + "|" + sentAt.UTC().Format(time.RFC3339Nano)
}

// InsertNewReports inserts the receipt-log rows not already present for the
// tenant and returns (inserted, skipped). Safe to call repeatedly with
// overlapping fetch windows. The existing-key lookup is bounded to the
// distinct message ids in the batch.
func (r *EmailRepo) InsertNewReports(ctx context.Context, tenantID uuid.UUID, candidates []domain.EmailReport) (int, int, error) {
	if len(candidates) == 0 {
		return 0, 0, nil
	}

	idSet := make(map[string]struct{}, len(candidates))
	for i := range candidates {
		idSet[candidates[i].MessageID] = struct{}{}
	}
	ids := make([]string, 0, len(idSet))
	for id := range idSet {
		ids = append(ids, id)
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT message_id, recipient, sent_at FROM email_reports
		WHERE tenant_id = $1 AND message_id = ANY($2)
	`, tenantID, pq.Array(ids))
	if err != nil {
		return 0, 0, fmt.Errorf("lookup existing reports: %w", err)
	}
	existing := make(map[string]struct{})
	for rows.Next() {
		var (
			messageID, recipient string
			sentAt               time.Time
		)
		if err := rows.Scan(&messageID, &recipient, &sentAt); err != nil {
			rows.Close()
			return 0, 0, fmt.Errorf("scan existing report: %w", err)
		}
		existing[reportKey(messageID, recipient, sentAt)] = struct{}{}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, 0, fmt.Errorf("iterate existing reports: %w", err)
	}

	var fresh []domain.EmailReport
	for i := range candidates {
		key := reportKey(candidates[i].MessageID, candidates[i].Recipient, candidates[i].SentAt)
		if _, ok := existing[key]; ok {
			continue
		}
		existing[key] = struct{}{}
		fresh = append(fresh, candidates[i])
	}
	skipped := len(candidates) - len(fresh)
	if len(fresh) == 0 {
		return 0, skipped, nil
	}

	var (
		sb   strings.Builder
		args []interface{}
	)
	sb.WriteString(`INSERT INTO email_reports
		(id, tenant_id, message_id, recipient, sent_at, campaign_name, subject, status, opens, clicks, created_at) VALUES `)
	for i := range fresh {
		if i > 0 {
			sb.WriteString(", ")
		}
		base := i * 10
		fmt.Fprintf(&sb, "($%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, NOW())",
			base+1, base+2, base+3, base+4, base+5, base+6, base+7, base+8, base+9, base+10)
		args = append(args,
			uuid.New(), tenantID, fresh[i].MessageID, fresh[i].Recipient,
			fresh[i].SentAt.UTC(), fresh[i].CampaignName, fresh[i].Subject,
			fresh[i].Status, fresh[i].Opens, fresh[i].Clicks)
	}
	sb.WriteString(" ON CONFLICT (tenant_id, message_id, recipient, sent_at) DO NOTHING")

	res, err := r.db.ExecContext(ctx, sb.String(), args...)
	if err != nil {
		return 0, skipped, fmt.Errorf("insert reports: %w", err)
	}
	n, _ := res.RowsAffected()
	// Rows dropped by the constraint count as skipped, not created.
	skipped += len(fresh) - int(n)
	return int(n), skipped, nil
}
