package mailstats

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/reportsync/internal/domain"
	"github.com/ignite/reportsync/internal/pkg/logger"
)

// EmailStore persists synced metadata and receipt-log rows.
type EmailStore interface {
	UpsertMessages(ctx context.Context, tenantID uuid.UUID, messages []domain.EmailMessage) error
	UpsertCampaigns(ctx context.Context, tenantID uuid.UUID, campaigns []domain.EmailCampaign) error
	UpsertSegments(ctx context.Context, tenantID uuid.UUID, segments []domain.EmailSegment) error
	InsertNewReports(ctx context.Context, tenantID uuid.UUID, candidates []domain.EmailReport) (int, int, error)
}

// TenantStore reads tenant accounts and records sync progress.
type TenantStore interface {
	UpdateLastSynced(ctx context.Context, tenantID uuid.UUID, t time.Time) error
}

// MonthStore tracks which backfill months are already fully persisted.
type MonthStore interface {
	ListYearMonths(ctx context.Context, tenantID uuid.UUID) (map[string]struct{}, error)
	MarkFetched(ctx context.Context, month domain.FetchedMonth) error
}

// Reporter is the slice of Client the syncer needs; tests substitute fakes.
type Reporter interface {
	ListEmails(ctx context.Context, offset, limit int) ([]Email, int, error)
	ListCampaigns(ctx context.Context, offset, limit int) ([]Campaign, int, error)
	ListSegments(ctx context.Context, offset, limit int) ([]Segment, int, error)
	FetchReportPage(ctx context.Context, page, limit int, from, to *time.Time) ([]ReportRow, int, error)
}

// ClientFactory builds a Reporter for one tenant.
type ClientFactory func(tenant domain.Tenant) Reporter

// Syncer pulls reporting data from tenant email-platform instances.
type Syncer struct {
	newClient ClientFactory
	emails    EmailStore
	tenants   TenantStore
	months    MonthStore

	pageLimit       int
	pageRetries     int
	pageConcurrency int
	retryBaseDelay  time.Duration
	monthPause      time.Duration
}

// NewSyncer creates a tenant reporting syncer. Zero option values get
// conservative defaults.
func NewSyncer(newClient ClientFactory, emails EmailStore, tenants TenantStore, months MonthStore,
	pageLimit, pageRetries, pageConcurrency int, monthPause time.Duration) *Syncer {
	if pageLimit <= 0 {
		pageLimit = 1000
	}
	if pageRetries <= 0 {
		pageRetries = 3
	}
	if pageConcurrency <= 0 {
		pageConcurrency = 10
	}
	return &Syncer{
		newClient:       newClient,
		emails:          emails,
		tenants:         tenants,
		months:          months,
		pageLimit:       pageLimit,
		pageRetries:     pageRetries,
		pageConcurrency: pageConcurrency,
		retryBaseDelay:  time.Second,
		monthPause:      monthPause,
	}
}

// TenantResult summarizes one tenant sync run.
type TenantResult struct {
	TenantID        uuid.UUID `json:"tenant_id"`
	TenantName      string    `json:"tenant_name"`
	Emails          int       `json:"emails"`
	Campaigns       int       `json:"campaigns"`
	Segments        int       `json:"segments"`
	ReportsCreated  int       `json:"reports_created"`
	ReportsSkipped  int       `json:"reports_skipped"`
	DurationSeconds float64   `json:"duration_seconds"`
}

// SyncTenant runs a full metadata-then-reports sync for one tenant.
// Metadata syncs strictly before reports so report rows never reference
// messages the store has not seen. The report window starts at the tenant's
// last successful sync (minus an hour of overlap); dedup absorbs the overlap.
func (s *Syncer) SyncTenant(ctx context.Context, tenant domain.Tenant) (*TenantResult, error) {
	start := time.Now()
	client := s.newClient(tenant)
	result := &TenantResult{TenantID: tenant.ID, TenantName: tenant.Name}

	logger.Info("tenant sync started", "tenant", tenant.Name)

	n, err := s.syncEmails(ctx, client, tenant.ID)
	if err != nil {
		return nil, fmt.Errorf("sync emails for %s: %w", tenant.Name, err)
	}
	result.Emails = n

	n, err = s.syncCampaigns(ctx, client, tenant.ID)
	if err != nil {
		return nil, fmt.Errorf("sync campaigns for %s: %w", tenant.Name, err)
	}
	result.Campaigns = n

	n, err = s.syncSegments(ctx, client, tenant.ID)
	if err != nil {
		return nil, fmt.Errorf("sync segments for %s: %w", tenant.Name, err)
	}
	result.Segments = n

	var from *time.Time
	if tenant.LastSyncedAt != nil {
		t := tenant.LastSyncedAt.Add(-time.Hour)
		from = &t
	}
	created, skipped, err := s.syncReports(ctx, client, tenant.ID, from, nil)
	if err != nil {
		return nil, fmt.Errorf("sync reports for %s: %w", tenant.Name, err)
	}
	result.ReportsCreated = created
	result.ReportsSkipped = skipped

	if err := s.tenants.UpdateLastSynced(ctx, tenant.ID, start); err != nil {
		return nil, fmt.Errorf("update last synced for %s: %w", tenant.Name, err)
	}

	result.DurationSeconds = time.Since(start).Seconds()
	logger.Info("tenant sync finished",
		"tenant", tenant.Name,
		"emails", result.Emails,
		"campaigns", result.Campaigns,
		"segments", result.Segments,
		"reports_created", result.ReportsCreated,
		"reports_skipped", result.ReportsSkipped)
	return result, nil
}

// syncEmails pulls every page of message metadata and upserts each page as
// it arrives.
func (s *Syncer) syncEmails(ctx context.Context, client Reporter, tenantID uuid.UUID) (int, error) {
	offset, count := 0, 0
	for {
		items, total, err := client.ListEmails(ctx, offset, s.pageLimit)
		if err != nil {
			return count, err
		}
		if len(items) == 0 {
			return count, nil
		}

		messages := make([]domain.EmailMessage, len(items))
		for i, item := range items {
			messages[i] = domain.EmailMessage{
				TenantID:   tenantID,
				ExternalID: item.ID,
				Name:       item.Name,
				Subject:    item.Subject,
				Status:     item.Status,
			}
		}
		if err := s.emails.UpsertMessages(ctx, tenantID, messages); err != nil {
			return count, err
		}
		count += len(items)
		offset += len(items)
		if count >= total || len(items) < s.pageLimit {
			return count, nil
		}
	}
}

func (s *Syncer) syncCampaigns(ctx context.Context, client Reporter, tenantID uuid.UUID) (int, error) {
	offset, count := 0, 0
	for {
		items, total, err := client.ListCampaigns(ctx, offset, s.pageLimit)
		if err != nil {
			return count, err
		}
		if len(items) == 0 {
			return count, nil
		}

		campaigns := make([]domain.EmailCampaign, len(items))
		for i, item := range items {
			campaigns[i] = domain.EmailCampaign{
				TenantID:   tenantID,
				ExternalID: item.ID,
				Name:       item.Name,
				Subject:    item.Subject,
				Status:     item.Status,
				SentCount:  item.SentCount,
			}
		}
		if err := s.emails.UpsertCampaigns(ctx, tenantID, campaigns); err != nil {
			return count, err
		}
		count += len(items)
		offset += len(items)
		if count >= total || len(items) < s.pageLimit {
			return count, nil
		}
	}
}

func (s *Syncer) syncSegments(ctx context.Context, client Reporter, tenantID uuid.UUID) (int, error) {
	offset, count := 0, 0
	for {
		items, total, err := client.ListSegments(ctx, offset, s.pageLimit)
		if err != nil {
			return count, err
		}
		if len(items) == 0 {
			return count, nil
		}

		segments := make([]domain.EmailSegment, len(items))
		for i, item := range items {
			segments[i] = domain.EmailSegment{
				TenantID:     tenantID,
				ExternalID:   item.ID,
				Name:         item.Name,
				ContactCount: item.ContactCount,
			}
		}
		if err := s.emails.UpsertSegments(ctx, tenantID, segments); err != nil {
			return count, err
		}
		count += len(items)
		offset += len(items)
		if count >= total || len(items) < s.pageLimit {
			return count, nil
		}
	}
}

// syncReports walks the receipt log sequentially and persists each page as
// it arrives, so a crash mid-sync loses at most the in-flight page.
func (s *Syncer) syncReports(ctx context.Context, client Reporter, tenantID uuid.UUID, from, to *time.Time) (int, int, error) {
	created, skipped := 0, 0
	for page := 1; ; page++ {
		rows, total, err := s.fetchPageWithRetry(ctx, client, page, s.pageLimit, from, to)
		if err != nil {
			return created, skipped, err
		}
		if len(rows) == 0 {
			return created, skipped, nil
		}

		c, k, err := s.persistReportPage(ctx, tenantID, rows)
		if err != nil {
			return created, skipped, err
		}
		created += c
		skipped += k

		if page*s.pageLimit >= total || len(rows) < s.pageLimit {
			return created, skipped, nil
		}
	}
}

// fetchPageWithRetry retries a failed page fetch with a linearly growing
// delay before giving up.
func (s *Syncer) fetchPageWithRetry(ctx context.Context, client Reporter, page, limit int, from, to *time.Time) ([]ReportRow, int, error) {
	var lastErr error
	for attempt := 1; attempt <= s.pageRetries; attempt++ {
		rows, total, err := client.FetchReportPage(ctx, page, limit, from, to)
		if err == nil {
			return rows, total, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return nil, 0, ctx.Err()
		}
		logger.Warn("report page fetch failed",
			"page", page, "attempt", attempt, "error", err.Error())
		if attempt < s.pageRetries {
			select {
			case <-time.After(s.retryBaseDelay * time.Duration(attempt)):
			case <-ctx.Done():
				return nil, 0, ctx.Err()
			}
		}
	}
	return nil, 0, fmt.Errorf("page %d failed after %d attempts: %w", page, s.pageRetries, lastErr)
}

// persistReportPage converts one page of wire rows and inserts the new ones.
// Rows with unparseable timestamps are dropped with a warning rather than
// failing the page.
func (s *Syncer) persistReportPage(ctx context.Context, tenantID uuid.UUID, rows []ReportRow) (int, int, error) {
	reports := make([]domain.EmailReport, 0, len(rows))
	for i := range rows {
		sentAt, err := ParseSentAt(rows[i].SentAt)
		if err != nil {
			logger.Warn("dropping report row", "message_id", rows[i].MessageID, "error", err.Error())
			continue
		}
		reports = append(reports, domain.EmailReport{
			TenantID:     tenantID,
			MessageID:    rows[i].MessageID,
			Recipient:    rows[i].Recipient,
			SentAt:       sentAt,
			CampaignName: rows[i].CampaignName,
			Subject:      rows[i].Subject,
			Status:       rows[i].Status,
			Opens:        rows[i].Opens,
			Clicks:       rows[i].Clicks,
		})
	}
	return s.emails.InsertNewReports(ctx, tenantID, reports)
}
