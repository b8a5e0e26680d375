package mailstats

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/reportsync/internal/domain"
)

// fakeReporter serves canned metadata and report pages and records the order
// and parameters of every call. Backfill hits it from several goroutines.
type fakeReporter struct {
	mu        sync.Mutex
	emails    []Email
	campaigns []Campaign
	segments  []Segment
	reports   []ReportRow

	calls      []string
	reportFrom *time.Time
	reportTo   *time.Time

	failPages map[int]int // page -> remaining failures
}

func pageOf[T any](items []T, offset, limit int) []T {
	if offset >= len(items) {
		return nil
	}
	end := offset + limit
	if end > len(items) {
		end = len(items)
	}
	return items[offset:end]
}

func (f *fakeReporter) ListEmails(ctx context.Context, offset, limit int) ([]Email, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "emails")
	return pageOf(f.emails, offset, limit), len(f.emails), nil
}

func (f *fakeReporter) ListCampaigns(ctx context.Context, offset, limit int) ([]Campaign, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "campaigns")
	return pageOf(f.campaigns, offset, limit), len(f.campaigns), nil
}

func (f *fakeReporter) ListSegments(ctx context.Context, offset, limit int) ([]Segment, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "segments")
	return pageOf(f.segments, offset, limit), len(f.segments), nil
}

func (f *fakeReporter) FetchReportPage(ctx context.Context, page, limit int, from, to *time.Time) ([]ReportRow, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "reports")
	f.reportFrom, f.reportTo = from, to
	if remaining, ok := f.failPages[page]; ok && remaining > 0 {
		f.failPages[page] = remaining - 1
		return nil, 0, errors.New("upstream hiccup")
	}
	return pageOf(f.reports, (page-1)*limit, limit), len(f.reports), nil
}

// fakeEmailStore dedups reports in memory the way the real store does.
type fakeEmailStore struct {
	mu       sync.Mutex
	calls    []string
	messages int
	reports  map[string]struct{}
}

func (f *fakeEmailStore) UpsertMessages(ctx context.Context, tenantID uuid.UUID, messages []domain.EmailMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "messages")
	f.messages += len(messages)
	return nil
}

func (f *fakeEmailStore) UpsertCampaigns(ctx context.Context, tenantID uuid.UUID, campaigns []domain.EmailCampaign) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "campaigns")
	return nil
}

func (f *fakeEmailStore) UpsertSegments(ctx context.Context, tenantID uuid.UUID, segments []domain.EmailSegment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "segments")
	return nil
}

func (f *fakeEmailStore) InsertNewReports(ctx context.Context, tenantID uuid.UUID, candidates []domain.EmailReport) (int, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "reports")
	if f.reports == nil {
		f.reports = map[string]struct{}{}
	}
	inserted, skipped := 0, 0
	for i := range candidates {
		key := candidates[i].MessageID + "|" + candidates[i].Recipient + "|" + candidates[i].SentAt.Format(time.RFC3339Nano)
		if _, ok := f.reports[key]; ok {
			skipped++
			continue
		}
		f.reports[key] = struct{}{}
		inserted++
	}
	return inserted, skipped, nil
}

type fakeTenantStore struct {
	lastSynced map[uuid.UUID]time.Time
}

func (f *fakeTenantStore) UpdateLastSynced(ctx context.Context, tenantID uuid.UUID, t time.Time) error {
	if f.lastSynced == nil {
		f.lastSynced = map[uuid.UUID]time.Time{}
	}
	f.lastSynced[tenantID] = t
	return nil
}

type fakeMonthStore struct {
	marked map[string]struct{}
}

func (f *fakeMonthStore) ListYearMonths(ctx context.Context, tenantID uuid.UUID) (map[string]struct{}, error) {
	out := make(map[string]struct{}, len(f.marked))
	for k := range f.marked {
		out[k] = struct{}{}
	}
	return out, nil
}

func (f *fakeMonthStore) MarkFetched(ctx context.Context, month domain.FetchedMonth) error {
	if f.marked == nil {
		f.marked = map[string]struct{}{}
	}
	f.marked[month.YearMonth] = struct{}{}
	return nil
}

func newTestSyncer(reporter *fakeReporter, store *fakeEmailStore, tenants *fakeTenantStore, months *fakeMonthStore, pageLimit int) *Syncer {
	s := NewSyncer(func(domain.Tenant) Reporter { return reporter },
		store, tenants, months, pageLimit, 3, 2, 0)
	s.retryBaseDelay = time.Millisecond
	return s
}

func reportRows(n int, prefix string) []ReportRow {
	out := make([]ReportRow, n)
	for i := range out {
		out[i] = ReportRow{
			MessageID: prefix,
			Recipient: fmt.Sprintf("%s-%d@example.com", prefix, i),
			SentAt:    "2025-05-01 10:00:00",
		}
	}
	return out
}

func TestSyncTenantMetadataBeforeReports(t *testing.T) {
	reporter := &fakeReporter{
		emails:    []Email{{ID: "e-1"}},
		campaigns: []Campaign{{ID: "c-1"}},
		segments:  []Segment{{ID: "s-1"}},
		reports:   reportRows(3, "m-1"),
	}
	store := &fakeEmailStore{}
	tenants := &fakeTenantStore{}
	s := newTestSyncer(reporter, store, tenants, &fakeMonthStore{}, 100)

	tenant := domain.Tenant{ID: uuid.New(), Name: "acme"}
	res, err := s.SyncTenant(context.Background(), tenant)
	require.NoError(t, err)

	assert.Equal(t, 1, res.Emails)
	assert.Equal(t, 1, res.Campaigns)
	assert.Equal(t, 1, res.Segments)
	assert.Equal(t, 3, res.ReportsCreated)
	assert.Equal(t, 0, res.ReportsSkipped)

	// Every metadata write lands before the first report write.
	require.NotEmpty(t, store.calls)
	assert.Equal(t, []string{"messages", "campaigns", "segments", "reports"}, store.calls)

	// First-ever sync has no lower bound.
	assert.Nil(t, reporter.reportFrom)
	assert.Contains(t, tenants.lastSynced, tenant.ID)
}

func TestSyncTenantIncrementalWindow(t *testing.T) {
	last := time.Date(2025, 5, 20, 12, 0, 0, 0, time.UTC)
	reporter := &fakeReporter{reports: reportRows(1, "m-1")}
	s := newTestSyncer(reporter, &fakeEmailStore{}, &fakeTenantStore{}, &fakeMonthStore{}, 100)

	tenant := domain.Tenant{ID: uuid.New(), Name: "acme", LastSyncedAt: &last}
	_, err := s.SyncTenant(context.Background(), tenant)
	require.NoError(t, err)

	// The window starts an hour before the watermark; dedup absorbs the overlap.
	require.NotNil(t, reporter.reportFrom)
	assert.Equal(t, last.Add(-time.Hour), *reporter.reportFrom)
}

func TestSyncTenantRerunSkipsExistingReports(t *testing.T) {
	reporter := &fakeReporter{reports: reportRows(5, "m-1")}
	store := &fakeEmailStore{}
	s := newTestSyncer(reporter, store, &fakeTenantStore{}, &fakeMonthStore{}, 100)

	tenant := domain.Tenant{ID: uuid.New(), Name: "acme"}
	first, err := s.SyncTenant(context.Background(), tenant)
	require.NoError(t, err)
	assert.Equal(t, 5, first.ReportsCreated)

	second, err := s.SyncTenant(context.Background(), tenant)
	require.NoError(t, err)
	assert.Equal(t, 0, second.ReportsCreated)
	assert.Equal(t, 5, second.ReportsSkipped)
}

func TestSyncTenantDropsUnparseableRows(t *testing.T) {
	reporter := &fakeReporter{reports: []ReportRow{
		{MessageID: "m-1", Recipient: "a@example.com", SentAt: "2025-05-01 10:00:00"},
		{MessageID: "m-1", Recipient: "b@example.com", SentAt: "yesterday-ish"},
	}}
	s := newTestSyncer(reporter, &fakeEmailStore{}, &fakeTenantStore{}, &fakeMonthStore{}, 100)

	res, err := s.SyncTenant(context.Background(), domain.Tenant{ID: uuid.New(), Name: "acme"})
	require.NoError(t, err)
	assert.Equal(t, 1, res.ReportsCreated)
}

func TestSyncTenantPaginatesReports(t *testing.T) {
	reporter := &fakeReporter{reports: reportRows(7, "m-1")}
	s := newTestSyncer(reporter, &fakeEmailStore{}, &fakeTenantStore{}, &fakeMonthStore{}, 3)

	res, err := s.SyncTenant(context.Background(), domain.Tenant{ID: uuid.New(), Name: "acme"})
	require.NoError(t, err)
	assert.Equal(t, 7, res.ReportsCreated)
}

func TestFetchPageRetriesTransientFailures(t *testing.T) {
	reporter := &fakeReporter{
		reports:   reportRows(2, "m-1"),
		failPages: map[int]int{1: 2},
	}
	s := newTestSyncer(reporter, &fakeEmailStore{}, &fakeTenantStore{}, &fakeMonthStore{}, 100)

	rows, total, err := s.fetchPageWithRetry(context.Background(), reporter, 1, 100, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Len(t, rows, 2)
}

func TestFetchPageExhaustsRetryBudget(t *testing.T) {
	reporter := &fakeReporter{
		reports:   reportRows(2, "m-1"),
		failPages: map[int]int{1: 99},
	}
	s := newTestSyncer(reporter, &fakeEmailStore{}, &fakeTenantStore{}, &fakeMonthStore{}, 100)

	_, _, err := s.fetchPageWithRetry(context.Background(), reporter, 1, 100, nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "after 3 attempts")
}
