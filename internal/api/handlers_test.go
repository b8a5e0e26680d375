package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/reportsync/internal/domain"
	"github.com/ignite/reportsync/internal/mailstats"
	"github.com/ignite/reportsync/internal/repository/postgres"
	"github.com/ignite/reportsync/internal/syncsvc"
)

type fakeSyncService struct {
	fullErr       error
	tenantErr     error
	backfillFrom  time.Time
	backfillTo    time.Time
	backfillLimit int
	status        syncsvc.Status
	logs          []domain.SyncLog
}

func (f *fakeSyncService) RunFullSync(ctx context.Context, run domain.RunType) (*syncsvc.FullSyncResult, error) {
	if f.fullErr != nil {
		return nil, f.fullErr
	}
	return &syncsvc.FullSyncResult{}, nil
}

func (f *fakeSyncService) RunTenantSync(ctx context.Context, tenantID uuid.UUID, run domain.RunType) (*mailstats.TenantResult, error) {
	if f.tenantErr != nil {
		return nil, f.tenantErr
	}
	return &mailstats.TenantResult{TenantID: tenantID, TenantName: "acme"}, nil
}

func (f *fakeSyncService) RunBackfill(ctx context.Context, from, to time.Time, pageLimit int) ([]*mailstats.BackfillResult, error) {
	f.backfillFrom, f.backfillTo = from, to
	f.backfillLimit = pageLimit
	return []*mailstats.BackfillResult{{TenantName: "acme"}}, nil
}

func (f *fakeSyncService) Status(ctx context.Context) (syncsvc.Status, error) { return f.status, nil }

func (f *fakeSyncService) RecentLogs(ctx context.Context, limit int) ([]domain.SyncLog, error) {
	return f.logs, nil
}

type fakeLinker struct {
	campaign *domain.Campaign
	linkErr  error
	linked   *uuid.UUID
	unlinked bool
}

func (f *fakeLinker) Get(ctx context.Context, id uuid.UUID) (*domain.Campaign, error) {
	if f.campaign == nil {
		return nil, postgres.ErrNotFound
	}
	return f.campaign, nil
}

func (f *fakeLinker) Link(ctx context.Context, campaignID, clientID uuid.UUID) error {
	if f.linkErr != nil {
		return f.linkErr
	}
	f.linked = &clientID
	return nil
}

func (f *fakeLinker) Unlink(ctx context.Context, campaignID uuid.UUID) error {
	if f.linkErr != nil {
		return f.linkErr
	}
	f.unlinked = true
	return nil
}

func newTestRouter(svc *fakeSyncService, linker *fakeLinker) http.Handler {
	return Routes(NewHandler(svc, linker, 6, "test"))
}

func TestHealth(t *testing.T) {
	router := newTestRouter(&fakeSyncService{}, &fakeLinker{})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "test", body["version"])
}

func TestTriggerFullSyncConflict(t *testing.T) {
	svc := &fakeSyncService{fullErr: fmt.Errorf("%w (running for 42s)", syncsvc.ErrSyncInProgress)}
	router := newTestRouter(svc, &fakeLinker{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/sync/all", nil))

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), "running for 42s")
}

func TestTriggerTenantSync(t *testing.T) {
	router := newTestRouter(&fakeSyncService{}, &fakeLinker{})
	tenantID := uuid.New()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/sync/"+tenantID.String(), nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/sync/not-a-uuid", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTriggerTenantSyncNotFound(t *testing.T) {
	svc := &fakeSyncService{tenantErr: postgres.ErrNotFound}
	router := newTestRouter(svc, &fakeLinker{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/sync/"+uuid.NewString(), nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSyncStatus(t *testing.T) {
	svc := &fakeSyncService{status: syncsvc.Status{IsSyncing: true, ElapsedSeconds: 12.5}}
	router := newTestRouter(svc, &fakeLinker{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/sync/status", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	var st syncsvc.Status
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
	assert.True(t, st.IsSyncing)
}

func TestSyncLogsLimitValidation(t *testing.T) {
	router := newTestRouter(&fakeSyncService{}, &fakeLinker{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/sync/logs?limit=0", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/sync/logs?limit=20", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestTriggerBackfillDates(t *testing.T) {
	svc := &fakeSyncService{}
	router := newTestRouter(svc, &fakeLinker{})

	body := bytes.NewBufferString(`{"fromDate": "2025-01-01", "toDate": "2025-04-01", "pageLimit": 500}`)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/backfill", body))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), svc.backfillFrom)
	assert.Equal(t, time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC), svc.backfillTo)
	assert.Equal(t, 500, svc.backfillLimit)
}

func TestTriggerBackfillRejectsBadRange(t *testing.T) {
	router := newTestRouter(&fakeSyncService{}, &fakeLinker{})

	body := bytes.NewBufferString(`{"fromDate": "2025-04-01", "toDate": "2025-01-01"}`)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/backfill", body))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	body = bytes.NewBufferString(`{"fromDate": "January 1st"}`)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/backfill", body))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTriggerBackfillDefaultsWindow(t *testing.T) {
	svc := &fakeSyncService{}
	router := newTestRouter(svc, &fakeLinker{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/backfill", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	// Default window is the configured number of months ending now.
	assert.WithinDuration(t, time.Now().UTC(), svc.backfillTo, time.Minute)
	assert.WithinDuration(t, time.Now().UTC().AddDate(0, -6, 0), svc.backfillFrom, time.Minute)
}

func TestLinkCampaign(t *testing.T) {
	campaignID := uuid.New()
	clientID := uuid.New()
	linker := &fakeLinker{campaign: &domain.Campaign{ID: campaignID, ClientID: &clientID}}
	router := newTestRouter(&fakeSyncService{}, linker)

	body := bytes.NewBufferString(`{"clientId": "` + clientID.String() + `"}`)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/campaigns/"+campaignID.String()+"/link", body))

	assert.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, linker.linked)
	assert.Equal(t, clientID, *linker.linked)
}

func TestLinkCampaignNotFound(t *testing.T) {
	linker := &fakeLinker{linkErr: postgres.ErrNotFound}
	router := newTestRouter(&fakeSyncService{}, linker)

	body := bytes.NewBufferString(`{"clientId": "` + uuid.NewString() + `"}`)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/campaigns/"+uuid.NewString()+"/link", body))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUnlinkCampaign(t *testing.T) {
	campaignID := uuid.New()
	linker := &fakeLinker{campaign: &domain.Campaign{ID: campaignID}}
	router := newTestRouter(&fakeSyncService{}, linker)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/campaigns/"+campaignID.String()+"/unlink", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, linker.unlinked)
}
