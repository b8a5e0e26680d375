package syncsvc

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/reportsync/internal/domain"
	"github.com/ignite/reportsync/internal/mailstats"
	"github.com/ignite/reportsync/internal/voicedrop"
)

type fakeVoicedrop struct {
	result    voicedrop.Result
	err       error
	block     chan struct{}
	started   chan struct{}
	startOnce sync.Once
}

func (f *fakeVoicedrop) Run(ctx context.Context) (voicedrop.Result, error) {
	if f.started != nil {
		f.startOnce.Do(func() { close(f.started) })
	}
	if f.block != nil {
		<-f.block
	}
	return f.result, f.err
}

type fakeMailstats struct {
	mu       sync.Mutex
	synced   []string
	failFor  map[string]error
	backfill *mailstats.BackfillResult
}

func (f *fakeMailstats) SyncTenant(ctx context.Context, tenant domain.Tenant) (*mailstats.TenantResult, error) {
	f.mu.Lock()
	f.synced = append(f.synced, tenant.Name)
	f.mu.Unlock()
	if err, ok := f.failFor[tenant.Name]; ok {
		return nil, err
	}
	return &mailstats.TenantResult{TenantID: tenant.ID, TenantName: tenant.Name, ReportsCreated: 10}, nil
}

func (f *fakeMailstats) BackfillTenant(ctx context.Context, tenant domain.Tenant, from, to time.Time, pageLimit int) (*mailstats.BackfillResult, error) {
	if err, ok := f.failFor[tenant.Name]; ok {
		return nil, err
	}
	if f.backfill != nil {
		return f.backfill, nil
	}
	return &mailstats.BackfillResult{TenantName: tenant.Name}, nil
}

type fakeTenants struct{ tenants []domain.Tenant }

func (f *fakeTenants) ListActive(ctx context.Context) ([]domain.Tenant, error) { return f.tenants, nil }

func (f *fakeTenants) Get(ctx context.Context, id uuid.UUID) (*domain.Tenant, error) {
	for i := range f.tenants {
		if f.tenants[i].ID == id {
			return &f.tenants[i], nil
		}
	}
	return nil, errors.New("not found")
}

type logEntry struct {
	source domain.SourceType
	run    domain.RunType
	status domain.SyncStatus
	errMsg string
}

type fakeLogs struct {
	mu      sync.Mutex
	entries map[uuid.UUID]*logEntry
	last    *time.Time
}

func (f *fakeLogs) Start(ctx context.Context, source domain.SourceType, run domain.RunType) (uuid.UUID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.entries == nil {
		f.entries = map[uuid.UUID]*logEntry{}
	}
	id := uuid.New()
	f.entries[id] = &logEntry{source: source, run: run, status: domain.SyncRunning}
	return id, nil
}

func (f *fakeLogs) Finish(ctx context.Context, id uuid.UUID, status domain.SyncStatus, items, records int, errMsg string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if e, ok := f.entries[id]; ok {
		e.status = status
		e.errMsg = errMsg
	}
	return nil
}

func (f *fakeLogs) Recent(ctx context.Context, limit int) ([]domain.SyncLog, error) { return nil, nil }

func (f *fakeLogs) LastCompletedAt(ctx context.Context) (*time.Time, error) { return f.last, nil }

func (f *fakeLogs) bySource(source domain.SourceType) *logEntry {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, e := range f.entries {
		if e.source == source {
			return e
		}
	}
	return nil
}

func tenants(names ...string) []domain.Tenant {
	out := make([]domain.Tenant, len(names))
	for i, n := range names {
		out[i] = domain.Tenant{ID: uuid.New(), Name: n, Active: true}
	}
	return out
}

func TestRunFullSyncHappyPath(t *testing.T) {
	vd := &fakeVoicedrop{result: voicedrop.Result{FilesDownloaded: 2, TotalRecords: 50}}
	ms := &fakeMailstats{}
	logs := &fakeLogs{}
	svc := NewService(vd, ms, &fakeTenants{tenants: tenants("a", "b", "c")}, logs, nil, 2)

	res, err := svc.RunFullSync(context.Background(), domain.RunManual)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Voicedrop.FilesDownloaded)
	assert.Len(t, res.Tenants, 3)
	assert.Empty(t, res.TenantErrors)

	require.NotNil(t, logs.bySource(domain.SourceVoicemail))
	assert.Equal(t, domain.SyncSuccess, logs.bySource(domain.SourceVoicemail).status)
	require.NotNil(t, logs.bySource(domain.SourceEmail))
	assert.Equal(t, domain.SyncSuccess, logs.bySource(domain.SourceEmail).status)
}

func TestRunFullSyncRejectsConcurrentTrigger(t *testing.T) {
	vd := &fakeVoicedrop{
		block:   make(chan struct{}),
		started: make(chan struct{}),
	}
	svc := NewService(vd, &fakeMailstats{}, &fakeTenants{}, &fakeLogs{}, nil, 2)

	done := make(chan struct{})
	go func() {
		defer close(done)
		svc.RunFullSync(context.Background(), domain.RunScheduled)
	}()

	<-vd.started
	_, err := svc.RunFullSync(context.Background(), domain.RunManual)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSyncInProgress)
	assert.Contains(t, err.Error(), "running for")

	st, err := svc.Status(context.Background())
	require.NoError(t, err)
	assert.True(t, st.IsSyncing)

	close(vd.block)
	<-done

	// Guard is released; a new trigger is accepted.
	_, err = svc.RunFullSync(context.Background(), domain.RunManual)
	assert.NoError(t, err)
}

func TestRunFullSyncPartialTenantFailure(t *testing.T) {
	vd := &fakeVoicedrop{}
	ms := &fakeMailstats{failFor: map[string]error{"b": errors.New("auth rejected")}}
	logs := &fakeLogs{}
	svc := NewService(vd, ms, &fakeTenants{tenants: tenants("a", "b", "c")}, logs, nil, 2)

	res, err := svc.RunFullSync(context.Background(), domain.RunManual)
	require.NoError(t, err)

	// The failed tenant is reported; the others still synced.
	assert.Len(t, res.Tenants, 2)
	assert.Contains(t, res.TenantErrors, "b")
	assert.Equal(t, domain.SyncFailed, logs.bySource(domain.SourceEmail).status)
}

func TestRunFullSyncVoicedropFailureDoesNotAbortTenants(t *testing.T) {
	vd := &fakeVoicedrop{err: errors.New("sftp unreachable")}
	ms := &fakeMailstats{}
	svc := NewService(vd, ms, &fakeTenants{tenants: tenants("a")}, &fakeLogs{}, nil, 2)

	res, err := svc.RunFullSync(context.Background(), domain.RunManual)
	require.NoError(t, err)
	assert.Contains(t, res.VoicedropErr, "sftp unreachable")
	assert.Len(t, res.Tenants, 1)
}

func TestRunTenantSync(t *testing.T) {
	ts := tenants("a", "b")
	ms := &fakeMailstats{}
	svc := NewService(&fakeVoicedrop{}, ms, &fakeTenants{tenants: ts}, &fakeLogs{}, nil, 2)

	res, err := svc.RunTenantSync(context.Background(), ts[1].ID, domain.RunManual)
	require.NoError(t, err)
	assert.Equal(t, "b", res.TenantName)
	assert.Equal(t, []string{"b"}, ms.synced)
}

func TestRunBackfillLogsBackfillRun(t *testing.T) {
	logs := &fakeLogs{}
	svc := NewService(&fakeVoicedrop{}, &fakeMailstats{}, &fakeTenants{tenants: tenants("a")}, logs, nil, 2)

	from := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	res, err := svc.RunBackfill(context.Background(), from, to, 0)
	require.NoError(t, err)
	assert.Len(t, res, 1)

	entry := logs.bySource(domain.SourceEmail)
	require.NotNil(t, entry)
	assert.Equal(t, domain.RunBackfill, entry.run)
	assert.Equal(t, domain.SyncSuccess, entry.status)
}

func TestStatusReportsLastSync(t *testing.T) {
	last := time.Date(2025, 8, 1, 6, 0, 0, 0, time.UTC)
	logs := &fakeLogs{last: &last}
	svc := NewService(&fakeVoicedrop{}, &fakeMailstats{}, &fakeTenants{}, logs, nil, 2)

	st, err := svc.Status(context.Background())
	require.NoError(t, err)
	assert.False(t, st.IsSyncing)
	require.NotNil(t, st.LastSyncAt)
	assert.Equal(t, last, *st.LastSyncAt)
}
