// Package syncsvc orchestrates the sync sources behind a single-flight guard:
// at most one sync operation runs at a time, concurrent triggers are rejected
// rather than queued, and every run is recorded in the sync log.
package syncsvc

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/reportsync/internal/domain"
	"github.com/ignite/reportsync/internal/mailstats"
	"github.com/ignite/reportsync/internal/pkg/distlock"
	"github.com/ignite/reportsync/internal/pkg/logger"
	"github.com/ignite/reportsync/internal/voicedrop"
)

// ErrSyncInProgress is returned when a trigger arrives while another sync
// operation holds the guard.
var ErrSyncInProgress = errors.New("sync already in progress")

// VoicedropRunner runs one file-drop ingestion pass.
type VoicedropRunner interface {
	Run(ctx context.Context) (voicedrop.Result, error)
}

// MailstatsRunner syncs and backfills tenant reporting data.
type MailstatsRunner interface {
	SyncTenant(ctx context.Context, tenant domain.Tenant) (*mailstats.TenantResult, error)
	BackfillTenant(ctx context.Context, tenant domain.Tenant, from, to time.Time, pageLimit int) (*mailstats.BackfillResult, error)
}

// TenantLister reads tenant accounts.
type TenantLister interface {
	ListActive(ctx context.Context) ([]domain.Tenant, error)
	Get(ctx context.Context, id uuid.UUID) (*domain.Tenant, error)
}

// LogStore is the sync-attempt ledger.
type LogStore interface {
	Start(ctx context.Context, source domain.SourceType, run domain.RunType) (uuid.UUID, error)
	Finish(ctx context.Context, id uuid.UUID, status domain.SyncStatus, items, records int, errMsg string) error
	Recent(ctx context.Context, limit int) ([]domain.SyncLog, error)
	LastCompletedAt(ctx context.Context) (*time.Time, error)
}

// Service coordinates the sync sources. The in-process mutex state is the
// primary guard; the optional distributed lock extends it across hosts.
type Service struct {
	voicedrop VoicedropRunner
	mailstats MailstatsRunner
	tenants   TenantLister
	logs      LogStore
	lock      distlock.DistLock

	tenantBatchSize int

	mu        sync.Mutex
	running   bool
	startedAt time.Time
}

// NewService wires the orchestrator. lock may be nil when the deployment is
// single-host.
func NewService(vd VoicedropRunner, ms MailstatsRunner, tenants TenantLister,
	logs LogStore, lock distlock.DistLock, tenantBatchSize int) *Service {
	if tenantBatchSize <= 0 {
		tenantBatchSize = 5
	}
	return &Service{
		voicedrop:       vd,
		mailstats:       ms,
		tenants:         tenants,
		logs:            logs,
		lock:            lock,
		tenantBatchSize: tenantBatchSize,
	}
}

// Status reports whether a sync is running and when the last one completed.
type Status struct {
	IsSyncing      bool       `json:"isSyncing"`
	ElapsedSeconds float64    `json:"elapsedSeconds,omitempty"`
	LastSyncAt     *time.Time `json:"lastSyncAt,omitempty"`
}

// Status returns the current guard state plus the last successful completion.
func (s *Service) Status(ctx context.Context) (Status, error) {
	s.mu.Lock()
	st := Status{IsSyncing: s.running}
	if s.running {
		st.ElapsedSeconds = time.Since(s.startedAt).Seconds()
	}
	s.mu.Unlock()

	last, err := s.logs.LastCompletedAt(ctx)
	if err != nil {
		return st, err
	}
	st.LastSyncAt = last
	return st, nil
}

// RecentLogs returns the most recent sync attempts.
func (s *Service) RecentLogs(ctx context.Context, limit int) ([]domain.SyncLog, error) {
	return s.logs.Recent(ctx, limit)
}

// acquire takes the single-flight guard or reports how long the current
// holder has been running.
func (s *Service) acquire(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		elapsed := time.Since(s.startedAt).Round(time.Second)
		s.mu.Unlock()
		return fmt.Errorf("%w (running for %s)", ErrSyncInProgress, elapsed)
	}
	s.running = true
	s.startedAt = time.Now()
	s.mu.Unlock()

	if s.lock != nil {
		ok, err := s.lock.Acquire(ctx)
		if err != nil || !ok {
			s.mu.Lock()
			s.running = false
			s.mu.Unlock()
			if err != nil {
				return fmt.Errorf("acquire sync lock: %w", err)
			}
			return fmt.Errorf("%w (held by another host)", ErrSyncInProgress)
		}
	}
	return nil
}

// release drops the guard. Called via defer so a panicking run never wedges
// the service.
func (s *Service) release(ctx context.Context) {
	if s.lock != nil {
		if err := s.lock.Release(ctx); err != nil {
			logger.Error("release sync lock failed", "error", err)
		}
	}
	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
}

// FullSyncResult aggregates both source legs of a full run.
type FullSyncResult struct {
	Voicedrop    voicedrop.Result          `json:"voicedrop"`
	Tenants      []*mailstats.TenantResult `json:"tenants"`
	TenantErrors map[string]string         `json:"tenant_errors,omitempty"`
	VoicedropErr string                    `json:"voicedrop_error,omitempty"`
}

// RunFullSync runs the file-drop ingestion followed by a reporting sync of
// every active tenant. Each leg is logged separately; a failed leg or tenant
// does not abort the rest of the run.
func (s *Service) RunFullSync(ctx context.Context, run domain.RunType) (*FullSyncResult, error) {
	if err := s.acquire(ctx); err != nil {
		return nil, err
	}
	defer s.release(ctx)

	logger.Info("full sync started", "run_type", string(run))
	result := &FullSyncResult{TenantErrors: map[string]string{}}

	vdRes, err := s.runVoicedropLeg(ctx, run)
	result.Voicedrop = vdRes
	if err != nil {
		result.VoicedropErr = err.Error()
		logger.Error("voicedrop leg failed", "error", err)
	}

	results, errs := s.runTenantLeg(ctx, run, nil)
	result.Tenants = results
	for name, msg := range errs {
		result.TenantErrors[name] = msg
	}

	logger.Info("full sync finished",
		"tenants_ok", len(result.Tenants),
		"tenants_failed", len(result.TenantErrors))
	return result, nil
}

// RunTenantSync syncs a single tenant by id.
func (s *Service) RunTenantSync(ctx context.Context, tenantID uuid.UUID, run domain.RunType) (*mailstats.TenantResult, error) {
	if err := s.acquire(ctx); err != nil {
		return nil, err
	}
	defer s.release(ctx)

	tenant, err := s.tenants.Get(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	results, errs := s.runTenantLeg(ctx, run, []domain.Tenant{*tenant})
	if msg, ok := errs[tenant.Name]; ok {
		return nil, errors.New(msg)
	}
	if len(results) == 0 {
		return nil, fmt.Errorf("tenant %s produced no result", tenant.Name)
	}
	return results[0], nil
}

// RunBackfill fetches historical report months for every active tenant.
func (s *Service) RunBackfill(ctx context.Context, from, to time.Time, pageLimit int) ([]*mailstats.BackfillResult, error) {
	if err := s.acquire(ctx); err != nil {
		return nil, err
	}
	defer s.release(ctx)

	tenants, err := s.tenants.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("list tenants: %w", err)
	}

	logID, err := s.logs.Start(ctx, domain.SourceEmail, domain.RunBackfill)
	if err != nil {
		return nil, err
	}

	var (
		out     []*mailstats.BackfillResult
		records int
		failed  []string
	)
	for i := range tenants {
		res, err := s.mailstats.BackfillTenant(ctx, tenants[i], from, to, pageLimit)
		if res != nil {
			out = append(out, res)
			records += res.ReportsCreated
		}
		if err != nil {
			if ctx.Err() != nil {
				s.finishLog(logID, domain.SyncFailed, len(out), records, ctx.Err().Error())
				return out, ctx.Err()
			}
			failed = append(failed, fmt.Sprintf("%s: %v", tenants[i].Name, err))
		}
	}

	if len(failed) > 0 {
		s.finishLog(logID, domain.SyncFailed, len(out), records, fmt.Sprintf("%d tenants failed: %v", len(failed), failed))
	} else {
		s.finishLog(logID, domain.SyncSuccess, len(out), records, "")
	}
	return out, nil
}

// runVoicedropLeg runs the ingestion pass under its own sync-log row.
func (s *Service) runVoicedropLeg(ctx context.Context, run domain.RunType) (voicedrop.Result, error) {
	logID, err := s.logs.Start(ctx, domain.SourceVoicemail, run)
	if err != nil {
		return voicedrop.Result{}, err
	}

	res, err := s.voicedrop.Run(ctx)
	if err != nil {
		s.finishLog(logID, domain.SyncFailed, res.FilesDownloaded, res.TotalRecords, err.Error())
		return res, err
	}

	status := domain.SyncSuccess
	errMsg := ""
	if res.FileErrors > 0 {
		errMsg = fmt.Sprintf("%d file errors", res.FileErrors)
	}
	s.finishLog(logID, status, res.FilesDownloaded, res.TotalRecords, errMsg)
	return res, nil
}

// runTenantLeg syncs tenants in bounded concurrent batches under one
// sync-log row. When tenants is nil every active tenant is synced.
func (s *Service) runTenantLeg(ctx context.Context, run domain.RunType, tenants []domain.Tenant) ([]*mailstats.TenantResult, map[string]string) {
	errs := map[string]string{}

	if tenants == nil {
		var err error
		tenants, err = s.tenants.ListActive(ctx)
		if err != nil {
			errs["_list"] = err.Error()
			return nil, errs
		}
	}
	if len(tenants) == 0 {
		return nil, errs
	}

	logID, err := s.logs.Start(ctx, domain.SourceEmail, run)
	if err != nil {
		errs["_log"] = err.Error()
		return nil, errs
	}

	var (
		mu      sync.Mutex
		results []*mailstats.TenantResult
	)
	for start := 0; start < len(tenants); start += s.tenantBatchSize {
		end := start + s.tenantBatchSize
		if end > len(tenants) {
			end = len(tenants)
		}

		var wg sync.WaitGroup
		for _, tenant := range tenants[start:end] {
			wg.Add(1)
			go func(t domain.Tenant) {
				defer wg.Done()
				res, err := s.mailstats.SyncTenant(ctx, t)
				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					errs[t.Name] = err.Error()
					return
				}
				results = append(results, res)
			}(tenant)
		}
		wg.Wait()

		if ctx.Err() != nil {
			break
		}
	}

	records := 0
	for _, r := range results {
		records += r.ReportsCreated
	}
	if len(errs) > 0 {
		s.finishLog(logID, domain.SyncFailed, len(results), records, fmt.Sprintf("%d of %d tenants failed", len(errs), len(tenants)))
	} else {
		s.finishLog(logID, domain.SyncSuccess, len(results), records, "")
	}
	return results, errs
}

// finishLog finalizes a sync-log row on a background context so a canceled
// run still gets its terminal state recorded.
func (s *Service) finishLog(id uuid.UUID, status domain.SyncStatus, items, records int, errMsg string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.logs.Finish(ctx, id, status, items, records, errMsg); err != nil {
		logger.Error("finish sync log failed", "error", err)
	}
}
