// Package api exposes the sync engine over HTTP: trigger endpoints for
// operators and the dashboard, status/log reads, and manual campaign linking.
package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/ignite/reportsync/internal/domain"
	"github.com/ignite/reportsync/internal/mailstats"
	"github.com/ignite/reportsync/internal/pkg/httputil"
	"github.com/ignite/reportsync/internal/pkg/logger"
	"github.com/ignite/reportsync/internal/repository/postgres"
	"github.com/ignite/reportsync/internal/syncsvc"
)

// SyncService is the orchestrator surface the handlers call.
type SyncService interface {
	RunFullSync(ctx context.Context, run domain.RunType) (*syncsvc.FullSyncResult, error)
	RunTenantSync(ctx context.Context, tenantID uuid.UUID, run domain.RunType) (*mailstats.TenantResult, error)
	RunBackfill(ctx context.Context, from, to time.Time, pageLimit int) ([]*mailstats.BackfillResult, error)
	Status(ctx context.Context) (syncsvc.Status, error)
	RecentLogs(ctx context.Context, limit int) ([]domain.SyncLog, error)
}

// CampaignLinker is the manual link/unlink surface.
type CampaignLinker interface {
	Get(ctx context.Context, id uuid.UUID) (*domain.Campaign, error)
	Link(ctx context.Context, campaignID, clientID uuid.UUID) error
	Unlink(ctx context.Context, campaignID uuid.UUID) error
}

// Handler holds the API dependencies.
type Handler struct {
	sync           SyncService
	campaigns      CampaignLinker
	backfillMonths int
	version        string
}

// NewHandler creates the API handler set.
func NewHandler(sync SyncService, campaigns CampaignLinker, backfillMonths int, version string) *Handler {
	if backfillMonths <= 0 {
		backfillMonths = 6
	}
	return &Handler{sync: sync, campaigns: campaigns, backfillMonths: backfillMonths, version: version}
}

// Health returns service liveness.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	httputil.OK(w, map[string]string{
		"status":  "ok",
		"version": h.version,
		"time":    time.Now().UTC().Format(time.RFC3339),
	})
}

// TriggerFullSync runs a full sync synchronously and returns its summary.
// A concurrent trigger gets 409 with how long the running sync has been going.
func (h *Handler) TriggerFullSync(w http.ResponseWriter, r *http.Request) {
	result, err := h.sync.RunFullSync(r.Context(), domain.RunManual)
	if err != nil {
		if errors.Is(err, syncsvc.ErrSyncInProgress) {
			httputil.Conflict(w, err.Error(), nil)
			return
		}
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, result)
}

// TriggerTenantSync syncs one tenant by id.
func (h *Handler) TriggerTenantSync(w http.ResponseWriter, r *http.Request) {
	tenantID, err := uuid.Parse(chi.URLParam(r, "tenantID"))
	if err != nil {
		httputil.BadRequest(w, "invalid tenant id")
		return
	}

	result, err := h.sync.RunTenantSync(r.Context(), tenantID, domain.RunManual)
	if err != nil {
		switch {
		case errors.Is(err, syncsvc.ErrSyncInProgress):
			httputil.Conflict(w, err.Error(), nil)
		case errors.Is(err, postgres.ErrNotFound):
			httputil.NotFound(w, "tenant not found")
		default:
			httputil.InternalError(w, err)
		}
		return
	}
	httputil.OK(w, result)
}

// SyncStatus reports whether a sync is running and when the last completed.
func (h *Handler) SyncStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.sync.Status(r.Context())
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, status)
}

// SyncLogs returns recent sync attempts, newest first.
func (h *Handler) SyncLogs(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 500 {
			httputil.BadRequest(w, "limit must be between 1 and 500")
			return
		}
		limit = n
	}

	logs, err := h.sync.RecentLogs(r.Context(), limit)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, map[string]interface{}{"logs": logs})
}

type backfillRequest struct {
	FromDate  string `json:"fromDate"`
	ToDate    string `json:"toDate"`
	PageLimit int    `json:"pageLimit"`
}

// TriggerBackfill fetches historical report months for all tenants. Dates
// are YYYY-MM-DD; both are optional and default to the configured window
// ending now.
func (h *Handler) TriggerBackfill(w http.ResponseWriter, r *http.Request) {
	var req backfillRequest
	if r.ContentLength > 0 && !httputil.Decode(w, r, &req) {
		return
	}

	to := time.Now().UTC()
	from := to.AddDate(0, -h.backfillMonths, 0)
	if req.FromDate != "" {
		t, err := time.Parse("2006-01-02", req.FromDate)
		if err != nil {
			httputil.BadRequest(w, "fromDate must be YYYY-MM-DD")
			return
		}
		from = t
	}
	if req.ToDate != "" {
		t, err := time.Parse("2006-01-02", req.ToDate)
		if err != nil {
			httputil.BadRequest(w, "toDate must be YYYY-MM-DD")
			return
		}
		to = t
	}
	if !from.Before(to) {
		httputil.BadRequest(w, "fromDate must be before toDate")
		return
	}
	if req.PageLimit < 0 || req.PageLimit > 10000 {
		httputil.BadRequest(w, "pageLimit must be between 1 and 10000")
		return
	}

	results, err := h.sync.RunBackfill(r.Context(), from, to, req.PageLimit)
	if err != nil {
		if errors.Is(err, syncsvc.ErrSyncInProgress) {
			httputil.Conflict(w, err.Error(), nil)
			return
		}
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, map[string]interface{}{"tenants": results})
}

type linkRequest struct {
	ClientID string `json:"clientId"`
}

// LinkCampaign sets a campaign's client link manually, overriding any
// auto-match.
func (h *Handler) LinkCampaign(w http.ResponseWriter, r *http.Request) {
	campaignID, err := uuid.Parse(chi.URLParam(r, "campaignID"))
	if err != nil {
		httputil.BadRequest(w, "invalid campaign id")
		return
	}

	var req linkRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	clientID, err := uuid.Parse(req.ClientID)
	if err != nil {
		httputil.BadRequest(w, "invalid client id")
		return
	}

	if err := h.campaigns.Link(r.Context(), campaignID, clientID); err != nil {
		if errors.Is(err, postgres.ErrNotFound) {
			httputil.NotFound(w, "campaign not found")
			return
		}
		httputil.InternalError(w, err)
		return
	}

	logger.Info("campaign linked", "campaign_id", campaignID, "client_id", clientID)
	campaign, err := h.campaigns.Get(r.Context(), campaignID)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, campaign)
}

// UnlinkCampaign clears a campaign's client link.
func (h *Handler) UnlinkCampaign(w http.ResponseWriter, r *http.Request) {
	campaignID, err := uuid.Parse(chi.URLParam(r, "campaignID"))
	if err != nil {
		httputil.BadRequest(w, "invalid campaign id")
		return
	}

	if err := h.campaigns.Unlink(r.Context(), campaignID); err != nil {
		if errors.Is(err, postgres.ErrNotFound) {
			httputil.NotFound(w, "campaign not found")
			return
		}
		httputil.InternalError(w, err)
		return
	}

	logger.Info("campaign unlinked", "campaign_id", campaignID)
	campaign, err := h.campaigns.Get(r.Context(), campaignID)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, campaign)
}
