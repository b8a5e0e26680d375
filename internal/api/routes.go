package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// Routes builds the router. Sync triggers get a long timeout because they
// run synchronously and return the run summary.
func Routes(h *Handler) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", h.Health)

	r.Route("/api", func(r chi.Router) {
		r.Route("/sync", func(r chi.Router) {
			r.With(middleware.Timeout(30*time.Minute)).Post("/all", h.TriggerFullSync)
			r.With(middleware.Timeout(30*time.Minute)).Post("/{tenantID}", h.TriggerTenantSync)
			r.Get("/status", h.SyncStatus)
			r.Get("/logs", h.SyncLogs)
		})

		r.With(middleware.Timeout(2*time.Hour)).Post("/backfill", h.TriggerBackfill)

		r.Route("/campaigns/{campaignID}", func(r chi.Router) {
			r.Post("/link", h.LinkCampaign)
			r.Post("/unlink", h.UnlinkCampaign)
		})
	})

	return r
}
