package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/clinicops/scheduling-engine/internal/http/handlers"
	httpmiddleware "github.com/clinicops/scheduling-engine/internal/http/middleware"
	"github.com/clinicops/scheduling-engine/pkg/logging"
)

// Config holds router configuration
type Config struct {
	Logger *logging.Logger

	GridHandler  *handlers.GridHandler
	AdminHandler *handlers.AdminHandler
	CronHandler  *handlers.CronHandler

	AdminAuthSecret  string
	CronSharedSecret string

	MetricsHandler     http.Handler
	CORSAllowedOrigins []string

	// Requests per second per IP on the mutation endpoints; zero disables
	// rate limiting.
	MutationRateLimit float64
	MutationBurst     int
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	// Public endpoints
	r.Group(func(public chi.Router) {
		public.Get("/health", healthCheck)
		if cfg.MetricsHandler != nil {
			public.Handle("/metrics", cfg.MetricsHandler)
		}
	})

	// Provider-facing grid endpoints
	if cfg.GridHandler != nil {
		r.Route("/providers/{providerID}", func(pr chi.Router) {
			pr.Get("/slots", cfg.GridHandler.GetGrid)
			pr.Get("/standing", cfg.GridHandler.GetStanding)

			pr.Group(func(mut chi.Router) {
				if cfg.MutationRateLimit > 0 {
					mut.Use(httpmiddleware.RateLimit(cfg.MutationRateLimit, cfg.MutationBurst))
				}
				mut.Post("/slots/open", cfg.GridHandler.OpenSlots)
				mut.Post("/slots/close", cfg.GridHandler.CloseSlots)
				mut.Post("/slots/emergency-cancel", cfg.GridHandler.EmergencyCancel)
			})
		})
	}

	// Admin endpoints (JWT protected)
	if cfg.AdminHandler != nil {
		r.Route("/admin", func(admin chi.Router) {
			admin.Use(httpmiddleware.AdminJWT(cfg.AdminAuthSecret))
			admin.Get("/sync/stats", cfg.AdminHandler.SyncStats)
			admin.Get("/sync/failed", cfg.AdminHandler.SyncFailed)
			admin.Post("/providers/{providerID}/strikes/reset", cfg.AdminHandler.ResetStrikes)
		})
	}

	// Scheduler-invoked endpoints (shared secret)
	if cfg.CronHandler != nil {
		r.Route("/internal/cron", func(cron chi.Router) {
			cron.Use(httpmiddleware.CronSecret(cfg.CronSharedSecret))
			cron.Post("/sync-sweep", cfg.CronHandler.SyncSweep)
			cron.Post("/recompute-scores", cfg.CronHandler.RecomputeScores)
			cron.Post("/housekeeping", cfg.CronHandler.Housekeeping)
		})
	}

	return r
}

func healthCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}
