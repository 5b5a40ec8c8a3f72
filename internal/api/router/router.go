package router

import (
	"context"
	"encoding/json"
	"net/http"
	"net/netip"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/wolfman30/agency-leads/internal/csp"
	"github.com/wolfman30/agency-leads/internal/http/handlers"
	httpmiddleware "github.com/wolfman30/agency-leads/internal/http/middleware"
	"github.com/wolfman30/agency-leads/internal/leads"
	"github.com/wolfman30/agency-leads/internal/ratelimit"
	"github.com/wolfman30/agency-leads/pkg/logging"
)

// Check reports whether a dependency is reachable.
type Check func(ctx context.Context) error

// Config holds router configuration
type Config struct {
	Logger *logging.Logger

	Contact        *handlers.ContactHandler
	CSP            *csp.Handler
	LeadsHandler   *leads.Handler
	AdminFollowups *handlers.AdminFollowupsHandler
	AdminDashboard *handlers.AdminDashboardHandler

	// APILimiter throttles every request per client IP when set.
	APILimiter ratelimit.Limiter

	AdminAuthSecret    string
	MetricsHandler     http.Handler
	CORSAllowedOrigins []string
	// TrustedProxies may set X-Forwarded-For; nobody else can.
	TrustedProxies []netip.Prefix

	// HealthChecks run on GET /health; any failure reports 503.
	HealthChecks map[string]Check
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(httpmiddleware.TrustedRealIP(cfg.TrustedProxies))
	r.Use(middleware.Recoverer)
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	r.Get("/health", health(cfg.HealthChecks))
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	r.Route("/api", func(api chi.Router) {
		if cfg.APILimiter != nil {
			api.Use(httpmiddleware.RateLimit(cfg.APILimiter))
		}
		if cfg.Contact != nil {
			api.Post("/contact", cfg.Contact.Submit)
		}
		if cfg.CSP != nil {
			api.Post("/csp-report", cfg.CSP.Collect)
		}
	})

	if cfg.AdminAuthSecret != "" {
		r.Route("/admin", func(admin chi.Router) {
			admin.Use(httpmiddleware.AdminJWT(cfg.AdminAuthSecret))
			if cfg.LeadsHandler != nil {
				admin.Get("/leads", cfg.LeadsHandler.ListLeads)
				admin.Get("/leads/{leadID}", cfg.LeadsHandler.GetLead)
			}
			if cfg.AdminDashboard != nil {
				admin.Get("/stats", cfg.AdminDashboard.GetStats)
			}
			if cfg.AdminFollowups != nil {
				admin.Get("/followups", cfg.AdminFollowups.List)
				admin.Post("/followups/cancel", cfg.AdminFollowups.Cancel)
			}
			if cfg.CSP != nil {
				admin.Get("/csp-violations", cfg.CSP.List)
			}
		})
	}

	return r
}

func health(checks map[string]Check) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		resp := map[string]string{"status": "ok"}
		for name, check := range checks {
			if err := check(ctx); err != nil {
				status = http.StatusServiceUnavailable
				resp["status"] = "degraded"
				resp[name] = "unavailable"
				continue
			}
			resp[name] = "ok"
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(resp)
	}
}
