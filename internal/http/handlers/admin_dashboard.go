package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/wolfman30/agency-leads/internal/dashboard"
	"github.com/wolfman30/agency-leads/pkg/logging"
)

// StatsSource computes the dashboard overview.
type StatsSource interface {
	Stats(ctx context.Context, since time.Time) (*dashboard.Stats, error)
}

// AdminDashboardHandler handles the dashboard overview endpoint.
type AdminDashboardHandler struct {
	stats  StatsSource
	logger *logging.Logger
	now    func() time.Time
}

// NewAdminDashboardHandler creates a new admin dashboard handler.
func NewAdminDashboardHandler(stats StatsSource, logger *logging.Logger) *AdminDashboardHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &AdminDashboardHandler{stats: stats, logger: logger, now: time.Now}
}

var periods = map[string]time.Duration{
	"day":   24 * time.Hour,
	"week":  7 * 24 * time.Hour,
	"month": 30 * 24 * time.Hour,
}

// GetStats returns lead counts by status and category.
// GET /admin/stats?period=day|week|month
func (h *AdminDashboardHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	period := r.URL.Query().Get("period")
	if period == "" {
		period = "week"
	}
	span, ok := periods[period]
	if !ok {
		jsonError(w, "period must be day, week or month", http.StatusBadRequest)
		return
	}

	st, err := h.stats.Stats(r.Context(), h.now().Add(-span))
	if err != nil {
		h.logger.Error("admin: dashboard stats", "error", err)
		jsonError(w, "failed to load stats", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"period": period,
		"stats":  st,
	})
}
