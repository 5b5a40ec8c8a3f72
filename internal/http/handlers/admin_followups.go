package handlers

import (
	"encoding/json"
	"net/http"
	"net/mail"
	"strings"

	"github.com/wolfman30/agency-leads/internal/followup"
	"github.com/wolfman30/agency-leads/pkg/logging"
)

// AdminFollowupsHandler exposes scheduled follow-up emails to operators.
type AdminFollowupsHandler struct {
	repo   followup.Repository
	logger *logging.Logger
}

func NewAdminFollowupsHandler(repo followup.Repository, logger *logging.Logger) *AdminFollowupsHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &AdminFollowupsHandler{repo: repo, logger: logger}
}

// List handles GET /admin/followups?email=
func (h *AdminFollowupsHandler) List(w http.ResponseWriter, r *http.Request) {
	email, ok := parseEmail(r.URL.Query().Get("email"))
	if !ok {
		jsonError(w, "a valid email query parameter is required", http.StatusBadRequest)
		return
	}
	rows, err := h.repo.ListByEmail(r.Context(), email)
	if err != nil {
		h.logger.Error("admin: list followups", "email", email, "error", err)
		jsonError(w, "failed to list followups", http.StatusInternalServerError)
		return
	}
	if rows == nil {
		rows = []followup.ScheduledEmail{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"email":     email,
		"followups": rows,
		"count":     len(rows),
	})
}

type cancelRequest struct {
	Email string `json:"email"`
}

// Cancel handles POST /admin/followups/cancel
func (h *AdminFollowupsHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	var req cancelRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4<<10)).Decode(&req); err != nil {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	email, ok := parseEmail(req.Email)
	if !ok {
		jsonError(w, "a valid email is required", http.StatusBadRequest)
		return
	}
	n, err := h.repo.CancelForEmail(r.Context(), email)
	if err != nil {
		h.logger.Error("admin: cancel followups", "email", email, "error", err)
		jsonError(w, "failed to cancel followups", http.StatusInternalServerError)
		return
	}
	h.logger.Info("admin: followups cancelled", "email", email, "cancelled", n)
	writeJSON(w, http.StatusOK, map[string]any{"email": email, "cancelled": n})
}

func parseEmail(raw string) (string, bool) {
	raw = strings.ToLower(strings.TrimSpace(raw))
	if raw == "" {
		return "", false
	}
	addr, err := mail.ParseAddress(raw)
	if err != nil || addr.Address != raw {
		return "", false
	}
	return raw, true
}
