package csp

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/wolfman30/agency-leads/internal/observability/metrics"
	"github.com/wolfman30/agency-leads/pkg/logging"
)

// maxReportBytes caps a single report body.
const maxReportBytes = 64 << 10

var errEmptyReport = errors.New("csp: empty report")

// report is the legacy report-uri body. Browsers send kebab-case keys.
type report struct {
	Body struct {
		DocumentURI        string `json:"document-uri"`
		Referrer           string `json:"referrer"`
		ViolatedDirective  string `json:"violated-directive"`
		EffectiveDirective string `json:"effective-directive"`
		OriginalPolicy     string `json:"original-policy"`
		BlockedURI         string `json:"blocked-uri"`
		SourceFile         string `json:"source-file"`
		LineNumber         int    `json:"line-number"`
		ColumnNumber       int    `json:"column-number"`
		StatusCode         int    `json:"status-code"`
	} `json:"csp-report"`
}

// Handler serves the report collector and the admin listing.
type Handler struct {
	store   *Store
	metrics *metrics.IntakeMetrics
	logger  *logging.Logger
	now     func() time.Time
}

func NewHandler(store *Store, m *metrics.IntakeMetrics, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{store: store, metrics: m, logger: logger, now: time.Now}
}

// Collect handles POST /api/csp-report.
func (h *Handler) Collect(w http.ResponseWriter, r *http.Request) {
	ct := strings.ToLower(r.Header.Get("Content-Type"))
	if !strings.HasPrefix(ct, "application/csp-report") && !strings.HasPrefix(ct, "application/json") {
		http.Error(w, "unsupported content type", http.StatusUnsupportedMediaType)
		return
	}

	v, err := decodeReport(io.LimitReader(r.Body, maxReportBytes))
	if err != nil {
		h.logger.Info("csp: rejected report", "error", err)
		http.Error(w, "invalid report", http.StatusBadRequest)
		return
	}
	v.UserAgent = r.UserAgent()
	v.ReceivedAt = h.now().UTC()

	h.store.Add(v)
	h.metrics.ObserveCSPReport()
	h.logger.Warn("csp: violation reported",
		"directive", v.ViolatedDirective,
		"blocked_uri", v.BlockedURI,
		"document_uri", v.DocumentURI,
	)
	w.WriteHeader(http.StatusNoContent)
}

// List handles GET /admin/csp-violations.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}

	violations := h.store.Recent(limit)
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]any{
		"violations": violations,
		"count":      len(violations),
		"total":      h.store.Len(),
	}); err != nil {
		h.logger.Error("csp: encode violations", "error", err)
	}
}

func decodeReport(body io.Reader) (Violation, error) {
	var rep report
	if err := json.NewDecoder(body).Decode(&rep); err != nil {
		return Violation{}, err
	}
	b := rep.Body
	if b.DocumentURI == "" && b.ViolatedDirective == "" && b.BlockedURI == "" {
		return Violation{}, errEmptyReport
	}
	return Violation{
		DocumentURI:        b.DocumentURI,
		Referrer:           b.Referrer,
		ViolatedDirective:  b.ViolatedDirective,
		EffectiveDirective: b.EffectiveDirective,
		OriginalPolicy:     b.OriginalPolicy,
		BlockedURI:         b.BlockedURI,
		SourceFile:         b.SourceFile,
		LineNumber:         b.LineNumber,
		ColumnNumber:       b.ColumnNumber,
		StatusCode:         b.StatusCode,
	}, nil
}
