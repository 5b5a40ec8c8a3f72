package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"mime"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/wolfman30/agency-leads/internal/intake"
	"github.com/wolfman30/agency-leads/internal/leads"
	"github.com/wolfman30/agency-leads/pkg/logging"
)

const maxContactBody = 32 << 10

// Submitter runs one contact form submission.
type Submitter interface {
	Submit(ctx context.Context, in intake.Input) intake.Result
}

// ContactHandler serves POST /api/contact.
type ContactHandler struct {
	pipeline Submitter
	logger   *logging.Logger
}

func NewContactHandler(pipeline Submitter, logger *logging.Logger) *ContactHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &ContactHandler{pipeline: pipeline, logger: logger}
}

// Submit accepts form-encoded or JSON bodies. The body is always the
// intake response shape, whatever the status code.
func (h *ContactHandler) Submit(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxContactBody)
	values, err := readContactValues(r)
	if err != nil {
		h.logger.Info("contact: unreadable body", "error", err, "remote_ip", r.RemoteAddr)
		writeJSON(w, http.StatusBadRequest, intake.Response{
			Success: false,
			Message: "Please check the form and try again.",
			Error:   intake.CodeValidationFailed,
		})
		return
	}

	res := h.pipeline.Submit(r.Context(), intake.Input{
		Values: values,
		Meta: leads.RequestMeta{
			IPAddress:  remoteIP(r),
			UserAgent:  r.UserAgent(),
			RefererURL: r.Referer(),
		},
	})
	if res.RetryAfter > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(res.RetryAfter.Seconds()))))
	}
	writeJSON(w, res.HTTPStatus(), res.Response)
}

func readContactValues(r *http.Request) (map[string]string, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch mediaType {
	case "application/json":
		var raw map[string]any
		dec := json.NewDecoder(r.Body)
		dec.UseNumber()
		if err := dec.Decode(&raw); err != nil {
			return nil, err
		}
		values := make(map[string]string, len(raw))
		for k, v := range raw {
			switch tv := v.(type) {
			case string:
				values[k] = tv
			case json.Number:
				values[k] = tv.String()
			case nil:
			default:
				return nil, errors.New("contact: field " + k + " must be a string")
			}
		}
		return values, nil
	case "application/x-www-form-urlencoded", "multipart/form-data":
		if err := r.ParseMultipartForm(maxContactBody); err != nil && !errors.Is(err, http.ErrNotMultipart) {
			return nil, err
		}
		return leads.FromURLValues(r.PostForm), nil
	case "":
		return nil, errors.New("contact: missing content type")
	default:
		return nil, errors.New("contact: unsupported content type " + mediaType)
	}
}

// remoteIP expects TrustedRealIP to have rewritten RemoteAddr already.
func remoteIP(r *http.Request) string {
	addr := strings.TrimSpace(r.RemoteAddr)
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return addr
}
