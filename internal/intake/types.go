// Package intake runs a contact form submission through rate limiting,
// validation, scanning, scoring and the notification fanout.
package intake

import (
	"net/http"
	"time"

	"github.com/wolfman30/agency-leads/internal/leads"
	"github.com/wolfman30/agency-leads/internal/scoring"
)

// Error codes returned to the caller.
const (
	CodeRateLimited      = "rate_limited"
	CodeValidationFailed = "validation_failed"
	CodeSendFailed       = "send_failed"
	CodeUnexpected       = "unexpected"
)

// Response is the only shape the caller ever sees.
type Response struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Stage is where a request stopped.
type Stage string

const (
	StageRateLimited Stage = "rate_limited"
	StageInvalid     Stage = "invalid"
	StageReported    Stage = "reported"
	StageFailed      Stage = "failed"
)

// Input is one raw submission plus its request context.
type Input struct {
	Values map[string]string
	Meta   leads.RequestMeta
}

// Outcome records which fanout channels succeeded.
type Outcome struct {
	AdminEmailSent    bool   `json:"adminEmailSent"`
	WelcomeEmailSent  bool   `json:"welcomeEmailSent"`
	WebhookSent       bool   `json:"webhookSent"`
	LeadPersisted     bool   `json:"leadPersisted"`
	FollowUpScheduled bool   `json:"followUpScheduled"`
	LeadID            string `json:"leadId,omitempty"`
}

// Result is returned by Submit as soon as the response is decided.
type Result struct {
	Response Response
	Stage    Stage
	// Scoring is nil when the request stopped before scoring.
	Scoring    *scoring.Result
	RetryAfter time.Duration

	fan *fanout
}

// Wait blocks until every fanout channel has finished and returns what each
// one achieved. Requests that never reached the fanout return a zero Outcome.
func (r Result) Wait() Outcome {
	if r.fan == nil {
		return Outcome{}
	}
	return r.fan.wait()
}

// HTTPStatus maps the result onto a status code.
func (r Result) HTTPStatus() int {
	switch r.Response.Error {
	case "":
		return http.StatusOK
	case CodeRateLimited:
		return http.StatusTooManyRequests
	case CodeValidationFailed:
		return http.StatusBadRequest
	case CodeSendFailed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
