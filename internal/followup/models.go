// Package followup schedules and delivers the delayed steps of a lead's
// email sequence.
package followup

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when an update matches no row in the expected state.
var ErrNotFound = errors.New("followup: scheduled email not found")

// Status is the delivery state of a scheduled email.
type Status string

const (
	StatusPending   Status = "pending"
	StatusQueued    Status = "queued"
	StatusSending   Status = "sending"
	StatusSent      Status = "sent"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// ScheduledEmail is one future step of a sequence for one lead.
type ScheduledEmail struct {
	ID         uuid.UUID         `json:"id"`
	LeadEmail  string            `json:"lead_email"`
	LeadName   string            `json:"lead_name"`
	SequenceID string            `json:"sequence_id"`
	Step       int               `json:"step"`
	Variables  map[string]string `json:"variables"`
	SendAt     time.Time         `json:"send_at"`
	Status     Status            `json:"status"`
	Attempts   int               `json:"attempts"`
	LastError  string            `json:"last_error,omitempty"`
	SentAt     *time.Time        `json:"sent_at,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
	UpdatedAt  time.Time         `json:"updated_at"`
}

// Repository persists scheduled emails.
type Repository interface {
	Create(ctx context.Context, e *ScheduledEmail) error
	// ClaimDue moves up to limit pending rows due at asOf to queued and
	// returns them. Concurrent callers never claim the same row.
	ClaimDue(ctx context.Context, asOf time.Time, limit int) ([]ScheduledEmail, error)
	// ReleaseStale returns rows stuck in queued since before cutoff to pending.
	// Rows already in sending are never released.
	ReleaseStale(ctx context.Context, cutoff time.Time) (int64, error)
	// BeginSend moves a queued row to sending when attempts still equals the
	// claim the job was published with. ErrNotFound means the job is stale.
	BeginSend(ctx context.Context, id uuid.UUID, attempt int) error
	MarkSent(ctx context.Context, id uuid.UUID) error
	MarkFailed(ctx context.Context, id uuid.UUID, reason string) error
	CancelForEmail(ctx context.Context, email string) (int64, error)
	ListByEmail(ctx context.Context, email string) ([]ScheduledEmail, error)
}

// Job is the queue payload for one claimed email.
type Job struct {
	ID         uuid.UUID         `json:"id"`
	LeadEmail  string            `json:"lead_email"`
	LeadName   string            `json:"lead_name"`
	SequenceID string            `json:"sequence_id"`
	Step       int               `json:"step"`
	Variables  map[string]string `json:"variables"`
	// Attempt is the row's attempts value at claim time.
	Attempt int `json:"attempt"`
}

func jobFor(e ScheduledEmail) Job {
	return Job{
		ID:         e.ID,
		LeadEmail:  e.LeadEmail,
		LeadName:   e.LeadName,
		SequenceID: e.SequenceID,
		Step:       e.Step,
		Variables:  e.Variables,
		Attempt:    e.Attempts,
	}
}
