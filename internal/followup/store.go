package followup

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DB abstracts the pgx query interface for testing.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const scheduledColumns = `id, lead_email, lead_name, sequence_id, step, variables, send_at, status, attempts, last_error, sent_at, created_at, updated_at`

// Store keeps scheduled emails in the scheduled_emails table.
type Store struct {
	db  DB
	now func() time.Time
}

// NewStore creates a store on a pgx pool.
func NewStore(pool *pgxpool.Pool) *Store {
	if pool == nil {
		panic("followup: pgxpool cannot be nil")
	}
	return newStoreWithDB(pool)
}

func newStoreWithDB(db DB) *Store {
	return &Store{db: db, now: func() time.Time { return time.Now().UTC() }}
}

// Create inserts a pending scheduled email.
func (s *Store) Create(ctx context.Context, e *ScheduledEmail) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	now := s.now()
	e.CreatedAt = now
	e.UpdatedAt = now
	if e.Status == "" {
		e.Status = StatusPending
	}
	vars, err := encodeVariables(e.Variables)
	if err != nil {
		return err
	}

	_, err = s.db.Exec(ctx, `
		INSERT INTO scheduled_emails (id, lead_email, lead_name, sequence_id, step, variables, send_at, status, attempts, last_error, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 0, '', $9, $9)`,
		e.ID, e.LeadEmail, e.LeadName, e.SequenceID, e.Step, vars, e.SendAt, string(e.Status), now,
	)
	if err != nil {
		return fmt.Errorf("followup: create scheduled email: %w", err)
	}
	return nil
}

// ClaimDue locks due rows with SKIP LOCKED so parallel dispatchers split the work.
func (s *Store) ClaimDue(ctx context.Context, asOf time.Time, limit int) ([]ScheduledEmail, error) {
	if limit <= 0 {
		limit = 25
	}
	rows, err := s.db.Query(ctx, `
		UPDATE scheduled_emails SET status = 'queued', attempts = attempts + 1, updated_at = $1
		WHERE id IN (
			SELECT id FROM scheduled_emails
			WHERE status = 'pending' AND send_at <= $2
			ORDER BY send_at ASC
			LIMIT $3
			FOR UPDATE SKIP LOCKED
		)
		RETURNING `+scheduledColumns, s.now(), asOf, limit)
	if err != nil {
		return nil, fmt.Errorf("followup: claim due: %w", err)
	}
	defer rows.Close()
	return scanScheduled(rows)
}

func (s *Store) ReleaseStale(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE scheduled_emails SET status = 'pending', updated_at = $1
		WHERE status = 'queued' AND updated_at < $2`, s.now(), cutoff)
	if err != nil {
		return 0, fmt.Errorf("followup: release stale: %w", err)
	}
	return tag.RowsAffected(), nil
}

// BeginSend transitions queued → sending for the claim identified by attempt.
func (s *Store) BeginSend(ctx context.Context, id uuid.UUID, attempt int) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE scheduled_emails SET status = 'sending', updated_at = $1
		WHERE id = $2 AND status = 'queued' AND attempts = $3`, s.now(), id, attempt)
	if err != nil {
		return fmt.Errorf("followup: begin send: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("followup: begin send %s attempt %d: %w", id, attempt, ErrNotFound)
	}
	return nil
}

// MarkSent transitions sending → sent.
func (s *Store) MarkSent(ctx context.Context, id uuid.UUID) error {
	now := s.now()
	tag, err := s.db.Exec(ctx, `
		UPDATE scheduled_emails SET status = 'sent', sent_at = $1, last_error = '', updated_at = $1
		WHERE id = $2 AND status = 'sending'`, now, id)
	if err != nil {
		return fmt.Errorf("followup: mark sent: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("followup: mark sent %s: %w", id, ErrNotFound)
	}
	return nil
}

// MarkFailed transitions sending → failed and records the reason.
func (s *Store) MarkFailed(ctx context.Context, id uuid.UUID, reason string) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE scheduled_emails SET status = 'failed', last_error = $1, updated_at = $2
		WHERE id = $3 AND status = 'sending'`, truncate(reason, 500), s.now(), id)
	if err != nil {
		return fmt.Errorf("followup: mark failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("followup: mark failed %s: %w", id, ErrNotFound)
	}
	return nil
}

// CancelForEmail cancels every pending step for a lead.
func (s *Store) CancelForEmail(ctx context.Context, email string) (int64, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE scheduled_emails SET status = 'cancelled', updated_at = $1
		WHERE lower(lead_email) = lower($2) AND status = 'pending'`, s.now(), strings.TrimSpace(email))
	if err != nil {
		return 0, fmt.Errorf("followup: cancel: %w", err)
	}
	return tag.RowsAffected(), nil
}

// ListByEmail returns every scheduled email for a lead in send order.
func (s *Store) ListByEmail(ctx context.Context, email string) ([]ScheduledEmail, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+scheduledColumns+`
		FROM scheduled_emails
		WHERE lower(lead_email) = lower($1)
		ORDER BY send_at ASC, step ASC`, strings.TrimSpace(email))
	if err != nil {
		return nil, fmt.Errorf("followup: list by email: %w", err)
	}
	defer rows.Close()
	return scanScheduled(rows)
}

func scanScheduled(rows pgx.Rows) ([]ScheduledEmail, error) {
	var out []ScheduledEmail
	for rows.Next() {
		var (
			e      ScheduledEmail
			status string
			vars   []byte
		)
		if err := rows.Scan(&e.ID, &e.LeadEmail, &e.LeadName, &e.SequenceID, &e.Step, &vars, &e.SendAt,
			&status, &e.Attempts, &e.LastError, &e.SentAt, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, fmt.Errorf("followup: scan: %w", err)
		}
		e.Status = Status(status)
		if len(vars) > 0 {
			if err := json.Unmarshal(vars, &e.Variables); err != nil {
				return nil, fmt.Errorf("followup: decode variables for %s: %w", e.ID, err)
			}
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("followup: rows: %w", err)
	}
	return out, nil
}

func encodeVariables(vars map[string]string) ([]byte, error) {
	if vars == nil {
		vars = map[string]string{}
	}
	b, err := json.Marshal(vars)
	if err != nil {
		return nil, fmt.Errorf("followup: encode variables: %w", err)
	}
	return b, nil
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

var _ Repository = (*Store)(nil)
