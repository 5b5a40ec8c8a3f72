package followup

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-process Repository for local runs and tests.
type MemoryStore struct {
	mu   sync.Mutex
	rows map[uuid.UUID]*ScheduledEmail
	now  func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		rows: make(map[uuid.UUID]*ScheduledEmail),
		now:  func() time.Time { return time.Now().UTC() },
	}
}

func (m *MemoryStore) Create(_ context.Context, e *ScheduledEmail) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	now := m.now()
	e.CreatedAt, e.UpdatedAt = now, now
	if e.Status == "" {
		e.Status = StatusPending
	}
	m.rows[e.ID] = cloneEmail(e)
	return nil
}

func (m *MemoryStore) ClaimDue(_ context.Context, asOf time.Time, limit int) ([]ScheduledEmail, error) {
	if limit <= 0 {
		limit = 25
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	var due []*ScheduledEmail
	for _, e := range m.rows {
		if e.Status == StatusPending && !e.SendAt.After(asOf) {
			due = append(due, e)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].SendAt.Before(due[j].SendAt) })
	if len(due) > limit {
		due = due[:limit]
	}
	now := m.now()
	out := make([]ScheduledEmail, 0, len(due))
	for _, e := range due {
		e.Status = StatusQueued
		e.Attempts++
		e.UpdatedAt = now
		out = append(out, *cloneEmail(e))
	}
	return out, nil
}

func (m *MemoryStore) ReleaseStale(_ context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, e := range m.rows {
		if e.Status == StatusQueued && e.UpdatedAt.Before(cutoff) {
			e.Status = StatusPending
			e.UpdatedAt = m.now()
			n++
		}
	}
	return n, nil
}

func (m *MemoryStore) BeginSend(_ context.Context, id uuid.UUID, attempt int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.rows[id]
	if !ok || e.Status != StatusQueued || e.Attempts != attempt {
		return fmt.Errorf("followup: begin send %s attempt %d: %w", id, attempt, ErrNotFound)
	}
	e.Status = StatusSending
	e.UpdatedAt = m.now()
	return nil
}

func (m *MemoryStore) MarkSent(_ context.Context, id uuid.UUID) error {
	return m.transition(id, func(e *ScheduledEmail, now time.Time) {
		e.Status = StatusSent
		e.SentAt = &now
		e.LastError = ""
	})
}

func (m *MemoryStore) MarkFailed(_ context.Context, id uuid.UUID, reason string) error {
	return m.transition(id, func(e *ScheduledEmail, _ time.Time) {
		e.Status = StatusFailed
		e.LastError = truncate(reason, 500)
	})
}

func (m *MemoryStore) transition(id uuid.UUID, apply func(*ScheduledEmail, time.Time)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.rows[id]
	if !ok || e.Status != StatusSending {
		return fmt.Errorf("followup: %s: %w", id, ErrNotFound)
	}
	now := m.now()
	apply(e, now)
	e.UpdatedAt = now
	return nil
}

func (m *MemoryStore) CancelForEmail(_ context.Context, email string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, e := range m.rows {
		if strings.EqualFold(e.LeadEmail, strings.TrimSpace(email)) && e.Status == StatusPending {
			e.Status = StatusCancelled
			e.UpdatedAt = m.now()
			n++
		}
	}
	return n, nil
}

func (m *MemoryStore) ListByEmail(_ context.Context, email string) ([]ScheduledEmail, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []ScheduledEmail
	for _, e := range m.rows {
		if strings.EqualFold(e.LeadEmail, strings.TrimSpace(email)) {
			out = append(out, *cloneEmail(e))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SendAt.Equal(out[j].SendAt) {
			return out[i].Step < out[j].Step
		}
		return out[i].SendAt.Before(out[j].SendAt)
	})
	return out, nil
}

func cloneEmail(e *ScheduledEmail) *ScheduledEmail {
	c := *e
	if e.Variables != nil {
		c.Variables = make(map[string]string, len(e.Variables))
		for k, v := range e.Variables {
			c.Variables[k] = v
		}
	}
	if e.SentAt != nil {
		t := *e.SentAt
		c.SentAt = &t
	}
	return &c
}

var _ Repository = (*MemoryStore)(nil)
