// Package csp collects Content-Security-Policy violation reports sent by
// browsers and keeps the most recent ones for the admin API.
package csp

import (
	"sync"
	"time"
)

// DefaultCapacity is how many reports a Store keeps when none is configured.
const DefaultCapacity = 1000

// Violation is one browser CSP report.
type Violation struct {
	DocumentURI        string    `json:"document_uri"`
	Referrer           string    `json:"referrer,omitempty"`
	ViolatedDirective  string    `json:"violated_directive"`
	EffectiveDirective string    `json:"effective_directive,omitempty"`
	OriginalPolicy     string    `json:"original_policy,omitempty"`
	BlockedURI         string    `json:"blocked_uri"`
	SourceFile         string    `json:"source_file,omitempty"`
	LineNumber         int       `json:"line_number,omitempty"`
	ColumnNumber       int       `json:"column_number,omitempty"`
	StatusCode         int       `json:"status_code,omitempty"`
	UserAgent          string    `json:"user_agent,omitempty"`
	ReceivedAt         time.Time `json:"received_at"`
}

// Store is a bounded ring buffer of violations. When full, the oldest report
// is overwritten.
type Store struct {
	mu    sync.Mutex
	buf   []Violation
	next  int
	count int
}

// NewStore returns a store holding at most capacity reports.
func NewStore(capacity int) *Store {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Store{buf: make([]Violation, capacity)}
}

// Add records v.
func (s *Store) Add(v Violation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buf[s.next] = v
	s.next = (s.next + 1) % len(s.buf)
	if s.count < len(s.buf) {
		s.count++
	}
}

// Recent returns up to n reports, newest first. n <= 0 returns everything.
func (s *Store) Recent(n int) []Violation {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n <= 0 || n > s.count {
		n = s.count
	}
	out := make([]Violation, 0, n)
	idx := s.next
	for i := 0; i < n; i++ {
		idx = (idx - 1 + len(s.buf)) % len(s.buf)
		out = append(out, s.buf[idx])
	}
	return out
}

// Len reports how many reports are held.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count
}

// Cap reports the store capacity.
func (s *Store) Cap() int {
	return len(s.buf)
}
