package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type memoryEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// MemoryLimiter keeps a token bucket per bucket+identifier in process.
// Limits are not shared between replicas.
type MemoryLimiter struct {
	policies Policies
	maxIdle  time.Duration
	now      func() time.Time

	mu      sync.Mutex
	entries map[string]*memoryEntry

	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

// MemoryOption customizes a MemoryLimiter.
type MemoryOption func(*MemoryLimiter)

// WithMaxIdle sets how long an unused entry survives before eviction.
func WithMaxIdle(d time.Duration) MemoryOption {
	return func(m *MemoryLimiter) {
		if d > 0 {
			m.maxIdle = d
		}
	}
}

// WithClock overrides time.Now (tests).
func WithClock(now func() time.Time) MemoryOption {
	return func(m *MemoryLimiter) {
		if now != nil {
			m.now = now
		}
	}
}

// NewMemoryLimiter starts a limiter with a janitor goroutine; call Close to stop it.
func NewMemoryLimiter(policies Policies, opts ...MemoryOption) *MemoryLimiter {
	m := &MemoryLimiter{
		policies: policies,
		maxIdle:  30 * time.Minute,
		now:      time.Now,
		entries:  make(map[string]*memoryEntry),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	go m.janitor()
	return m
}

// CheckLimit consumes one token. When none is available the reservation is
// cancelled and the time until the next token is reported.
func (m *MemoryLimiter) CheckLimit(_ context.Context, identifier, bucket string) (Decision, error) {
	policy, err := m.policies.lookup(bucket)
	if err != nil {
		return Decision{}, err
	}
	now := m.now()
	lim := m.entry(bucket+"|"+identifier, policy, now)

	res := lim.ReserveN(now, 1)
	if !res.OK() {
		return Decision{Limited: true, RetryAfter: policy.Window}, nil
	}
	if delay := res.DelayFrom(now); delay > 0 {
		res.CancelAt(now)
		return Decision{Limited: true, RetryAfter: delay}, nil
	}
	return Decision{}, nil
}

func (m *MemoryLimiter) entry(key string, policy Policy, now time.Time) *rate.Limiter {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	if !ok {
		every := rate.Every(policy.Window / time.Duration(policy.Limit))
		e = &memoryEntry{limiter: rate.NewLimiter(every, policy.Limit)}
		m.entries[key] = e
	}
	e.lastSeen = now
	return e.limiter
}

// Len reports the number of tracked entries.
func (m *MemoryLimiter) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// Sweep evicts entries idle for longer than maxIdle.
func (m *MemoryLimiter) Sweep() {
	cutoff := m.now().Add(-m.maxIdle)
	m.mu.Lock()
	defer m.mu.Unlock()
	for key, e := range m.entries {
		if e.lastSeen.Before(cutoff) {
			delete(m.entries, key)
		}
	}
}

func (m *MemoryLimiter) janitor() {
	defer close(m.done)
	interval := m.maxIdle / 2
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			m.Sweep()
		}
	}
}

// Close stops the janitor. Safe to call more than once.
func (m *MemoryLimiter) Close() error {
	m.stopOnce.Do(func() { close(m.stop) })
	<-m.done
	return nil
}
