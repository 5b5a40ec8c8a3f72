package leads

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Repository defines the interface for lead storage
type Repository interface {
	Insert(ctx context.Context, rec *LeadRecord) (string, error)
	GetByID(ctx context.Context, id string) (*LeadRecord, error)
	List(ctx context.Context, filter ListFilter) ([]*LeadRecord, error)
}

// InMemoryRepository keeps leads in a map. Used in development and tests.
type InMemoryRepository struct {
	mu    sync.RWMutex
	leads map[string]*LeadRecord
}

// NewInMemoryRepository creates a new in-memory repository
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		leads: make(map[string]*LeadRecord),
	}
}

// Insert stores a copy of rec and fills in its ID, status and timestamp.
func (r *InMemoryRepository) Insert(ctx context.Context, rec *LeadRecord) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.Status == "" {
		rec.Status = StatusNew
	}
	rec.CreatedAt = time.Now().UTC()

	stored := *rec
	r.mu.Lock()
	r.leads[stored.ID] = &stored
	r.mu.Unlock()

	return stored.ID, nil
}

// GetByID retrieves a lead by ID
func (r *InMemoryRepository) GetByID(ctx context.Context, id string) (*LeadRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	lead, ok := r.leads[id]
	if !ok {
		return nil, ErrLeadNotFound
	}
	out := *lead
	return &out, nil
}

// List returns leads newest first.
func (r *InMemoryRepository) List(ctx context.Context, filter ListFilter) ([]*LeadRecord, error) {
	r.mu.RLock()
	all := make([]*LeadRecord, 0, len(r.leads))
	for _, lead := range r.leads {
		if filter.Status != "" && lead.Status != filter.Status {
			continue
		}
		out := *lead
		all = append(all, &out)
	}
	r.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })

	if filter.Offset >= len(all) {
		return []*LeadRecord{}, nil
	}
	all = all[filter.Offset:]
	if filter.Limit > 0 && filter.Limit < len(all) {
		all = all[:filter.Limit]
	}
	return all, nil
}

// Count returns how many leads are stored.
func (r *InMemoryRepository) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.leads)
}
