package followup

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/wolfman30/agency-leads/internal/sequences"
	"github.com/wolfman30/agency-leads/pkg/logging"
)

// Scheduler turns a sequence into scheduled_emails rows for one lead.
type Scheduler struct {
	store   Repository
	catalog *sequences.Catalog
	now     func() time.Time
	logger  *logging.Logger
}

// NewScheduler creates a follow-up scheduler.
func NewScheduler(store Repository, catalog *sequences.Catalog, logger *logging.Logger) *Scheduler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Scheduler{
		store:   store,
		catalog: catalog,
		now:     func() time.Time { return time.Now().UTC() },
		logger:  logger,
	}
}

// Request describes the sequence to schedule for a lead.
type Request struct {
	Email      string
	Name       string
	SequenceID string
	Variables  map[string]string
	// FromStep skips earlier steps; the intake pipeline sends step 0 itself.
	FromStep int
}

// Schedule creates one pending row per remaining step and returns how many
// were created. Rows created before a failure are kept.
func (s *Scheduler) Schedule(ctx context.Context, req Request) (int, error) {
	if s == nil || s.store == nil {
		return 0, errors.New("followup: scheduler not configured")
	}
	if strings.TrimSpace(req.Email) == "" {
		return 0, errors.New("followup: schedule: recipient email required")
	}
	seq, err := s.catalog.Get(req.SequenceID)
	if err != nil {
		return 0, fmt.Errorf("followup: schedule: %w", err)
	}
	if req.FromStep < 0 {
		req.FromStep = 0
	}

	base := s.now()
	created := 0
	for i := req.FromStep; i < len(seq.Steps); i++ {
		e := &ScheduledEmail{
			LeadEmail:  req.Email,
			LeadName:   req.Name,
			SequenceID: seq.ID,
			Step:       i,
			Variables:  req.Variables,
			SendAt:     base.Add(seq.Steps[i].Delay),
			Status:     StatusPending,
		}
		if err := s.store.Create(ctx, e); err != nil {
			return created, fmt.Errorf("followup: schedule step %d: %w", i, err)
		}
		created++
	}

	s.logger.Info("followup: sequence scheduled",
		"email", req.Email,
		"sequence", seq.ID,
		"steps", created,
	)
	return created, nil
}
