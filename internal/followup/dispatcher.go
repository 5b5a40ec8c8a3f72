package followup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/wolfman30/agency-leads/internal/observability/metrics"
	"github.com/wolfman30/agency-leads/pkg/logging"
)

// Dispatcher claims due rows and publishes them as jobs.
type Dispatcher struct {
	store      Repository
	queue      Queue
	interval   time.Duration
	batchSize  int
	staleAfter time.Duration
	now        func() time.Time
	metrics    *metrics.IntakeMetrics
	logger     *logging.Logger
}

// DispatcherConfig configures polling.
type DispatcherConfig struct {
	Interval  time.Duration
	BatchSize int
	// StaleAfter is how long a row may sit in queued before it is retried.
	StaleAfter time.Duration
	Metrics    *metrics.IntakeMetrics
	Logger     *logging.Logger
}

func NewDispatcher(store Repository, queue Queue, cfg DispatcherConfig) *Dispatcher {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 25
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = 15 * time.Minute
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	return &Dispatcher{
		store:      store,
		queue:      queue,
		interval:   cfg.Interval,
		batchSize:  cfg.BatchSize,
		staleAfter: cfg.StaleAfter,
		now:        func() time.Time { return time.Now().UTC() },
		metrics:    cfg.Metrics,
		logger:     cfg.Logger,
	}
}

// Run polls until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) error {
	d.logger.Info("followup dispatcher started", "interval", d.interval.String(), "batch_size", d.batchSize)
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()
	for {
		if _, err := d.DispatchDue(ctx); err != nil && !errors.Is(err, context.Canceled) {
			d.logger.Error("followup dispatcher: tick failed", "error", err)
		}
		select {
		case <-ctx.Done():
			d.logger.Info("followup dispatcher stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// DispatchDue runs one poll: stale claims are released, then due rows are
// claimed and enqueued. Rows whose enqueue fails stay queued until released.
func (d *Dispatcher) DispatchDue(ctx context.Context) (int, error) {
	now := d.now()
	if released, err := d.store.ReleaseStale(ctx, now.Add(-d.staleAfter)); err != nil {
		d.logger.Warn("followup dispatcher: release stale failed", "error", err)
	} else if released > 0 {
		d.logger.Warn("followup dispatcher: released stale claims", "count", released)
	}

	due, err := d.store.ClaimDue(ctx, now, d.batchSize)
	if err != nil {
		return 0, fmt.Errorf("followup dispatcher: claim: %w", err)
	}

	published := 0
	for _, e := range due {
		body, err := json.Marshal(jobFor(e))
		if err != nil {
			d.logger.Error("followup dispatcher: encode job", "id", e.ID, "error", err)
			continue
		}
		if err := d.queue.Send(ctx, string(body)); err != nil {
			d.logger.Error("followup dispatcher: enqueue failed", "id", e.ID, "email", e.LeadEmail, "error", err)
			d.metrics.ObserveFollowupJob("enqueue_failed")
			continue
		}
		d.metrics.ObserveFollowupJob("enqueued")
		published++
	}
	if len(due) > 0 {
		d.logger.Info("followup dispatcher: published jobs", "claimed", len(due), "published", published)
	}
	return published, nil
}
