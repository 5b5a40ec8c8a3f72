package ratelimit

import (
	"context"

	"github.com/wolfman30/agency-leads/internal/observability/metrics"
	"github.com/wolfman30/agency-leads/pkg/logging"
)

// Gate applies the limiter error policy in front of the intake pipeline.
// A limiter outage allows traffic unless FailClosed is set.
type Gate struct {
	limiter    Limiter
	bucket     string
	failClosed bool
	metrics    *metrics.IntakeMetrics
	logger     *logging.Logger
}

// GateConfig configures a Gate.
type GateConfig struct {
	Bucket     string
	FailClosed bool
	Metrics    *metrics.IntakeMetrics
	Logger     *logging.Logger
}

func NewGate(limiter Limiter, cfg GateConfig) *Gate {
	if cfg.Bucket == "" {
		cfg.Bucket = ContactFormBucket
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	return &Gate{
		limiter:    limiter,
		bucket:     cfg.Bucket,
		failClosed: cfg.FailClosed,
		metrics:    cfg.Metrics,
		logger:     cfg.Logger,
	}
}

// Check returns the decision for identifier. It never returns an error; a
// failing limiter is resolved by the configured policy.
func (g *Gate) Check(ctx context.Context, identifier string) Decision {
	if g == nil || g.limiter == nil {
		return Decision{}
	}
	decision, err := g.limiter.CheckLimit(ctx, identifier, g.bucket)
	if err != nil {
		if g.failClosed {
			g.logger.Warn("rate limiter unavailable, rejecting", "identifier", identifier, "bucket", g.bucket, "error", err)
			g.metrics.ObserveRateLimit(g.bucket, "error_limited")
			return Decision{Limited: true}
		}
		g.logger.Warn("rate limiter unavailable, allowing", "identifier", identifier, "bucket", g.bucket, "error", err)
		g.metrics.ObserveRateLimit(g.bucket, "error_allowed")
		return Decision{}
	}
	if decision.Limited {
		g.metrics.ObserveRateLimit(g.bucket, "limited")
		return decision
	}
	g.metrics.ObserveRateLimit(g.bucket, "allowed")
	return decision
}
