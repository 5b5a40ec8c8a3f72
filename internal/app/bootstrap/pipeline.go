package bootstrap

import (
	"net/http"

	appconfig "github.com/wolfman30/agency-leads/internal/config"
	"github.com/wolfman30/agency-leads/internal/intake"
	"github.com/wolfman30/agency-leads/internal/notify"
	"github.com/wolfman30/agency-leads/internal/observability/metrics"
	"github.com/wolfman30/agency-leads/internal/ratelimit"
	"github.com/wolfman30/agency-leads/internal/sequences"
	"github.com/wolfman30/agency-leads/pkg/logging"
)

// PipelineParts are the already built collaborators of the intake pipeline.
// Leave a field nil to disable that channel.
type PipelineParts struct {
	Limiter    ratelimit.Limiter
	Email      notify.EmailSender
	Catalog    *sequences.Catalog
	Leads      intake.LeadStore
	Scheduler  intake.FollowUpScheduler
	HTTPClient *http.Client
	Metrics    *metrics.IntakeMetrics
}

// BuildPipeline assembles the intake pipeline from config and parts.
func BuildPipeline(cfg *appconfig.Config, parts PipelineParts, logger *logging.Logger) *intake.Pipeline {
	if logger == nil {
		logger = logging.Default()
	}
	deps := intake.Deps{
		Email:     parts.Email,
		Catalog:   parts.Catalog,
		Leads:     parts.Leads,
		Scheduler: parts.Scheduler,
		SiteURL:   cfg.SiteURL,
		Timeouts: intake.Timeouts{
			Email:   cfg.EmailSendTimeout,
			Webhook: cfg.WebhookTimeout,
		},
		Metrics: parts.Metrics,
		Logger:  logger,
	}
	if parts.Limiter != nil {
		deps.Gate = ratelimit.NewGate(parts.Limiter, ratelimit.GateConfig{
			Bucket:     ratelimit.ContactFormBucket,
			FailClosed: cfg.RateLimitFailClosed,
			Metrics:    parts.Metrics,
			Logger:     logger,
		})
	}
	// Constructors below return typed nil pointers when unconfigured; only
	// assign them when set so the interface fields stay nil.
	if admin := notify.NewAdminNotifier(parts.Email, cfg.AdminEmails, logger); admin != nil {
		deps.Admin = admin
	}
	if webhook := notify.NewWebhookClient(notify.WebhookConfig{
		URL:     cfg.WebhookURL,
		Timeout: cfg.WebhookTimeout,
	}, parts.HTTPClient, logger); webhook != nil {
		deps.Webhook = webhook
	}

	p := intake.NewPipeline(deps)
	logger.Info("intake pipeline ready",
		"email_configured", p.EmailConfigured(),
		"admin_recipients", len(cfg.AdminEmails),
		"webhook", deps.Webhook != nil,
		"lead_store", deps.Leads != nil,
		"followups", deps.Scheduler != nil,
	)
	return p
}
