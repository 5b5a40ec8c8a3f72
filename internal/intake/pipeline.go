package intake

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"
	"unicode/utf8"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/wolfman30/agency-leads/internal/followup"
	"github.com/wolfman30/agency-leads/internal/leads"
	"github.com/wolfman30/agency-leads/internal/notify"
	"github.com/wolfman30/agency-leads/internal/observability/metrics"
	"github.com/wolfman30/agency-leads/internal/ratelimit"
	"github.com/wolfman30/agency-leads/internal/scoring"
	"github.com/wolfman30/agency-leads/internal/sequences"
	"github.com/wolfman30/agency-leads/internal/threat"
	"github.com/wolfman30/agency-leads/pkg/logging"
)

var tracer = otel.Tracer("agency.internal.intake")

// RateGate decides whether an identifier may submit.
type RateGate interface {
	Check(ctx context.Context, identifier string) ratelimit.Decision
}

// AdminNotifier sends the operator email.
type AdminNotifier interface {
	NotifyNewLead(ctx context.Context, sub leads.Submission, result scoring.Result, meta leads.RequestMeta) error
}

// Webhook posts the chat alert.
type Webhook interface {
	NotifyNewLead(ctx context.Context, sub leads.Submission, result scoring.Result) error
}

// LeadStore persists accepted leads.
type LeadStore interface {
	Insert(ctx context.Context, rec *leads.LeadRecord) (string, error)
}

// FollowUpScheduler queues the later steps of a sequence.
type FollowUpScheduler interface {
	Schedule(ctx context.Context, req followup.Request) (int, error)
}

// Timeouts bound each fanout channel independently of the request.
type Timeouts struct {
	Email   time.Duration
	Webhook time.Duration
	Store   time.Duration
}

func (t Timeouts) withDefaults() Timeouts {
	if t.Email <= 0 {
		t.Email = 10 * time.Second
	}
	if t.Webhook <= 0 {
		t.Webhook = notify.DefaultWebhookTimeout
	}
	if t.Store <= 0 {
		t.Store = 10 * time.Second
	}
	return t
}

// Deps are the pipeline collaborators. A nil collaborator disables its
// channel; nil Admin or Email means email is not configured.
type Deps struct {
	Gate      RateGate
	Scanner   *threat.Scanner
	Admin     AdminNotifier
	Email     notify.EmailSender
	Catalog   *sequences.Catalog
	Webhook   Webhook
	Leads     LeadStore
	Scheduler FollowUpScheduler

	SiteURL  string
	Timeouts Timeouts
	Metrics  *metrics.IntakeMetrics
	Logger   *logging.Logger
}

// Pipeline handles contact form submissions.
type Pipeline struct {
	deps     Deps
	timeouts Timeouts
	logger   *logging.Logger
}

func NewPipeline(deps Deps) *Pipeline {
	if deps.Logger == nil {
		deps.Logger = logging.Default()
	}
	if deps.Scanner == nil {
		deps.Scanner = threat.NewScanner()
	}
	return &Pipeline{deps: deps, timeouts: deps.Timeouts.withDefaults(), logger: deps.Logger}
}

// EmailConfigured reports whether the pipeline sends email at all.
func (p *Pipeline) EmailConfigured() bool {
	return p.deps.Admin != nil && p.deps.Email != nil
}

// Submit runs one submission. It returns once the response is known; lead
// persistence, scheduling and the other secondary channels may still be
// running and can be awaited with Result.Wait.
func (p *Pipeline) Submit(ctx context.Context, in Input) (res Result) {
	started := time.Now()
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("intake: unexpected panic",
				"panic", fmt.Sprint(r),
				"ip", in.Meta.IPAddress,
				"stack", string(debug.Stack()),
			)
			res = Result{Response: Report(Verdict{Stage: StageFailed}), Stage: StageFailed}
		}
		p.deps.Metrics.ObserveSubmission(outcomeLabel(res))
		p.deps.Metrics.ObserveStage("total", time.Since(started))
	}()

	ctx, span := tracer.Start(ctx, "intake.submit")
	defer span.End()

	identifier := ratelimit.ContactIdentifier(in.Meta.IPAddress)

	var decision ratelimit.Decision
	p.stage(ctx, "rate_check", func(ctx context.Context) {
		if p.deps.Gate != nil {
			decision = p.deps.Gate.Check(ctx, identifier)
		}
	})
	if decision.Limited {
		p.logger.Info("intake: rate limited", "identifier", identifier, "retry_after", decision.RetryAfter.String())
		span.SetAttributes(attribute.String("intake.stage", string(StageRateLimited)))
		return Result{
			Response:   Report(Verdict{Stage: StageRateLimited, RetryAfter: decision.RetryAfter}),
			Stage:      StageRateLimited,
			RetryAfter: decision.RetryAfter,
		}
	}

	var (
		sub leads.Submission
		err error
	)
	p.stage(ctx, "validate", func(context.Context) {
		sub, err = leads.ParseSubmission(in.Values)
	})
	if err != nil {
		var verr *leads.ValidationError
		if !errors.As(err, &verr) {
			p.logger.Error("intake: validator failed", "identifier", identifier, "error", err)
			return Result{Response: Report(Verdict{Stage: StageFailed}), Stage: StageFailed}
		}
		fields := make([]string, 0, len(verr.Issues))
		for _, issue := range verr.Issues {
			fields = append(fields, issue.Field)
		}
		p.logger.Info("intake: validation failed", "identifier", identifier, "fields", fields)
		span.SetAttributes(attribute.String("intake.stage", string(StageInvalid)))
		return Result{
			Response: Report(Verdict{Stage: StageInvalid, ValidationMessage: verr.Message()}),
			Stage:    StageInvalid,
		}
	}

	p.stage(ctx, "scan", func(context.Context) {
		report := p.deps.Scanner.Scan(
			threat.Field{Name: "firstName", Value: sub.FirstName},
			threat.Field{Name: "lastName", Value: sub.LastName},
			threat.Field{Name: "email", Value: sub.Email},
			threat.Field{Name: "message", Value: sub.Message},
			threat.Field{Name: "company", Value: sub.Company},
		)
		if report.Suspicious {
			p.deps.Metrics.ObserveSuspicious()
			p.logger.Warn("intake: suspicious content detected",
				"identifier", identifier,
				"fields", report.FieldNames(),
				"signatures", report.Fields,
			)
		}
	})

	var scored scoring.Result
	p.stage(ctx, "score", func(context.Context) {
		scored = scoring.Score(scoring.Input{
			Service:       sub.Service,
			Budget:        sub.Budget,
			Timeline:      sub.Timeline,
			Company:       sub.Company,
			Phone:         sub.Phone,
			MessageLength: utf8.RuneCountInString(sub.Message),
		})
	})
	p.deps.Metrics.ObserveScore(scored.Score)
	span.SetAttributes(
		attribute.Int("intake.score", scored.Score),
		attribute.String("intake.sequence", string(scored.Sequence)),
	)

	var adminSent bool
	var fan *fanout
	p.stage(ctx, "fanout", func(ctx context.Context) {
		fan = p.startFanout(ctx, sub, scored, in.Meta)
		adminSent = fan.awaitAdmin()
	})

	span.SetAttributes(attribute.String("intake.stage", string(StageReported)))
	return Result{
		Response: Report(Verdict{
			Stage:           StageReported,
			EmailConfigured: p.EmailConfigured(),
			AdminEmailSent:  adminSent,
		}),
		Stage:   StageReported,
		Scoring: &scored,
		fan:     fan,
	}
}

func (p *Pipeline) stage(ctx context.Context, name string, fn func(context.Context)) {
	ctx, span := tracer.Start(ctx, "intake."+name, trace.WithSpanKind(trace.SpanKindInternal))
	start := time.Now()
	defer func() {
		p.deps.Metrics.ObserveStage(name, time.Since(start))
		span.End()
	}()
	fn(ctx)
}

func outcomeLabel(r Result) string {
	switch {
	case r.Stage == StageReported && r.Response.Success && r.Response.Message == MessageTestMode:
		return "test_mode"
	case r.Response.Success:
		return "success"
	case r.Response.Error != "":
		return r.Response.Error
	default:
		return CodeUnexpected
	}
}
