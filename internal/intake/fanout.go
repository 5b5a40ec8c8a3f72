package intake

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/wolfman30/agency-leads/internal/followup"
	"github.com/wolfman30/agency-leads/internal/leads"
	"github.com/wolfman30/agency-leads/internal/notify"
	"github.com/wolfman30/agency-leads/internal/scoring"
	"github.com/wolfman30/agency-leads/internal/sequences"
)

// Channel names used in logs and metrics.
const (
	ChannelAdminEmail   = "admin_email"
	ChannelWelcomeEmail = "welcome_email"
	ChannelWebhook      = "webhook"
	ChannelLeadStore    = "lead_store"
	ChannelFollowUp     = "followup"
)

var errSkipped = errors.New("channel skipped")

// fanout tracks the five side effects of one accepted submission.
type fanout struct {
	adminDone chan struct{}
	settled   chan struct{}
	wg        sync.WaitGroup

	mu      sync.Mutex
	outcome Outcome
}

func (f *fanout) awaitAdmin() bool {
	<-f.adminDone
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.outcome.AdminEmailSent
}

func (f *fanout) wait() Outcome {
	<-f.settled
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.outcome
}

func (f *fanout) record(apply func(*Outcome)) {
	f.mu.Lock()
	apply(&f.outcome)
	f.mu.Unlock()
}

// startFanout launches every channel in its own goroutine. Channels run on a
// context detached from the request so a disconnecting client does not
// cancel them; each gets its own timeout instead.
func (p *Pipeline) startFanout(ctx context.Context, sub leads.Submission, scored scoring.Result, meta leads.RequestMeta) *fanout {
	f := &fanout{
		adminDone: make(chan struct{}),
		settled:   make(chan struct{}),
	}
	base := context.WithoutCancel(ctx)
	vars := sequences.Variables(sub, p.deps.SiteURL)

	p.launch(f, base, ChannelAdminEmail, sub, p.timeouts.Email, f.adminDone, func(ctx context.Context) error {
		if !p.EmailConfigured() {
			return errSkipped
		}
		if err := p.deps.Admin.NotifyNewLead(ctx, sub, scored, meta); err != nil {
			return err
		}
		f.record(func(o *Outcome) { o.AdminEmailSent = true })
		return nil
	})

	p.launch(f, base, ChannelWelcomeEmail, sub, p.timeouts.Email, nil, func(ctx context.Context) error {
		if !p.EmailConfigured() || p.deps.Catalog == nil {
			return errSkipped
		}
		seq, err := p.deps.Catalog.Get(string(scored.Sequence))
		if err != nil {
			p.logger.Info("intake: welcome sequence not found, skipping", "sequence", scored.Sequence)
			return errSkipped
		}
		subject, html, err := seq.Steps[0].Render(vars)
		if err != nil {
			return fmt.Errorf("render welcome: %w", err)
		}
		if _, err := p.deps.Email.Send(ctx, notify.EmailMessage{
			To:      sub.Email,
			ToName:  sub.FullName(),
			Subject: subject,
			HTML:    html,
		}); err != nil {
			return err
		}
		f.record(func(o *Outcome) { o.WelcomeEmailSent = true })
		return nil
	})

	p.launch(f, base, ChannelWebhook, sub, p.timeouts.Webhook, nil, func(ctx context.Context) error {
		if p.deps.Webhook == nil {
			return errSkipped
		}
		if err := p.deps.Webhook.NotifyNewLead(ctx, sub, scored); err != nil {
			return err
		}
		f.record(func(o *Outcome) { o.WebhookSent = true })
		return nil
	})

	p.launch(f, base, ChannelLeadStore, sub, p.timeouts.Store, nil, func(ctx context.Context) error {
		if p.deps.Leads == nil {
			return errSkipped
		}
		id, err := p.deps.Leads.Insert(ctx, leads.NewRecord(sub, scored.Score, meta))
		if err != nil {
			return err
		}
		f.record(func(o *Outcome) {
			o.LeadPersisted = true
			o.LeadID = id
		})
		return nil
	})

	// Step 0 goes out as the welcome email. Without a sender it is scheduled
	// with the rest so a worker attached later still delivers it.
	fromStep := 1
	if !p.EmailConfigured() {
		fromStep = 0
	}
	p.launch(f, base, ChannelFollowUp, sub, p.timeouts.Store, nil, func(ctx context.Context) error {
		if p.deps.Scheduler == nil {
			return errSkipped
		}
		if _, err := p.deps.Scheduler.Schedule(ctx, followup.Request{
			Email:      sub.Email,
			Name:       sub.FullName(),
			SequenceID: string(scored.Sequence),
			Variables:  vars,
			FromStep:   fromStep,
		}); err != nil {
			return err
		}
		f.record(func(o *Outcome) { o.FollowUpScheduled = true })
		return nil
	})

	go func() {
		f.wg.Wait()
		f.mu.Lock()
		o := f.outcome
		f.mu.Unlock()
		p.logger.Info("intake: fanout settled",
			"email", sub.Email,
			"admin_email", o.AdminEmailSent,
			"welcome_email", o.WelcomeEmailSent,
			"webhook", o.WebhookSent,
			"lead_persisted", o.LeadPersisted,
			"followup_scheduled", o.FollowUpScheduled,
			"lead_id", o.LeadID,
		)
		close(f.settled)
	}()
	return f
}

// launch runs one channel with its own timeout. Errors and panics stay
// inside the channel: they are logged and counted, never propagated.
// done, when set, is closed as soon as the channel finishes.
func (p *Pipeline) launch(f *fanout, base context.Context, name string, sub leads.Submission, timeout time.Duration, done chan struct{}, run func(context.Context) error) {
	f.wg.Add(1)
	go func() {
		defer f.wg.Done()
		if done != nil {
			defer close(done)
		}
		defer func() {
			if r := recover(); r != nil {
				p.logger.Error("intake: channel panicked",
					"channel", name,
					"email", sub.Email,
					"panic", fmt.Sprint(r),
					"stack", string(debug.Stack()),
				)
				p.deps.Metrics.ObserveChannel(name, false)
			}
		}()

		ctx, cancel := context.WithTimeout(base, timeout)
		defer cancel()
		ctx, span := tracer.Start(ctx, "intake.channel."+name)
		defer span.End()

		err := run(ctx)
		switch {
		case errors.Is(err, errSkipped):
			p.deps.Metrics.ObserveChannelSkipped(name)
		case err != nil:
			span.RecordError(err)
			p.logger.Error("intake: channel failed", "channel", name, "email", sub.Email, "error", err)
			p.deps.Metrics.ObserveChannel(name, false)
		default:
			p.deps.Metrics.ObserveChannel(name, true)
		}
	}()
}
