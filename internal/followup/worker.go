package followup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"

	"github.com/wolfman30/agency-leads/internal/notify"
	"github.com/wolfman30/agency-leads/internal/observability/metrics"
	"github.com/wolfman30/agency-leads/internal/sequences"
	"github.com/wolfman30/agency-leads/pkg/logging"
)

var workerTracer = otel.Tracer("agency.internal.followup.worker")

// Worker consumes jobs and sends the rendered step.
type Worker struct {
	queue       Queue
	store       Repository
	catalog     *sequences.Catalog
	sender      notify.EmailSender
	concurrency int
	waitSeconds int
	sendTimeout time.Duration
	metrics     *metrics.IntakeMetrics
	logger      *logging.Logger
}

// WorkerConfig configures a Worker.
type WorkerConfig struct {
	Concurrency int
	WaitSeconds int
	SendTimeout time.Duration
	Metrics     *metrics.IntakeMetrics
	Logger      *logging.Logger
}

func NewWorker(queue Queue, store Repository, catalog *sequences.Catalog, sender notify.EmailSender, cfg WorkerConfig) *Worker {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 2
	}
	if cfg.WaitSeconds <= 0 {
		cfg.WaitSeconds = 20
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 10 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	return &Worker{
		queue:       queue,
		store:       store,
		catalog:     catalog,
		sender:      sender,
		concurrency: cfg.Concurrency,
		waitSeconds: cfg.WaitSeconds,
		sendTimeout: cfg.SendTimeout,
		metrics:     cfg.Metrics,
		logger:      cfg.Logger,
	}
}

// Run starts the consumers and blocks until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	g, gCtx := errgroup.WithContext(ctx)
	for i := 0; i < w.concurrency; i++ {
		id := i
		g.Go(func() error {
			w.consume(gCtx, id)
			return nil
		})
	}
	w.logger.Info("followup workers started", "count", w.concurrency)
	err := g.Wait()
	w.logger.Info("followup workers stopped")
	return err
}

func (w *Worker) consume(ctx context.Context, id int) {
	for {
		if ctx.Err() != nil {
			return
		}
		messages, err := w.queue.Receive(ctx, 10, w.waitSeconds)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			w.logger.Error("followup worker: receive failed", "worker", id, "error", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}
		for _, msg := range messages {
			w.Handle(ctx, msg)
		}
	}
}

// Handle processes one message. The message is always deleted afterwards:
// delivery is at most once and failures are recorded on the row. A job whose
// claim no longer matches the row (released and re-claimed, cancelled, or
// already handled) is dropped without sending.
func (w *Worker) Handle(ctx context.Context, msg Message) {
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("followup worker: panic handling job", "message_id", msg.ID, "panic", r)
			w.metrics.ObserveFollowupJob("panic")
		}
		if err := w.queue.Delete(context.WithoutCancel(ctx), msg.ReceiptHandle); err != nil {
			w.logger.Warn("followup worker: delete message failed", "message_id", msg.ID, "error", err)
		}
	}()

	var job Job
	if err := json.Unmarshal([]byte(msg.Body), &job); err != nil {
		w.logger.Error("followup worker: invalid job payload", "message_id", msg.ID, "error", err)
		w.metrics.ObserveFollowupJob("invalid")
		return
	}

	ctx, span := workerTracer.Start(ctx, "followup.worker.job")
	defer span.End()
	span.SetAttributes(
		attribute.String("agency.sequence", job.SequenceID),
		attribute.Int("agency.step", job.Step),
	)

	if err := w.store.BeginSend(ctx, job.ID, job.Attempt); err != nil {
		if errors.Is(err, ErrNotFound) {
			w.logger.Info("followup worker: stale job skipped",
				"id", job.ID, "attempt", job.Attempt, "sequence", job.SequenceID, "step", job.Step)
			w.metrics.ObserveFollowupJob("stale")
			return
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		w.logger.Error("followup worker: begin send", "id", job.ID, "error", err)
		w.metrics.ObserveFollowupJob("error")
		return
	}

	id, err := w.deliver(ctx, job)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		w.logger.Error("followup worker: send failed",
			"id", job.ID, "email", job.LeadEmail, "sequence", job.SequenceID, "step", job.Step, "error", err)
		if markErr := w.store.MarkFailed(context.WithoutCancel(ctx), job.ID, err.Error()); markErr != nil {
			w.logger.Error("followup worker: mark failed", "id", job.ID, "error", markErr)
		}
		w.metrics.ObserveFollowupJob("failed")
		return
	}

	if err := w.store.MarkSent(context.WithoutCancel(ctx), job.ID); err != nil {
		w.logger.Error("followup worker: mark sent", "id", job.ID, "error", err)
	}
	w.metrics.ObserveFollowupJob("sent")
	w.logger.Info("followup worker: email sent",
		"id", job.ID, "email", job.LeadEmail, "sequence", job.SequenceID, "step", job.Step, "message_id", id)
}

func (w *Worker) deliver(ctx context.Context, job Job) (string, error) {
	if w.sender == nil {
		return "", notify.ErrNotConfigured
	}
	seq, err := w.catalog.Get(job.SequenceID)
	if err != nil {
		return "", err
	}
	step, err := seq.Step(job.Step)
	if err != nil {
		return "", err
	}
	subject, html, err := step.Render(job.Variables)
	if err != nil {
		return "", err
	}

	sendCtx, cancel := context.WithTimeout(ctx, w.sendTimeout)
	defer cancel()
	id, err := w.sender.Send(sendCtx, notify.EmailMessage{
		To:      job.LeadEmail,
		ToName:  job.LeadName,
		Subject: subject,
		HTML:    html,
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return "", fmt.Errorf("send timed out after %s: %w", w.sendTimeout, err)
		}
		return "", err
	}
	return id, nil
}
