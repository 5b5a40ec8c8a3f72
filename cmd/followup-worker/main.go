package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/wolfman30/agency-leads/cmd/mainconfig"
	"github.com/wolfman30/agency-leads/internal/app/bootstrap"
	appconfig "github.com/wolfman30/agency-leads/internal/config"
	"github.com/wolfman30/agency-leads/internal/followup"
	"github.com/wolfman30/agency-leads/internal/observability/metrics"
	"github.com/wolfman30/agency-leads/pkg/logging"
)

var (
	errNoDatabase = errors.New("DATABASE_URL is required for the follow-up worker")
	errNoEmail    = errors.New("an email provider must be configured for the follow-up worker")
)

func main() {
	_ = godotenv.Load()
	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)

	if err := checkConfig(cfg); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("follow-up worker exited with error", "error", err)
		os.Exit(1)
	}
	logger.Info("follow-up worker stopped")
}

func checkConfig(cfg *appconfig.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if cfg.DatabaseURL == "" {
		return errNoDatabase
	}
	if !cfg.EmailConfigured() {
		return errNoEmail
	}
	return nil
}

func run(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) error {
	var awsCfg *aws.Config
	if mainconfig.NeedsAWS(cfg) {
		loaded, err := mainconfig.LoadAWSConfig(ctx, cfg)
		if err != nil {
			return fmt.Errorf("load aws config: %w", err)
		}
		awsCfg = &loaded
	}

	sender, provider := bootstrap.BuildEmailSender(cfg, awsCfg, logger)
	if sender == nil {
		return errNoEmail
	}
	catalog, err := bootstrap.LoadCatalog(cfg, logger)
	if err != nil {
		return err
	}
	queue, err := bootstrap.BuildQueue(cfg, awsCfg)
	if err != nil {
		return err
	}

	pool, err := bootstrap.ConnectPool(ctx, cfg.DatabaseURL, bootstrap.ConnectOptions{}, logger)
	if err != nil {
		return err
	}
	defer pool.Close()

	store := followup.NewStore(pool)
	m := metrics.NewIntakeMetrics(prometheus.NewRegistry())

	dispatcher := followup.NewDispatcher(store, queue, followup.DispatcherConfig{
		Interval:  cfg.FollowupPollInterval,
		BatchSize: cfg.FollowupBatchSize,
		Metrics:   m,
		Logger:    logger,
	})
	worker := followup.NewWorker(queue, store, catalog, sender, followup.WorkerConfig{
		Concurrency: cfg.WorkerCount,
		SendTimeout: cfg.EmailSendTimeout,
		Metrics:     m,
		Logger:      logger,
	})

	logger.Info("follow-up worker started",
		"provider", provider,
		"workers", cfg.WorkerCount,
		"memory_queue", cfg.UseMemoryQueue,
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return dispatcher.Run(gctx) })
	g.Go(func() error { return worker.Run(gctx) })
	return g.Wait()
}
