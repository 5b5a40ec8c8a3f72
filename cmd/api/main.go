package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/wolfman30/agency-leads/cmd/mainconfig"
	"github.com/wolfman30/agency-leads/internal/api/router"
	"github.com/wolfman30/agency-leads/internal/app/bootstrap"
	appconfig "github.com/wolfman30/agency-leads/internal/config"
	"github.com/wolfman30/agency-leads/internal/csp"
	"github.com/wolfman30/agency-leads/internal/dashboard"
	"github.com/wolfman30/agency-leads/internal/followup"
	"github.com/wolfman30/agency-leads/internal/http/handlers"
	"github.com/wolfman30/agency-leads/internal/leads"
	"github.com/wolfman30/agency-leads/internal/notify"
	"github.com/wolfman30/agency-leads/internal/observability/metrics"
	"github.com/wolfman30/agency-leads/internal/sequences"
	"github.com/wolfman30/agency-leads/pkg/logging"
)

func main() {
	_ = godotenv.Load()
	cfg := appconfig.Load()

	logger := logging.New(cfg.LogLevel)
	logger.Info("starting agency-leads API server",
		"env", cfg.Env,
		"port", cfg.Port,
	)
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("server exited with error", "error", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
}

func run(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) error {
	metricsHandler, intakeMetrics := setupMetrics()

	redisClient := bootstrap.BuildRedisClient(ctx, cfg, logger, true)
	if redisClient != nil {
		defer func() { _ = redisClient.Close() }()
	}
	limiter, closeLimiter, err := bootstrap.BuildLimiter(cfg, redisClient, logger)
	if err != nil {
		return err
	}
	defer func() { _ = closeLimiter() }()

	var awsCfg *aws.Config
	if mainconfig.NeedsAWS(cfg) {
		loaded, err := mainconfig.LoadAWSConfig(ctx, cfg)
		if err != nil {
			return fmt.Errorf("load aws config: %w", err)
		}
		awsCfg = &loaded
	}

	sender, provider := bootstrap.BuildEmailSender(cfg, awsCfg, logger)
	logger.Info("email provider selected", "provider", provider)

	catalog, err := bootstrap.LoadCatalog(cfg, logger)
	if err != nil {
		return err
	}

	st, err := buildStores(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer st.close()

	scheduler := followup.NewScheduler(st.followups, catalog, logger)
	pipeline := bootstrap.BuildPipeline(cfg, bootstrap.PipelineParts{
		Limiter:   limiter,
		Email:     sender,
		Catalog:   catalog,
		Leads:     st.leads,
		Scheduler: scheduler,
		Metrics:   intakeMetrics,
	}, logger)

	trustedProxies, err := cfg.TrustedProxies()
	if err != nil {
		return err
	}

	checks := st.checks
	if redisClient != nil {
		checks["redis"] = func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }
	}
	routerCfg := &router.Config{
		Logger:             logger,
		Contact:            handlers.NewContactHandler(pipeline, logger),
		CSP:                csp.NewHandler(csp.NewStore(cfg.CSPBufferSize), intakeMetrics, logger),
		LeadsHandler:       leads.NewHandler(st.leads, logger),
		AdminFollowups:     handlers.NewAdminFollowupsHandler(st.followups, logger),
		APILimiter:         limiter,
		AdminAuthSecret:    cfg.AdminJWTSecret,
		MetricsHandler:     metricsHandler,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		TrustedProxies:     trustedProxies,
		HealthChecks:       checks,
	}
	if st.stats != nil {
		routerCfg.AdminDashboard = handlers.NewAdminDashboardHandler(st.stats, logger)
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router.New(routerCfg),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	if cfg.UseMemoryQueue {
		if err := startInProcessFollowups(gctx, g, cfg, st.followups, catalog, sender, intakeMetrics, logger); err != nil {
			return err
		}
	}
	return g.Wait()
}

// startInProcessFollowups runs the dispatcher and workers next to the api on
// a memory queue. Used for local development and single instance installs.
func startInProcessFollowups(ctx context.Context, g *errgroup.Group, cfg *appconfig.Config, repo followup.Repository, catalog *sequences.Catalog, sender notify.EmailSender, m *metrics.IntakeMetrics, logger *logging.Logger) error {
	if sender == nil {
		logger.Warn("USE_MEMORY_QUEUE set but email is not configured; follow-ups stay pending")
		return nil
	}
	queue, err := bootstrap.BuildQueue(cfg, nil)
	if err != nil {
		return err
	}
	dispatcher := followup.NewDispatcher(repo, queue, followup.DispatcherConfig{
		Interval:  cfg.FollowupPollInterval,
		BatchSize: cfg.FollowupBatchSize,
		Metrics:   m,
		Logger:    logger,
	})
	worker := followup.NewWorker(queue, repo, catalog, sender, followup.WorkerConfig{
		Concurrency: cfg.WorkerCount,
		SendTimeout: cfg.EmailSendTimeout,
		Metrics:     m,
		Logger:      logger,
	})
	g.Go(func() error { return dispatcher.Run(ctx) })
	g.Go(func() error { return worker.Run(ctx) })
	logger.Info("in-process follow-up delivery enabled", "workers", cfg.WorkerCount)
	return nil
}

func setupMetrics() (http.Handler, *metrics.IntakeMetrics) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), metrics.NewIntakeMetrics(reg)
}

type stores struct {
	leads     leads.Repository
	followups followup.Repository
	stats     *dashboard.Service
	checks    map[string]router.Check
	close     func()
}

// buildStores uses Postgres when DATABASE_URL is set and falls back to
// in-memory stores otherwise.
func buildStores(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) (*stores, error) {
	if cfg.DatabaseURL == "" {
		logger.Warn("DATABASE_URL not set; leads and follow-ups are kept in memory")
		return &stores{
			leads:     leads.NewInMemoryRepository(),
			followups: followup.NewMemoryStore(),
			checks:    map[string]router.Check{},
			close:     func() {},
		}, nil
	}

	pool, err := bootstrap.ConnectPool(ctx, cfg.DatabaseURL, bootstrap.ConnectOptions{}, logger)
	if err != nil {
		return nil, err
	}
	sqlDB, err := bootstrap.OpenSQL(ctx, cfg.DatabaseURL)
	if err != nil {
		pool.Close()
		return nil, err
	}
	return &stores{
		leads:     leads.NewPostgresRepository(pool),
		followups: followup.NewStore(pool),
		stats:     dashboard.NewService(sqlDB),
		checks:    map[string]router.Check{"postgres": pool.Ping},
		close: func() {
			_ = sqlDB.Close()
			pool.Close()
		},
	}, nil
}
