package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/ticket-lifecycle/internal/api/http"
	"github.com/spec-kit/ticket-lifecycle/internal/api/http/handlers"
	"github.com/spec-kit/ticket-lifecycle/internal/auth"
	"github.com/spec-kit/ticket-lifecycle/internal/config"
	"github.com/spec-kit/ticket-lifecycle/internal/events"
	"github.com/spec-kit/ticket-lifecycle/internal/observability"
	"github.com/spec-kit/ticket-lifecycle/internal/persistence"
	"github.com/spec-kit/ticket-lifecycle/internal/platform"
	"github.com/spec-kit/ticket-lifecycle/internal/repository"
	"github.com/spec-kit/ticket-lifecycle/internal/service"
	"github.com/spec-kit/ticket-lifecycle/internal/tenant"
	"github.com/spec-kit/ticket-lifecycle/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	if cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	rdb := persistence.NewRedis(cfg.Redis, logger)
	defer rdb.Close()

	pool := pg.PoolHandle()
	ticketRepo := repository.NewTicketRepository(pool)
	topicRepo := repository.NewTopicRepository(pool)
	metricsRepo := repository.NewMetricsRepository(pool)

	tenantConfig := tenant.NewRedisConfigProvider(rdb.Client, logger)
	staffDirectory := tenant.NewRedisStaffDirectory(rdb.Client, logger)

	notifier := platform.NewWebhookNotifier(cfg.Platform, logger)
	channels := platform.NewLoggingChannelManager(logger)
	summarizer := platform.NoopSummarizer{}

	dispatcher := events.NewAsyncDispatcher(logger, cfg.Sweep.SideEffectTimeout())

	ticketService := service.NewTicketService(service.TicketDependencies{
		TicketRepo: ticketRepo,
		Staff:      staffDirectory,
		Channels:   channels,
		Dispatcher: dispatcher,
		Logger:     logger,
	})
	topicService := service.NewTopicService(service.TopicDependencies{
		TopicRepo:  topicRepo,
		Summarizer: summarizer,
		Notifier:   notifier,
		Tenants:    tenantConfig,
		Staff:      staffDirectory,
		Dispatcher: dispatcher,
		Logger:     logger,
	})
	metricsService := service.NewMetricsService(service.MetricsDependencies{
		TicketRepo:  ticketRepo,
		MetricsRepo: metricsRepo,
		TopicRepo:   topicRepo,
		Dispatcher:  dispatcher,
		Logger:      logger,
	})
	topicService.RegisterHandlers()
	metricsService.RegisterHandlers()

	sweeper := worker.NewIdleSweeper(worker.SweeperDependencies{
		Health:     pg,
		Leader:     worker.NewRedisLeaderLock(rdb.Client, cfg.Sweep),
		TicketRepo: ticketRepo,
		Closer:     ticketService,
		Tenants:    tenantConfig,
		Notifier:   notifier,
		Dispatcher: dispatcher,
		Logger:     logger,
		Config:     cfg.Sweep,
	})
	sweeperDone := make(chan struct{})
	go func() {
		defer close(sweeperDone)
		sweeper.Run(ctx)
	}()

	tokenManager := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTLMinutes)
	authMiddleware := auth.NewAuthMiddleware(tokenManager)

	app := fiber.New()
	metrics := observability.NewMetrics()
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(pg, rdb),
		Tickets:        handlers.NewTicketsHandler(ticketService, metricsService),
		Topics:         handlers.NewTopicsHandler(topicService),
		AuthMiddleware: authMiddleware,
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)
	cancel()

	// the sweeper finishes its in-flight ticket, then the event pipeline
	// drains, before the process is allowed to exit
	<-sweeperDone
	_ = app.Shutdown()
	dispatcher.Close()
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
