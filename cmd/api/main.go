package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	httptransport "github.com/helpdesk-labs/helpdesk-service/internal/api/http"
	"github.com/helpdesk-labs/helpdesk-service/internal/api/http/handlers"
	"github.com/helpdesk-labs/helpdesk-service/internal/auth"
	"github.com/helpdesk-labs/helpdesk-service/internal/clock"
	"github.com/helpdesk-labs/helpdesk-service/internal/config"
	"github.com/helpdesk-labs/helpdesk-service/internal/events"
	"github.com/helpdesk-labs/helpdesk-service/internal/idempotency"
	"github.com/helpdesk-labs/helpdesk-service/internal/observability"
	"github.com/helpdesk-labs/helpdesk-service/internal/persistence"
	"github.com/helpdesk-labs/helpdesk-service/internal/repository"
	"github.com/helpdesk-labs/helpdesk-service/internal/service"
	"github.com/helpdesk-labs/helpdesk-service/internal/worker"
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

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := observability.NewMetrics(registry)
	clk := clock.Real()

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	var ticketRepo repository.TicketRepository
	if pg.Enabled() {
		if cfg.Postgres.RunMigrations {
			if err := persistence.RunMigrations(ctx, pg.Pool, cfg.Postgres.MigrationsDir, logger); err != nil {
				logger.Fatal("failed to run migrations", zap.Error(err))
			}
		}
		ticketRepo = repository.NewTicketRepository(pg.Pool)
	} else {
		ticketRepo = repository.NewMemoryTicketRepository()
	}

	var (
		redis       *persistence.Redis
		recordStore idempotency.Store
	)
	switch cfg.Idempotency.Backend {
	case config.IdempotencyBackendRedis:
		redis = persistence.NewRedis(ctx, cfg.Redis, logger)
		defer redis.Close()
		recordStore = idempotency.NewRedisStore(redis.Client, "")
	default:
		recordStore = idempotency.NewMemoryStore()
	}
	guard := idempotency.NewGuard(recordStore, clk, cfg.Idempotency.Retention, logger)

	sweeper, err := worker.NewIdempotencySweeper(guard, cfg.Idempotency.SweepSchedule, logger, metrics)
	if err != nil {
		logger.Fatal("failed to schedule idempotency sweeper", zap.Error(err))
	}
	sweeper.Start()

	dispatcher := events.NewInMemoryDispatcher()
	notificationService := service.NewNotificationService(dispatcher, logger, cfg.Notification, nil)
	var (
		publisher *events.KafkaPublisher
		relay     *worker.EventRelay
	)
	if cfg.Kafka.Enabled() {
		writer := events.NewKafkaWriter(events.KafkaConfig{
			Brokers:      cfg.Kafka.Brokers,
			Topic:        cfg.Kafka.Topic,
			ClientID:     cfg.Kafka.ClientID,
			WriteTimeout: cfg.Kafka.WriteTimeout,
		})
		publisher = events.NewKafkaPublisher(writer, cfg.Kafka.WriteTimeout, logger)
		relay = worker.NewEventRelay(publisher.Handle, cfg.Kafka.QueueSize, logger, metrics)
		logger.Info("publishing ticket events to kafka",
			zap.Strings("brokers", cfg.Kafka.Brokers),
			zap.String("topic", cfg.Kafka.Topic))
	}
	worker.StartNotificationWorker(dispatcher, notificationService, relay)

	ticketService := service.NewTicketService(service.TicketDependencies{
		TicketRepo: ticketRepo,
		Guard:      guard,
		Dispatcher: dispatcher,
		Clock:      clk,
		Logger:     logger,
		Metrics:    metrics,
	})

	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTLMinutes)
	app := httptransport.NewServer(httptransport.ServerConfig{
		Name:           cfg.App.Name,
		RequestTimeout: cfg.App.RequestTimeout(),
		CORSOrigins:    cfg.App.CORSOrigins,
		Logger:         logger,
		Metrics:        metrics,
		Routes: httptransport.RouteConfig{
			Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, pg, redis, clk),
			Meta:           handlers.NewMetaHandler(cfg.App.Name, cfg.App.Version),
			Tickets:        handlers.NewTicketsHandler(ticketService),
			AuthMiddleware: auth.NewAuthMiddleware(tokens),
			RateLimit:      cfg.RateLimit,
			Gatherer:       registry,
		},
	})

	go func() {
		logger.Info("listening", zap.String("addr", cfg.App.Addr()))
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		logger.Warn("fiber shutdown", zap.Error(err))
	}
	sweeper.Stop(shutdownCtx)
	if relay != nil {
		relay.Stop(shutdownCtx)
	}
	if publisher != nil {
		if err := publisher.Close(); err != nil {
			logger.Warn("kafka writer close", zap.Error(err))
		}
	}
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
