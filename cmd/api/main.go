package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-audit-api/internal/config"
	"github.com/noah-isme/gema-audit-api/internal/database"
	"github.com/noah-isme/gema-audit-api/internal/handler"
	"github.com/noah-isme/gema-audit-api/internal/middleware"
	"github.com/noah-isme/gema-audit-api/internal/observability"
	"github.com/noah-isme/gema-audit-api/internal/repository"
	"github.com/noah-isme/gema-audit-api/internal/router"
	"github.com/noah-isme/gema-audit-api/internal/service"
)

func main() {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load configuration")
	}
	logger = logger.With().Str("service", cfg.AppName).Str("env", cfg.AppEnv).Logger()

	db, err := database.ConnectPostgres(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	if err := database.Migrate(db); err != nil {
		logger.Fatal().Err(err).Msg("failed to migrate database")
	}

	redisClient, err := database.ConnectRedis(cfg.RedisURL)
	if err != nil {
		logger.Warn().Err(err).Msg("redis unavailable, statistics cache disabled")
		redisClient = nil
	}

	var natsConn *nats.Conn
	if cfg.NATSURL != "" {
		natsConn, err = database.ConnectNATS(cfg.NATSURL, cfg.AppName)
		if err != nil {
			logger.Warn().Err(err).Msg("nats unavailable, audit fan-out disabled")
			natsConn = nil
		}
	}

	observability.RegisterMetrics()
	validate := validator.New(validator.WithRequiredStructEnabled())

	auditRepo := repository.NewAuditLogRepository(db)
	analyticsRepo := repository.NewAuditAnalyticsRepository(db)

	recorder := service.NewAuditRecorder(auditRepo, service.NewNATSAuditPublisher(natsConn, cfg.NATSSubject), validate, logger, service.RecorderConfig{
		Timeout:          cfg.RecordTimeout,
		QueueSize:        cfg.QueueSize,
		Workers:          cfg.Workers,
		RetentionMaxDays: cfg.RetentionMaxDays,
	})
	queryService := service.NewAuditQueryService(auditRepo, logger)
	statisticsService := service.NewAuditStatisticsService(analyticsRepo, redisClient, service.StatisticsConfig{
		DefaultWindowDays: cfg.AnalyticsWindowDays,
		TopActions:        cfg.AnalyticsTopActions,
		CacheTTL:          cfg.AnalyticsCacheTTL,
	}, logger)
	anomalyService := service.NewAuditAnomalyService(analyticsRepo, service.AnomalyConfig{
		Window:               cfg.AnomalyWindow,
		FailedLoginThreshold: cfg.FailedLoginThreshold,
		BulkAccessThreshold:  cfg.BulkAccessThreshold,
	}, logger)
	retentionService := service.NewAuditRetentionService(auditRepo, cfg.RetentionSweepInterval, logger)

	auditHandler := handler.NewAuditHandler(handler.AuditHandlerDeps{
		Recorder:   recorder,
		Query:      queryService,
		Statistics: statisticsService,
		Anomalies:  anomalyService,
		Retention:  retentionService,
	}, validate, logger)

	backgroundCtx, cancelBackground := context.WithCancel(context.Background())
	recorder.Start(backgroundCtx)
	go retentionService.Run(backgroundCtx)

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ServerHeader: cfg.AppName,
	})

	middleware.Register(app, middleware.Config{Logger: &logger, AllowOrigins: cfg.CORSOrigins})
	router.Register(app, cfg, router.Dependencies{
		AuditHandler:  auditHandler,
		JWTMiddleware: middleware.JWTProtected(cfg.JWTSecret),
	})

	go func() {
		if err := app.Listen(cfg.HTTPAddress()); err != nil {
			logger.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	waitForShutdown(app, logger, func(ctx context.Context) {
		cancelBackground()
		if err := recorder.Shutdown(ctx); err != nil {
			logger.Warn().Err(err).Msg("audit queue not fully drained")
		}
		closeConnections(logger, redisClient, natsConn)
	})
}

func closeConnections(logger zerolog.Logger, redisClient *redis.Client, natsConn *nats.Conn) {
	if redisClient != nil {
		if err := redisClient.Close(); err != nil {
			logger.Warn().Err(err).Msg("failed to close redis client")
		}
	}
	if natsConn != nil {
		if err := natsConn.Drain(); err != nil {
			logger.Warn().Err(err).Msg("failed to drain nats connection")
		}
	}
}

func waitForShutdown(app *fiber.App, logger zerolog.Logger, cleanup func(ctx context.Context)) {
	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-shutdownCtx.Done()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}
	cleanup(ctx)

	logger.Info().Msg("server stopped")
}
