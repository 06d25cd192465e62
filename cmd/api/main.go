package main

import (
	"context"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/bifrost-cms/bifrost/internal/config"
	"github.com/bifrost-cms/bifrost/internal/handler"
	"github.com/bifrost-cms/bifrost/internal/infra/postgresql"
	"github.com/bifrost-cms/bifrost/internal/infra/postgresql/migrations"
	infraredis "github.com/bifrost-cms/bifrost/internal/infra/redis"
	"github.com/bifrost-cms/bifrost/internal/observability"
	"github.com/bifrost-cms/bifrost/internal/queue"
	"github.com/bifrost-cms/bifrost/internal/repository"
	"github.com/bifrost-cms/bifrost/internal/service"
	"github.com/bifrost-cms/bifrost/internal/transport"
	"github.com/bifrost-cms/bifrost/internal/webhook"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.LogLevel)
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := postgresql.NewPostgres(ctx, cfg.DatabaseDSN)
	if err != nil {
		logger.Fatal("postgres initialization failed", zap.Error(err))
	}

	if err := migrations.Migrate(db); err != nil {
		logger.Fatal("database migrations failed", zap.Error(err))
	}

	sqlDB, err := db.DB()
	if err != nil {
		logger.Fatal("postgres underlying db init failed", zap.Error(err))
	}
	defer sqlDB.Close()

	rdb, err := infraredis.NewRedis(ctx, cfg.RedisURL)
	if err != nil {
		logger.Fatal("redis initialization failed", zap.Error(err))
	}
	defer rdb.Close()

	rabbit, err := queue.NewRabbitMQ(cfg.RabbitMQURL)
	if err != nil {
		logger.Fatal("rabbitmq initialization failed", zap.Error(err))
	}
	defer rabbit.Close()

	metrics := observability.NewMetrics()

	siteRepo := repository.NewGormSiteRepo(db)
	contentRepo := repository.NewGormContentRepo(db)
	collectionRepo := repository.NewGormCollectionRepo(db)
	historyRepo := repository.NewGormHistoryRepo(db)
	webhookLogRepo := repository.NewGormWebhookLogRepo(db)

	publisher := queue.NewRabbitMQPublisher(rabbit)
	consumer := queue.NewRabbitMQConsumer(rabbit, cfg.WorkerConcurrency, logger)

	signer, err := webhook.NewSigner(cfg.WebhookSecret)
	if err != nil {
		logger.Fatal("signer initialization failed", zap.Error(err))
	}
	sender := webhook.NewHTTPSender()

	limiter, err := infraredis.NewRedisRateLimiter(rdb, cfg.RateLimitPerSec)
	if err != nil {
		logger.Fatal("rate limiter initialization failed", zap.Error(err))
	}

	tasks := service.NewTasks(0, logger)

	recorder, err := service.NewRecorder(historyRepo, logger)
	if err != nil {
		logger.Fatal("recorder initialization failed", zap.Error(err))
	}
	recorder.SetMetrics(metrics)

	trigger, err := service.NewTrigger(siteRepo, webhookLogRepo, publisher, logger)
	if err != nil {
		logger.Fatal("trigger initialization failed", zap.Error(err))
	}

	dispatcher, err := service.NewDispatcher(webhookLogRepo, siteRepo, sender, signer, limiter, logger)
	if err != nil {
		logger.Fatal("dispatcher initialization failed", zap.Error(err))
	}
	dispatcher.SetMetrics(metrics)

	worker, err := service.NewWorker(consumer, dispatcher, cfg.WorkerConcurrency, logger)
	if err != nil {
		logger.Fatal("worker initialization failed", zap.Error(err))
	}
	worker.SetMetrics(metrics)

	sweeper, err := service.NewSweeper(webhookLogRepo, publisher, 0, 0, logger)
	if err != nil {
		logger.Fatal("sweeper initialization failed", zap.Error(err))
	}

	janitor, err := service.NewJanitor(
		siteRepo,
		historyRepo,
		webhookLogRepo,
		cfg.HistoryKeepLast,
		time.Duration(cfg.WebhookLogTTLDays)*24*time.Hour,
		logger,
	)
	if err != nil {
		logger.Fatal("janitor initialization failed", zap.Error(err))
	}

	contentService, err := service.NewContentService(siteRepo, contentRepo, recorder, trigger, tasks, logger)
	if err != nil {
		logger.Fatal("content service initialization failed", zap.Error(err))
	}
	collectionService, err := service.NewCollectionService(siteRepo, collectionRepo, recorder, trigger, tasks, logger)
	if err != nil {
		logger.Fatal("collection service initialization failed", zap.Error(err))
	}
	historyService, err := service.NewHistoryService(historyRepo, contentRepo, collectionRepo, logger)
	if err != nil {
		logger.Fatal("history service initialization failed", zap.Error(err))
	}
	webhookService, err := service.NewWebhookService(webhookLogRepo, trigger, logger)
	if err != nil {
		logger.Fatal("webhook service initialization failed", zap.Error(err))
	}

	app := fiber.New(fiber.Config{
		ErrorHandler: transport.ErrorHandler(logger),
	})
	app.Use(transport.RequestID())
	app.Use(metrics.HTTPMiddleware())

	handler.RegisterHealthRoutes(app, sqlDB, rdb)
	app.Get("/metrics", adaptor.HTTPHandler(metrics.Handler()))
	if err := handler.RegisterContentRoutes(app, contentService); err != nil {
		logger.Fatal("content route registration failed", zap.Error(err))
	}
	if err := handler.RegisterCollectionRoutes(app, collectionService); err != nil {
		logger.Fatal("collection route registration failed", zap.Error(err))
	}
	if err := handler.RegisterHistoryRoutes(app, historyService); err != nil {
		logger.Fatal("history route registration failed", zap.Error(err))
	}
	if err := handler.RegisterWebhookRoutes(app, webhookService); err != nil {
		logger.Fatal("webhook route registration failed", zap.Error(err))
	}

	g, groupCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("api listening", zap.Int("port", cfg.APIPort))
		return app.Listen(fmt.Sprintf(":%d", cfg.APIPort))
	})
	g.Go(func() error {
		return worker.Start(groupCtx)
	})
	g.Go(func() error {
		return sweeper.Start(groupCtx)
	})
	g.Go(func() error {
		return janitor.Start(groupCtx)
	})
	g.Go(func() error {
		<-groupCtx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := tasks.Shutdown(shutdownCtx); err != nil {
			logger.Warn("background tasks did not drain cleanly", zap.Error(err))
		}
		return app.ShutdownWithTimeout(shutdownTimeout)
	})

	if err := g.Wait(); err != nil {
		logger.Fatal("service stopped with error", zap.Error(err))
	}
	logger.Info("service stopped")
}
