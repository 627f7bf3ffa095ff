package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/dropship-ops/opsdash/internal/app"
	"github.com/dropship-ops/opsdash/internal/bulkimport"
	"github.com/dropship-ops/opsdash/internal/catalog"
	"github.com/dropship-ops/opsdash/internal/membership"
	"github.com/dropship-ops/opsdash/internal/observability"
	"github.com/dropship-ops/opsdash/internal/platform/cache"
	"github.com/dropship-ops/opsdash/internal/platform/db"
	"github.com/dropship-ops/opsdash/internal/queue"
	"github.com/dropship-ops/opsdash/internal/shared"
	"github.com/dropship-ops/opsdash/internal/social"
	"github.com/dropship-ops/opsdash/internal/sourcing"
	"github.com/dropship-ops/opsdash/internal/stock"
	"github.com/dropship-ops/opsdash/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	dbpool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis unavailable, membership cache disabled", slog.Any("error", err))
	} else {
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}()
	}

	metrics := observability.NewMetrics()
	services := app.BuildServices(ctx, cfg, dbpool, redisClient, metrics.Registerer(), logger)
	idempotencyStore := shared.NewIdempotencyStore(dbpool)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	router := app.NewRouter(app.RouterParams{
		Logger:            logger,
		Config:            cfg,
		Metrics:           metrics,
		SourcingHandler:   sourcing.NewHandler(logger, services.Sourcing, idempotencyStore),
		StockHandler:      stock.NewHandler(logger, services.Stock),
		QueueHandler:      queue.NewHandler(logger, services.Queue),
		CatalogHandler:    catalog.NewHandler(logger, services.Catalog),
		BulkImportHandler: bulkimport.NewHandler(logger, bulkimport.NewService(services.Catalog, logger)),
		SocialHandler:     social.NewHandler(logger, services.Social),
		MembershipHandler: membership.NewHandler(logger, services.Membership),
		JobHandler:        jobs.NewHandler(inspector, logger),
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
