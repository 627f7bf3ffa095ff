package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/dropship-ops/opsdash/internal/app"
	jobmetrics "github.com/dropship-ops/opsdash/internal/jobs"
	"github.com/dropship-ops/opsdash/internal/observability"
	"github.com/dropship-ops/opsdash/internal/platform/db"
	"github.com/dropship-ops/opsdash/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
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

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Warn("redis ping", slog.Any("error", err))
	}

	metrics := observability.NewMetrics()
	jobMetrics := jobmetrics.NewMetrics(metrics.Registerer())
	services := app.BuildServices(ctx, cfg, pool, redisClient, metrics.Registerer(), logger)

	sourcingJob := jobs.NewSourcingRunJob(services.Sourcing, logger, jobMetrics)
	drainJob := jobs.NewQueueDrainJob(services.Queue, logger, jobMetrics)

	sourcingTask, err := jobs.NewSourcingRunTask("scheduled")
	if err != nil {
		logger.Error("build sourcing task", slog.Any("error", err))
		os.Exit(1)
	}
	drainTask, err := jobs.NewQueueDrainTask(0)
	if err != nil {
		logger.Error("build drain task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskSourcingRun, Handler: sourcingJob.Handle},
			{Type: jobs.TaskQueueDrain, Handler: drainJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: cfg.SourcingCron, Task: sourcingTask},
			{Spec: cfg.QueueCron, Task: drainTask},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	// Worker metrics are scraped from a side listener.
	metricsServer := &http.Server{Addr: cfg.WorkerMetricsAddr, Handler: metrics.Handler(), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("worker metrics listener", slog.Any("error", err))
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
