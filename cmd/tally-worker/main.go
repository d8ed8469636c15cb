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

	"github.com/odyssey-erp/tally/internal/app"
	"github.com/odyssey-erp/tally/internal/documents"
	"github.com/odyssey-erp/tally/internal/fiscal"
	"github.com/odyssey-erp/tally/internal/observability"
	"github.com/odyssey-erp/tally/internal/platform/cache"
	"github.com/odyssey-erp/tally/internal/platform/db"
	"github.com/odyssey-erp/tally/internal/shared"
	"github.com/odyssey-erp/tally/jobs"
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

	logger := app.NewLogger(cfg, "tally-worker")

	pool, err := db.New(ctx, cfg.PGDSN, db.PoolOptions{MaxConns: cfg.PGMaxConns, ApplicationName: "tally-worker"})
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisOpts := cfg.RedisOptions()
	redisClient, err := cache.New(ctx, redisOpts)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()
	auditLogger := shared.NewAuditLogger(pool)

	// The worker has no enqueuer: it never writes fiscal configs.
	fiscalService := fiscal.NewService(
		fiscal.NewRepository(pool),
		fiscal.NewCache(redisClient, cfg.FiscalCacheTTL),
		nil,
		auditLogger,
		metrics,
		logger,
		fiscal.ServiceConfig{ResolverMaxAge: cfg.FiscalCacheTTL},
	)
	documentService := documents.NewService(
		documents.NewRepository(pool),
		fiscal.Fresh{Service: fiscalService},
		auditLogger,
		metrics,
		logger,
		documents.ServiceConfig{DefaultCurrency: cfg.DefaultCurrency},
	)

	repriceJob := jobs.NewRepriceDraftsJob(documentService, logger, metrics.Jobs())

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts:   redisOpts.QueueOpts(),
		Logger:      logger,
		Concurrency: cfg.WorkerConcurrency,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskRepriceDrafts, Handler: repriceJob.Handle},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if cfg.WorkerMetricsAddr != "" {
		metricsServer := &http.Server{Addr: cfg.WorkerMetricsAddr, Handler: metrics.Handler(), ReadHeaderTimeout: 5 * time.Second}
		go func() {
			logger.Info("serving worker metrics", slog.String("addr", cfg.WorkerMetricsAddr))
			if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Warn("metrics server", slog.Any("error", err))
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = metricsServer.Shutdown(shutdownCtx)
		}()
	}

	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
