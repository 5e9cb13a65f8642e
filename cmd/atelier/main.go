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

	"github.com/atelier-erp/atelier/internal/app"
	"github.com/atelier-erp/atelier/internal/catalog"
	"github.com/atelier-erp/atelier/internal/ledger"
	"github.com/atelier-erp/atelier/internal/observability"
	"github.com/atelier-erp/atelier/internal/platform/cache"
	"github.com/atelier-erp/atelier/internal/platform/db"
	"github.com/atelier-erp/atelier/internal/production"
	"github.com/atelier-erp/atelier/internal/shared"
	"github.com/atelier-erp/atelier/jobs"
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

	dbpool, err := db.New(ctx, cfg.PGDSN, cfg.PGStatementTimeout)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis unavailable, stock cache disabled", slog.Any("error", err))
	}
	if redisClient != nil {
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}()
	}

	metrics := observability.NewMetrics()
	auditLogger := shared.NewAuditLogger(dbpool)
	idempotencyStore := shared.NewIdempotencyStore(dbpool)

	catalogService := catalog.NewService(catalog.NewRepository(dbpool))
	catalogHandler := catalog.NewHandler(catalogService, logger)

	ledgerService := ledger.NewService(ledger.NewRepository(dbpool), catalogService, ledger.ServiceDeps{
		Audit:       auditLogger,
		Idempotency: idempotencyStore,
		Cache:       ledger.NewStockCache(redisClient, cfg.StockCacheTTL),
		Metrics:     metrics,
		Logger:      logger,
	})
	ledgerHandler := ledger.NewHandler(logger, ledgerService)

	productionService := production.NewService(production.NewRepository(dbpool), catalogService, ledgerService)
	productionHandler := production.NewHandler(logger, productionService)

	var jobHandler *jobs.Handler
	if redisClient != nil {
		redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
		inspector := asynq.NewInspector(redisOpts)
		defer func() {
			if err := inspector.Close(); err != nil {
				logger.Warn("inspector close", slog.Any("error", err))
			}
		}()
		jobClient := jobs.NewClient(redisOpts)
		defer func() {
			if err := jobClient.Close(); err != nil {
				logger.Warn("job client close", slog.Any("error", err))
			}
		}()
		jobHandler = jobs.NewHandler(inspector, jobClient, logger)
	} else {
		jobHandler = jobs.NewHandler(nil, nil, logger)
	}

	router := app.NewRouter(app.RouterParams{
		Logger:            logger,
		Config:            cfg,
		LedgerHandler:     ledgerHandler,
		ProductionHandler: productionHandler,
		CatalogHandler:    catalogHandler,
		JobHandler:        jobHandler,
		Metrics:           metrics,
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
