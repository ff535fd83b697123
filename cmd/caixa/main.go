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
	_ "time/tzdata"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/caixa/internal/app"
	"github.com/odyssey-erp/caixa/internal/consol"
	consolhttp "github.com/odyssey-erp/caixa/internal/consol/http"
	"github.com/odyssey-erp/caixa/internal/ledger"
	"github.com/odyssey-erp/caixa/internal/observability"
	"github.com/odyssey-erp/caixa/internal/reconciliation"
	reconhttp "github.com/odyssey-erp/caixa/internal/reconciliation/http"
	"github.com/odyssey-erp/caixa/internal/register"
	registerhttp "github.com/odyssey-erp/caixa/internal/register/http"
	"github.com/odyssey-erp/caixa/internal/shared"
	"github.com/odyssey-erp/caixa/internal/units"
	unitshttp "github.com/odyssey-erp/caixa/internal/units/http"
	"github.com/odyssey-erp/caixa/jobs"
	"github.com/odyssey-erp/caixa/report"
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

	res, err := app.OpenResources(ctx, cfg, logger)
	if err != nil {
		logger.Error("open resources", slog.Any("error", err))
		os.Exit(1)
	}
	defer res.Close()

	metrics := observability.NewMetrics()
	loc := cfg.Location()

	unitService := units.NewService(units.NewRepository(res.DB))
	idempotencyStore := shared.NewIdempotencyStore(res.DB)
	consolCache := consol.NewCache(res.Redis, cfg.ConsolCacheTTL).WithLogger(logger)

	registerService := register.NewService(register.NewRepository(res.DB, idempotencyStore), logger, register.ServiceConfig{
		Units:       unitService,
		Metrics:     metrics,
		Invalidator: consolCache,
		Audit:       shared.NewAuditLogger(res.DB),
		StrictScope: cfg.StrictScope(),
	})
	normalizer := ledger.NewNormalizer(unitService)

	consolService := consol.NewService(registerService, unitService, consol.Config{
		Concurrency: cfg.ConsolConcurrency,
		Cache:       consolCache,
		Metrics:     metrics,
		Logger:      logger,
	})
	builder := reconciliation.NewBuilder(registerService, consolService, unitService)

	var renderer reconhttp.Renderer
	var reportHandler *report.Handler
	if cfg.ReportRendererURL != "" {
		reportClient := report.NewClientWithBreaker(cfg.ReportRendererURL, report.BreakerConfig{Logger: logger})
		renderer = reportClient
		reportHandler = report.NewHandler(reportClient, logger)
	}

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	router := app.NewRouter(app.RouterParams{
		Logger:                logger,
		Config:                cfg,
		Metrics:               metrics,
		UnitsHandler:          unitshttp.NewHandler(logger, unitService),
		RegisterHandler:       registerhttp.NewHandler(logger, registerService, normalizer, loc),
		ConsolHandler:         consolhttp.NewHandler(logger, consolService),
		ReconciliationHandler: reconhttp.NewHandler(logger, builder, renderer),
		ReportHandler:         reportHandler,
		JobHandler:            jobs.NewHandler(inspector, logger),
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr), slog.String("timezone", loc.String()), slog.Bool("strict_scope", cfg.StrictScope()))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
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
