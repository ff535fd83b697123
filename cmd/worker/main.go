package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	_ "time/tzdata"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/odyssey-erp/caixa/internal/app"
	"github.com/odyssey-erp/caixa/internal/consol"
	jobmetrics "github.com/odyssey-erp/caixa/internal/jobs"
	"github.com/odyssey-erp/caixa/internal/register"
	"github.com/odyssey-erp/caixa/internal/shared"
	"github.com/odyssey-erp/caixa/internal/units"
	"github.com/odyssey-erp/caixa/jobs"
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

	res, err := app.OpenResources(ctx, cfg, logger)
	if err != nil {
		logger.Error("open resources", slog.Any("error", err))
		os.Exit(1)
	}
	defer res.Close()

	loc := cfg.Location()
	metrics := jobmetrics.NewMetrics(prometheus.DefaultRegisterer)

	unitService := units.NewService(units.NewRepository(res.DB))
	idempotencyStore := shared.NewIdempotencyStore(res.DB)
	registerService := register.NewService(register.NewRepository(res.DB, idempotencyStore), logger, register.ServiceConfig{
		Units:       unitService,
		StrictScope: cfg.StrictScope(),
	})
	consolService := consol.NewService(registerService, unitService, consol.Config{
		Concurrency: cfg.ConsolConcurrency,
		Cache:       consol.NewCache(res.Redis, cfg.ConsolCacheTTL).WithLogger(logger),
		Logger:      logger,
	})

	auditJob := jobs.NewRegisterAuditJob(registerService, loc, logger, metrics)
	warmupJob := jobs.NewConsolWarmupJob(consolService, loc, logger, metrics)
	cleanupJob := jobs.NewIdempotencyCleanupJob(idempotencyStore, cfg.IdempotencyRetention, logger, metrics)

	auditTask, err := jobs.NewRegisterAuditTask("today")
	if err != nil {
		logger.Error("build audit task", slog.Any("error", err))
		os.Exit(1)
	}
	warmupTask, err := jobs.NewConsolWarmupTask("today")
	if err != nil {
		logger.Error("build warmup task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts:   asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:      logger,
		Concurrency: cfg.WorkerConcurrency,
		Location:    loc,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskRegisterAudit, Handler: auditJob.Handle},
			{Type: jobs.TaskConsolWarmup, Handler: warmupJob.Handle},
			{Type: jobs.TaskIdempotencyCleanup, Handler: cleanupJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: cfg.OpenAuditCron, Task: auditTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: cfg.WarmupCron, Task: warmupTask, Options: []asynq.Option{asynq.MaxRetry(1)}},
			{Spec: "0 3 * * *", Task: jobs.NewIdempotencyCleanupTask(), Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("starting worker", slog.Int("concurrency", cfg.WorkerConcurrency), slog.String("timezone", loc.String()))
	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
