package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/gunnchOS3k/arcade-core/internal/app"
	"github.com/gunnchOS3k/arcade-core/internal/audit"
	"github.com/gunnchOS3k/arcade-core/internal/compliance"
	"github.com/gunnchOS3k/arcade-core/internal/crypto"
	"github.com/gunnchOS3k/arcade-core/internal/platform/cache"
	"github.com/gunnchOS3k/arcade-core/internal/platform/db"
	"github.com/gunnchOS3k/arcade-core/jobs"
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

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis unavailable, report cache disabled", slog.Any("error", err))
		redisClient = nil
	}
	defer func() {
		if redisClient == nil {
			return
		}
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	masterKey, err := cfg.MasterKey()
	if err != nil {
		logger.Error("resolve master key", slog.Any("error", err))
		os.Exit(1)
	}
	cryptoService, err := crypto.NewService(masterKey)
	if err != nil {
		logger.Error("init crypto", slog.Any("error", err))
		os.Exit(1)
	}
	signingKeys, err := crypto.GenerateKeyPair()
	if err != nil {
		logger.Error("generate signing keys", slog.Any("error", err))
		os.Exit(1)
	}

	auditRepo := audit.NewRepository(pool)
	auditLog := audit.NewLog(auditRepo, cryptoService, logger)

	engine := compliance.NewEngine(
		compliance.DefaultFrameworks(),
		compliance.DefaultRetentionPolicies(),
		auditLog, auditLog, signingKeys, logger,
	)
	reportCache := compliance.NewReportCache(redisClient, cfg.ReportCacheTTL)

	assessJob := jobs.NewComplianceAssessJob(engine, reportCache, logger, nil)
	retentionJob := jobs.NewRetentionScanJob(pool, engine, logger, nil)

	assessTask, err := jobs.NewComplianceAssessTask(jobs.ComplianceAssessPayload{})
	if err != nil {
		logger.Error("build assess task", slog.Any("error", err))
		os.Exit(1)
	}
	retentionTask, err := jobs.NewRetentionScanTask(jobs.RetentionScanPayload{})
	if err != nil {
		logger.Error("build retention task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskComplianceAssess, Handler: assessJob.Handle},
			{Type: jobs.TaskRetentionScan, Handler: retentionJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: "0 1 * * *", Task: assessTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: "30 1 * * *", Task: retentionTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
