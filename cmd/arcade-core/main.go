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
	"golang.org/x/sync/errgroup"

	"github.com/gunnchOS3k/arcade-core/internal/access"
	accesshttp "github.com/gunnchOS3k/arcade-core/internal/access/http"
	"github.com/gunnchOS3k/arcade-core/internal/app"
	"github.com/gunnchOS3k/arcade-core/internal/audit"
	audithttp "github.com/gunnchOS3k/arcade-core/internal/audit/http"
	"github.com/gunnchOS3k/arcade-core/internal/compliance"
	compliancehttp "github.com/gunnchOS3k/arcade-core/internal/compliance/http"
	"github.com/gunnchOS3k/arcade-core/internal/crypto"
	"github.com/gunnchOS3k/arcade-core/internal/observability"
	"github.com/gunnchOS3k/arcade-core/internal/platform/cache"
	"github.com/gunnchOS3k/arcade-core/internal/platform/db"
	"github.com/gunnchOS3k/arcade-core/jobs"
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

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
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

	accessRepo := access.NewRepository(pool)
	accessService := access.NewService(access.DefaultPolicy(), accessRepo, auditLog, auditLog, logger)

	engine := compliance.NewEngine(
		compliance.DefaultFrameworks(),
		compliance.DefaultRetentionPolicies(),
		auditLog, auditLog, signingKeys, logger,
	)
	reportCache := compliance.NewReportCache(redisClient, cfg.ReportCacheTTL)

	metrics := observability.NewMetrics()

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	router := app.NewRouter(app.RouterParams{
		Logger:            logger,
		Config:            cfg,
		AccessHandler:     accesshttp.NewHandler(logger, accessService, metrics),
		AuditHandler:      audithttp.NewHandler(logger, auditLog),
		ComplianceHandler: compliancehttp.NewHandler(logger, engine, reportCache),
		JobsHandler:       jobs.NewHandler(inspector, logger),
		Metrics:           metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil {
		logger.Error("server exit", slog.Any("error", err))
		os.Exit(1)
	}
}
