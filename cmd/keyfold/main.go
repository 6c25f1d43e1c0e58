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
	"github.com/redis/go-redis/v9"

	"github.com/keyfold/keyfold/internal/app"
	"github.com/keyfold/keyfold/internal/audit"
	"github.com/keyfold/keyfold/internal/authz"
	"github.com/keyfold/keyfold/internal/gate"
	"github.com/keyfold/keyfold/internal/identity"
	"github.com/keyfold/keyfold/internal/keys"
	"github.com/keyfold/keyfold/internal/observability"
	"github.com/keyfold/keyfold/internal/platform/db"
	"github.com/keyfold/keyfold/internal/rbac"
	"github.com/keyfold/keyfold/internal/saga"
	"github.com/keyfold/keyfold/internal/webhook"
	"github.com/keyfold/keyfold/jobs"
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

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Warn("redis ping", slog.Any("error", err))
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()

	tupleStore := authz.NewStore(dbpool)
	checker := authz.NewChecker(tupleStore, tupleStore, logger)
	permissionGate := gate.New(checker, logger, metrics)

	rbacCache := rbac.NewCache(redisClient, cfg.PermissionSnapshotTTL)
	rbacRepo := rbac.NewRepository(dbpool)
	rbacService := rbac.NewService(rbacRepo, tupleStore, rbacCache, logger)
	permissionsHandler := rbac.NewPermissionsHandler(logger, rbacService)
	rolesHandler := rbac.NewRolesHandler(logger, rbacRepo, rbacService)

	auditLogger := audit.NewLogger(dbpool)
	auditService := audit.NewService(audit.NewPGRepository(dbpool))
	auditHandler := audit.NewHandler(logger, auditService)

	asynqClient := asynq.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := asynqClient.Close(); err != nil {
			logger.Warn("asynq close", slog.Any("error", err))
		}
	}()
	dispatcher := webhook.NewAsynqDispatcher(asynqClient, logger)

	orchestrator := saga.New(logger, metrics)
	keysService := keys.NewService(keys.NewRepository(dbpool), checker, auditLogger, dispatcher, orchestrator, logger)
	keysHandler := keys.NewHandler(logger, keysService)

	verifier := identity.NewServiceTokenVerifier(identity.NewPGTokenStore(dbpool))

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:             logger,
		Config:             cfg,
		Verifier:           verifier,
		Gate:               permissionGate,
		KeysHandler:        keysHandler,
		PermissionsHandler: permissionsHandler,
		RolesHandler:       rolesHandler,
		AuditHandler:       auditHandler,
		JobHandler:         jobHandler,
		Metrics:            metrics,
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
