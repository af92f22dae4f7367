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

	"github.com/expensio/expensio/internal/app"
	"github.com/expensio/expensio/internal/approvals"
	"github.com/expensio/expensio/internal/categories"
	"github.com/expensio/expensio/internal/companies"
	"github.com/expensio/expensio/internal/expenses"
	"github.com/expensio/expensio/internal/fx"
	"github.com/expensio/expensio/internal/platform/cache"
	"github.com/expensio/expensio/internal/platform/db"
	"github.com/expensio/expensio/internal/users"
	"github.com/expensio/expensio/jobs"
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
		// The rate cache degrades to direct upstream calls without redis.
		logger.Warn("redis unavailable", slog.Any("error", err))
		redisClient = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	rateProvider := fx.NewCachedProvider(
		fx.NewHTTPProvider(cfg.FXAPIURL, cfg.FXTimeout),
		redisClient,
		cfg.FXCacheTTL,
	)
	converter := fx.NewConverter(rateProvider)

	companyRepo := companies.NewRepository(pool)
	companyService := companies.NewService(companyRepo)
	companyHandler := companies.NewHandler(logger, companyService)

	categoryRepo := categories.NewRepository(pool)
	categoryService := categories.NewService(categoryRepo)
	categoryHandler := categories.NewHandler(logger, categoryService)

	userRepo := users.NewRepository(pool)
	userService := users.NewService(userRepo)
	userHandler := users.NewHandler(logger, userService)

	approvalRepo := approvals.NewRepository(pool)
	approvalService := approvals.NewService(logger, approvalRepo, userService)
	approvalHandler := approvals.NewHandler(logger, approvalService)
	rulesHandler := approvals.NewRulesHandler(logger, approvalService)

	expenseRepo := expenses.NewRepository(pool)
	expenseService := expenses.NewService(logger, expenseRepo, converter, companyService, categoryService, approvalService)
	expenseHandler := expenses.NewHandler(logger, expenseService)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:          logger,
		Config:          cfg,
		ExpenseHandler:  expenseHandler,
		ApprovalHandler: approvalHandler,
		RulesHandler:    rulesHandler,
		CategoryHandler: categoryHandler,
		CompanyHandler:  companyHandler,
		UserHandler:     userHandler,
		JobHandler:      jobHandler,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", slog.String("addr", cfg.AppAddr))
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown", slog.Any("error", err))
		}
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", slog.Any("error", err))
			os.Exit(1)
		}
	}
}
