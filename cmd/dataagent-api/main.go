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

	"github.com/joho/godotenv"

	"github.com/dataagent/dataagent/internal/api"
	"github.com/dataagent/dataagent/internal/api/uistatic"
	"github.com/dataagent/dataagent/internal/app"
	"github.com/dataagent/dataagent/internal/auth"
	"github.com/dataagent/dataagent/internal/config"
	"github.com/dataagent/dataagent/internal/observability"
)

func main() {
	_ = godotenv.Load()
	cfg, err := config.LoadFromEnv("dataagent-api")
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg, os.Stdout)
	components, err := app.Build(context.Background(), cfg, logger)
	if err != nil {
		logger.Error("failed to build pipeline", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() { _ = components.Close() }()

	go func() {
		if err := components.Tables.Index(context.Background()); err != nil {
			logger.Warn("initial table indexing failed", slog.Any("error", err))
		}
	}()

	deps := api.Dependencies{
		Logger:     logger,
		Prompts:    components.Prompts,
		Sessions:   components.Store,
		Schema:     components.Warehouse,
		Tables:     components.Tables,
		Translator: components.Translator,
		UI:         uistatic.Handler(),
		Readiness: api.CombineReadinessChecks(
			api.CheckPing("warehouse", components.Warehouse),
			components.Store.HealthCheck,
			api.CheckObjectStoreConfig(cfg),
		),
		DependencyTimeout: time.Second,
	}
	if cfg.Auth.Required {
		validator, err := auth.NewStaticAPIKeyValidator(cfg.Auth.StaticKeys)
		if err != nil {
			logger.Error("failed to parse static auth keys", slog.Any("error", err))
			os.Exit(1)
		}
		deps.AuthMiddleware = auth.Middleware(logger, validator)
	}

	handler := api.NewHandler(cfg, deps)
	server := &http.Server{
		Addr:         cfg.HTTP.Address,
		Handler:      handler,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Maintenance.Enabled {
		go func() {
			if err := components.Maintenance().Run(ctx); err != nil {
				logger.Error("maintenance service stopped", slog.Any("error", err))
			}
		}()
	}

	go func() {
		logger.Info("starting api server", slog.String("addr", cfg.HTTP.Address))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("api server failed", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	logger.Info("shutting down api server")
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", slog.Any("error", err))
		_ = server.Close()
		_ = components.Close()
		os.Exit(1)
	}
}
