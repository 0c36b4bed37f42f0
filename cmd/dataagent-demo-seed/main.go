package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/dataagent/dataagent/internal/config"
	"github.com/dataagent/dataagent/internal/demo/seeder"
	"github.com/dataagent/dataagent/internal/observability"
	warehousepostgres "github.com/dataagent/dataagent/internal/warehouse/postgres"
)

func main() {
	_ = godotenv.Load()
	cfg, err := config.LoadFromEnv("dataagent-demo-seed")
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := observability.NewLogger(cfg, os.Stdout)

	seedCfg, err := seeder.LoadConfigFromEnv(os.LookupEnv)
	if err != nil {
		logger.Error("failed to load demo seed config", slog.Any("error", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := warehousepostgres.Open(ctx, warehousepostgres.DBConfig{
		DSN:         cfg.Warehouse.DSN,
		PingRetries: 5,
	})
	if err != nil {
		logger.Error("failed to open warehouse db", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	service, err := seeder.NewService(seedCfg, db, logger)
	if err != nil {
		logger.Error("failed to initialize demo seeder", slog.Any("error", err))
		os.Exit(1)
	}
	if _, err := service.Run(ctx); err != nil {
		logger.Error("demo seeding failed", slog.Any("error", err))
		os.Exit(1)
	}
}
