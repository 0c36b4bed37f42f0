// Package app assembles the runtime components from configuration. The API
// server and the local CLI both start from Build.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dataagent/dataagent/internal/artifacts"
	"github.com/dataagent/dataagent/internal/config"
	"github.com/dataagent/dataagent/internal/embeddings"
	"github.com/dataagent/dataagent/internal/llm"
	"github.com/dataagent/dataagent/internal/maintenance"
	"github.com/dataagent/dataagent/internal/nl2sql"
	"github.com/dataagent/dataagent/internal/prompt"
	"github.com/dataagent/dataagent/internal/storage"
	"github.com/dataagent/dataagent/internal/store"
	storepostgres "github.com/dataagent/dataagent/internal/store/postgres"
	s3store "github.com/dataagent/dataagent/internal/storage/s3"
	warehousepostgres "github.com/dataagent/dataagent/internal/warehouse/postgres"
)

type App struct {
	Config      config.Config
	Logger      *slog.Logger
	LLM         llm.Client
	Warehouse   *warehousepostgres.Manager
	Store       store.Repository
	Tables      *embeddings.DatabaseEmbedder
	Translator  nl2sql.Translator
	Archiver    *artifacts.Archiver
	// ObjectStore is nil unless object storage is enabled.
	ObjectStore storage.ObjectStore
	Prompts     *prompt.Handler

	closers []func() error
}

// Build opens the warehouse and store connections and wires the prompt
// pipeline. Callers must Close the returned App.
func Build(ctx context.Context, cfg config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	a := &App{Config: cfg, Logger: logger}

	warehouseDB, err := warehousepostgres.Open(ctx, dbConfig(cfg.Warehouse.DBConfig))
	if err != nil {
		return nil, fmt.Errorf("open warehouse db: %w", err)
	}
	a.closers = append(a.closers, warehouseDB.Close)
	a.Warehouse = warehousepostgres.NewManager(warehouseDB, warehousepostgres.Options{
		Schema:       cfg.Warehouse.Schema,
		QueryTimeout: cfg.Warehouse.QueryTimeout,
		MaxRows:      cfg.Warehouse.MaxResultRows,
		Logger:       logger,
	})

	a.Store, err = a.openStore(ctx, warehouseDB)
	if err != nil {
		_ = a.Close()
		return nil, err
	}

	a.LLM, err = llm.New(ctx, cfg.LLM, logger)
	if err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("build llm client: %w", err)
	}

	embedder, err := newEmbedder(cfg.LLM)
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	a.Tables = embeddings.NewDatabaseEmbedder(a.Warehouse, embedder, embeddings.Options{
		TopK:     cfg.LLM.EmbeddingTopK,
		CacheTTL: cfg.LLM.EmbeddingCacheTTL,
		Store:    a.Store,
		Logger:   logger,
	})

	a.Translator, err = nl2sql.NewLLMTranslator(a.LLM, nl2sql.Config{
		Model:       cfg.LLM.Model,
		Temperature: cfg.LLM.Temperature,
		MaxTokens:   cfg.LLM.MaxTokens,
	})
	if err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("build translator: %w", err)
	}

	var archiver prompt.Archiver
	if cfg.ObjectStore.Enabled {
		objectStore, err := s3store.New(ctx, s3store.Config{
			Endpoint:         cfg.ObjectStore.Endpoint,
			Region:           cfg.ObjectStore.Region,
			Bucket:           cfg.ObjectStore.Bucket,
			AccessKeyID:      cfg.ObjectStore.AccessKeyID,
			SecretAccessKey:  cfg.ObjectStore.SecretAccessKey,
			UseSSL:           cfg.ObjectStore.UseSSL,
			Prefix:           cfg.ObjectStore.Prefix,
			AutoCreateBucket: cfg.ObjectStore.AutoCreateBucket,
		})
		if err != nil {
			_ = a.Close()
			return nil, fmt.Errorf("initialize object store: %w", err)
		}
		a.ObjectStore = objectStore
		a.Archiver, err = artifacts.NewArchiver(objectStore, artifacts.ArchiverOptions{Logger: logger})
		if err != nil {
			_ = a.Close()
			return nil, err
		}
		archiver = a.Archiver
	}

	a.Prompts, err = prompt.NewHandler(prompt.Config{
		BaseDir:           cfg.Agent.BaseDir,
		AssistantName:     cfg.Agent.AssistantName,
		DefaultRunMode:    cfg.Agent.DefaultRunMode,
		Schema:            cfg.Warehouse.Schema,
		Model:             cfg.LLM.Model,
		Temperature:       cfg.LLM.Temperature,
		MaxTokens:         cfg.LLM.MaxTokens,
		MaxRounds:         cfg.LLM.MaxRounds,
		InnovationWorkers: cfg.Agent.InnovationWorkers,
	}, prompt.Deps{
		LLM:        a.LLM,
		Warehouse:  a.Warehouse,
		Tables:     a.Tables,
		Translator: a.Translator,
		Store:      a.Store,
		Archiver:   archiver,
		Logger:     logger,
	})
	if err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("build prompt handler: %w", err)
	}
	return a, nil
}

// Maintenance returns the background retention and integrity service for
// the built components.
func (a *App) Maintenance() *maintenance.Service {
	return &maintenance.Service{
		BaseDir:     a.Config.Agent.BaseDir,
		Sessions:    a.Store,
		ObjectStore: a.ObjectStore,
		Config: maintenance.Config{
			RetentionInterval:     a.Config.Maintenance.RetentionInterval,
			SessionMaxAge:         a.Config.Maintenance.SessionMaxAge,
			IntegrityInterval:     a.Config.Maintenance.IntegrityInterval,
			IntegritySessionLimit: a.Config.Maintenance.IntegritySessionLimit,
		},
		Logger: a.Logger.With(slog.String("component", "maintenance")),
	}
}

// Close releases database connections in reverse order of opening.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

func (a *App) openStore(ctx context.Context, warehouseDB *sql.DB) (store.Repository, error) {
	if !a.Config.Store.Enabled {
		a.Logger.Info("session store disabled; results are kept in memory")
		return store.NewMemory(), nil
	}
	if a.Config.Store.DSN == a.Config.Warehouse.DSN {
		return storepostgres.NewRepository(warehouseDB), nil
	}
	storeDB, err := warehousepostgres.Open(ctx, dbConfig(a.Config.Store.DBConfig))
	if err != nil {
		return nil, fmt.Errorf("open store db: %w", err)
	}
	a.closers = append(a.closers, storeDB.Close)
	return storepostgres.NewRepository(storeDB), nil
}

func newEmbedder(cfg config.LLMConfig) (embeddings.Embedder, error) {
	if cfg.Provider != "openai" {
		return embeddings.HashEmbedder{}, nil
	}
	embedder, err := embeddings.NewOpenAI(embeddings.OpenAIConfig{
		APIKey:  cfg.APIKey,
		BaseURL: cfg.BaseURL,
		Model:   cfg.EmbeddingModel,
		Timeout: cfg.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("build embedder: %w", err)
	}
	return embedder, nil
}

func dbConfig(cfg config.DBConfig) warehousepostgres.DBConfig {
	return warehousepostgres.DBConfig{
		DSN:             cfg.DSN,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxIdleTime: cfg.ConnMaxIdleTime,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
		PingRetries:     3,
	}
}
