package app

import (
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dataagent/dataagent/internal/config"
	"github.com/dataagent/dataagent/internal/embeddings"
	"github.com/dataagent/dataagent/internal/store"
)

func TestNewEmbedderUsesHashOutsideOpenAI(t *testing.T) {
	for _, provider := range []string{"mock", "anthropic", "google"} {
		embedder, err := newEmbedder(config.LLMConfig{Provider: provider})
		require.NoError(t, err)
		assert.IsType(t, embeddings.HashEmbedder{}, embedder, provider)
	}
}

func TestNewEmbedderRequiresOpenAIKey(t *testing.T) {
	_, err := newEmbedder(config.LLMConfig{Provider: "openai"})
	require.Error(t, err)

	embedder, err := newEmbedder(config.LLMConfig{Provider: "openai", APIKey: "sk-test", EmbeddingModel: "text-embedding-3-large"})
	require.NoError(t, err)
	assert.Equal(t, "text-embedding-3-large", embedder.Model())
}

func TestDBConfigCopiesPoolSettings(t *testing.T) {
	got := dbConfig(config.DBConfig{DSN: "postgres://x", MaxOpenConns: 7, MaxIdleConns: 2})
	assert.Equal(t, "postgres://x", got.DSN)
	assert.Equal(t, 7, got.MaxOpenConns)
	assert.Equal(t, 2, got.MaxIdleConns)
	assert.EqualValues(t, 3, got.PingRetries)
}

func TestCloseRunsClosersInReverseAndJoinsErrors(t *testing.T) {
	var order []string
	a := &App{closers: []func() error{
		func() error { order = append(order, "warehouse"); return errors.New("warehouse close") },
		func() error { order = append(order, "store"); return nil },
	}}

	err := a.Close()
	require.Error(t, err)
	assert.Equal(t, []string{"store", "warehouse"}, order)
	assert.NoError(t, a.Close())
}

func TestMaintenanceUsesConfiguredSettings(t *testing.T) {
	cfg := config.Config{
		Agent: config.AgentConfig{BaseDir: "/tmp/sessions"},
		Maintenance: config.MaintenanceConfig{
			RetentionInterval:     time.Hour,
			SessionMaxAge:         48 * time.Hour,
			IntegritySessionLimit: 25,
		},
	}
	repo := store.NewMemory()
	a := &App{Config: cfg, Logger: slog.Default(), Store: repo}

	svc := a.Maintenance()
	assert.Equal(t, "/tmp/sessions", svc.BaseDir)
	assert.Same(t, repo, svc.Sessions)
	assert.Nil(t, svc.ObjectStore)
	assert.Equal(t, 48*time.Hour, svc.Config.SessionMaxAge)
	assert.Equal(t, 25, svc.Config.IntegritySessionLimit)
	assert.Equal(t, time.Hour, svc.Config.RetentionInterval)
}
