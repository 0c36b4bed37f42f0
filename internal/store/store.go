// Package store persists prompt sessions, their results and table embeddings.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

var ErrSessionNotFound = errors.New("store: session not found")

type Repository interface {
	HealthCheck(ctx context.Context) error
	SaveResult(ctx context.Context, in SaveResultInput) (SessionRecord, error)
	GetSession(ctx context.Context, sessionID string) (SessionRecord, error)
	ListSessions(ctx context.Context, limit int) ([]SessionSummary, error)
	UpsertTableEmbedding(ctx context.Context, in TableEmbedding) error
	ListTableEmbeddings(ctx context.Context, model string) ([]TableEmbedding, error)
}

type SaveResultInput struct {
	SessionID         string
	Prompt            string
	RunMode           string
	Success           bool
	ErrorMessage      string
	LastMessage       string
	SQL               string
	ResultJSON        json.RawMessage
	FollowUp          string
	SuggestionsJSON   json.RawMessage
	VisualizationJSON json.RawMessage
	CostUSD           float64
	Tokens            int
	ArchivePrefix     string
}

type SessionRecord struct {
	ResultID          string          `json:"result_id"`
	SessionID         string          `json:"session_id"`
	Prompt            string          `json:"prompt"`
	RunMode           string          `json:"run_mode"`
	Success           bool            `json:"success"`
	ErrorMessage      string          `json:"error_message,omitempty"`
	LastMessage       string          `json:"last_message,omitempty"`
	SQL               string          `json:"sql,omitempty"`
	ResultJSON        json.RawMessage `json:"result,omitempty"`
	FollowUp          string          `json:"follow_up,omitempty"`
	SuggestionsJSON   json.RawMessage `json:"suggestions,omitempty"`
	VisualizationJSON json.RawMessage `json:"visualization,omitempty"`
	CostUSD           float64         `json:"cost"`
	Tokens            int             `json:"tokens"`
	ArchivePrefix     string          `json:"archive_prefix,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
}

type SessionSummary struct {
	SessionID string    `json:"session_id"`
	Prompt    string    `json:"prompt"`
	RunMode   string    `json:"run_mode"`
	Success   bool      `json:"success"`
	CreatedAt time.Time `json:"created_at"`
}

type TableEmbedding struct {
	TableName      string
	Model          string
	DefinitionHash string
	Definition     string
	Vector         []float64
	UpdatedAt      time.Time
}
