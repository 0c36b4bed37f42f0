// Package postgres implements store.Repository on the application database.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dataagent/dataagent/internal/store"
)

type Repository struct {
	db    *sql.DB
	newID func() string
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db, newID: uuid.NewString}
}

func (r *Repository) HealthCheck(ctx context.Context) error {
	if err := r.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping store db: %w", err)
	}
	return nil
}

func (r *Repository) SaveResult(ctx context.Context, in store.SaveResultInput) (store.SessionRecord, error) {
	if in.SessionID == "" {
		return store.SessionRecord{}, fmt.Errorf("session id is required")
	}
	suggestions := in.SuggestionsJSON
	if len(suggestions) == 0 {
		suggestions = json.RawMessage("[]")
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return store.SessionRecord{}, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	sessionQuery := `
INSERT INTO agent_session (session_id, prompt, run_mode)
VALUES ($1, $2, $3)
ON CONFLICT (session_id)
DO UPDATE SET prompt = EXCLUDED.prompt, run_mode = EXCLUDED.run_mode`
	if _, err := tx.ExecContext(ctx, sessionQuery, in.SessionID, in.Prompt, in.RunMode); err != nil {
		return store.SessionRecord{}, fmt.Errorf("upsert session: %w", err)
	}

	record := store.RecordFromInput(in)
	record.SuggestionsJSON = suggestions
	record.ResultID = r.newID()

	resultQuery := `
INSERT INTO conversation_result (
    result_id, session_id, success, error_message, last_message, sql_text,
    result_json, follow_up, suggestions_json, visualization_json, cost_usd, tokens, archive_prefix
)
VALUES ($1, $2, $3, $4, $5, $6, $7::jsonb, $8, $9::jsonb, $10::jsonb, $11, $12, $13)
RETURNING created_at`
	if err := tx.QueryRowContext(ctx, resultQuery,
		record.ResultID,
		in.SessionID,
		in.Success,
		in.ErrorMessage,
		in.LastMessage,
		in.SQL,
		nullableJSON(in.ResultJSON),
		in.FollowUp,
		string(suggestions),
		nullableJSON(in.VisualizationJSON),
		in.CostUSD,
		in.Tokens,
		in.ArchivePrefix,
	).Scan(&record.CreatedAt); err != nil {
		return store.SessionRecord{}, fmt.Errorf("insert conversation result: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return store.SessionRecord{}, fmt.Errorf("commit tx: %w", err)
	}
	return record, nil
}

func (r *Repository) GetSession(ctx context.Context, sessionID string) (store.SessionRecord, error) {
	query := `
SELECT s.session_id, s.prompt, s.run_mode, r.result_id, r.success, r.error_message, r.last_message,
    r.sql_text, COALESCE(r.result_json::text, ''), r.follow_up, r.suggestions_json::text,
    COALESCE(r.visualization_json::text, ''), r.cost_usd, r.tokens, r.archive_prefix, r.created_at
FROM agent_session s
JOIN conversation_result r ON r.session_id = s.session_id
WHERE s.session_id = $1
ORDER BY r.created_at DESC
LIMIT 1`

	var (
		record        store.SessionRecord
		resultJSON    string
		suggestions   string
		visualization string
	)
	if err := r.db.QueryRowContext(ctx, query, sessionID).Scan(
		&record.SessionID,
		&record.Prompt,
		&record.RunMode,
		&record.ResultID,
		&record.Success,
		&record.ErrorMessage,
		&record.LastMessage,
		&record.SQL,
		&resultJSON,
		&record.FollowUp,
		&suggestions,
		&visualization,
		&record.CostUSD,
		&record.Tokens,
		&record.ArchivePrefix,
		&record.CreatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.SessionRecord{}, store.ErrSessionNotFound
		}
		return store.SessionRecord{}, fmt.Errorf("get session: %w", err)
	}
	record.ResultJSON = rawJSON(resultJSON)
	record.SuggestionsJSON = rawJSON(suggestions)
	record.VisualizationJSON = rawJSON(visualization)
	return record, nil
}

func (r *Repository) ListSessions(ctx context.Context, limit int) ([]store.SessionSummary, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT s.session_id, s.prompt, s.run_mode, COALESCE(r.success, FALSE), s.created_at
FROM agent_session s
LEFT JOIN LATERAL (
    SELECT success
    FROM conversation_result
    WHERE session_id = s.session_id
    ORDER BY created_at DESC
    LIMIT 1
) r ON TRUE
ORDER BY s.created_at DESC
LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	sessions := make([]store.SessionSummary, 0)
	for rows.Next() {
		var item store.SessionSummary
		if err := rows.Scan(&item.SessionID, &item.Prompt, &item.RunMode, &item.Success, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan session row: %w", err)
		}
		sessions = append(sessions, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate session rows: %w", err)
	}
	return sessions, nil
}

func (r *Repository) UpsertTableEmbedding(ctx context.Context, in store.TableEmbedding) error {
	vector, err := json.Marshal(in.Vector)
	if err != nil {
		return fmt.Errorf("marshal embedding vector: %w", err)
	}
	query := `
INSERT INTO table_embedding (table_name, model, definition_hash, definition, vector_json, updated_at)
VALUES ($1, $2, $3, $4, $5::jsonb, NOW())
ON CONFLICT (table_name, model)
DO UPDATE SET definition_hash = EXCLUDED.definition_hash,
    definition = EXCLUDED.definition,
    vector_json = EXCLUDED.vector_json,
    updated_at = NOW()`
	if _, err := r.db.ExecContext(ctx, query, in.TableName, in.Model, in.DefinitionHash, in.Definition, string(vector)); err != nil {
		return fmt.Errorf("upsert table embedding: %w", err)
	}
	return nil
}

func (r *Repository) ListTableEmbeddings(ctx context.Context, model string) ([]store.TableEmbedding, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT table_name, model, definition_hash, definition, vector_json::text, updated_at
FROM table_embedding
WHERE model = $1
ORDER BY table_name ASC`, model)
	if err != nil {
		return nil, fmt.Errorf("list table embeddings: %w", err)
	}
	defer func() { _ = rows.Close() }()

	items := make([]store.TableEmbedding, 0)
	for rows.Next() {
		var (
			item      store.TableEmbedding
			vector    string
			updatedAt time.Time
		)
		if err := rows.Scan(&item.TableName, &item.Model, &item.DefinitionHash, &item.Definition, &vector, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan table embedding row: %w", err)
		}
		if err := json.Unmarshal([]byte(vector), &item.Vector); err != nil {
			return nil, fmt.Errorf("decode embedding vector for %s: %w", item.TableName, err)
		}
		item.UpdatedAt = updatedAt
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate table embedding rows: %w", err)
	}
	return items, nil
}

func nullableJSON(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}

func rawJSON(value string) json.RawMessage {
	if value == "" {
		return nil
	}
	return json.RawMessage(value)
}
