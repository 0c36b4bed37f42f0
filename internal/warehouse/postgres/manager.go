package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/dataagent/dataagent/internal/observability"
	"github.com/dataagent/dataagent/internal/warehouse"
)

type Options struct {
	Schema       string
	QueryTimeout time.Duration
	MaxRows      int
	Logger       *slog.Logger
}

// Manager runs agent-generated SQL against the analytics database.
type Manager struct {
	db           *sql.DB
	schema       string
	queryTimeout time.Duration
	maxRows      int
	logger       *slog.Logger
}

var _ warehouse.Manager = (*Manager)(nil)

func NewManager(db *sql.DB, opts Options) *Manager {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	schema := opts.Schema
	if schema == "" {
		schema = "public"
	}
	return &Manager{
		db:           db,
		schema:       schema,
		queryTimeout: opts.QueryTimeout,
		maxRows:      opts.MaxRows,
		logger:       logger,
	}
}

func (m *Manager) Ping(ctx context.Context) error {
	if err := m.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping warehouse: %w", err)
	}
	return nil
}

func (m *Manager) Query(ctx context.Context, sqlText string) (result warehouse.Result, err error) {
	if !warehouse.IsReadOnly(sqlText) {
		return warehouse.Result{}, warehouse.ErrReadOnly
	}
	statement := warehouse.StripTrailingSemicolons(sqlText)

	if m.queryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.queryTimeout)
		defer cancel()
	}

	start := time.Now()
	defer func() {
		observability.ObserveSQLExecution(err, time.Since(start))
	}()

	err = m.readOnly(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, statement)
		if err != nil {
			return fmt.Errorf("run sql: %w", err)
		}
		defer rows.Close()

		columns, err := rows.Columns()
		if err != nil {
			return fmt.Errorf("read columns: %w", err)
		}

		result.Columns = columns
		result.Rows = make([][]any, 0)
		for rows.Next() {
			if m.maxRows > 0 && len(result.Rows) >= m.maxRows {
				result.Truncated = true
				break
			}
			values := make([]any, len(columns))
			pointers := make([]any, len(columns))
			for i := range values {
				pointers[i] = &values[i]
			}
			if err := rows.Scan(pointers...); err != nil {
				return fmt.Errorf("scan row: %w", err)
			}
			for i, value := range values {
				values[i] = warehouse.NormalizeValue(value)
			}
			result.Rows = append(result.Rows, values)
		}
		if err := rows.Err(); err != nil {
			return fmt.Errorf("iterate rows: %w", err)
		}
		return nil
	})
	if err != nil {
		return warehouse.Result{}, err
	}
	result.Duration = time.Since(start)

	m.logger.DebugContext(ctx, "sql executed",
		slog.String("session_id", observability.SessionIDFromContext(ctx)),
		slog.Int("rows", len(result.Rows)),
		slog.Bool("truncated", result.Truncated),
		slog.String("duration", result.Duration.String()),
	)
	return result, nil
}

func (m *Manager) RunSQL(ctx context.Context, sqlText string) (string, error) {
	result, err := m.Query(ctx, sqlText)
	if err != nil {
		return "", err
	}
	return result.JSON()
}

func (m *Manager) TableDefinitions(ctx context.Context) ([]warehouse.TableDefinition, error) {
	rows, err := m.db.QueryContext(ctx, `
SELECT table_schema, table_name, column_name, data_type, is_nullable, COALESCE(column_default, '')
FROM information_schema.columns
WHERE table_schema = $1
ORDER BY table_name, ordinal_position`, m.schema)
	if err != nil {
		return nil, fmt.Errorf("list table columns: %w", err)
	}
	defer rows.Close()

	defs := make([]warehouse.TableDefinition, 0)
	for rows.Next() {
		var schema, table, column, dataType, nullable, columnDefault string
		if err := rows.Scan(&schema, &table, &column, &dataType, &nullable, &columnDefault); err != nil {
			return nil, fmt.Errorf("scan table column: %w", err)
		}
		if len(defs) == 0 || defs[len(defs)-1].Name != table || defs[len(defs)-1].Schema != schema {
			defs = append(defs, warehouse.TableDefinition{Schema: schema, Name: table})
		}
		last := &defs[len(defs)-1]
		last.Columns = append(last.Columns, warehouse.Column{
			Name:     column,
			DataType: dataType,
			Nullable: nullable == "YES",
			Default:  columnDefault,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate table columns: %w", err)
	}
	return defs, nil
}

func (m *Manager) Explain(ctx context.Context, sqlText string) error {
	if !warehouse.IsReadOnly(sqlText) {
		return warehouse.ErrReadOnly
	}
	return m.readOnly(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, "EXPLAIN "+warehouse.StripTrailingSemicolons(sqlText))
		if err != nil {
			return fmt.Errorf("explain sql: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
		}
		if err := rows.Err(); err != nil {
			return fmt.Errorf("explain sql: %w", err)
		}
		return nil
	})
}

// readOnly runs fn in a transaction the server refuses to write in and
// always rolls it back.
func (m *Manager) readOnly(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := m.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return fmt.Errorf("begin read-only transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, "SET TRANSACTION READ ONLY"); err != nil {
		return fmt.Errorf("set transaction read only: %w", err)
	}
	return fn(tx)
}
