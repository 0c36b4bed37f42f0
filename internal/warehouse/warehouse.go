// Package warehouse describes read access to the analytics database the agents
// query: running generated SQL and describing tables for prompt context.
package warehouse

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
)

var ErrReadOnly = errors.New("warehouse: only read-only SELECT/WITH statements are allowed")

type Manager interface {
	Ping(ctx context.Context) error
	Query(ctx context.Context, sqlText string) (Result, error)
	RunSQL(ctx context.Context, sqlText string) (string, error)
	TableDefinitions(ctx context.Context) ([]TableDefinition, error)
	Explain(ctx context.Context, sqlText string) error
}

type Column struct {
	Name     string
	DataType string
	Nullable bool
	Default  string
}

type TableDefinition struct {
	Schema  string
	Name    string
	Columns []Column
}

// QualifiedName returns schema.name, or name alone when the schema is empty.
func (d TableDefinition) QualifiedName() string {
	if d.Schema == "" {
		return d.Name
	}
	return d.Schema + "." + d.Name
}

// DDL renders the definition as a CREATE TABLE statement.
func (d TableDefinition) DDL() string {
	var b strings.Builder
	b.WriteString("CREATE TABLE ")
	b.WriteString(d.QualifiedName())
	b.WriteString(" (\n")
	for i, col := range d.Columns {
		b.WriteString("    ")
		b.WriteString(col.Name)
		b.WriteString(" ")
		b.WriteString(col.DataType)
		if !col.Nullable {
			b.WriteString(" NOT NULL")
		}
		if col.Default != "" {
			b.WriteString(" DEFAULT ")
			b.WriteString(col.Default)
		}
		if i < len(d.Columns)-1 {
			b.WriteString(",")
		}
		b.WriteString("\n")
	}
	b.WriteString(");")
	return b.String()
}

type Result struct {
	Columns   []string
	Rows      [][]any
	Truncated bool
	Duration  time.Duration
}

// Records returns the rows as column-keyed maps.
func (r Result) Records() []map[string]any {
	records := make([]map[string]any, 0, len(r.Rows))
	for _, row := range r.Rows {
		record := make(map[string]any, len(r.Columns))
		for i, col := range r.Columns {
			if i < len(row) {
				record[col] = row[i]
			}
		}
		records = append(records, record)
	}
	return records
}

// JSON renders the rows as an array of objects, keys in column order,
// indented with four spaces.
func (r Result) JSON() (string, error) {
	var buf bytes.Buffer
	buf.WriteByte('[')
	for rowIdx, row := range r.Rows {
		if rowIdx > 0 {
			buf.WriteByte(',')
		}
		buf.WriteByte('{')
		for i, col := range r.Columns {
			if i > 0 {
				buf.WriteByte(',')
			}
			key, err := json.Marshal(col)
			if err != nil {
				return "", fmt.Errorf("encode column %q: %w", col, err)
			}
			buf.Write(key)
			buf.WriteByte(':')
			var value any
			if i < len(row) {
				value = row[i]
			}
			encoded, err := json.Marshal(value)
			if err != nil {
				encoded, _ = json.Marshal(fmt.Sprint(value))
			}
			buf.Write(encoded)
		}
		buf.WriteByte('}')
	}
	buf.WriteByte(']')

	var out bytes.Buffer
	if err := json.Indent(&out, buf.Bytes(), "", "    "); err != nil {
		return "", fmt.Errorf("indent result json: %w", err)
	}
	return out.String(), nil
}

// NormalizeValue converts driver values into JSON-friendly values. Timestamps
// become ISO-8601 strings and anything json cannot encode is stringified.
func NormalizeValue(value any) any {
	switch typed := value.(type) {
	case nil, bool, string, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return typed
	case float32, float64:
		if _, err := json.Marshal(typed); err != nil {
			return fmt.Sprint(typed)
		}
		return typed
	case []byte:
		return string(typed)
	case time.Time:
		return typed.Format(time.RFC3339Nano)
	default:
		if _, err := json.Marshal(typed); err != nil {
			return fmt.Sprint(typed)
		}
		return typed
	}
}

var (
	sqlLiteralPattern   = regexp.MustCompile(`(?s)'(?:[^']|'')*'|"(?:[^"]|"")*"|--[^\n]*|/\*.*?\*/`)
	writeKeywordPattern = regexp.MustCompile(`(?i)\b(insert|update|delete|merge|truncate|drop|alter|create|grant|revoke|into|copy|call)\b`)
)

// IsReadOnly reports whether sqlText is a single SELECT or WITH statement
// without data-modifying keywords outside literals and comments. The
// warehouse still runs it in a read-only transaction.
func IsReadOnly(sqlText string) bool {
	stripped := sqlLiteralPattern.ReplaceAllString(StripTrailingSemicolons(sqlText), " ")
	normalized := strings.ToLower(strings.TrimSpace(stripped))
	if normalized == "" {
		return false
	}
	if !strings.HasPrefix(normalized, "select") && !strings.HasPrefix(normalized, "with") {
		return false
	}
	return !strings.Contains(normalized, ";") && !writeKeywordPattern.MatchString(normalized)
}

func StripTrailingSemicolons(sqlText string) string {
	trimmed := strings.TrimSpace(sqlText)
	for strings.HasSuffix(trimmed, ";") {
		trimmed = strings.TrimSpace(strings.TrimSuffix(trimmed, ";"))
	}
	return trimmed
}

// JoinDDL renders definitions separated by blank lines, the format used for
// TABLE_DEFINITIONS prompt context.
func JoinDDL(defs []TableDefinition) string {
	parts := make([]string, 0, len(defs))
	for _, def := range defs {
		parts = append(parts, def.DDL())
	}
	return strings.Join(parts, "\n\n")
}
