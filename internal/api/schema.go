package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/dataagent/dataagent/internal/auth"
	"github.com/dataagent/dataagent/internal/nl2sql"
	"github.com/dataagent/dataagent/internal/warehouse"
)

type translateRequest struct {
	Prompt string `json:"prompt"`
}

type columnResponse struct {
	Name     string `json:"name"`
	DataType string `json:"data_type"`
	Nullable bool   `json:"nullable"`
	Default  string `json:"default,omitempty"`
}

type tableResponse struct {
	Schema  string           `json:"schema"`
	Name    string           `json:"name"`
	Columns []columnResponse `json:"columns"`
	DDL     string           `json:"ddl"`
}

func handleSchema(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Schema == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "SCHEMA_NOT_CONFIGURED", "warehouse dependency is not configured", false, nil)
		return
	}
	if err := requireRole(r, auth.RoleSessionReader); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return
	}

	defs, err := deps.Schema.TableDefinitions(r.Context())
	if err != nil {
		writeError(r.Context(), w, http.StatusInternalServerError, "SCHEMA_FETCH_FAILED", "failed to load table definitions", true, map[string]any{"details": err.Error()})
		return
	}
	tables := make([]tableResponse, 0, len(defs))
	for _, def := range defs {
		columns := make([]columnResponse, 0, len(def.Columns))
		for _, col := range def.Columns {
			columns = append(columns, columnResponse{Name: col.Name, DataType: col.DataType, Nullable: col.Nullable, Default: col.Default})
		}
		tables = append(tables, tableResponse{Schema: def.Schema, Name: def.Name, Columns: columns, DDL: def.DDL()})
	}
	writeJSON(w, http.StatusOK, map[string]any{"tables": tables})
}

func handleTranslate(deps Dependencies, schema string, w http.ResponseWriter, r *http.Request) {
	if deps.Translator == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "TRANSLATE_NOT_CONFIGURED", "query translation is not configured", false, nil)
		return
	}
	if deps.Tables == nil && deps.Schema == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "SCHEMA_NOT_CONFIGURED", "warehouse dependency is not configured", false, nil)
		return
	}
	if err := requireRole(r, auth.RolePromptRunner); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return
	}

	var req translateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid translation request body", false, map[string]any{"details": err.Error()})
		return
	}
	if strings.TrimSpace(req.Prompt) == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "PROMPT_REQUIRED", "prompt is required", false, nil)
		return
	}

	tableDefinitions, err := tableContext(r.Context(), deps, req.Prompt)
	if err != nil {
		writeError(r.Context(), w, http.StatusInternalServerError, "SCHEMA_FETCH_FAILED", "failed to load schema context", true, map[string]any{"details": err.Error()})
		return
	}

	result, err := deps.Translator.Translate(r.Context(), nl2sql.Request{
		Question:         req.Prompt,
		TableDefinitions: tableDefinitions,
		Schema:           schema,
	})
	if err != nil {
		writeError(r.Context(), w, http.StatusBadGateway, "TRANSLATE_FAILED", "failed to translate query", true, map[string]any{"details": err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"sql":      result.SQL,
		"provider": result.Provider,
		"model":    result.Model,
		"tokens":   result.Usage.TotalTokens,
		"cost":     result.Cost,
	})
}

// tableContext prefers the embedding-ranked definitions and falls back to
// every table the warehouse exposes.
func tableContext(ctx context.Context, deps Dependencies, prompt string) (string, error) {
	if deps.Tables != nil {
		return deps.Tables.SimilarTableDefsForPrompt(ctx, prompt)
	}
	defs, err := deps.Schema.TableDefinitions(ctx)
	if err != nil {
		return "", fmt.Errorf("list table definitions: %w", err)
	}
	return warehouse.JoinDDL(defs), nil
}
