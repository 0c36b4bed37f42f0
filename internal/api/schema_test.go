package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/dataagent/dataagent/internal/llm"
	"github.com/dataagent/dataagent/internal/nl2sql"
	"github.com/dataagent/dataagent/internal/warehouse"
)

type fakeSchema struct {
	defs []warehouse.TableDefinition
	err  error
}

func (f fakeSchema) TableDefinitions(context.Context) ([]warehouse.TableDefinition, error) {
	return f.defs, f.err
}

type fakeTranslator struct {
	requests []nl2sql.Request
}

func (f *fakeTranslator) Translate(_ context.Context, req nl2sql.Request) (nl2sql.Result, error) {
	f.requests = append(f.requests, req)
	return nl2sql.Result{
		SQL:      "SELECT count(*) FROM atomic.events",
		Provider: "mock",
		Model:    "mock-1",
		Usage:    llm.Usage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15},
	}, nil
}

var eventsTable = warehouse.TableDefinition{
	Schema: "atomic",
	Name:   "events",
	Columns: []warehouse.Column{
		{Name: "event_id", DataType: "uuid"},
		{Name: "collector_tstamp", DataType: "timestamp without time zone", Nullable: true},
	},
}

func TestSchemaListsTableDefinitions(t *testing.T) {
	cfg := loadConfig(t, nil)
	h := NewHandler(cfg, Dependencies{Schema: fakeSchema{defs: []warehouse.TableDefinition{eventsTable}}})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/schema", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	body := decodeBody(t, rr)
	tables := body["tables"].([]any)
	if len(tables) != 1 {
		t.Fatalf("tables = %v", tables)
	}
	table := tables[0].(map[string]any)
	if table["name"] != "events" || !strings.HasPrefix(table["ddl"].(string), "CREATE TABLE atomic.events (") {
		t.Fatalf("table = %v", table)
	}
	if columns := table["columns"].([]any); len(columns) != 2 {
		t.Fatalf("columns = %v", columns)
	}
}

func TestSchemaFetchFailure(t *testing.T) {
	cfg := loadConfig(t, nil)
	h := NewHandler(cfg, Dependencies{Schema: fakeSchema{err: errors.New("connection refused")}})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/schema", nil))
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", rr.Code)
	}
}

func TestTranslateUsesWarehouseDefinitions(t *testing.T) {
	cfg := loadConfig(t, nil)
	translator := &fakeTranslator{}
	h := NewHandler(cfg, Dependencies{
		Schema:     fakeSchema{defs: []warehouse.TableDefinition{eventsTable}},
		Translator: translator,
	})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/v1/translate", strings.NewReader(`{"prompt":"how many events"}`)))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rr.Code, rr.Body.String())
	}
	body := decodeBody(t, rr)
	if body["sql"] != "SELECT count(*) FROM atomic.events" || body["tokens"] != float64(15) {
		t.Fatalf("body = %v", body)
	}
	if len(translator.requests) != 1 {
		t.Fatalf("requests = %d", len(translator.requests))
	}
	req := translator.requests[0]
	if req.Question != "how many events" || req.Schema != "atomic" {
		t.Fatalf("request = %+v", req)
	}
	if !strings.Contains(req.TableDefinitions, "CREATE TABLE atomic.events") {
		t.Fatalf("table definitions = %q", req.TableDefinitions)
	}
}

func TestTranslatePrefersRankedTables(t *testing.T) {
	cfg := loadConfig(t, nil)
	translator := &fakeTranslator{}
	h := NewHandler(cfg, Dependencies{
		Tables:     rankedTables("CREATE TABLE atomic.users (id uuid);"),
		Translator: translator,
	})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/v1/translate", strings.NewReader(`{"prompt":"new users"}`)))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rr.Code, rr.Body.String())
	}
	if translator.requests[0].TableDefinitions != "CREATE TABLE atomic.users (id uuid);" {
		t.Fatalf("table definitions = %q", translator.requests[0].TableDefinitions)
	}
}

func TestTranslateRequiresPromptAndConfiguration(t *testing.T) {
	cfg := loadConfig(t, nil)

	rr := httptest.NewRecorder()
	NewHandler(cfg, Dependencies{}).ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/v1/translate", strings.NewReader(`{"prompt":"x"}`)))
	if rr.Code != http.StatusNotImplemented {
		t.Fatalf("unconfigured status = %d", rr.Code)
	}

	h := NewHandler(cfg, Dependencies{Schema: fakeSchema{}, Translator: &fakeTranslator{}})
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/v1/translate", strings.NewReader(`{"prompt":""}`)))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("empty prompt status = %d", rr.Code)
	}
}

type rankedTables string

func (r rankedTables) SimilarTableDefsForPrompt(context.Context, string) (string, error) {
	return string(r), nil
}
