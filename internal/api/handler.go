// Package api serves the prompt pipeline, session history and the chat UI
// over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dataagent/dataagent/internal/agent"
	"github.com/dataagent/dataagent/internal/auth"
	"github.com/dataagent/dataagent/internal/config"
	"github.com/dataagent/dataagent/internal/nl2sql"
	"github.com/dataagent/dataagent/internal/observability"
	"github.com/dataagent/dataagent/internal/prompt"
	"github.com/dataagent/dataagent/internal/store"
	"github.com/dataagent/dataagent/internal/warehouse"
)

type ReadinessCheck func(ctx context.Context) error

type PromptRunner interface {
	Handle(ctx context.Context, req prompt.Request) (agent.ConversationResult, error)
}

type SessionReader interface {
	GetSession(ctx context.Context, sessionID string) (store.SessionRecord, error)
	ListSessions(ctx context.Context, limit int) ([]store.SessionSummary, error)
}

type SchemaSource interface {
	TableDefinitions(ctx context.Context) ([]warehouse.TableDefinition, error)
}

type TableContext interface {
	SimilarTableDefsForPrompt(ctx context.Context, prompt string) (string, error)
}

type Dependencies struct {
	Logger            *slog.Logger
	Readiness         ReadinessCheck
	AuthMiddleware    func(http.Handler) http.Handler
	DependencyTimeout time.Duration
	Prompts           PromptRunner
	Sessions          SessionReader
	Schema            SchemaSource
	Tables            TableContext
	Translator        nl2sql.Translator
	UI                http.Handler
}

func NewHandler(cfg config.Config, deps Dependencies) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /v1/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "service": cfg.Service.Name})
	})

	mux.HandleFunc("GET /v1/ready", func(w http.ResponseWriter, r *http.Request) {
		if deps.Readiness == nil {
			writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
			return
		}
		timeout := deps.DependencyTimeout
		if timeout <= 0 {
			timeout = 2 * time.Second
		}
		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()
		if err := deps.Readiness(ctx); err != nil {
			writeError(r.Context(), w, http.StatusServiceUnavailable, "NOT_READY", err.Error(), true, nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
	})

	mux.Handle("GET /v1/metrics", promhttp.Handler())

	routes := map[string]http.HandlerFunc{
		"POST /v1/prompts": func(w http.ResponseWriter, r *http.Request) {
			handlePrompt(deps, w, r)
		},
		"GET /v1/run-modes": func(w http.ResponseWriter, r *http.Request) {
			handleRunModes(w, r)
		},
		"GET /v1/sessions": func(w http.ResponseWriter, r *http.Request) {
			handleListSessions(deps, w, r)
		},
		"GET /v1/sessions/{id}": func(w http.ResponseWriter, r *http.Request) {
			handleGetSession(deps, w, r)
		},
		"GET /v1/sessions/{id}/files": func(w http.ResponseWriter, r *http.Request) {
			handleListSessionFiles(cfg, w, r)
		},
		"GET /v1/sessions/{id}/files/{name}": func(w http.ResponseWriter, r *http.Request) {
			handleDownloadSessionFile(cfg, w, r)
		},
		"GET /v1/schema": func(w http.ResponseWriter, r *http.Request) {
			handleSchema(deps, w, r)
		},
		"POST /v1/translate": func(w http.ResponseWriter, r *http.Request) {
			handleTranslate(deps, cfg.Warehouse.Schema, w, r)
		},
	}

	protected := http.NewServeMux()
	for pattern, handler := range routes {
		protected.HandleFunc(pattern, handler)
	}
	var protectedHandler http.Handler = protected
	if cfg.Auth.Required {
		if deps.AuthMiddleware == nil {
			if deps.Logger != nil {
				deps.Logger.Error("auth required but auth middleware missing")
			}
			protectedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				writeError(r.Context(), w, http.StatusInternalServerError, "AUTH_MIDDLEWARE_MISSING", "auth middleware is required by configuration", false, nil)
			})
		} else {
			protectedHandler = deps.AuthMiddleware(protectedHandler)
		}
	}
	for pattern := range routes {
		mux.Handle(pattern, protectedHandler)
	}

	if deps.UI != nil && cfg.UI.Enabled {
		mux.Handle("GET /ui/", http.StripPrefix("/ui", deps.UI))
		mux.Handle("GET /{$}", http.RedirectHandler("/ui/", http.StatusFound))
	}

	middlewares := []func(http.Handler) http.Handler{
		observability.TraceMiddleware,
		observability.MetricsMiddleware,
	}
	if deps.Logger != nil {
		middlewares = append(middlewares, observability.LoggingMiddleware(deps.Logger))
	}
	return chain(mux, middlewares...)
}

// CheckPing adapts anything with a Ping method into a readiness check.
func CheckPing(name string, pinger interface{ Ping(context.Context) error }) ReadinessCheck {
	return func(ctx context.Context) error {
		if err := pinger.Ping(ctx); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		return nil
	}
}

func CheckObjectStoreConfig(cfg config.Config) ReadinessCheck {
	return func(_ context.Context) error {
		if !cfg.ObjectStore.Enabled {
			return nil
		}
		if cfg.ObjectStore.Endpoint == "" {
			return errors.New("object store endpoint is not configured")
		}
		if cfg.ObjectStore.Bucket == "" {
			return errors.New("object store bucket is not configured")
		}
		return nil
	}
}

func CombineReadinessChecks(checks ...ReadinessCheck) ReadinessCheck {
	filtered := make([]ReadinessCheck, 0, len(checks))
	for _, check := range checks {
		if check != nil {
			filtered = append(filtered, check)
		}
	}
	return func(ctx context.Context) error {
		for _, check := range filtered {
			if err := check(ctx); err != nil {
				return err
			}
		}
		return nil
	}
}

func requireRole(r *http.Request, role string) error {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		return nil
	}
	if identity.HasRole(role) {
		return nil
	}
	return fmt.Errorf("missing required role %q", role)
}

func decodeJSON(r *http.Request, dst any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(dst)
}

func chain(base http.Handler, middlewares ...func(http.Handler) http.Handler) http.Handler {
	wrapped := base
	for i := len(middlewares) - 1; i >= 0; i-- {
		wrapped = middlewares[i](wrapped)
	}
	return wrapped
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(ctx context.Context, w http.ResponseWriter, status int, code, message string, retryable bool, extra map[string]any) {
	writeJSON(w, status, map[string]any{
		"error_code": code,
		"message":    message,
		"retryable":  retryable,
		"context":    extra,
		"trace_id":   observability.TraceIDFromContext(ctx),
	})
}
