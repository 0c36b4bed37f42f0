package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/dataagent/dataagent/internal/auth"
	"github.com/dataagent/dataagent/internal/prompt"
)

type promptRequest struct {
	Prompt  string `json:"prompt"`
	RunMode string `json:"run_mode"`
}

func handlePrompt(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Prompts == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "PROMPTS_NOT_CONFIGURED", "prompt handler is not configured", false, nil)
		return
	}
	if err := requireRole(r, auth.RolePromptRunner); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return
	}

	var req promptRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid prompt request body", false, map[string]any{"details": err.Error()})
		return
	}
	if strings.TrimSpace(req.Prompt) == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "PROMPT_REQUIRED", "prompt is required", false, nil)
		return
	}
	if req.RunMode != "" && !prompt.ValidRunMode(req.RunMode) {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_RUN_MODE", "unknown run mode", false, map[string]any{"run_mode": req.RunMode})
		return
	}

	result, err := deps.Prompts.Handle(r.Context(), prompt.Request{Prompt: req.Prompt, RunMode: req.RunMode})
	if err != nil {
		switch {
		case errors.Is(err, prompt.ErrEmptyPrompt):
			writeError(r.Context(), w, http.StatusBadRequest, "PROMPT_REQUIRED", "prompt is required", false, nil)
		case errors.Is(err, prompt.ErrInvalidRunMode):
			writeError(r.Context(), w, http.StatusBadRequest, "INVALID_RUN_MODE", err.Error(), false, nil)
		case errors.Is(err, prompt.ErrSessionInProgress):
			writeError(r.Context(), w, http.StatusConflict, "SESSION_IN_PROGRESS", "a prompt with the same session id is still running", true, map[string]any{
				"session_id": result.SessionID,
			})
		default:
			if deps.Logger != nil {
				deps.Logger.ErrorContext(r.Context(), "prompt failed", slog.String("session_id", result.SessionID), slog.Any("error", err))
			}
			writeError(r.Context(), w, http.StatusBadGateway, "PROMPT_FAILED", "failed to run prompt", true, map[string]any{
				"session_id": result.SessionID,
				"details":    err.Error(),
			})
		}
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func handleRunModes(w http.ResponseWriter, r *http.Request) {
	if err := requireRole(r, auth.RoleSessionReader); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"run_modes": prompt.RunModes()})
}
