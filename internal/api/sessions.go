package api

import (
	"errors"
	"net/http"
	"os"
	"strconv"

	"github.com/dataagent/dataagent/internal/auth"
	"github.com/dataagent/dataagent/internal/config"
	"github.com/dataagent/dataagent/internal/instruments"
	"github.com/dataagent/dataagent/internal/store"
)

const maxSessionListLimit = 500

func handleListSessions(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Sessions == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "SESSIONS_NOT_CONFIGURED", "session store is not configured", false, nil)
		return
	}
	if err := requireRole(r, auth.RoleSessionReader); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return
	}

	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 || parsed > maxSessionListLimit {
			writeError(r.Context(), w, http.StatusBadRequest, "INVALID_LIMIT", "limit must be between 1 and 500", false, map[string]any{"limit": raw})
			return
		}
		limit = parsed
	}

	sessions, err := deps.Sessions.ListSessions(r.Context(), limit)
	if err != nil {
		writeError(r.Context(), w, http.StatusInternalServerError, "STORE_ERROR", "failed to list sessions", true, map[string]any{"details": err.Error()})
		return
	}
	if sessions == nil {
		sessions = []store.SessionSummary{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": sessions})
}

func handleGetSession(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Sessions == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "SESSIONS_NOT_CONFIGURED", "session store is not configured", false, nil)
		return
	}
	if err := requireRole(r, auth.RoleSessionReader); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return
	}

	sessionID := r.PathValue("id")
	record, err := deps.Sessions.GetSession(r.Context(), sessionID)
	if err != nil {
		if errors.Is(err, store.ErrSessionNotFound) {
			writeError(r.Context(), w, http.StatusNotFound, "SESSION_NOT_FOUND", "session not found", false, map[string]any{"session_id": sessionID})
			return
		}
		writeError(r.Context(), w, http.StatusInternalServerError, "STORE_ERROR", "failed to load session", true, map[string]any{"details": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, record)
}

func handleListSessionFiles(cfg config.Config, w http.ResponseWriter, r *http.Request) {
	if err := requireRole(r, auth.RoleSessionReader); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return
	}

	sessionID := r.PathValue("id")
	files, err := instruments.ListSessionFiles(cfg.Agent.BaseDir, sessionID)
	if err != nil {
		switch {
		case errors.Is(err, instruments.ErrInvalidFileName):
			writeError(r.Context(), w, http.StatusBadRequest, "INVALID_SESSION_ID", "invalid session id", false, nil)
		case errors.Is(err, os.ErrNotExist):
			writeError(r.Context(), w, http.StatusNotFound, "SESSION_NOT_FOUND", "session files not found", false, map[string]any{"session_id": sessionID})
		default:
			writeError(r.Context(), w, http.StatusInternalServerError, "FILES_ERROR", "failed to list session files", true, map[string]any{"details": err.Error()})
		}
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"session_id": sessionID, "files": files})
}

func handleDownloadSessionFile(cfg config.Config, w http.ResponseWriter, r *http.Request) {
	if err := requireRole(r, auth.RoleSessionReader); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return
	}

	sessionID := r.PathValue("id")
	name := r.PathValue("name")
	path, err := instruments.SessionFilePath(cfg.Agent.BaseDir, sessionID, name)
	if err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_FILE_NAME", err.Error(), false, nil)
		return
	}
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		writeError(r.Context(), w, http.StatusNotFound, "FILE_NOT_FOUND", "session file not found", false, map[string]any{"session_id": sessionID, "name": name})
		return
	}

	w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
	http.ServeFile(w, r, path)
}
