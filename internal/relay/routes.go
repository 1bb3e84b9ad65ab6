package relay

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/idia-astro/carta-scripting/internal/audit"
	"github.com/idia-astro/carta-scripting/internal/history"
	"github.com/idia-astro/carta-scripting/internal/ratelimit"
)

const (
	defaultAuditLimit = 50
	maxAuditLimit     = 500
)

// sessionActions is the JSON body of GET /sessions/{id}/actions.
type sessionActions struct {
	SessionID uint32                 `json:"session_id"`
	Connected bool                   `json:"connected"`
	Remaining *int                   `json:"remaining_actions,omitempty"`
	Actions   []history.ActionRecord `json:"actions"`
}

// auditActions is the JSON body of GET /sessions/{id}/audit.
type auditActions struct {
	SessionID  uint32        `json:"session_id"`
	LastMinute int           `json:"last_minute"`
	Actions    []audit.Entry `json:"actions"`
}

// Routes registers the relay's inspection endpoints.
func (r *Relay) Routes(router chi.Router) {
	router.Route("/sessions/{id}", func(sr chi.Router) {
		sr.Get("/actions", r.handleActions)
		sr.Get("/audit", r.handleAudit)
	})
}

func (r *Relay) handleActions(w http.ResponseWriter, req *http.Request) {
	id, ok := sessionParam(w, req)
	if !ok {
		return
	}
	actions := r.history.Get(id)
	if actions == nil {
		actions = []history.ActionRecord{}
	}
	body := sessionActions{
		SessionID: id,
		Connected: r.server.Connections().Get(id) != nil,
		Actions:   actions,
	}
	if r.limiter != nil {
		n, _ := r.limiter.Remaining(req.Context(), strconv.FormatUint(uint64(id), 10), ratelimit.RuleAction)
		body.Remaining = &n
	}
	writeJSON(w, http.StatusOK, body)
}

func (r *Relay) handleAudit(w http.ResponseWriter, req *http.Request) {
	if r.audit == nil {
		http.Error(w, "audit log not configured", http.StatusNotFound)
		return
	}
	id, ok := sessionParam(w, req)
	if !ok {
		return
	}

	limit, err := auditLimit(req.URL.Query().Get("limit"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(req.Context(), 5*time.Second)
	defer cancel()

	entries, err := r.audit.Recent(ctx, id, limit)
	if err != nil {
		r.logger.Error("audit query failed", "session_id", id, "error", err)
		http.Error(w, "audit query failed", http.StatusInternalServerError)
		return
	}
	recent, err := r.audit.CountSince(ctx, id, time.Minute)
	if err != nil {
		r.logger.Error("audit count failed", "session_id", id, "error", err)
		http.Error(w, "audit query failed", http.StatusInternalServerError)
		return
	}
	if entries == nil {
		entries = []audit.Entry{}
	}
	writeJSON(w, http.StatusOK, auditActions{SessionID: id, LastMinute: recent, Actions: entries})
}

// auditLimit parses the limit query parameter, capped at maxAuditLimit.
func auditLimit(v string) (int, error) {
	if v == "" {
		return defaultAuditLimit, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, errors.New("invalid limit")
	}
	return min(n, maxAuditLimit), nil
}

func sessionParam(w http.ResponseWriter, req *http.Request) (uint32, bool) {
	id, err := strconv.ParseUint(chi.URLParam(req, "id"), 10, 32)
	if err != nil {
		http.Error(w, "invalid session id", http.StatusBadRequest)
		return 0, false
	}
	return uint32(id), true
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
