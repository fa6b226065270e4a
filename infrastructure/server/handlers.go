package server

import (
	"chat-relay/domain"
	"chat-relay/observability"
	"chat-relay/services"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
)

const (
	statusOK           = "ok"
	statusDisconnected = "db-disconnected"
)

type handlers struct {
	log     *slog.Logger
	service services.IChatService
}

type errorResponse struct {
	Error string `json:"error"`
}

type healthResponse struct {
	Status string `json:"status"`
	observability.HealthStats
}

func (h *handlers) index(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = fmt.Fprint(w, "chat-relay is running")
}

func (h *handlers) recentMessages(w http.ResponseWriter, r *http.Request) {
	limit, ok := h.limit(w, r)
	if !ok {
		return
	}
	messages, err := h.service.GetRecentPublicMessages(r.Context(), limit)
	if err != nil {
		h.log.Warn("Unable to read recent messages", "error", err)
		h.writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "message store unavailable"})
		return
	}
	h.writeJSON(w, http.StatusOK, messages)
}

func (h *handlers) privateHistory(w http.ResponseWriter, r *http.Request) {
	a := domain.ConnectionID(r.URL.Query().Get("a"))
	b := domain.ConnectionID(r.URL.Query().Get("b"))
	if a == "" || b == "" {
		h.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "query parameters a and b are required"})
		return
	}
	limit, ok := h.limit(w, r)
	if !ok {
		return
	}
	messages, err := h.service.GetPrivateHistory(r.Context(), a, b, limit)
	if err != nil {
		h.log.Warn("Unable to read private history", "error", err)
		h.writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "message store unavailable"})
		return
	}
	h.writeJSON(w, http.StatusOK, messages)
}

func (h *handlers) users(w http.ResponseWriter, _ *http.Request) {
	h.writeJSON(w, http.StatusOK, h.service.GetLivePresence())
}

func (h *handlers) health(w http.ResponseWriter, r *http.Request) {
	stats := h.service.Health(r.Context())
	status, code := statusOK, http.StatusOK
	if !stats.StoreReachable {
		status, code = statusDisconnected, http.StatusServiceUnavailable
	}
	h.writeJSON(w, code, healthResponse{Status: status, HealthStats: stats})
}

// limit parses the optional limit parameter; zero lets the service pick its default.
func (h *handlers) limit(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 0, true
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 0 {
		h.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "limit must be a positive integer"})
		return 0, false
	}
	return limit, true
}

func (h *handlers) writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.log.Debug("Unable to write response", "error", err)
	}
}
