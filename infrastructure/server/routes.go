// Package server exposes the relay over HTTP: the websocket endpoint,
// the read-only query API and the health check.
package server

import (
	"chat-relay/services"
	"log/slog"
	"net/http"
)

// SetupRoutes mounts every route on a fresh ServeMux.
func SetupRoutes(log *slog.Logger, service services.IChatService, ws http.Handler) *http.ServeMux {
	h := &handlers{log: log, service: service}
	mux := http.NewServeMux()
	mux.Handle("/ws", ws)
	mux.HandleFunc("GET /api/messages", h.recentMessages)
	mux.HandleFunc("GET /api/messages/private", h.privateHistory)
	mux.HandleFunc("GET /api/users", h.users)
	mux.HandleFunc("GET /healthz", h.health)
	mux.HandleFunc("GET /{$}", h.index)
	return mux
}
