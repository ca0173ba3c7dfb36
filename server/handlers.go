// Package server exposes the HTTP API handlers.
package server

import (
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/namtm24/studyblog-chat/chat"
)

// Handlers holds dependencies for all HTTP handlers.
type Handlers struct {
	db       *sql.DB
	hub      *chat.Hub
	upgrader websocket.Upgrader
}

// NewHandlers creates a new Handlers instance with the given dependencies.
// Origin checking is delegated to the CORS layer; the upgrader accepts any
// origin so browser widgets embedded on blog pages can connect.
func NewHandlers(database *sql.DB, hub *chat.Hub) *Handlers {
	return &Handlers{
		db:  database,
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// HandleWS upgrades the connection and hands it to the chat hub. The handler
// blocks until the connection closes; each connection gets its own goroutine
// pair for reading and writing.
func (h *Handlers) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error response.
		slog.Warn("websocket upgrade failed", slog.Any("err", err), slog.String("remote_addr", r.RemoteAddr), slog.String("component", "http"))
		return
	}
	chat.NewClient(h.hub, conn).Run(r.Context())
}

// HandleHealthz responds to liveness probe requests by checking database connectivity.
func (h *Handlers) HandleHealthz(w http.ResponseWriter, r *http.Request) {
	if err := h.db.PingContext(r.Context()); err != nil {
		http.Error(w, "unhealthy", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// HandleReadyz responds to readiness probe requests with detailed checks.
func (h *Handlers) HandleReadyz(w http.ResponseWriter, r *http.Request) {
	checks := []struct {
		name string
		fn   func() error
	}{
		{"database", func() error { return h.db.PingContext(r.Context()) }},
		{"schema", func() error {
			var n int
			return h.db.QueryRowContext(r.Context(), "SELECT COUNT(*) FROM chat_messages WHERE 1=0").Scan(&n)
		}},
	}

	for _, check := range checks {
		if err := check.fn(); err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			_ = json.NewEncoder(w).Encode(map[string]string{
				"status":       "not_ready",
				"failed_check": check.name,
				"error":        err.Error(),
			})
			return
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ready"})
}

// HandleStatus reports live relay counts and durable message totals.
func (h *Handlers) HandleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	ctx := r.Context()

	connections, operators, rooms := h.hub.Stats()
	resp := map[string]any{
		"connections": connections,
		"operators":   operators,
		"rooms":       rooms,
	}

	var stored int
	_ = h.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chat_messages`).Scan(&stored)
	resp["stored_messages"] = stored

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Warn("failed to encode status response", slog.Any("err", err))
	}
}
