package websocket

import (
	"chat-relay/contract"
	"chat-relay/domain"
	"context"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
)

type Config struct {
	AllowedOrigins []string
	BufferSize     int
	MaxFrameSize   int64
}

// Handler upgrades GET /ws and runs one Conn per socket.
type Handler struct {
	ctx         context.Context
	log         *slog.Logger
	coordinator contract.ICoordinator
	upgrader    websocket.Upgrader
	cfg         Config

	mu    sync.Mutex
	conns map[domain.ConnectionID]*Conn
	wg    sync.WaitGroup
}

// NewHandler binds sessions to ctx: store calls made on their behalf stop when it is canceled.
func NewHandler(ctx context.Context, log *slog.Logger, coordinator contract.ICoordinator, cfg Config) *Handler {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 256
	}
	if cfg.MaxFrameSize <= 0 {
		cfg.MaxFrameSize = 4096
	}
	origins := NewOriginChecker(cfg.AllowedOrigins, log)
	return &Handler{
		ctx:         ctx,
		log:         log,
		coordinator: coordinator,
		cfg:         cfg,
		conns:       make(map[domain.ConnectionID]*Conn),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     origins.Check,
		},
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed. WebSocket endpoint only accepts GET requests.", http.StatusMethodNotAllowed)
		return
	}
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Debug("WebSocket upgrade failed", "remote_addr", r.RemoteAddr, "error", err)
		return
	}

	conn := NewConn(domain.NewConnectionID(), ws, h.coordinator, h.log, h.cfg.BufferSize, h.cfg.MaxFrameSize)
	h.track(conn)
	defer h.untrack(conn)

	h.log.Debug("WebSocket connected", "connection_id", conn.ID(), "remote_addr", r.RemoteAddr)
	conn.Run(h.ctx)
}

// Shutdown sends a going-away close frame to every live socket and waits
// for their read pumps to finish the disconnect cleanup.
func (h *Handler) Shutdown(ctx context.Context) {
	h.mu.Lock()
	for _, conn := range h.conns {
		conn.Close(websocket.CloseGoingAway, "server shutting down")
	}
	h.mu.Unlock()

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		h.log.Warn("Timed out waiting for websocket sessions to close")
	}
}

func (h *Handler) track(conn *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.wg.Add(1)
	h.conns[conn.ID()] = conn
}

func (h *Handler) untrack(conn *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.conns, conn.ID())
	h.wg.Done()
}
