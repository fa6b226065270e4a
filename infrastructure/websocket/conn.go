// Package websocket is the transport boundary: it turns socket frames into
// inbound events for the coordinator and drains outbound events to the socket.
package websocket

import (
	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/domain/event"
	"chat-relay/errors"
	"context"
	goerrors "errors"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

var _ contract.EventSink = (*Conn)(nil)

// Conn is one client session. The coordinator writes to it through Deliver,
// the read pump feeds it one frame at a time.
type Conn struct {
	id          domain.ConnectionID
	ws          *websocket.Conn
	log         *slog.Logger
	coordinator contract.ICoordinator
	readLimit   int64

	mu     sync.RWMutex
	closed bool
	send   chan []byte
}

func NewConn(id domain.ConnectionID, ws *websocket.Conn, coordinator contract.ICoordinator,
	log *slog.Logger, bufferSize int, readLimit int64) *Conn {
	return &Conn{
		id:          id,
		ws:          ws,
		log:         log,
		coordinator: coordinator,
		readLimit:   readLimit,
		send:        make(chan []byte, bufferSize),
	}
}

func (c *Conn) ID() domain.ConnectionID { return c.id }

// Deliver never blocks. A full buffer means the client cannot keep up:
// the socket is closed and the read pump turns that into a disconnect.
func (c *Conn) Deliver(evt event.Outbound) error {
	data, err := event.Encode(evt)
	if err != nil {
		return err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return errors.ErrSinkClosed
	}
	select {
	case c.send <- data:
		return nil
	default:
		_ = c.ws.Close()
		return errors.ErrSinkFull
	}
}

// Run registers the session and blocks on the read pump until the socket closes.
func (c *Conn) Run(ctx context.Context) {
	go c.writePump()
	c.coordinator.Connect(ctx, c.id, c)
	c.readPump(ctx)
}

// Close asks the client to leave. The read pump does the cleanup.
func (c *Conn) Close(code int, text string) {
	deadline := time.Now().Add(writeWait)
	if err := c.ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, text), deadline); err != nil {
		_ = c.ws.Close()
	}
}

func (c *Conn) readPump(ctx context.Context) {
	reason := "connection closed"
	defer func() {
		_ = c.coordinator.Handle(ctx, c.id, event.Disconnect{Reason: reason})
		c.closeSend()
	}()

	c.ws.SetReadLimit(c.readLimit)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if goerrors.Is(err, websocket.ErrReadLimit) {
				reason = "frame too large"
			} else if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.log.Warn("Unexpected websocket close", "connection_id", c.id, "error", err)
				reason = err.Error()
			}
			return
		}

		evt, err := event.DecodeInbound(data)
		if err != nil {
			c.log.Debug("Dropping malformed frame", "connection_id", c.id, "error", err)
			continue
		}
		if d, ok := evt.(event.Disconnect); ok {
			if d.Reason != "" {
				reason = d.Reason
			}
			return
		}
		if err = c.coordinator.Handle(ctx, c.id, evt); err != nil {
			c.log.Debug("Event refused", "connection_id", c.id, "event", evt.Kind(), "error", err)
		}
	}
}

func (c *Conn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.ws.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, message); err != nil {
				c.log.Debug("Write failed", "connection_id", c.id, "error", err)
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Conn) closeSend() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}
