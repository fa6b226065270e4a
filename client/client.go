// Package client is a small Go client for the relay websocket protocol.
// The CLI, the end-to-end suite and the transport tests speak through it.
package client

import (
	"chat-relay/domain"
	"chat-relay/domain/event"
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const writeWait = 10 * time.Second

type Client struct {
	ID domain.ConnectionID

	ws *websocket.Conn
	mu sync.Mutex
}

// Dial opens the socket and waits for the welcome frame carrying the connection id.
func Dial(ctx context.Context, url string, header http.Header) (*Client, error) {
	ws, _, err := websocket.DefaultDialer.DialContext(ctx, url, header)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	c := &Client{ws: ws}

	deadline := 5 * time.Second
	if d, ok := ctx.Deadline(); ok {
		deadline = time.Until(d)
	}
	evt, err := c.WaitFor(event.WelcomeType, deadline)
	if err != nil {
		_ = ws.Close()
		return nil, fmt.Errorf("waiting for welcome: %w", err)
	}
	c.ID = evt.(*event.Welcome).ConnectionID
	return c, nil
}

// Send writes one inbound event. Safe for concurrent use.
func (c *Client) Send(evt event.Inbound) error {
	data, err := event.Encode(evt)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	return c.ws.WriteMessage(websocket.TextMessage, data)
}

func (c *Client) Join(username string) error {
	return c.Send(event.Join{Username: username})
}

// Next blocks until the next server event or the timeout.
// A zero timeout waits forever.
func (c *Client) Next(timeout time.Duration) (event.Outbound, error) {
	var deadline time.Time
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}
	_ = c.ws.SetReadDeadline(deadline)
	_, data, err := c.ws.ReadMessage()
	if err != nil {
		return nil, err
	}
	return event.DecodeOutbound(data)
}

// WaitFor skips events until one of the given kind arrives.
func (c *Client) WaitFor(kind event.Kind, timeout time.Duration) (event.Outbound, error) {
	deadline := time.Now().Add(timeout)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, fmt.Errorf("no %s within %s", kind, timeout)
		}
		evt, err := c.Next(remaining)
		if err != nil {
			return nil, err
		}
		if evt.Kind() == kind {
			return evt, nil
		}
	}
}

// Close sends a normal close frame and releases the socket.
func (c *Client) Close() error {
	c.mu.Lock()
	_ = c.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
	c.mu.Unlock()
	return c.ws.Close()
}
