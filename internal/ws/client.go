// Package ws adapts websocket connections to the session layer.
package ws

import (
	"context"
	"sync"
	"time"

	"github.com/coder/websocket"
)

// writeTimeout bounds a single outbound frame so one stalled client cannot
// hold up a broadcast.
const writeTimeout = 3 * time.Second

// Client wraps one websocket connection behind a write lock so concurrent
// broadcasts never interleave frames.
type Client struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func NewClient(conn *websocket.Conn) *Client {
	return &Client{conn: conn}
}

// Send writes one text frame. It satisfies the session layer's Sender.
func (c *Client) Send(ctx context.Context, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return c.conn.Write(ctx, websocket.MessageText, data)
}

// Close tears the connection down with a normal closure code.
func (c *Client) Close() {
	_ = c.conn.Close(websocket.StatusNormalClosure, "")
}
