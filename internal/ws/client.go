package ws

import (
	"sync"

	"github.com/gorilla/websocket"
)

// Client wraps a websocket connection with write serialization.
// gorilla/websocket allows only one concurrent writer; broadcasts and
// the per-connection dispatcher may both write to the same peer.
type Client struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

// NewClient wraps conn.
func NewClient(conn *websocket.Conn) *Client {
	return &Client{conn: conn}
}

// WriteJSON sends v as a single JSON frame.
func (c *Client) WriteJSON(v interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteJSON(v)
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	return c.conn.Close()
}
