/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package relay

import (
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Client is one participant's connection handle. Its outbound queue is only
// written to and closed while the Relay lock is held.
type Client struct {
	id     string
	conn   *websocket.Conn
	send   chan []byte
	closed bool
}

// NewClient returns a handle with an outbound queue of buffer frames. conn
// may be nil for handles that are drained directly through Frames.
func NewClient(conn *websocket.Conn, buffer int) *Client {
	if buffer <= 0 {
		buffer = DefaultSendBuffer
	}

	return &Client{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan []byte, buffer),
	}
}

func (c *Client) ID() string {
	return c.id
}

// Frames returns the outbound queue. It is closed when the client is
// unregistered or evicted.
func (c *Client) Frames() <-chan []byte {
	return c.send
}

func (c *Client) remoteAddr() string {
	if c.conn == nil {
		return ""
	}

	return c.conn.RemoteAddr().String()
}

// deliver queues frame without blocking. A false return means the queue is
// full or already closed and the client should be dropped.
func (c *Client) deliver(frame []byte) bool {
	if c.closed {
		return false
	}

	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}

func (c *Client) close() {
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

func (c *Client) writePump(timeout time.Duration) {
	defer c.conn.Close()

	for frame := range c.send {
		if timeout > 0 {
			_ = c.conn.SetWriteDeadline(time.Now().Add(timeout))
		}
		if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
			return
		}
	}

	_ = c.conn.SetWriteDeadline(time.Now().Add(time.Second))
	_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}
