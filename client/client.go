/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

// Package client speaks the drawing relay's wire protocol from Go.
package client

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Seednode/doodlebox/event"
	"github.com/gorilla/websocket"
)

var ErrClosed = errors.New("connection closed")

// Conn is a relay connection. Send and Next may be used from different
// goroutines; each must not be called concurrently with itself.
type Conn struct {
	ws *websocket.Conn

	mu     sync.Mutex
	closed bool
}

// Dial connects to a relay websocket endpoint such as ws://host:8080/ws.
func Dial(ctx context.Context, url string) (*Conn, error) {
	ws, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}

	return &Conn{ws: ws}, nil
}

// Join asks the relay for its history. The reply arrives through Next.
func (c *Conn) Join(ctx context.Context) error {
	return c.Send(ctx, event.Join{})
}

func (c *Conn) Send(ctx context.Context, m event.Message) error {
	frame, err := event.Encode(m)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}

	deadline, _ := ctx.Deadline()
	if err := c.ws.SetWriteDeadline(deadline); err != nil {
		return fmt.Errorf("set write deadline: %w", err)
	}

	if err := c.ws.WriteMessage(websocket.TextMessage, frame); err != nil {
		return fmt.Errorf("write %s: %w", m.Kind(), err)
	}

	return nil
}

// Next returns the next message from the relay. Frames that do not decode
// are skipped.
func (c *Conn) Next(ctx context.Context) (event.Message, error) {
	deadline, _ := ctx.Deadline()
	if err := c.ws.SetReadDeadline(deadline); err != nil {
		return nil, fmt.Errorf("set read deadline: %w", err)
	}

	for {
		kind, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil, ErrClosed
			}
			return nil, fmt.Errorf("read: %w", err)
		}
		if kind != websocket.TextMessage {
			continue
		}

		m, err := event.Decode(data)
		if err != nil {
			continue
		}

		return m, nil
	}
}

// Catchup joins and waits for the history reply. Broadcasts that arrive
// before it are passed to seen, which may be nil.
func (c *Conn) Catchup(ctx context.Context, seen func(event.Message)) (event.History, error) {
	if err := c.Join(ctx); err != nil {
		return nil, err
	}

	for {
		m, err := c.Next(ctx)
		if err != nil {
			return nil, err
		}

		if h, ok := m.(event.History); ok {
			return h, nil
		}

		if seen != nil {
			seen(m)
		}
	}
}

// Close sends a normal closure and closes the connection.
func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true

	_ = c.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))

	return c.ws.Close()
}
