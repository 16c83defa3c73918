/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

// Package relay fans drawing events out to every connected client and
// replays recent history to clients that join late.
//
// All shared state (history and the client registry) sits behind one lock.
// Appending an event and queueing it to every client happen under that lock,
// as does taking a snapshot for a join and queueing it, so a joining client
// sees each event exactly once: either in its history batch or as a later
// broadcast.
package relay

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Seednode/doodlebox/event"
)

const tracerName = "github.com/Seednode/doodlebox/relay"

// ErrIgnored is returned by Handle for frames that decode but have no
// effect, such as a client sending a history batch.
var ErrIgnored = errors.New("frame ignored")

// Relay is one shared board: its history and the clients drawing on it.
type Relay struct {
	mu      sync.RWMutex
	history *History
	clients *Registry
	closed  bool

	sendBuffer   int
	maxFrameSize int64
	writeTimeout time.Duration

	upgrader websocket.Upgrader
	logger   *slog.Logger
	metrics  *Metrics
	tracer   trace.Tracer
}

// Stats is a point-in-time view of the relay.
type Stats struct {
	Clients         int
	HistoryLen      int
	HistoryCapacity int
}

// New returns an empty relay configured by opts.
func New(opts ...Option) *Relay {
	r := &Relay{
		history:      NewHistory(DefaultHistorySize),
		clients:      NewRegistry(),
		sendBuffer:   DefaultSendBuffer,
		maxFrameSize: DefaultMaxFrameSize,
		writeTimeout: DefaultWriteTimeout,
		logger:       slog.Default().With("component", "relay"),
		tracer:       otel.Tracer(tracerName),
	}

	for _, opt := range opts {
		opt(r)
	}

	r.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}

	return r
}

// Register adds c to the set of broadcast recipients. Nothing is sent to it
// until it joins or another client publishes.
func (r *Relay) Register(c *Client) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		c.close()
		return false
	}

	if !r.clients.Register(c) {
		return false
	}
	r.metrics.connected()

	r.logger.Debug("client registered", "client", c.id, "remote", c.remoteAddr(), "clients", r.clients.Len())

	return true
}

// Unregister removes c and closes its outbound queue. It is safe to call
// more than once.
func (r *Relay) Unregister(c *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.clients.Unregister(c) {
		return
	}
	c.close()
	r.metrics.disconnected()

	r.logger.Debug("client unregistered", "client", c.id, "clients", r.clients.Len())
}

// Handle processes one inbound frame from c. Frames that cannot be decoded
// or carry no meaning are dropped; the returned error only explains why.
func (r *Relay) Handle(ctx context.Context, c *Client, data []byte) error {
	ctx, span := r.tracer.Start(ctx, "relay.handle",
		trace.WithAttributes(
			attribute.String("client.id", c.id),
			attribute.Int("frame.size", len(data)),
		),
	)
	defer span.End()

	msg, err := event.Decode(data)
	if err != nil {
		reason := DropMalformed
		if errors.Is(err, event.ErrUnknownType) {
			reason = DropUnknownType
		}
		r.drop(span, c, reason, err)

		return err
	}

	span.SetAttributes(attribute.String("frame.type", string(msg.Kind())))

	switch m := msg.(type) {
	case event.Join:
		r.Join(ctx, c)
	case event.Event:
		r.Publish(ctx, m)
	default:
		r.drop(span, c, DropHistoryOnly, ErrIgnored)

		return ErrIgnored
	}

	return nil
}

func (r *Relay) drop(span trace.Span, c *Client, reason string, err error) {
	r.metrics.droppedFrame(reason)
	span.RecordError(err)
	span.SetStatus(codes.Error, reason)

	r.logger.Debug("frame dropped", "client", c.id, "reason", reason, "err", err)
}

// Join sends c a single history frame holding every event currently
// retained, oldest first.
func (r *Relay) Join(ctx context.Context, c *Client) {
	_, span := r.tracer.Start(ctx, "relay.join", trace.WithAttributes(attribute.String("client.id", c.id)))
	defer span.End()

	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.clients.Contains(c) {
		return
	}

	snapshot := r.history.Snapshot()
	span.SetAttributes(attribute.Int("history.len", len(snapshot)))

	frame, err := event.Encode(snapshot)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "encode history")
		r.logger.Error("encode history", "err", err)

		return
	}

	if !c.deliver(frame) {
		r.evictLocked(c)

		return
	}
	r.metrics.joined()

	r.logger.Debug("history sent", "client", c.id, "events", len(snapshot), "bytes", len(frame))
}

// Publish appends e to history and queues it to every registered client,
// including the one that sent it.
func (r *Relay) Publish(ctx context.Context, e event.Event) {
	_, span := r.tracer.Start(ctx, "relay.publish", trace.WithAttributes(attribute.String("event.type", string(e.Kind()))))
	defer span.End()

	frame, err := event.Encode(e)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "encode event")
		r.logger.Error("encode event", "type", e.Kind(), "err", err)

		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return
	}

	r.history.Append(e)

	dead := r.clients.ForEach(func(c *Client) bool {
		return c.deliver(frame)
	})
	for _, c := range dead {
		c.close()
		r.logger.Debug("client evicted", "client", c.id, "reason", "send queue full")
	}
	r.metrics.evicted(len(dead))
	r.metrics.published(string(e.Kind()), r.history.Len())

	span.SetAttributes(
		attribute.Int("recipients", r.clients.Len()),
		attribute.Int("evicted", len(dead)),
	)
}

func (r *Relay) evictLocked(c *Client) {
	if !r.clients.Unregister(c) {
		return
	}
	c.close()
	r.metrics.evicted(1)

	r.logger.Debug("client evicted", "client", c.id, "reason", "send queue full")
}

// Snapshot returns a copy of the retained history.
func (r *Relay) Snapshot() event.History {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.history.Snapshot()
}

// Stats reports the current client count and history size.
func (r *Relay) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return Stats{
		Clients:         r.clients.Len(),
		HistoryLen:      r.history.Len(),
		HistoryCapacity: r.history.Cap(),
	}
}

// Close disconnects every client and refuses new ones. History is dropped
// along with the relay.
func (r *Relay) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return
	}
	r.closed = true

	r.clients.ForEach(func(c *Client) bool {
		c.close()
		r.metrics.disconnected()

		return false
	})
}

// ServeHTTP upgrades the request to a websocket and serves it until the
// connection ends.
func (r *Relay) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	conn, err := r.upgrader.Upgrade(w, req, nil)
	if err != nil {
		r.logger.Debug("upgrade failed", "remote", req.RemoteAddr, "err", err)

		return
	}

	r.ServeConn(req.Context(), conn)
}

// ServeConn runs an already upgraded connection: it registers the client,
// starts its writer and reads frames until the connection fails.
func (r *Relay) ServeConn(ctx context.Context, conn *websocket.Conn) {
	c := NewClient(conn, r.sendBuffer)
	if !r.Register(c) {
		_ = conn.Close()

		return
	}

	go c.writePump(r.writeTimeout)

	r.readPump(ctx, c)
}

func (r *Relay) readPump(ctx context.Context, c *Client) {
	defer func() {
		r.Unregister(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(r.maxFrameSize)

	for {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
				r.logger.Debug("read failed", "client", c.id, "err", err)
			}

			return
		}

		if messageType != websocket.TextMessage {
			r.metrics.droppedFrame(DropBinary)

			continue
		}

		_ = r.Handle(ctx, c, data)
	}
}
