/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package relay

import (
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"
)

const (
	DefaultSendBuffer   = 256
	DefaultMaxFrameSize = 64 << 10
	DefaultWriteTimeout = 10 * time.Second
)

// Option configures a Relay.
type Option func(*Relay)

// WithHistorySize sets how many events are kept for late joiners.
func WithHistorySize(n int) Option {
	return func(r *Relay) {
		r.history = NewHistory(n)
	}
}

// WithSendBuffer sets the per-connection outbound queue length. A client
// whose queue is full when a frame arrives is disconnected.
func WithSendBuffer(n int) Option {
	return func(r *Relay) {
		if n > 0 {
			r.sendBuffer = n
		}
	}
}

// WithMaxFrameSize limits the size of inbound frames in bytes.
func WithMaxFrameSize(n int64) Option {
	return func(r *Relay) {
		if n > 0 {
			r.maxFrameSize = n
		}
	}
}

// WithWriteTimeout bounds each outbound write.
func WithWriteTimeout(d time.Duration) Option {
	return func(r *Relay) {
		r.writeTimeout = d
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(r *Relay) {
		if logger != nil {
			r.logger = logger
		}
	}
}

func WithMetrics(m *Metrics) Option {
	return func(r *Relay) {
		r.metrics = m
	}
}

func WithTracer(t trace.Tracer) Option {
	return func(r *Relay) {
		if t != nil {
			r.tracer = t
		}
	}
}
