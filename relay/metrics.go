/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package relay

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Reasons attached to frames_dropped_total.
const (
	DropMalformed   = "malformed"
	DropUnknownType = "unknown_type"
	DropBinary      = "binary"
	DropHistoryOnly = "history"
)

// Metrics holds the relay's Prometheus collectors. A nil *Metrics records
// nothing.
type Metrics struct {
	connections      prometheus.Gauge
	connectionsTotal prometheus.Counter
	events           *prometheus.CounterVec
	dropped          *prometheus.CounterVec
	evictions        prometheus.Counter
	historyEntries   prometheus.Gauge
	joins            prometheus.Counter
}

// NewMetrics registers the relay collectors with reg under the doodlebox
// namespace.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	const (
		namespace = "doodlebox"
		subsystem = "relay"
	)

	return &Metrics{
		connections: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "connections",
			Help:      "Number of currently registered connections",
		}),

		connectionsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "connections_total",
			Help:      "Total number of connections registered",
		}),

		events: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "events_total",
			Help:      "Events appended to history and broadcast, by type",
		}, []string{"type"}),

		dropped: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "frames_dropped_total",
			Help:      "Inbound frames dropped without effect, by reason",
		}, []string{"reason"}),

		evictions: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "evictions_total",
			Help:      "Connections dropped because their outbound queue was full",
		}),

		historyEntries: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "history_entries",
			Help:      "Number of events currently held in history",
		}),

		joins: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "joins_total",
			Help:      "History replays sent in response to join",
		}),
	}
}

func (m *Metrics) connected() {
	if m == nil {
		return
	}
	m.connections.Inc()
	m.connectionsTotal.Inc()
}

func (m *Metrics) disconnected() {
	if m == nil {
		return
	}
	m.connections.Dec()
}

func (m *Metrics) evicted(n int) {
	if m == nil || n == 0 {
		return
	}
	m.evictions.Add(float64(n))
	m.connections.Sub(float64(n))
}

func (m *Metrics) published(kind string, historyLen int) {
	if m == nil {
		return
	}
	m.events.WithLabelValues(kind).Inc()
	m.historyEntries.Set(float64(historyLen))
}

func (m *Metrics) droppedFrame(reason string) {
	if m == nil {
		return
	}
	m.dropped.WithLabelValues(reason).Inc()
}

func (m *Metrics) joined() {
	if m == nil {
		return
	}
	m.joins.Inc()
}
