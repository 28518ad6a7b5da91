// Package metrics exposes Prometheus counters for the collector. A nil
// *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "logserver"

// Parse outcomes recorded by ParseResult.
const (
	ParseOK      = "ok"
	ParseFailed  = "failed"
	ParseSkipped = "skipped"
)

// Metrics holds the collector's Prometheus instruments on a private registry,
// so several instances can coexist in one process.
type Metrics struct {
	registry *prometheus.Registry

	datagramsReceived prometheus.Counter
	bytesReceived     prometheus.Counter
	socketErrors      prometheus.Counter
	lastActivity      prometheus.Gauge
	senders           *prometheus.CounterVec
	replies           *prometheus.CounterVec
	parses            *prometheus.CounterVec
	sinkWriteErrors   *prometheus.CounterVec
	sinkBuffered      *prometheus.GaugeVec
}

// New creates and registers all instruments.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		datagramsReceived: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "udp",
			Name:      "datagrams_received_total",
			Help:      "Total UDP datagrams received",
		}),
		bytesReceived: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "udp",
			Name:      "bytes_received_total",
			Help:      "Total payload bytes received",
		}),
		socketErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "udp",
			Name:      "socket_errors_total",
			Help:      "Receive errors other than timeouts",
		}),
		lastActivity: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "udp",
			Name:      "last_activity_timestamp",
			Help:      "Unix timestamp of the last received datagram",
		}),
		senders: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dispatch",
			Name:      "datagrams_total",
			Help:      "Datagrams by sender classification",
		}, []string{"sender"}),
		replies: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "udp",
			Name:      "replies_total",
			Help:      "Replies sent back to senders by result",
		}, []string{"result"}),
		parses: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dispatch",
			Name:      "parses_total",
			Help:      "Syslog parse attempts by result",
		}, []string{"result"}),
		sinkWriteErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sink",
			Name:      "write_errors_total",
			Help:      "Failed sink writes or flushes; lines stay buffered",
		}, []string{"sink"}),
		sinkBuffered: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "sink",
			Name:      "buffered_lines",
			Help:      "Lines waiting in each sink's buffer",
		}, []string{"sink"}),
	}
}

// Registry returns the private registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// DatagramReceived records one received datagram of n bytes.
func (m *Metrics) DatagramReceived(n int) {
	if m == nil {
		return
	}
	m.datagramsReceived.Inc()
	m.bytesReceived.Add(float64(n))
	m.lastActivity.Set(float64(time.Now().Unix()))
}

// SocketError records a non-timeout receive error.
func (m *Metrics) SocketError() {
	if m == nil {
		return
	}
	m.socketErrors.Inc()
}

// ReplySent records the outcome of one reply datagram.
func (m *Metrics) ReplySent(err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.replies.WithLabelValues("failed").Inc()
		return
	}
	m.replies.WithLabelValues("sent").Inc()
}

// SenderClassified records whether a datagram came from a configured source.
func (m *Metrics) SenderClassified(known bool) {
	if m == nil {
		return
	}
	if known {
		m.senders.WithLabelValues("known").Inc()
		return
	}
	m.senders.WithLabelValues("unknown").Inc()
}

// ParseResult records one parse outcome (ParseOK, ParseFailed, ParseSkipped).
func (m *Metrics) ParseResult(result string) {
	if m == nil {
		return
	}
	m.parses.WithLabelValues(result).Inc()
}

// SinkWriteFailed records a failed write or flush for the named sink.
func (m *Metrics) SinkWriteFailed(sink string) {
	if m == nil {
		return
	}
	m.sinkWriteErrors.WithLabelValues(sink).Inc()
}

// SinkBuffered reports the current buffer depth of the named sink.
func (m *Metrics) SinkBuffered(sink string, lines int) {
	if m == nil {
		return
	}
	m.sinkBuffered.WithLabelValues(sink).Set(float64(lines))
}
