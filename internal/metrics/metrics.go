// Package metrics exposes Prometheus counters for the SIP listener.
package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "sip"

// Recorder receives the events the transport and handlers report.
type Recorder interface {
	ConnectionOpened()
	ConnectionClosed()
	BytesReceived(n int)
	RequestReceived(method string)
	ParseError(kind string)
	ResponseSent(code int)
}

// Metrics implements Recorder with Prometheus collectors held in a private
// registry, so several servers can live in one process.
type Metrics struct {
	registry *prometheus.Registry

	connectionsActive prometheus.Gauge
	connectionsTotal  prometheus.Counter
	bytesReceived     prometheus.Counter
	requests          *prometheus.CounterVec
	parseErrors       *prometheus.CounterVec
	responses         *prometheus.CounterVec
}

// New creates the collectors and registers them, together with the Go runtime
// and process collectors, in a fresh registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,
		connectionsActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connections_active",
			Help:      "Number of open TCP connections",
		}),
		connectionsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connections_total",
			Help:      "Total number of accepted TCP connections",
		}),
		bytesReceived: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bytes_received_total",
			Help:      "Total number of bytes read from clients",
		}),
		requests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Total number of parsed requests by method",
		}, []string{"method"}),
		parseErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "parse_errors_total",
			Help:      "Total number of messages that failed to parse, by error kind",
		}, []string{"kind"}),
		responses: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "responses_total",
			Help:      "Total number of responses written, by status code",
		}, []string{"code"}),
	}
}

func (m *Metrics) ConnectionOpened() {
	m.connectionsTotal.Inc()
	m.connectionsActive.Inc()
}

func (m *Metrics) ConnectionClosed() {
	m.connectionsActive.Dec()
}

func (m *Metrics) BytesReceived(n int) {
	m.bytesReceived.Add(float64(n))
}

func (m *Metrics) RequestReceived(method string) {
	m.requests.WithLabelValues(method).Inc()
}

func (m *Metrics) ParseError(kind string) {
	m.parseErrors.WithLabelValues(kind).Inc()
}

func (m *Metrics) ResponseSent(code int) {
	m.responses.WithLabelValues(strconv.Itoa(code)).Inc()
}

// Handler returns an HTTP handler serving the registry in the Prometheus
// exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// NopRecorder discards every event.
type NopRecorder struct{}

func (NopRecorder) ConnectionOpened()      {}
func (NopRecorder) ConnectionClosed()      {}
func (NopRecorder) BytesReceived(int)      {}
func (NopRecorder) RequestReceived(string) {}
func (NopRecorder) ParseError(string)      {}
func (NopRecorder) ResponseSent(int)       {}
