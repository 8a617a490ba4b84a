package metrics

import "github.com/prometheus/client_golang/prometheus"

// Transport label values.
const (
	TransportRaw        = "raw"
	TransportCentrifuge = "centrifuge"
)

// WebSocketMetrics holds Prometheus metrics for display connections.
// Connection and publish counts are labeled by transport.
type WebSocketMetrics struct {
	ActiveConnections       *prometheus.GaugeVec
	MessagesPublished       *prometheus.CounterVec
	SlowClientsEvicted      prometheus.Counter
	SendDuration            prometheus.Histogram
	PingFailures            prometheus.Counter
	UnresponsiveDisconnects prometheus.Counter
}

// NewWebSocketMetrics creates and registers WebSocket metrics on the given registry.
func NewWebSocketMetrics(reg prometheus.Registerer) *WebSocketMetrics {
	m := &WebSocketMetrics{
		ActiveConnections: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "websocket",
			Name:      "active_connections",
			Help:      "Number of active WebSocket connections, by transport.",
		}, []string{"transport"}),
		MessagesPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "websocket",
			Name:      "messages_published_total",
			Help:      "Total number of WebSocket messages published, by transport.",
		}, []string{"transport"}),
		SlowClientsEvicted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "websocket",
			Name:      "slow_clients_evicted_total",
			Help:      "Total number of clients disconnected because their send buffer was full.",
		}),
		SendDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "websocket",
			Name:      "message_send_duration_seconds",
			Help:      "Time spent writing a single message to a client.",
			Buckets:   []float64{.0005, .001, .005, .01, .05, .1, .5, 1},
		}),
		PingFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "websocket",
			Name:      "ping_failures_total",
			Help:      "Total number of failed keepalive pings.",
		}),
		UnresponsiveDisconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "websocket",
			Name:      "unresponsive_disconnects_total",
			Help:      "Total number of displays dropped after missing keepalive pongs.",
		}),
	}

	reg.MustRegister(m.ActiveConnections, m.MessagesPublished, m.SlowClientsEvicted, m.SendDuration, m.PingFailures, m.UnresponsiveDisconnects)
	return m
}
