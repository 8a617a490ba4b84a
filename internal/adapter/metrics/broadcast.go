package metrics

import "github.com/prometheus/client_golang/prometheus"

// BroadcastMetrics holds Prometheus metrics for the broadcast hub.
// It implements broadcast.Metrics.
type BroadcastMetrics struct {
	Clients            prometheus.Gauge
	Channels           prometheus.Gauge
	Animations         prometheus.Gauge
	Publishes          *prometheus.CounterVec
	ColorTicks         prometheus.Counter
	ResolutionFailures prometheus.Counter
}

// NewBroadcastMetrics creates and registers broadcast metrics on the given registry.
func NewBroadcastMetrics(reg prometheus.Registerer) *BroadcastMetrics {
	m := &BroadcastMetrics{
		Clients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "broadcast",
			Name:      "connected_clients",
			Help:      "Number of display clients joined to at least one channel.",
		}),
		Channels: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "broadcast",
			Name:      "watched_channels",
			Help:      "Number of channels with at least one joined display client.",
		}),
		Animations: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "broadcast",
			Name:      "running_animations",
			Help:      "Number of channels with a running color animation.",
		}),
		Publishes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "broadcast",
			Name:      "content_published_total",
			Help:      "Total number of content updates published, by content kind.",
		}, []string{"kind"}),
		ColorTicks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "broadcast",
			Name:      "color_ticks_total",
			Help:      "Total number of animation color updates sent.",
		}),
		ResolutionFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "broadcast",
			Name:      "resolution_failures_total",
			Help:      "Total number of content resolutions that failed and served no content.",
		}),
	}

	reg.MustRegister(m.Clients, m.Channels, m.Animations, m.Publishes, m.ColorTicks, m.ResolutionFailures)
	return m
}

func (m *BroadcastMetrics) ClientsConnected(n int)       { m.Clients.Set(float64(n)) }
func (m *BroadcastMetrics) ChannelsWatched(n int)        { m.Channels.Set(float64(n)) }
func (m *BroadcastMetrics) AnimationsRunning(n int)      { m.Animations.Set(float64(n)) }
func (m *BroadcastMetrics) ContentPublished(kind string) { m.Publishes.WithLabelValues(kind).Inc() }
func (m *BroadcastMetrics) ColorTicked()                 { m.ColorTicks.Inc() }
func (m *BroadcastMetrics) ResolutionFailed()            { m.ResolutionFailures.Inc() }
