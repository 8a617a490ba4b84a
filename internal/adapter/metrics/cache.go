package metrics

import "github.com/prometheus/client_golang/prometheus"

// Binding cache label values.
const (
	RecordBinding = "binding"
	RecordMedia   = "media"

	ServedMemory = "memory"
	ServedRedis  = "redis"
	ServedStore  = "store"
	ServedError  = "error"

	ScopeLocal   = "local"
	ScopeCluster = "cluster"
)

// CacheMetrics describes the two-layer binding cache. Lookups are labeled by
// record type and the layer that answered, so hit ratios per layer fall out
// of a single counter.
type CacheMetrics struct {
	Lookups       *prometheus.CounterVec
	MemoryEntries *prometheus.GaugeVec
	Evicted       prometheus.Counter
	Invalidations *prometheus.CounterVec
}

func NewCacheMetrics(reg prometheus.Registerer) *CacheMetrics {
	m := &CacheMetrics{
		Lookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "binding_cache",
			Name:      "lookups_total",
			Help:      "Binding and media lookups by record type and the layer that served them.",
		}, []string{"record", "served_by"}),
		MemoryEntries: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "binding_cache",
			Name:      "memory_entries",
			Help:      "Entries held in the in-process layer, sampled at each eviction sweep.",
		}, []string{"record"}),
		Evicted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "binding_cache",
			Name:      "evicted_total",
			Help:      "Expired in-process entries removed by the eviction sweep.",
		}),
		Invalidations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "binding_cache",
			Name:      "invalidations_total",
			Help:      "Binding invalidations, local (relayed from a peer) or cluster (Redis key dropped too).",
		}, []string{"scope"}),
	}

	reg.MustRegister(m.Lookups, m.MemoryEntries, m.Evicted, m.Invalidations)
	return m
}
