package cache

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics are the cache's counters. With a nil registerer they are created
// but not registered anywhere.
type Metrics struct {
	Lookups          *prometheus.CounterVec
	FetchesSent      prometheus.Counter
	FetchesDeduped   prometheus.Counter
	RepliesInstalled prometheus.Counter
	NodesInstalled   prometheus.Counter
	ContextsResumed  prometheus.Counter
	CachedNodes      prometheus.Gauge
}

// NewMetrics creates the counters for one PE.
func NewMetrics(reg prometheus.Registerer, pe int) *Metrics {
	f := promauto.With(reg)
	labels := prometheus.Labels{"pe": strconv.Itoa(pe)}
	return &Metrics{
		Lookups: f.NewCounterVec(prometheus.CounterOpts{
			Name:        "treecache_lookups_total",
			Help:        "Cache lookups by result",
			ConstLabels: labels,
		}, []string{"result"}), // "hit", "accelerated" or "miss"
		FetchesSent: f.NewCounter(prometheus.CounterOpts{
			Name:        "treecache_fetches_sent_total",
			Help:        "Fetch requests put on the wire",
			ConstLabels: labels,
		}),
		FetchesDeduped: f.NewCounter(prometheus.CounterOpts{
			Name:        "treecache_fetches_deduped_total",
			Help:        "Fetch requests absorbed by an outstanding fetch",
			ConstLabels: labels,
		}),
		RepliesInstalled: f.NewCounter(prometheus.CounterOpts{
			Name:        "treecache_replies_installed_total",
			Help:        "Fetch replies installed",
			ConstLabels: labels,
		}),
		NodesInstalled: f.NewCounter(prometheus.CounterOpts{
			Name:        "treecache_nodes_installed_total",
			Help:        "Nodes created from fetch replies",
			ConstLabels: labels,
		}),
		ContextsResumed: f.NewCounter(prometheus.CounterOpts{
			Name:        "treecache_contexts_resumed_total",
			Help:        "Suspended contexts replayed after a fetch",
			ConstLabels: labels,
		}),
		CachedNodes: f.NewGauge(prometheus.GaugeOpts{
			Name:        "treecache_cached_nodes",
			Help:        "Nodes currently held in the transient region",
			ConstLabels: labels,
		}),
	}
}
