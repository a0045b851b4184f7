package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus collectors the engine updates as it indexes
// documents and serves searches. Each engine instance owns its own Metrics
// (and its own registry), so multiple engines in one process never collide
// on metric names.
type Metrics struct {
	Registry *prometheus.Registry

	DocumentsIndexed   prometheus.Counter
	TriplesUpserted    prometheus.Counter
	TriplesTombstoned  prometheus.Counter
	SearchTotal        *prometheus.CounterVec
	SearchLatency      *prometheus.HistogramVec
	// ProbeFanout is registered but no package in this module observes it.
	ProbeFanout        prometheus.Histogram
	FullScanFallbacks  prometheus.Counter
	MaintenanceRuns    prometheus.Counter
	TombstonesSwept    prometheus.Counter
}

// NewMetrics builds a fresh Metrics bound to a new registry.
func NewMetrics(namespace string) *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		Registry: reg,
		DocumentsIndexed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "documents_indexed_total",
			Help: "Number of AddRecord/UpdateRecord calls that completed successfully.",
		}),
		TriplesUpserted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "index_triples_upserted_total",
			Help: "Number of positional (token, record, prev) triples written.",
		}),
		TriplesTombstoned: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "index_triples_tombstoned_total",
			Help: "Number of positional triples marked deleted.",
		}),
		SearchTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "search_total",
			Help: "Number of searches executed, labeled by executor kind.",
		}, []string{"executor"}),
		SearchLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "search_latency_seconds",
			Help:    "Search wall-clock latency, labeled by executor kind.",
			Buckets: prometheus.DefBuckets,
		}, []string{"executor"}),
		ProbeFanout: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Name: "search_probe_fanout",
			Help:    "Number of postings enumerated for the chosen probe token(s) per search.",
			Buckets: prometheus.ExponentialBuckets(1, 4, 8),
		}),
		FullScanFallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "search_full_scan_fallback_total",
			Help: "Number of advanced searches that fell back to a full index scan.",
		}),
		MaintenanceRuns: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "maintenance_runs_total",
			Help: "Number of background maintainer sweeps that completed.",
		}),
		TombstonesSwept: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "maintenance_tombstones_swept_total",
			Help: "Number of tombstoned triples observed by the background maintainer's keyspace walk.",
		}),
	}
	reg.MustRegister(
		m.DocumentsIndexed,
		m.TriplesUpserted,
		m.TriplesTombstoned,
		m.SearchTotal,
		m.SearchLatency,
		m.ProbeFanout,
		m.FullScanFallbacks,
		m.MaintenanceRuns,
		m.TombstonesSwept,
	)
	return m
}
