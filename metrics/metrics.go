package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Failure kinds used as the "kind" label of the failures counter.
const (
	KindNetwork    = "network"
	KindExtraction = "extraction"
	KindStorage    = "storage"
	KindDelivery   = "delivery"
)

// Collector holds the tracker's counters on a private registry.
type Collector struct {
	runs         prometheus.Counter
	observations prometheus.Counter
	newMinimums  prometheus.Counter
	failures     *prometheus.CounterVec
	runDuration  prometheus.Histogram

	registry *prometheus.Registry
}

// New creates and registers the tracker metrics.
func New() *Collector {
	registry := prometheus.NewRegistry()

	c := &Collector{
		registry: registry,

		runs: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pricewatch_runs_total",
			Help: "Total number of collection runs",
		}),
		observations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pricewatch_observations_total",
			Help: "Total number of price observations persisted",
		}),
		newMinimums: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pricewatch_new_minimums_total",
			Help: "Total number of observations that set a new minimum price",
		}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pricewatch_failures_total",
			Help: "Total number of per-product failures by kind",
		}, []string{"kind"}),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "pricewatch_run_duration_seconds",
			Help:    "Duration of a full collection run",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10), // 100ms to ~51s
		}),
	}

	registry.MustRegister(c.runs, c.observations, c.newMinimums, c.failures, c.runDuration)
	registry.MustRegister(collectors.NewGoCollector())

	// Pre-create the label values so every kind is exported at 0.
	for _, kind := range []string{KindNetwork, KindExtraction, KindStorage, KindDelivery} {
		c.failures.WithLabelValues(kind)
	}
	return c
}

// Handler exposes the registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// RecordRun counts a finished run and its duration.
func (c *Collector) RecordRun(took time.Duration) {
	c.runs.Inc()
	c.runDuration.Observe(took.Seconds())
}

// RecordObservation counts a persisted observation.
func (c *Collector) RecordObservation() { c.observations.Inc() }

// RecordNewMinimum counts an observation that beat the baseline.
func (c *Collector) RecordNewMinimum() { c.newMinimums.Inc() }

// RecordFailure counts a per-product failure of the given kind.
func (c *Collector) RecordFailure(kind string) {
	c.failures.WithLabelValues(kind).Inc()
}
