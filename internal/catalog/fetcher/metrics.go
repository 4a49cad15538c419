package fetcher

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome labels for catalog_fetch_total
const (
	OutcomeHit        = "hit"
	OutcomeRemote     = "remote"
	OutcomeStale      = "stale"
	OutcomeError      = "error"
	OutcomeSuperseded = "superseded"
)

// Metrics are the fetcher's Prometheus instruments
type Metrics struct {
	fetches       *prometheus.CounterVec
	remoteLatency *prometheus.HistogramVec
	products      prometheus.Gauge
	droppedTotal  *prometheus.CounterVec
}

// NewMetrics registers the fetcher instruments with reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		fetches: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "catalog_fetch_total",
				Help: "Catalog fetches by how they were served",
			},
			[]string{"outcome"},
		),
		remoteLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "catalog_remote_duration_seconds",
				Help:    "Duration of calls to the catalog upstream",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		),
		products: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "catalog_products",
				Help: "Number of products in the cached catalog",
			},
		),
		droppedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "catalog_dropped_records_total",
				Help: "Invalid records left out of the catalog",
			},
			[]string{"source"},
		),
	}
}

func (m *Metrics) outcome(label string) {
	if m == nil {
		return
	}
	m.fetches.WithLabelValues(label).Inc()
}

func (m *Metrics) remote(d time.Duration, err error) {
	if m == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "failure"
	}
	m.remoteLatency.WithLabelValues(result).Observe(d.Seconds())
}

func (m *Metrics) size(n int) {
	if m == nil {
		return
	}
	m.products.Set(float64(n))
}

func (m *Metrics) dropped(source string, n int) {
	if m == nil {
		return
	}
	m.droppedTotal.WithLabelValues(source).Add(float64(n))
}
