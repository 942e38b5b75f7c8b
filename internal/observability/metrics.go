// Package observability holds the Prometheus instrumentation for the
// forecast service.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters, histograms, and gauges for the
// rating pipeline.
type Metrics struct {
	// Cache behavior.
	CacheReads      *prometheus.CounterVec // labels: result={fresh,stale,cold}
	CacheRefreshes  *prometheus.CounterVec // labels: trigger={background,forced,cold}, outcome={success,error,rejected}
	CacheAgeSeconds prometheus.Gauge

	// Upstream usage.
	UpstreamRequests *prometheus.CounterVec // labels: endpoint={weather,tide}, key_id
	HistoryHits      prometheus.Counter

	// Rating pipeline.
	SpotRatingDuration prometheus.Histogram
	SpotRatingErrors   prometheus.Counter

	// Alerting.
	AlertsSent prometheus.Counter
}

// New creates and registers all service metrics with the given registerer.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		CacheReads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "surfcast",
			Name:      "cache_reads_total",
			Help:      "Cache reads by freshness result.",
		}, []string{"result"}),
		CacheRefreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "surfcast",
			Name:      "cache_refreshes_total",
			Help:      "Cache refresh attempts by trigger and outcome.",
		}, []string{"trigger", "outcome"}),
		CacheAgeSeconds: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "surfcast",
			Name:      "cache_age_seconds",
			Help:      "Age of the current cache entry at the last read.",
		}),
		UpstreamRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "surfcast",
			Name:      "upstream_requests_total",
			Help:      "Stormglass API requests by endpoint and credential.",
		}, []string{"endpoint", "key_id"}),
		HistoryHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "surfcast",
			Name:      "history_hits_total",
			Help:      "Forecast windows served entirely from persisted history.",
		}),
		SpotRatingDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "surfcast",
			Name:      "spot_rating_duration_seconds",
			Help:      "Duration of a full fetch-enrich-rate cycle for one spot.",
			Buckets:   []float64{0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),
		SpotRatingErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "surfcast",
			Name:      "spot_rating_errors_total",
			Help:      "Failed per-spot rating attempts.",
		}),
		AlertsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "surfcast",
			Name:      "alerts_sent_total",
			Help:      "Alert emails sent.",
		}),
	}

	reg.MustRegister(
		m.CacheReads,
		m.CacheRefreshes,
		m.CacheAgeSeconds,
		m.UpstreamRequests,
		m.HistoryHits,
		m.SpotRatingDuration,
		m.SpotRatingErrors,
		m.AlertsSent,
	)

	return m
}

// NewForTest returns metrics on a private registry, for tests that need a
// non-nil Metrics without global registration conflicts.
func NewForTest() *Metrics {
	return New(prometheus.NewRegistry())
}
