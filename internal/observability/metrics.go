// Package observability exports sync metrics to Prometheus and reports
// sync failures to Sentry.
package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nametoa/ai-sport-training/internal/sync"
)

var (
	runCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "trainsync",
		Subsystem: "sync",
		Name:      "resource_runs_total",
		Help:      "Number of resource sync steps grouped by resource and outcome.",
	}, []string{"resource", "outcome"})

	addedCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "trainsync",
		Subsystem: "sync",
		Name:      "records_added_total",
		Help:      "Number of new records merged into the local store per resource.",
	}, []string{"resource"})

	pageCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "trainsync",
		Subsystem: "sync",
		Name:      "pages_fetched_total",
		Help:      "Number of remote pages fetched per resource.",
	}, []string{"resource"})

	lastSuccessGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "trainsync",
		Subsystem: "sync",
		Name:      "last_success_timestamp_seconds",
		Help:      "Unix timestamp of the most recent successful sync per resource.",
	}, []string{"resource"})

	durationHistogram = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "trainsync",
		Subsystem: "sync",
		Name:      "resource_duration_seconds",
		Help:      "Wall time of one resource sync step.",
		Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
	}, []string{"resource"})
)

func init() {
	prometheus.MustRegister(runCounter, addedCounter, pageCounter, lastSuccessGauge, durationHistogram)
}

// SyncMetrics records engine progress in the Prometheus collectors.
type SyncMetrics struct {
	now func() float64
}

// NewSyncMetrics returns an observer that feeds the sync collectors.
func NewSyncMetrics() *SyncMetrics {
	return &SyncMetrics{now: unixNow}
}

// PageFetched implements sync.Observer.
func (m *SyncMetrics) PageFetched(resource sync.Resource) {
	pageCounter.WithLabelValues(string(resource)).Inc()
}

// ResourceDone implements sync.Observer.
func (m *SyncMetrics) ResourceDone(_ string, res sync.Result) {
	label := string(res.Resource)
	outcome := "success"
	if res.Err != nil {
		outcome = "failure"
	}
	runCounter.WithLabelValues(label, outcome).Inc()
	if res.Added > 0 {
		addedCounter.WithLabelValues(label).Add(float64(res.Added))
	}
	durationHistogram.WithLabelValues(label).Observe(res.Duration.Seconds())
	if res.Err == nil {
		lastSuccessGauge.WithLabelValues(label).Set(m.now())
	}
}

// Handler serves the default registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.Handler()
}

func unixNow() float64 {
	return float64(time.Now().Unix())
}
