// Package metrics declares the Prometheus collectors exported on /metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Cache lookup results.
const (
	ResultHit   = "hit"
	ResultMiss  = "miss"
	ResultError = "error"
)

var (
	CacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rollout_cache_lookups_total",
		Help: "Cache lookups by kind (flag, decision) and result (hit, miss, error).",
	}, []string{"kind", "result"})

	Decisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rollout_decisions_total",
		Help: "Flag decisions by reason.",
	}, []string{"reason"})

	AggregationRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rollout_aggregation_runs_total",
		Help: "Daily aggregation runs by status (success, failure).",
	}, []string{"status"})

	AggregationDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "rollout_aggregation_duration_seconds",
		Help:    "Duration of one daily aggregation run.",
		Buckets: []float64{0.05, 0.1, 0.5, 1, 5, 15, 60, 300},
	})

	EventsRecorded = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rollout_events_recorded_total",
		Help: "Recorded events by kind (exposure, conversion) and result (success, failure).",
	}, []string{"kind", "result"})
)

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RegisterPoolGauges exports worker pool occupancy. stats is polled on scrape.
func RegisterPoolGauges(reg prometheus.Registerer, stats func() map[string]map[string]int) error {
	for _, field := range []string{"running", "free", "cap"} {
		for _, pool := range []string{"general", "events"} {
			g := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
				Name:        "rollout_worker_pool_" + field,
				Help:        "Worker pool " + field + " goroutines.",
				ConstLabels: prometheus.Labels{"pool": pool},
			}, func() float64 {
				return float64(stats()[pool][field])
			})
			if err := reg.Register(g); err != nil {
				return err
			}
		}
	}
	return nil
}
