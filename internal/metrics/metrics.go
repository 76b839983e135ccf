// Package metrics exposes simulation counters through a Prometheus registry
// and can dump them in the node-exporter textfile format.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"nkinnov/internal/model"
)

const namespace = "nkinnov"

// Metrics holds every collector. A nil *Metrics ignores all observations.
type Metrics struct {
	registry *prometheus.Registry

	StrategyRuns  *prometheus.CounterVec
	Rounds        *prometheus.HistogramVec
	Records       *prometheus.CounterVec
	FinalScore    *prometheus.HistogramVec
	FitnessEvals  prometheus.Counter
	CacheHits     prometheus.Counter
	RunDuration   prometheus.Histogram
	RunsCompleted prometheus.Counter
}

// New registers the collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Metrics{
		registry: reg,
		StrategyRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "strategy",
			Name:      "runs_total",
			Help:      "Coordinator runs completed per strategy",
		}, []string{"strategy"}),
		Rounds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "strategy",
			Name:      "rounds",
			Help:      "Rounds until the coordinator was done",
			Buckets:   prometheus.ExponentialBuckets(4, 2, 10),
		}, []string{"strategy"}),
		Records: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "strategy",
			Name:      "records_total",
			Help:      "Log records emitted per strategy",
		}, []string{"strategy"}),
		FinalScore: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "strategy",
			Name:      "mean_final_score",
			Help:      "Mean innovator score when the coordinator finished",
			Buckets:   prometheus.LinearBuckets(0.4, 0.05, 12),
		}, []string{"strategy"}),
		FitnessEvals: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "landscape",
			Name:      "fitness_evaluations_total",
			Help:      "Fitness lookups, cached or computed",
		}),
		CacheHits: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "landscape",
			Name:      "cache_hits_total",
			Help:      "Fitness lookups served from the cache",
		}),
		RunDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "run",
			Name:      "duration_seconds",
			Help:      "Wall time of one (case, run) pair across all strategies",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
		}),
		RunsCompleted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "run",
			Name:      "completed_total",
			Help:      "(case, run) pairs completed",
		}),
	}
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ObserveResult records one coordinator run.
func (m *Metrics) ObserveResult(r model.StrategyResult) {
	if m == nil {
		return
	}
	label := r.Strategy.String()
	m.StrategyRuns.WithLabelValues(label).Inc()
	m.Rounds.WithLabelValues(label).Observe(float64(r.Rounds))
	m.Records.WithLabelValues(label).Add(float64(r.Records))
	m.FinalScore.WithLabelValues(label).Observe(r.MeanScore)
	m.FitnessEvals.Add(float64(r.FitnessEvals))
	m.CacheHits.Add(float64(r.CacheHits))
}

// ObserveRun records a finished (case, run) pair.
func (m *Metrics) ObserveRun(elapsed time.Duration) {
	if m == nil {
		return
	}
	m.RunsCompleted.Inc()
	m.RunDuration.Observe(elapsed.Seconds())
}

// WriteTextfile writes the current values to path in the textfile format.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil {
		return nil
	}
	return prometheus.WriteToTextfile(path, m.registry)
}
