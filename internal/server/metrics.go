package server

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the engine-level prometheus collectors. Each Server owns
// its own collectors registered against the registerer it was given, so
// tests can use isolated registries.
type Metrics struct {
	RunsStarted    prometheus.Counter
	RunsFinished   *prometheus.CounterVec
	TrialsTotal    prometheus.Counter
	TrialsFailed   prometheus.Counter
	RunningRuns    prometheus.Gauge
	BestScoreGauge *prometheus.GaugeVec
}

// NewMetrics creates and registers the engine collectors.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		RunsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "hypertune",
			Name:      "runs_started_total",
			Help:      "Number of optimization runs started.",
		}),
		RunsFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hypertune",
			Name:      "runs_finished_total",
			Help:      "Number of optimization runs finished, by terminal status.",
		}, []string{"status"}),
		TrialsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "hypertune",
			Name:      "trials_total",
			Help:      "Number of trials evaluated across all runs.",
		}),
		TrialsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "hypertune",
			Name:      "trials_failed_total",
			Help:      "Number of trials that failed or timed out.",
		}),
		RunningRuns: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "hypertune",
			Name:      "runs_in_progress",
			Help:      "Number of optimization runs currently in progress.",
		}),
		BestScoreGauge: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "hypertune",
			Name:      "run_best_score",
			Help:      "Best score observed so far, per run.",
		}, []string{"run_id"}),
	}

	reg.MustRegister(
		m.RunsStarted,
		m.RunsFinished,
		m.TrialsTotal,
		m.TrialsFailed,
		m.RunningRuns,
		m.BestScoreGauge,
	)
	return m
}
