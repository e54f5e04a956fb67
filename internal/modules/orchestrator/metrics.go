package orchestrator

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	runsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "phaselock_runs_total",
		Help: "Finished runs by backend and terminal status.",
	}, []string{"backend", "status"})

	iterationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "phaselock_iterations_total",
		Help: "Refinement iterations executed.",
	}, []string{"backend"})

	feedbackEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "phaselock_feedback_events_total",
		Help: "Feedback corrections by trigger.",
	}, []string{"trigger"})

	runDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "phaselock_run_duration_seconds",
		Help:    "Wall time of a run.",
		Buckets: prometheus.ExponentialBuckets(0.001, 4, 10),
	}, []string{"backend"})

	gradientSweepSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "phaselock_gradient_sweep_seconds",
		Help:    "Wall time of one mean-field gradient sweep.",
		Buckets: prometheus.ExponentialBuckets(0.0001, 4, 10),
	})
)
