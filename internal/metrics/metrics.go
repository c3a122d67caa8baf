// Package metrics exposes Prometheus instrumentation for the push
// lifecycle: counters for each terminal outcome, a gauge of currently
// running pushes, and a duration histogram. It is an optional observer
// — the Controller and Status Recorder take a *Recorder and degrade to
// a no-op if none is configured, matching the teacher's pattern of
// keeping domain logic free of a hard metrics dependency.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/pushkeep-io/pushkeep/internal/jobmanager"
)

// Recorder wraps the push-lifecycle metric collectors. The zero value
// is not usable; construct with New.
type Recorder struct {
	started  prometheus.Counter
	finished *prometheus.CounterVec
	running  prometheus.Gauge
	duration prometheus.Histogram
}

// New creates a Recorder and registers its collectors with reg. Passing
// prometheus.DefaultRegisterer registers them process-wide.
func New(reg prometheus.Registerer) *Recorder {
	r := &Recorder{
		started: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "pushkeep",
			Subsystem: "push",
			Name:      "started_total",
			Help:      "Total number of pushes admitted by start/start_many.",
		}),
		finished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pushkeep",
			Subsystem: "push",
			Name:      "finished_total",
			Help:      "Total number of pushes that reached a terminal status, by outcome.",
		}, []string{"outcome"}),
		running: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "pushkeep",
			Subsystem: "push",
			Name:      "running",
			Help:      "Number of pushes currently in the Running status.",
		}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "pushkeep",
			Subsystem: "push",
			Name:      "duration_seconds",
			Help:      "Wall-clock duration of a push from admission to terminal status.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
		}),
	}

	reg.MustRegister(r.started, r.finished, r.running, r.duration)
	return r
}

// ObserveStart records a successful admission (spec §4.1.1 step 6 /
// §4.1.2 per-entry success). Call it only after Registry.Admit succeeds.
func (r *Recorder) ObserveStart() {
	if r == nil {
		return
	}
	r.started.Inc()
	r.running.Inc()
}

// ObserveTerminal records a push leaving Running for a terminal status.
// durationSeconds is until.Sub(since) in seconds.
func (r *Recorder) ObserveTerminal(outcome jobmanager.Outcome, durationSeconds float64) {
	if r == nil {
		return
	}
	r.running.Dec()
	r.finished.WithLabelValues(outcomeLabel(outcome)).Inc()
	r.duration.Observe(durationSeconds)
}

func outcomeLabel(o jobmanager.Outcome) string {
	switch o {
	case jobmanager.OutcomeCompleted:
		return "finished"
	case jobmanager.OutcomeCanceled:
		return "canceled"
	case jobmanager.OutcomeFailed:
		return "failed"
	default:
		return "unknown"
	}
}
