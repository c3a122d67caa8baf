// Package statusrec implements the Status Recorder (spec §4.4): it
// subscribes to each submitted activity's completion and updates the
// corresponding PushRecord's status atomically and exactly once.
package statusrec

import (
	"go.uber.org/zap"

	"github.com/pushkeep-io/pushkeep/internal/jobmanager"
	"github.com/pushkeep-io/pushkeep/internal/metrics"
	"github.com/pushkeep-io/pushkeep/internal/model"
	"github.com/pushkeep-io/pushkeep/internal/registry"
)

// Notifier receives each terminal status transition as it is committed,
// for a live-status consumer (internal/api's websocket stream) to
// rebroadcast. Optional — a nil Notifier is simply never called.
type Notifier interface {
	Publish(key model.PushKey, status model.PushStatus)
}

// Recorder turns a jobmanager.Outcome into the terminal model.PushStatus
// transition and applies it to the Registry.
type Recorder struct {
	registry *registry.Registry
	clock    model.Clock
	metrics  *metrics.Recorder
	notifier Notifier
	logger   *zap.Logger
}

func New(reg *registry.Registry, clock model.Clock, metricsRecorder *metrics.Recorder, logger *zap.Logger) *Recorder {
	return &Recorder{registry: reg, clock: clock, metrics: metricsRecorder, logger: logger.Named("statusrec")}
}

// WithNotifier attaches a live-status Notifier, returning the same
// Recorder for chaining at construction time.
func (r *Recorder) WithNotifier(n Notifier) *Recorder {
	r.notifier = n
	return r
}

// OnComplete is a jobmanager.CompletionFunc: pass it directly to
// Manager.Submit.
func (r *Recorder) OnComplete(key model.PushKey, outcome jobmanager.Outcome, err error) {
	rec, ok := r.registry.Get(key)
	if !ok {
		// Spec §4.4: theoretically impossible given §3's invariant — the
		// record is created before the activity is submitted.
		r.logger.Error("completion notification for unknown push",
			zap.Stringer("key", key), zap.Stringer("outcome", outcome))
		return
	}

	since := rec.Status.Since
	until := r.clock.Now()

	var status model.PushStatus
	switch outcome {
	case jobmanager.OutcomeCompleted:
		status = model.FinishedStatus(since, until)
	case jobmanager.OutcomeCanceled:
		status = model.CanceledStatus(since, until)
	case jobmanager.OutcomeFailed:
		status = model.FailedStatus(since, until, err)
	default:
		r.logger.Error("unrecognized job outcome", zap.Stringer("key", key), zap.Int("outcome", int(outcome)))
		return
	}

	r.registry.UpdateStatus(key, status)
	r.metrics.ObserveTerminal(outcome, until.Sub(since).Seconds())
	if r.notifier != nil {
		r.notifier.Publish(key, status)
	}
}
