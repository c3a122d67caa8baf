// Package jobmanager implements the Job Manager external collaborator
// (spec §6.5): submission of a uniquely keyed background activity,
// cooperative cancellation of a submitted activity, cancellation of
// everything, and a completion notification carrying the outcome. At
// most one activity per key may be live at a time.
//
// The per-key supervisor is a single context.CancelFunc per key,
// guarded by one mutex over the key map. Cancel and CancelAll only
// signal: they do not wait for the activity to return; its end is
// reported through the CompletionFunc passed to Submit.
package jobmanager

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/pushkeep-io/pushkeep/internal/model"
)

// Outcome classifies how a submitted Activity ended.
type Outcome int

const (
	OutcomeCompleted Outcome = iota
	OutcomeCanceled
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeCompleted:
		return "Completed"
	case OutcomeCanceled:
		return "Canceled"
	case OutcomeFailed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// Activity is a finite byte-producing computation submitted under a
// unique key. It must observe ctx.Done() at every suspension point and
// return promptly once canceled (spec §5 "Suspension points").
type Activity func(ctx context.Context) error

// CompletionFunc is notified exactly once per submitted Activity, with
// the classified outcome and, for OutcomeFailed, the causing error.
type CompletionFunc func(key model.PushKey, outcome Outcome, err error)

type job struct {
	cancel context.CancelFunc
}

// Manager owns a set of named, independently cancellable background
// activities, tagged by model.PushKey.
type Manager struct {
	mu     sync.Mutex
	jobs   map[model.PushKey]*job
	logger *zap.Logger
}

func New(logger *zap.Logger) *Manager {
	return &Manager{
		jobs:   make(map[model.PushKey]*job),
		logger: logger.Named("jobmanager"),
	}
}

// Submit runs activity in its own goroutine under key. It is the
// caller's responsibility (the Controller, via the Registry's admission
// lock) to ensure no other activity is already live under key; Submit
// itself does not re-check admission.
func (m *Manager) Submit(parent context.Context, key model.PushKey, activity Activity, onComplete CompletionFunc) {
	ctx, cancel := context.WithCancel(parent)

	m.mu.Lock()
	m.jobs[key] = &job{cancel: cancel}
	m.mu.Unlock()

	go func() {
		err := activity(ctx)
		outcome := classify(ctx, err)

		m.mu.Lock()
		delete(m.jobs, key)
		m.mu.Unlock()

		cancel()

		if onComplete != nil {
			onComplete(key, outcome, err)
		}
	}()
}

// Cancel requests cancellation of the activity under key. A key with no
// live activity is a silent no-op (spec §4.1.3 step 3).
func (m *Manager) Cancel(key model.PushKey) {
	m.mu.Lock()
	j, ok := m.jobs[key]
	m.mu.Unlock()

	if !ok {
		return
	}
	j.cancel()
}

// CancelAll cancels every activity currently known to the manager.
func (m *Manager) CancelAll() {
	m.mu.Lock()
	cancels := make([]context.CancelFunc, 0, len(m.jobs))
	for _, j := range m.jobs {
		cancels = append(cancels, j.cancel)
	}
	m.mu.Unlock()

	for _, cancel := range cancels {
		cancel()
	}
}

// IsLive reports whether key currently has a live activity. Exposed for
// diagnostics and tests; the Registry, not this check, is the source of
// truth for admission.
func (m *Manager) IsLive(key model.PushKey) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.jobs[key]
	return ok
}

// classify turns an Activity's returned error and its context's state
// into an Outcome. Cancellation always wins over a reported error: if
// the activity's context was canceled, the outcome is Canceled even if
// the activity itself returned a different error racing the cancel.
func classify(ctx context.Context, err error) Outcome {
	if ctx.Err() != nil && errors.Is(ctx.Err(), context.Canceled) {
		return OutcomeCanceled
	}
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return OutcomeCanceled
		}
		return OutcomeFailed
	}
	return OutcomeCompleted
}
