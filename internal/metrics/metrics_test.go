package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/pushkeep-io/pushkeep/internal/jobmanager"
)

func counterValue(t *testing.T, c prometheus.Collector) float64 {
	t.Helper()
	ch := make(chan prometheus.Metric, 1)
	c.Collect(ch)
	m := &dto.Metric{}
	if err := (<-ch).Write(m); err != nil {
		t.Fatalf("write metric: %v", err)
	}
	switch {
	case m.Counter != nil:
		return m.Counter.GetValue()
	case m.Gauge != nil:
		return m.Gauge.GetValue()
	default:
		t.Fatalf("unsupported metric type")
		return 0
	}
}

func TestObserveStartIncrementsStartedAndRunning(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := New(reg)

	r.ObserveStart()
	r.ObserveStart()

	if got := counterValue(t, r.started); got != 2 {
		t.Fatalf("started = %v, want 2", got)
	}
	if got := counterValue(t, r.running); got != 2 {
		t.Fatalf("running = %v, want 2", got)
	}
}

func TestObserveTerminalDecrementsRunningAndLabelsOutcome(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := New(reg)

	r.ObserveStart()
	r.ObserveTerminal(jobmanager.OutcomeFailed, 1.5)

	if got := counterValue(t, r.running); got != 0 {
		t.Fatalf("running = %v, want 0", got)
	}

	ch := make(chan prometheus.Metric, 4)
	r.finished.Collect(ch)
	close(ch)
	var found bool
	for m := range ch {
		dm := &dto.Metric{}
		if err := m.Write(dm); err != nil {
			t.Fatalf("write metric: %v", err)
		}
		for _, lp := range dm.Label {
			if lp.GetName() == "outcome" && lp.GetValue() == "failed" {
				found = true
			}
		}
	}
	if !found {
		t.Fatal("expected a finished_total series labeled outcome=failed")
	}
}

func TestNilRecorderMethodsAreNoOps(t *testing.T) {
	var r *Recorder
	// Must not panic.
	r.ObserveStart()
	r.ObserveTerminal(jobmanager.OutcomeCompleted, 0.1)
}

func TestOutcomeLabel(t *testing.T) {
	cases := map[jobmanager.Outcome]string{
		jobmanager.OutcomeCompleted: "finished",
		jobmanager.OutcomeCanceled:  "canceled",
		jobmanager.OutcomeFailed:    "failed",
		jobmanager.Outcome(99):      "unknown",
	}
	for outcome, want := range cases {
		if got := outcomeLabel(outcome); got != want {
			t.Errorf("outcomeLabel(%v) = %q, want %q", outcome, got, want)
		}
	}
}
