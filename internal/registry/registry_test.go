package registry

import (
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/pushkeep-io/pushkeep/internal/model"
	"github.com/pushkeep-io/pushkeep/internal/pusherr"
)

func testKey() model.PushKey {
	return model.PushKey{TableId: 42, DestinationId: 43}
}

func TestAdmitThenAdmitAgainFailsWhileRunning(t *testing.T) {
	r := New(zap.NewNop())
	key := testKey()
	now := time.Now()

	if _, err := r.Admit(key, model.PushSpec{}, now); err != nil {
		t.Fatalf("first admit: unexpected error %v", err)
	}

	_, err := r.Admit(key, model.PushSpec{}, now)
	if err == nil {
		t.Fatal("second admit: expected PushAlreadyRunning, got nil")
	}
	if err.Kind != pusherr.KindPushAlreadyRunning {
		t.Fatalf("expected KindPushAlreadyRunning, got %v", err.Kind)
	}
}

func TestAdmitAfterTerminalSucceeds(t *testing.T) {
	r := New(zap.NewNop())
	key := testKey()
	now := time.Now()

	rec, err := r.Admit(key, model.PushSpec{}, now)
	if err != nil {
		t.Fatalf("admit: %v", err)
	}
	r.UpdateStatus(key, model.FinishedStatus(rec.StartedAt, now.Add(time.Second)))

	if _, err := r.Admit(key, model.PushSpec{}, now.Add(2*time.Second)); err != nil {
		t.Fatalf("re-admit after terminal: unexpected error %v", err)
	}

	got, ok := r.Get(key)
	if !ok {
		t.Fatal("expected record present")
	}
	if got.Status.Kind != model.StatusRunning {
		t.Fatalf("expected fresh Running record, got %v", got.Status.Kind)
	}
}

// TestConcurrentAdmitExactlyOneWins exercises P1/ordering guarantee:
// two concurrent start(K) calls, exactly one returns Normal.
func TestConcurrentAdmitExactlyOneWins(t *testing.T) {
	r := New(zap.NewNop())
	key := testKey()
	now := time.Now()

	const n = 50
	var wg sync.WaitGroup
	results := make([]bool, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := r.Admit(key, model.PushSpec{}, now)
			results[i] = err == nil
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, ok := range results {
		if ok {
			wins++
		}
	}
	if wins != 1 {
		t.Fatalf("expected exactly 1 winning admit, got %d", wins)
	}
}

func TestUpdateStatusOnUnknownKeyIsDiscarded(t *testing.T) {
	r := New(zap.NewNop())
	key := testKey()

	// Must not panic; must not create a record.
	r.UpdateStatus(key, model.FinishedStatus(time.Now(), time.Now()))

	if _, ok := r.Get(key); ok {
		t.Fatal("expected no record to be created by a stray status update")
	}
}

func TestByDestinationFiltersAndCopies(t *testing.T) {
	r := New(zap.NewNop())
	now := time.Now()

	k1 := model.PushKey{TableId: 1, DestinationId: 100}
	k2 := model.PushKey{TableId: 2, DestinationId: 100}
	k3 := model.PushKey{TableId: 3, DestinationId: 200}

	for _, k := range []model.PushKey{k1, k2, k3} {
		if _, err := r.Admit(k, model.PushSpec{}, now); err != nil {
			t.Fatalf("admit %v: %v", k, err)
		}
	}

	got := r.ByDestination(100)
	if len(got) != 2 {
		t.Fatalf("expected 2 records for destination 100, got %d", len(got))
	}
	if _, ok := got[3]; ok {
		t.Fatal("destination 200's record leaked into destination 100's view")
	}

	// Mutating the returned map/record must not affect the registry.
	rec := got[1]
	rec.Status.Kind = model.StatusFailed
	fresh, _ := r.Get(k1)
	if fresh.Status.Kind != model.StatusRunning {
		t.Fatal("snapshot mutation leaked into registry state")
	}
}

func TestTerminalRetentionIsBoundedPerDestination(t *testing.T) {
	r := New(zap.NewNop())
	now := time.Now()
	dest := model.DestinationId(7)

	for i := 0; i < MaxTerminalPerDestination+10; i++ {
		key := model.PushKey{TableId: model.TableId(i), DestinationId: dest}
		rec, err := r.Admit(key, model.PushSpec{}, now)
		if err != nil {
			t.Fatalf("admit %d: %v", i, err)
		}
		r.UpdateStatus(key, model.FinishedStatus(rec.StartedAt, now))
	}

	got := r.ByDestination(dest)
	if len(got) != MaxTerminalPerDestination {
		t.Fatalf("expected retention capped at %d, got %d", MaxTerminalPerDestination, len(got))
	}

	// The oldest keys (0..9) should have been evicted; the newest should remain.
	if _, ok := got[0]; ok {
		t.Fatal("expected oldest terminal record to be evicted")
	}
	if _, ok := got[model.TableId(MaxTerminalPerDestination+9)]; !ok {
		t.Fatal("expected newest terminal record to be retained")
	}
}
