package controller

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/pushkeep-io/pushkeep/internal/jobmanager"
	"github.com/pushkeep-io/pushkeep/internal/model"
	"github.com/pushkeep-io/pushkeep/internal/pusherr"
	"github.com/pushkeep-io/pushkeep/internal/registry"
	"github.com/pushkeep-io/pushkeep/internal/sink"
	"github.com/pushkeep-io/pushkeep/internal/statusrec"
)

// --- test doubles -----------------------------------------------------

type fakeTables map[model.TableId]model.TableRef

func (f fakeTables) LookupTable(ctx context.Context, id model.TableId) (model.TableRef, bool) {
	t, ok := f[id]
	return t, ok
}

type fakeDestinations map[model.DestinationId]model.Destination

func (f fakeDestinations) LookupDestination(ctx context.Context, id model.DestinationId) (model.Destination, bool) {
	d, ok := f[id]
	return d, ok
}

// rowsEvaluator evaluates any query to a fixed, pre-built RowStream
// factory, so each test controls exactly how/when rows are emitted.
type rowsEvaluator struct {
	build func(ctx context.Context) (model.RowStream, error)
}

func (e rowsEvaluator) Evaluate(ctx context.Context, query string) (model.RowStream, error) {
	return e.build(ctx)
}

func staticRows(rows ...model.Row) func(ctx context.Context) (model.RowStream, error) {
	return func(ctx context.Context) (model.RowStream, error) {
		out := make(chan model.RowEvent, len(rows))
		for _, r := range rows {
			out <- model.RowEvent{Row: r}
		}
		close(out)
		return out, nil
	}
}

// --- harness ------------------------------------------------------------

type harness struct {
	controller *Controller
	registry   *registry.Registry
	dir        string
}

func newHarness(t *testing.T, tables fakeTables, destinations fakeDestinations, ev rowsEvaluator) *harness {
	t.Helper()
	dir := t.TempDir()
	logger := zap.NewNop()
	reg := registry.New(logger)
	jm := jobmanager.New(logger)
	rec := statusrec.New(reg, model.SystemClock{}, nil, logger)

	c := New(Deps{
		Tables:       tables,
		Destinations: destinations,
		Registry:     reg,
		JobManager:   jm,
		Recorder:     rec,
		Evaluator:    ev,
		RenderConfig: model.DefaultRenderConfig(),
		Clock:        model.SystemClock{},
		Logger:       logger,
	})

	return &harness{controller: c, registry: reg, dir: dir}
}

func fsDestination(id model.DestinationId, format model.ResultType, dir string) model.Destination {
	return model.Destination{
		Id:     id,
		TypeId: model.DestinationTypeId{Name: "local", Version: "v1"},
		Sinks:  []model.Sink{sink.NewFilesystem(format, dir, zap.NewNop())},
	}
}

func waitForTerminal(t *testing.T, c *Controller, destId model.DestinationId, tableId model.TableId, timeout time.Duration) model.PushRecord {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		statuses, pErr := c.DestinationStatus(context.Background(), destId)
		if pErr != nil {
			t.Fatalf("destination_status: %v", pErr)
		}
		if rec, ok := statuses[tableId]; ok && rec.Status.Terminal() {
			return rec
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for terminal status on table=%d dest=%d", tableId, destId)
	return model.PushRecord{}
}

// --- S1: happy path -----------------------------------------------------

func TestStartHappyPath(t *testing.T) {
	tables := fakeTables{42: {Id: 42, Name: "foo", Query: "Q", Columns: []model.ColumnMeta{{Name: "v"}}}}
	destinations := fakeDestinations{}
	h := newHarness(t, tables, destinations, rowsEvaluator{build: staticRows(model.Row{"evaluated(Q)"})})
	destinations[43] = fsDestination(43, model.ResultCSV, h.dir)

	cond := h.controller.Start(context.Background(), 42, tables[42].Columns, 43, "foo/bar", model.ResultCSV, nil)
	if !cond.OK() {
		t.Fatalf("start: expected Normal, got %v", cond)
	}

	rec := waitForTerminal(t, h.controller, 43, 42, 2*time.Second)
	if rec.Status.Kind != model.StatusFinished {
		t.Fatalf("expected Finished, got %v", rec.Status.Kind)
	}

	data, err := os.ReadFile(filepath.Join(h.dir, "foo/bar"))
	if err != nil {
		t.Fatalf("reading destination file: %v", err)
	}
	if !strings.Contains(string(data), "evaluated(Q)") {
		t.Fatalf("expected destination contents to contain the evaluated row, got %q", data)
	}
}

// --- S2: duplicate start while running ----------------------------------

func TestStartDuplicateWhileRunningFails(t *testing.T) {
	tables := fakeTables{42: {Id: 42, Name: "foo", Query: "Q"}}
	destinations := fakeDestinations{}
	block := make(chan struct{})
	started := make(chan struct{})
	var once sync.Once

	ev := rowsEvaluator{build: func(ctx context.Context) (model.RowStream, error) {
		out := make(chan model.RowEvent)
		go func() {
			defer close(out)
			once.Do(func() { close(started) })
			select {
			case <-block:
			case <-ctx.Done():
			}
		}()
		return out, nil
	}}

	h := newHarness(t, tables, destinations, ev)
	destinations[43] = fsDestination(43, model.ResultCSV, h.dir)

	first := h.controller.Start(context.Background(), 42, nil, 43, "p", model.ResultCSV, nil)
	if !first.OK() {
		t.Fatalf("first start: expected Normal, got %v", first)
	}

	<-started

	second := h.controller.Start(context.Background(), 42, nil, 43, "p", model.ResultCSV, nil)
	if second.OK() {
		t.Fatal("second start: expected Abnormal(PushAlreadyRunning), got Normal")
	}
	if second.Err().Kind != pusherr.KindPushAlreadyRunning {
		t.Fatalf("expected PushAlreadyRunning, got %v", second.Err().Kind)
	}

	close(block)
	h.controller.CancelAll()
}

// --- S3: two destinations run independently -----------------------------

func TestStartTwoDestinationsIndependent(t *testing.T) {
	tables := fakeTables{42: {Id: 42, Name: "foo", Query: "Q"}}
	destinations := fakeDestinations{}
	block := make(chan struct{})

	ev := rowsEvaluator{build: func(ctx context.Context) (model.RowStream, error) {
		out := make(chan model.RowEvent)
		go func() {
			defer close(out)
			select {
			case <-block:
			case <-ctx.Done():
			}
		}()
		return out, nil
	}}

	h := newHarness(t, tables, destinations, ev)
	destinations[43] = fsDestination(43, model.ResultCSV, h.dir)
	destinations[44] = fsDestination(44, model.ResultCSV, h.dir)

	c1 := h.controller.Start(context.Background(), 42, nil, 43, "p", model.ResultCSV, nil)
	c2 := h.controller.Start(context.Background(), 42, nil, 44, "p", model.ResultCSV, nil)
	if !c1.OK() || !c2.OK() {
		t.Fatalf("expected both starts Normal, got %v / %v", c1, c2)
	}

	if !h.registry.IsRunning(model.PushKey{TableId: 42, DestinationId: 43}) {
		t.Fatal("expected destination 43's push to be running")
	}
	if !h.registry.IsRunning(model.PushKey{TableId: 42, DestinationId: 44}) {
		t.Fatal("expected destination 44's push to be running")
	}

	close(block)
	h.controller.CancelAll()
}

// --- S4: missing destination / table ------------------------------------

func TestStartMissingDestination(t *testing.T) {
	h := newHarness(t, fakeTables{}, fakeDestinations{}, rowsEvaluator{build: staticRows()})

	cond := h.controller.Start(context.Background(), 42, nil, 99, "p", model.ResultCSV, nil)
	if cond.OK() {
		t.Fatal("expected Abnormal(DestinationNotFound)")
	}
	if cond.Err().Kind != pusherr.KindDestinationNotFound {
		t.Fatalf("expected DestinationNotFound, got %v", cond.Err().Kind)
	}
	if h.registry.IsRunning(model.PushKey{TableId: 42, DestinationId: 99}) {
		t.Fatal("no record should be created on DestinationNotFound")
	}
}

func TestStartMissingTable(t *testing.T) {
	destinations := fakeDestinations{43: fsDestination(43, model.ResultCSV, t.TempDir())}
	h := newHarness(t, fakeTables{}, destinations, rowsEvaluator{build: staticRows()})

	cond := h.controller.Start(context.Background(), 42, nil, 43, "p", model.ResultCSV, nil)
	if cond.OK() {
		t.Fatal("expected Abnormal(TableNotFound)")
	}
	if cond.Err().Kind != pusherr.KindTableNotFound {
		t.Fatalf("expected TableNotFound, got %v", cond.Err().Kind)
	}
	if h.registry.IsRunning(model.PushKey{TableId: 42, DestinationId: 43}) {
		t.Fatal("no record should be created on TableNotFound")
	}
}

// --- S5: cancel preserves emitted prefix ---------------------------------

func TestCancelPreservesPartialOutput(t *testing.T) {
	tables := fakeTables{42: {Id: 42, Name: "foo", Query: "Q", Columns: []model.ColumnMeta{{Name: "v"}}}}
	destinations := fakeDestinations{}

	firstEmitted := make(chan struct{})
	reachedSecond := make(chan struct{})

	ev := rowsEvaluator{build: func(ctx context.Context) (model.RowStream, error) {
		out := make(chan model.RowEvent)
		go func() {
			defer close(out)
			select {
			case out <- model.RowEvent{Row: model.Row{"foo"}}:
			case <-ctx.Done():
				return
			}
			close(firstEmitted)

			select {
			case <-ctx.Done():
				return
			case <-time.After(400 * time.Millisecond):
			}
			close(reachedSecond)
			select {
			case out <- model.RowEvent{Row: model.Row{"bar"}}:
			case <-ctx.Done():
			}
		}()
		return out, nil
	}}

	h := newHarness(t, tables, destinations, ev)
	destinations[43] = fsDestination(43, model.ResultCSV, h.dir)

	cond := h.controller.Start(context.Background(), 42, tables[42].Columns, 43, "p", model.ResultCSV, nil)
	if !cond.OK() {
		t.Fatalf("start: %v", cond)
	}

	<-firstEmitted

	cancelCond := h.controller.Cancel(context.Background(), 42, 43)
	if !cancelCond.OK() {
		t.Fatalf("cancel: %v", cancelCond)
	}

	rec := waitForTerminal(t, h.controller, 43, 42, 2*time.Second)
	if rec.Status.Kind != model.StatusCanceled {
		t.Fatalf("expected Canceled, got %v", rec.Status.Kind)
	}

	select {
	case <-reachedSecond:
		t.Fatal("evaluator reached its post-suspend emission after cancellation")
	default:
	}

	data, err := os.ReadFile(filepath.Join(h.dir, "p"))
	if err != nil {
		t.Fatalf("reading destination file: %v", err)
	}
	if strings.Contains(string(data), "bar") {
		t.Fatalf("destination contains post-cancellation data: %q", data)
	}
	if !strings.Contains(string(data), "foo") {
		t.Fatalf("destination missing pre-cancellation prefix: %q", data)
	}
}

// --- S6: start_many partial failure --------------------------------------

func TestStartManyPartialFailure(t *testing.T) {
	tables := fakeTables{2: {Id: 2, Name: "bar", Query: "Q2", Columns: []model.ColumnMeta{{Name: "v"}}}}
	destinations := fakeDestinations{}
	h := newHarness(t, tables, destinations, rowsEvaluator{build: staticRows(model.Row{"x"})})
	destinations[43] = fsDestination(43, model.ResultCSV, h.dir)

	entries := map[model.TableId]model.PushSpec{
		1: {DestinationPath: "p1", Format: model.ResultCSV},
		2: {DestinationPath: "p2", Format: model.ResultCSV},
	}

	failures := h.controller.StartMany(context.Background(), 43, entries)
	if len(failures) != 1 {
		t.Fatalf("expected exactly 1 failure, got %d: %v", len(failures), failures)
	}
	fail, ok := failures[1]
	if !ok || fail.Kind != pusherr.KindTableNotFound {
		t.Fatalf("expected table 1 to fail with TableNotFound, got %v", failures)
	}

	rec := waitForTerminal(t, h.controller, 43, 2, 2*time.Second)
	if rec.Status.Kind != model.StatusFinished {
		t.Fatalf("expected table 2's push to finish, got %v", rec.Status.Kind)
	}
}

// --- S7: failure during streaming -----------------------------------------

func TestStreamFailureRecordedAsFailed(t *testing.T) {
	tables := fakeTables{42: {Id: 42, Name: "foo", Query: "Q", Columns: []model.ColumnMeta{{Name: "v"}}}}
	destinations := fakeDestinations{}

	ev := rowsEvaluator{build: func(ctx context.Context) (model.RowStream, error) {
		out := make(chan model.RowEvent, 1)
		out <- model.RowEvent{Err: errors.New("boom")}
		close(out)
		return out, nil
	}}

	h := newHarness(t, tables, destinations, ev)
	destinations[43] = fsDestination(43, model.ResultCSV, h.dir)

	cond := h.controller.Start(context.Background(), 42, tables[42].Columns, 43, "p", model.ResultCSV, nil)
	if !cond.OK() {
		t.Fatalf("start: %v", cond)
	}

	rec := waitForTerminal(t, h.controller, 43, 42, 2*time.Second)
	if rec.Status.Kind != model.StatusFailed {
		t.Fatalf("expected Failed, got %v", rec.Status.Kind)
	}
	if rec.Status.Cause == nil || !strings.Contains(rec.Status.Cause.Message, "boom") {
		t.Fatalf("expected cause message to contain %q, got %v", "boom", rec.Status.Cause)
	}
}

// --- P6: idempotent cancel -------------------------------------------------

func TestCancelOnAbsentPushIsNoOp(t *testing.T) {
	tables := fakeTables{42: {Id: 42, Name: "foo", Query: "Q"}}
	destinations := fakeDestinations{43: fsDestination(43, model.ResultCSV, t.TempDir())}
	h := newHarness(t, tables, destinations, rowsEvaluator{build: staticRows()})

	cond := h.controller.Cancel(context.Background(), 42, 43)
	if !cond.OK() {
		t.Fatalf("cancel on absent push: expected Normal, got %v", cond)
	}
}
