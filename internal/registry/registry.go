// Package registry implements the Push Registry: the in-memory map from
// PushKey to PushRecord that is the sole shared mutable state of the
// lifecycle manager (spec §5). Admission is a single process-wide
// mutex held only for the O(1) critical section described in spec §4.2
// — no I/O, no external lookups happen while it is held.
package registry

import (
	"container/list"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/pushkeep-io/pushkeep/internal/model"
	"github.com/pushkeep-io/pushkeep/internal/pusherr"
)

// MaxTerminalPerDestination bounds terminal-record retention per
// destination (spec §9 "Record retention"). Running records are never
// evicted; only the oldest terminal record for a destination is
// dropped once the bound is exceeded.
const MaxTerminalPerDestination = 1024

// Registry is the admission-controlled map from PushKey to PushRecord.
// All mutation happens under mu; readers take a snapshot copy so they
// never observe a torn record (spec §5 "Shared resources").
type Registry struct {
	mu      sync.Mutex
	records map[model.PushKey]*model.PushRecord

	// terminalOrder tracks, per destination, the insertion order of
	// terminal records for LRU eviction. The list stores PushKey values;
	// elems lets us find and move/remove a key's element in O(1).
	terminalOrder map[model.DestinationId]*list.List
	elems         map[model.PushKey]*list.Element

	logger *zap.Logger
}

func New(logger *zap.Logger) *Registry {
	return &Registry{
		records:       make(map[model.PushKey]*model.PushRecord),
		terminalOrder: make(map[model.DestinationId]*list.List),
		elems:         make(map[model.PushKey]*list.Element),
		logger:        logger.Named("registry"),
	}
}

// Admit attempts to create a fresh Running record for key. It fails with
// PushAlreadyRunning if an existing record for key is still Running;
// otherwise any existing (necessarily terminal) record is replaced.
//
// The critical section is O(1): no I/O, no lookups. Callers must resolve
// table/destination/sink before calling Admit (spec §4.2).
func (r *Registry) Admit(key model.PushKey, spec model.PushSpec, now time.Time) (*model.PushRecord, *pusherr.PushError) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.records[key]; ok && existing.Status.Kind == model.StatusRunning {
		return nil, pusherr.NewPushAlreadyRunning(key.TableId, key.DestinationId)
	}

	rec := &model.PushRecord{
		Key:       key,
		Spec:      spec,
		StartedAt: now,
		Status:    model.RunningStatus(now),
	}
	r.records[key] = rec
	r.untrackTerminal(key)
	return rec, nil
}

// UpdateStatus applies the Status Recorder's terminal transition to the
// record for key. The update replaces the record wholesale — there is no
// partial mutation a concurrent reader could observe torn. If no record
// exists for key, the update is discarded with a diagnostic: per spec
// §3's invariant this should be unreachable.
func (r *Registry) UpdateStatus(key model.PushKey, status model.PushStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.records[key]
	if !ok {
		r.logger.Error("status update for unknown push key", zap.Stringer("key", key))
		return
	}

	updated := *existing
	updated.Status = status
	r.records[key] = &updated

	if status.Terminal() {
		r.trackTerminal(key)
	}
}

// Get returns a snapshot copy of the record for key, if any.
func (r *Registry) Get(key model.PushKey) (model.PushRecord, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[key]
	if !ok {
		return model.PushRecord{}, false
	}
	return rec.Clone(), true
}

// ByDestination returns a snapshot of every known record (running or
// terminal) whose key's destination matches dest, keyed by TableId. The
// map may be empty.
func (r *Registry) ByDestination(dest model.DestinationId) map[model.TableId]model.PushRecord {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make(map[model.TableId]model.PushRecord)
	for key, rec := range r.records {
		if key.DestinationId == dest {
			out[key.TableId] = rec.Clone()
		}
	}
	return out
}

// IsRunning reports whether key currently has a Running record.
func (r *Registry) IsRunning(key model.PushKey) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[key]
	return ok && rec.Status.Kind == model.StatusRunning
}

// trackTerminal records key as the most-recently-terminated push for its
// destination and evicts the oldest terminal record beyond
// MaxTerminalPerDestination. Must be called with mu held.
func (r *Registry) trackTerminal(key model.PushKey) {
	dest := key.DestinationId
	order, ok := r.terminalOrder[dest]
	if !ok {
		order = list.New()
		r.terminalOrder[dest] = order
	}

	if el, ok := r.elems[key]; ok {
		order.MoveToBack(el)
	} else {
		r.elems[key] = order.PushBack(key)
	}

	for order.Len() > MaxTerminalPerDestination {
		oldest := order.Front()
		oldKey := oldest.Value.(model.PushKey)
		order.Remove(oldest)
		delete(r.elems, oldKey)
		delete(r.records, oldKey)
	}
}

// untrackTerminal removes key from terminal-order tracking, used when a
// fresh start replaces a terminal record with a new Running one. Must be
// called with mu held.
func (r *Registry) untrackTerminal(key model.PushKey) {
	el, ok := r.elems[key]
	if !ok {
		return
	}
	if order, ok := r.terminalOrder[key.DestinationId]; ok {
		order.Remove(el)
	}
	delete(r.elems, key)
}
