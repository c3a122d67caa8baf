// Package controller implements the Push Controller (spec §4.1), the
// lifecycle manager's public façade. It composes table/destination
// lookups with the Registry and Job Manager but carries no HTTP or CLI
// surface of its own — callers (internal/api, internal/scheduler) drive
// it through plain Go calls.
package controller

import (
	"context"

	"go.uber.org/zap"

	"github.com/pushkeep-io/pushkeep/internal/evaluator"
	"github.com/pushkeep-io/pushkeep/internal/jobmanager"
	"github.com/pushkeep-io/pushkeep/internal/metrics"
	"github.com/pushkeep-io/pushkeep/internal/model"
	"github.com/pushkeep-io/pushkeep/internal/pipeline"
	"github.com/pushkeep-io/pushkeep/internal/pusherr"
	"github.com/pushkeep-io/pushkeep/internal/registry"
	"github.com/pushkeep-io/pushkeep/internal/statusrec"
)

// Controller is the single public façade described by spec §4.1.
type Controller struct {
	tables       TableLookup
	destinations DestinationLookup
	registry     *registry.Registry
	jm           *jobmanager.Manager
	recorder     *statusrec.Recorder
	evaluator    evaluator.Evaluator
	renderConfig model.RenderConfig
	clock        model.Clock
	metrics      *metrics.Recorder
	logger       *zap.Logger
}

// Deps bundles the Controller's collaborators for construction.
type Deps struct {
	Tables       TableLookup
	Destinations DestinationLookup
	Registry     *registry.Registry
	JobManager   *jobmanager.Manager
	Recorder     *statusrec.Recorder
	Evaluator    evaluator.Evaluator
	RenderConfig model.RenderConfig
	Clock        model.Clock
	// Metrics is optional; a nil value disables instrumentation.
	Metrics *metrics.Recorder
	Logger  *zap.Logger
}

func New(deps Deps) *Controller {
	clock := deps.Clock
	if clock == nil {
		clock = model.SystemClock{}
	}
	return &Controller{
		tables:       deps.Tables,
		destinations: deps.Destinations,
		registry:     deps.Registry,
		jm:           deps.JobManager,
		recorder:     deps.Recorder,
		evaluator:    deps.Evaluator,
		renderConfig: deps.RenderConfig,
		clock:        clock,
		metrics:      deps.Metrics,
		logger:       deps.Logger.Named("controller"),
	}
}

// Start implements spec §4.1.1.
func (c *Controller) Start(ctx context.Context, tableId model.TableId, columns []model.ColumnMeta, destId model.DestinationId, path model.ResourcePath, format model.ResultType, limit *uint64) pusherr.Condition {
	dest, ok := c.destinations.LookupDestination(ctx, destId)
	if !ok {
		return pusherr.Abnormal(pusherr.NewDestinationNotFound(destId))
	}

	table, ok := c.tables.LookupTable(ctx, tableId)
	if !ok {
		return pusherr.Abnormal(pusherr.NewTableNotFound(tableId))
	}

	sinkImpl, ok := dest.SinkFor(format)
	if !ok {
		return pusherr.Abnormal(pusherr.NewFormatNotSupported(dest.TypeId, format))
	}

	spec := model.PushSpec{Columns: columns, DestinationPath: path, Format: format, Limit: limit}
	key := model.PushKey{TableId: tableId, DestinationId: destId}

	if _, pErr := c.registry.Admit(key, spec, c.clock.Now()); pErr != nil {
		return pusherr.Abnormal(pErr)
	}

	c.metrics.ObserveStart()
	c.submit(key, table, sinkImpl, spec)
	return pusherr.Normal
}

// StartMany implements spec §4.1.2: entries is a non-empty map from
// TableId to the PushSpec to start for that table against destId,
// sharing one destination lookup. The returned map contains only the
// entries that failed to start.
func (c *Controller) StartMany(ctx context.Context, destId model.DestinationId, entries map[model.TableId]model.PushSpec) map[model.TableId]*pusherr.PushError {
	failures := make(map[model.TableId]*pusherr.PushError)

	dest, ok := c.destinations.LookupDestination(ctx, destId)
	if !ok {
		for tableId := range entries {
			failures[tableId] = pusherr.NewDestinationNotFound(destId)
		}
		return failures
	}

	for tableId, spec := range entries {
		table, ok := c.tables.LookupTable(ctx, tableId)
		if !ok {
			failures[tableId] = pusherr.NewTableNotFound(tableId)
			continue
		}

		sinkImpl, ok := dest.SinkFor(spec.Format)
		if !ok {
			failures[tableId] = pusherr.NewFormatNotSupported(dest.TypeId, spec.Format)
			continue
		}

		key := model.PushKey{TableId: tableId, DestinationId: destId}
		if _, pErr := c.registry.Admit(key, spec, c.clock.Now()); pErr != nil {
			failures[tableId] = pErr
			continue
		}

		c.metrics.ObserveStart()
		c.submit(key, table, sinkImpl, spec)
	}

	return failures
}

// Cancel implements spec §4.1.3. A key with no live activity is a
// silent no-op that still returns Normal.
func (c *Controller) Cancel(ctx context.Context, tableId model.TableId, destId model.DestinationId) pusherr.Condition {
	if _, ok := c.destinations.LookupDestination(ctx, destId); !ok {
		return pusherr.Abnormal(pusherr.NewDestinationNotFound(destId))
	}
	if _, ok := c.tables.LookupTable(ctx, tableId); !ok {
		return pusherr.Abnormal(pusherr.NewTableNotFound(tableId))
	}

	c.jm.Cancel(model.PushKey{TableId: tableId, DestinationId: destId})
	return pusherr.Normal
}

// CancelMany implements spec §4.1.4: destId is resolved once; every id
// is attempted even if some fail to resolve.
func (c *Controller) CancelMany(ctx context.Context, destId model.DestinationId, ids []model.TableId) map[model.TableId]*pusherr.PushError {
	failures := make(map[model.TableId]*pusherr.PushError)

	if _, ok := c.destinations.LookupDestination(ctx, destId); !ok {
		for _, tableId := range ids {
			failures[tableId] = pusherr.NewDestinationNotFound(destId)
		}
		return failures
	}

	for _, tableId := range ids {
		if _, ok := c.tables.LookupTable(ctx, tableId); !ok {
			failures[tableId] = pusherr.NewTableNotFound(tableId)
			continue
		}
		c.jm.Cancel(model.PushKey{TableId: tableId, DestinationId: destId})
	}

	return failures
}

// CancelAll implements spec §4.1.5. Always succeeds.
func (c *Controller) CancelAll() {
	c.jm.CancelAll()
}

// DestinationStatus implements spec §4.1.6.
func (c *Controller) DestinationStatus(ctx context.Context, destId model.DestinationId) (map[model.TableId]model.PushRecord, *pusherr.PushError) {
	if _, ok := c.destinations.LookupDestination(ctx, destId); !ok {
		return nil, pusherr.NewDestinationNotFound(destId)
	}
	return c.registry.ByDestination(destId), nil
}

// submit builds the pipeline activity and hands it to the Job Manager.
// The activity's lifetime is independent of the caller's request
// context — it runs until it completes or is explicitly canceled via
// Cancel/CancelMany/CancelAll, so it is submitted under a background
// context rather than ctx.
func (c *Controller) submit(key model.PushKey, table model.TableRef, sinkImpl model.Sink, spec model.PushSpec) {
	activity := pipeline.Build(table, sinkImpl, spec, c.evaluator, c.renderConfig)
	c.jm.Submit(context.Background(), key, activity, c.recorder.OnComplete)
}
