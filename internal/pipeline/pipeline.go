// Package pipeline implements the Pipeline Builder (spec §4.3): given a
// resolved table, destination sink, and push spec, it composes the
// evaluator's row stream, the renderer's byte stream, and the sink's
// consumer into a single jobmanager.Activity.
package pipeline

import (
	"context"
	"fmt"

	"github.com/pushkeep-io/pushkeep/internal/evaluator"
	"github.com/pushkeep-io/pushkeep/internal/model"
	"github.com/pushkeep-io/pushkeep/internal/render"
)

// Build composes one push's activity. The returned Activity's error is
// exactly what the Status Recorder needs to classify the outcome per
// spec §4.3's table: nil means Finished, a context-cancellation error
// means Canceled (jobmanager.classify handles that distinction), and any
// other error means Failed with that error as the cause.
func Build(table model.TableRef, dest model.Sink, spec model.PushSpec, ev evaluator.Evaluator, cfg model.RenderConfig) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		rows, err := ev.Evaluate(ctx, table.Query)
		if err != nil {
			return fmt.Errorf("pipeline: evaluate: %w", err)
		}

		var bytes model.ByteStream
		switch spec.Format {
		case model.ResultCSV:
			bytes = render.CSV(ctx, rows, table.Columns, cfg, spec.Limit)
		case model.ResultJSON:
			bytes = render.JSON(ctx, rows, table.Columns, cfg)
		default:
			return fmt.Errorf("pipeline: unsupported render format %q", spec.Format)
		}

		if err := dest.Consume(ctx, spec.DestinationPath, table.Columns, bytes); err != nil {
			return fmt.Errorf("pipeline: sink: %w", err)
		}
		return nil
	}
}
