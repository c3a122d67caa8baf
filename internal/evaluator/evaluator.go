// Package evaluator implements the Query Evaluator external collaborator
// (spec §6.3): evaluating a TableRef's query into a lazy, finite row
// stream. Evaluate may fail synchronously before yielding a stream; the
// returned stream may itself fail mid-transfer, in which case its final
// model.Row is never sent and the goroutine feeding it exits after
// recording the failure for the Pipeline Builder to observe.
package evaluator

import (
	"context"

	"github.com/pushkeep-io/pushkeep/internal/model"
)

// Evaluator produces a lazy row stream for a query. Implementations must
// be safe for concurrent use and must close the returned channel
// (normally, or after sending one final model.RowEvent carrying a
// mid-stream failure) once the ctx passed to Evaluate is canceled, at
// the evaluator's next suspension point.
type Evaluator interface {
	Evaluate(ctx context.Context, query string) (model.RowStream, error)
}
