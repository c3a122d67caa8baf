package evaluator

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"github.com/pushkeep-io/pushkeep/internal/model"
)

// SQLEvaluator evaluates a TableRef's query directly against the
// metadata store's backing *sql.DB (modernc.org/sqlite or postgres —
// whichever internal/db opened), streaming *sql.Rows into a RowStream one
// row at a time without materializing the result set.
type SQLEvaluator struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewSQLEvaluator(db *sql.DB, logger *zap.Logger) *SQLEvaluator {
	return &SQLEvaluator{db: db, logger: logger.Named("evaluator")}
}

// Evaluate runs query and returns a channel fed by a goroutine that pulls
// rows one at a time. A synchronous query failure (bad SQL, connection
// down) is returned directly, before any stream is produced, per spec
// §6.3. A failure while scanning rows is sent as the stream's final
// model.RowEvent.
func (e *SQLEvaluator) Evaluate(ctx context.Context, query string) (model.RowStream, error) {
	rows, err := e.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("evaluator: query failed: %w", err)
	}

	cols, err := rows.Columns()
	if err != nil {
		rows.Close()
		return nil, fmt.Errorf("evaluator: reading columns: %w", err)
	}

	out := make(chan model.RowEvent)

	go func() {
		defer close(out)
		defer rows.Close()

		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}

		for rows.Next() {
			select {
			case <-ctx.Done():
				return
			default:
			}

			if err := rows.Scan(ptrs...); err != nil {
				send(ctx, out, model.RowEvent{Err: fmt.Errorf("evaluator: scan: %w", err)})
				return
			}

			row := make(model.Row, len(cols))
			copy(row, vals)

			if !send(ctx, out, model.RowEvent{Row: row}) {
				return
			}
		}

		if err := rows.Err(); err != nil {
			send(ctx, out, model.RowEvent{Err: fmt.Errorf("evaluator: row iteration: %w", err)})
		}
	}()

	return out, nil
}

// send delivers ev on out unless ctx is canceled first, in which case it
// returns false so the caller can stop producing without blocking
// forever on an abandoned consumer.
func send(ctx context.Context, out chan<- model.RowEvent, ev model.RowEvent) bool {
	select {
	case out <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}
