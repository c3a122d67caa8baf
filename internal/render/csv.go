// Package render implements the Result Renderer external collaborator
// (spec §6.4): pure, I/O-free transformations from a row stream into a
// lazy byte stream. CSV only ever propagates a RowEvent.Err it receives
// from the evaluator (a row that fails to encode is skipped); JSON
// propagates that too, and also ends its stream with a Chunk carrying
// the error if a row fails to marshal.
package render

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"

	"github.com/pushkeep-io/pushkeep/internal/model"
)

// CSV renders rows as CSV, one chunk emitted per row (plus an initial
// header chunk derived from columns), honoring limit if non-nil. The
// returned ByteStream terminates with a Chunk carrying any RowEvent.Err
// seen from rows.
func CSV(ctx context.Context, rows model.RowStream, columns []model.ColumnMeta, cfg model.RenderConfig, limit *uint64) model.ByteStream {
	out := make(chan model.Chunk)

	go func() {
		defer close(out)

		delim := cfg.CSVDelimiter
		if delim == 0 {
			delim = ','
		}

		header := make([]string, len(columns))
		for i, c := range columns {
			header[i] = c.Name
		}
		if chunk, ok := encodeCSVRow(header, delim); ok {
			if !emit(ctx, out, model.Chunk{Data: chunk}) {
				return
			}
		}

		var emitted uint64
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-rows:
				if !ok {
					return
				}
				if ev.Err != nil {
					emit(ctx, out, model.Chunk{Err: ev.Err})
					return
				}
				if limit != nil && emitted >= *limit {
					continue
				}
				fields := make([]string, len(ev.Row))
				for i, v := range ev.Row {
					fields[i] = fmt.Sprint(v)
				}
				chunk, ok := encodeCSVRow(fields, delim)
				if !ok {
					continue
				}
				if !emit(ctx, out, model.Chunk{Data: chunk}) {
					return
				}
				emitted++
			}
		}
	}()

	return out
}

func encodeCSVRow(fields []string, delim rune) ([]byte, bool) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	w.Comma = delim
	if err := w.Write(fields); err != nil {
		return nil, false
	}
	w.Flush()
	return buf.Bytes(), true
}

// emit delivers chunk on out unless ctx is canceled first, in which case
// it returns false so the caller stops producing promptly (spec §5
// "Suspension points").
func emit(ctx context.Context, out chan<- model.Chunk, chunk model.Chunk) bool {
	select {
	case out <- chunk:
		return true
	case <-ctx.Done():
		return false
	}
}
