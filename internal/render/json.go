package render

import (
	"context"
	"encoding/json"

	"github.com/pushkeep-io/pushkeep/internal/model"
)

// JSON renders rows as JSON-lines by default (prefix/delimiter/suffix
// taken from cfg so callers can instead produce a JSON array by setting
// JSONPrefix/JSONSuffix to "[" / "]" and JSONDelimiter to ",").
func JSON(ctx context.Context, rows model.RowStream, columns []model.ColumnMeta, cfg model.RenderConfig) model.ByteStream {
	out := make(chan model.Chunk)

	go func() {
		defer close(out)

		if cfg.JSONPrefix != "" {
			if !emit(ctx, out, model.Chunk{Data: []byte(cfg.JSONPrefix)}) {
				return
			}
		}

		first := true
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-rows:
				if !ok {
					if cfg.JSONSuffix != "" {
						emit(ctx, out, model.Chunk{Data: []byte(cfg.JSONSuffix)})
					}
					return
				}
				if ev.Err != nil {
					emit(ctx, out, model.Chunk{Err: ev.Err})
					return
				}

				obj := rowToObject(columns, ev.Row)
				data, err := json.Marshal(obj)
				if err != nil {
					emit(ctx, out, model.Chunk{Err: err})
					return
				}

				if !first && cfg.JSONDelimiter != "" {
					if !emit(ctx, out, model.Chunk{Data: []byte(cfg.JSONDelimiter)}) {
						return
					}
				}
				first = false

				if !emit(ctx, out, model.Chunk{Data: data}) {
					return
				}
			}
		}
	}()

	return out
}

func rowToObject(columns []model.ColumnMeta, row model.Row) map[string]any {
	obj := make(map[string]any, len(columns))
	for i, c := range columns {
		if i < len(row) {
			obj[c.Name] = row[i]
		}
	}
	return obj
}
