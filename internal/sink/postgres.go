package sink

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/pushkeep-io/pushkeep/internal/model"
)

// batchRows bounds how many data rows accumulate before Consume commits
// them with their own COPY FROM STDIN. COPY is all-or-nothing, so one
// COPY spanning the whole transfer would lose every row on cancellation;
// committing in row batches instead means a cancellation mid-stream only
// drops the rows buffered since the last batch boundary, approximating
// the partial-preservation property at batch granularity rather than
// true byte-for-byte precision.
const batchRows = 500

// commitTimeout bounds how long a batch's COPY is given to land,
// including the final flush triggered by cancellation — that COPY must
// still complete even though the caller's ctx is already done.
const commitTimeout = 30 * time.Second

// Postgres is a table Sink: it streams a CSV-formatted ByteStream into a
// destination table via COPY FROM STDIN, using a connection pool
// separate from the service's own metadata store (spec's tablestore/
// deststore use their own gorm connection; this pool belongs solely to
// the destination being pushed to). DestinationPath names the target
// table, optionally schema-qualified.
type Postgres struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

func NewPostgres(pool *pgxpool.Pool, logger *zap.Logger) *Postgres {
	return &Postgres{pool: pool, logger: logger.Named("sink.postgres")}
}

func (p *Postgres) ResultType() model.ResultType { return model.ResultCSV }

// Consume streams a CSV ByteStream into the destination table,
// committing batchRows data rows at a time rather than the whole
// transfer as one COPY. On cancellation it flushes whatever rows are
// currently buffered (using a context detached from ctx, since the
// commit must outlive the cancellation that triggered it) before
// returning ctx.Err(), so already-accumulated rows survive instead of
// rolling back with the rest of the transfer.
func (p *Postgres) Consume(ctx context.Context, path model.ResourcePath, columns []model.ColumnMeta, bytes model.ByteStream) error {
	conn, err := p.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("sink.postgres: acquire connection: %w", err)
	}
	defer conn.Release()

	copySQL := fmt.Sprintf("COPY %s FROM STDIN WITH (FORMAT csv, HEADER true)", string(path))

	var header []byte
	batch := make([][]byte, 0, batchRows)

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		commitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), commitTimeout)
		defer cancel()
		if _, err := conn.Conn().PgConn().CopyFrom(commitCtx, newBatchReader(header, batch), copySQL); err != nil {
			return fmt.Errorf("sink.postgres: copy batch into %s: %w", path, err)
		}
		batch = batch[:0]
		return nil
	}

	first := true
	for {
		select {
		case <-ctx.Done():
			if err := flush(); err != nil {
				return err
			}
			p.logger.Warn("push canceled, committed rows up to last batch boundary",
				zap.String("path", string(path)))
			return ctx.Err()
		case chunk, ok := <-bytes:
			if !ok {
				return flush()
			}
			if chunk.Err != nil {
				_ = flush()
				return chunk.Err
			}
			if first {
				header = chunk.Data
				first = false
				continue
			}
			batch = append(batch, chunk.Data)
			if len(batch) >= batchRows {
				if err := flush(); err != nil {
					return err
				}
			}
		}
	}
}

// batchReader adapts a header line plus a batch of CSV row chunks into
// the io.Reader pgx's CopyFrom consumes. Each batch gets its own header
// so every COPY call is an independently well-formed CSV document.
type batchReader struct {
	data [][]byte
	idx  int
	off  int
}

func newBatchReader(header []byte, rows [][]byte) io.Reader {
	data := make([][]byte, 0, len(rows)+1)
	if header != nil {
		data = append(data, header)
	}
	data = append(data, rows...)
	return &batchReader{data: data}
}

func (r *batchReader) Read(p []byte) (int, error) {
	for r.idx < len(r.data) {
		chunk := r.data[r.idx]
		if r.off >= len(chunk) {
			r.idx++
			r.off = 0
			continue
		}
		n := copy(p, chunk[r.off:])
		r.off += n
		return n, nil
	}
	return 0, io.EOF
}
