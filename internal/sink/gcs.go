package sink

import (
	"context"
	"fmt"

	"cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/pushkeep-io/pushkeep/internal/model"
)

// GCS is an object-store Sink writing to a single Google Cloud Storage
// bucket; DestinationPath is used as the object name. The writer's
// underlying HTTP calls run on a context detached from ctx (via
// context.WithoutCancel), so canceling a push still lets Consume finalize
// the object with exactly the bytes rendered before cancellation — the
// destination observes the already-emitted prefix, per the
// partial-preservation property, rather than losing the object entirely.
// A genuine render/evaluator error (reported on the stream itself, not a
// ctx cancellation) still aborts the upload, since there is no valid
// prefix to preserve in that case.
type GCS struct {
	Format model.ResultType
	Bucket string
	client *storage.Client
	logger *zap.Logger
}

func NewGCS(format model.ResultType, bucket string, client *storage.Client, logger *zap.Logger) *GCS {
	return &GCS{Format: format, Bucket: bucket, client: client, logger: logger.Named("sink.gcs")}
}

func (g *GCS) ResultType() model.ResultType { return g.Format }

func (g *GCS) Consume(ctx context.Context, path model.ResourcePath, columns []model.ColumnMeta, bytes model.ByteStream) error {
	obj := g.client.Bucket(g.Bucket).Object(string(path))
	writeCtx := context.WithoutCancel(ctx)
	w := obj.NewWriter(writeCtx)

	for {
		select {
		case <-ctx.Done():
			if err := w.Close(); err != nil {
				return fmt.Errorf("sink.gcs: finalize partial object %s on cancel: %w", path, err)
			}
			g.logger.Warn("push canceled, object finalized with partial contents",
				zap.String("path", string(path)))
			return ctx.Err()
		case chunk, ok := <-bytes:
			if !ok {
				if err := w.Close(); err != nil {
					return fmt.Errorf("sink.gcs: finalize object %s: %w", path, err)
				}
				return nil
			}
			if chunk.Err != nil {
				w.CloseWithError(chunk.Err)
				return chunk.Err
			}
			if _, err := w.Write(chunk.Data); err != nil {
				return fmt.Errorf("sink.gcs: write: %w", err)
			}
		}
	}
}
