// Package sink implements the Destination Sinks external collaborator
// (spec §6.6): consumers of a rendered byte stream for a specific
// ResultType and destination path.
package sink

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/pushkeep-io/pushkeep/internal/model"
)

// Filesystem is a local-disk Sink, used by tests and by "local" typed
// destinations. It writes bytes to DestinationPath, truncating any
// existing file, and honors cancellation between chunk writes.
type Filesystem struct {
	Format model.ResultType
	Root   string
	logger *zap.Logger
}

func NewFilesystem(format model.ResultType, root string, logger *zap.Logger) *Filesystem {
	return &Filesystem{Format: format, Root: root, logger: logger.Named("sink.filesystem")}
}

func (f *Filesystem) ResultType() model.ResultType { return f.Format }

func (f *Filesystem) Consume(ctx context.Context, path model.ResourcePath, columns []model.ColumnMeta, bytes model.ByteStream) error {
	full := filepath.Join(f.Root, string(path))
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return fmt.Errorf("sink.filesystem: mkdir: %w", err)
	}

	file, err := os.Create(full)
	if err != nil {
		return fmt.Errorf("sink.filesystem: create %s: %w", full, err)
	}
	defer file.Close()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case chunk, ok := <-bytes:
			if !ok {
				return nil
			}
			if chunk.Err != nil {
				return chunk.Err
			}
			if _, err := file.Write(chunk.Data); err != nil {
				return fmt.Errorf("sink.filesystem: write: %w", err)
			}
		}
	}
}
