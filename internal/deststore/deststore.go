// Package deststore implements the Destination lookup external
// collaborator (spec §6.2): it resolves a model.DestinationId to a
// model.Destination, building its Sink set from the destination
// definition's Type and SupportedFormats columns. Mirrors
// internal/tablestore's shape and id scheme.
package deststore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"cloud.google.com/go/storage"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/pushkeep-io/pushkeep/internal/db"
	"github.com/pushkeep-io/pushkeep/internal/model"
	"github.com/pushkeep-io/pushkeep/internal/sink"
)

// localConfig is the Config JSON shape for a "local" typed destination.
type localConfig struct {
	Root string `json:"root"`
}

// gcsConfig is the Config JSON shape for a "gcs" typed destination.
type gcsConfig struct {
	Bucket string `json:"bucket"`
}

// Store resolves destination definitions from the metadata store and
// lazily constructs their Sink implementations. It implements
// controller.DestinationLookup.
type Store struct {
	db        *gorm.DB
	logger    *zap.Logger
	gcsClient *storage.Client // optional; nil disables "gcs" typed destinations
	localRoot string

	mu      sync.Mutex
	pgPools map[model.DestinationId]*pgxpool.Pool
}

// Option configures optional collaborators a Store needs to build Sinks
// for non-local destination types.
type Option func(*Store)

// WithGCSClient supplies the shared *storage.Client used to build GCS
// sinks. Destinations typed "gcs" fail lookup if this is never set.
func WithGCSClient(client *storage.Client) Option {
	return func(s *Store) { s.gcsClient = client }
}

// WithLocalRoot sets the filesystem root that "local" typed
// destinations write beneath. Defaults to the current working directory.
func WithLocalRoot(root string) Option {
	return func(s *Store) { s.localRoot = root }
}

func New(gormDB *gorm.DB, logger *zap.Logger, opts ...Option) *Store {
	s := &Store{
		db:      gormDB,
		logger:  logger.Named("deststore"),
		pgPools: make(map[model.DestinationId]*pgxpool.Pool),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// LookupDestination implements controller.DestinationLookup. Absence is
// reported as (zero, false), never an error, per spec §6.2. A
// destination definition that exists but whose Sinks cannot be built
// (e.g. "gcs" typed with no GCS client configured) is also reported as
// absent, with a diagnostic logged — the Controller cannot distinguish
// "unconfigured" from "not found" and spec §7 has no error for it.
func (s *Store) LookupDestination(ctx context.Context, id model.DestinationId) (model.Destination, bool) {
	var row db.DestinationDef
	err := s.db.WithContext(ctx).First(&row, "rowid = ?", int64(id)).Error
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			s.logger.Error("lookup destination failed", zap.Int64("destination_id", int64(id)), zap.Error(err))
		}
		return model.Destination{}, false
	}
	if !row.Enabled {
		return model.Destination{}, false
	}

	var formats []model.ResultType
	if err := json.Unmarshal([]byte(row.SupportedFormats), &formats); err != nil {
		s.logger.Error("decode supported formats failed", zap.String("name", row.Name), zap.Error(err))
		return model.Destination{}, false
	}

	sinks, err := s.buildSinks(ctx, id, row, formats)
	if err != nil {
		s.logger.Error("building sinks failed", zap.String("name", row.Name), zap.String("type", row.Type), zap.Error(err))
		return model.Destination{}, false
	}

	return model.Destination{
		Id:     id,
		TypeId: model.DestinationTypeId{Name: row.Type, Version: "v1"},
		Sinks:  sinks,
	}, true
}

func (s *Store) buildSinks(ctx context.Context, id model.DestinationId, row db.DestinationDef, formats []model.ResultType) ([]model.Sink, error) {
	sinks := make([]model.Sink, 0, len(formats))

	switch row.Type {
	case "local":
		var cfg localConfig
		if row.Config != "" {
			if err := json.Unmarshal([]byte(row.Config), &cfg); err != nil {
				return nil, fmt.Errorf("deststore: decode local config: %w", err)
			}
		}
		root := cfg.Root
		if root == "" {
			root = s.localRoot
		}
		for _, f := range formats {
			sinks = append(sinks, sink.NewFilesystem(f, root, s.logger))
		}

	case "gcs":
		if s.gcsClient == nil {
			return nil, fmt.Errorf("deststore: no gcs client configured")
		}
		var cfg gcsConfig
		if err := json.Unmarshal([]byte(row.Config), &cfg); err != nil {
			return nil, fmt.Errorf("deststore: decode gcs config: %w", err)
		}
		if cfg.Bucket == "" {
			return nil, fmt.Errorf("deststore: gcs destination %q missing bucket", row.Name)
		}
		for _, f := range formats {
			sinks = append(sinks, sink.NewGCS(f, cfg.Bucket, s.gcsClient, s.logger))
		}

	case "postgres":
		pool, err := s.pgPool(ctx, id, string(row.Credentials))
		if err != nil {
			return nil, err
		}
		// Postgres sinks only ever declare the CSV result type (COPY FROM
		// STDIN WITH FORMAT csv) regardless of SupportedFormats; a push
		// requesting JSON against a postgres destination is rejected as
		// FormatNotSupported by the Controller, not by this store.
		sinks = append(sinks, sink.NewPostgres(pool, s.logger))

	default:
		return nil, fmt.Errorf("deststore: unknown destination type %q", row.Type)
	}

	return sinks, nil
}

// pgPool returns the cached connection pool for a postgres-typed
// destination, opening one on first use. Pools are never closed by the
// store — they live for the process lifetime, matching the metadata
// store's own pool.
func (s *Store) pgPool(ctx context.Context, id model.DestinationId, dsn string) (*pgxpool.Pool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if pool, ok := s.pgPools[id]; ok {
		return pool, nil
	}
	if dsn == "" {
		return nil, fmt.Errorf("deststore: postgres destination missing credentials (dsn)")
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("deststore: open postgres pool: %w", err)
	}
	s.pgPools[id] = pool
	return pool, nil
}

// ByUUID resolves a destination's UUID primary key (as stored on a
// db.PushSchedule row) to the model.DestinationId internal/controller
// deals in.
func (s *Store) ByUUID(ctx context.Context, id uuid.UUID) (model.DestinationId, bool) {
	var rowid int64
	if err := s.db.WithContext(ctx).Raw("SELECT rowid FROM destination_defs WHERE id = ?", id.String()).Scan(&rowid).Error; err != nil || rowid == 0 {
		return 0, false
	}
	return model.DestinationId(rowid), true
}

// Create inserts a new destination definition and returns its
// model.DestinationId.
func (s *Store) Create(ctx context.Context, name, destType string, credentials, config string, formats []model.ResultType) (model.DestinationId, error) {
	encodedFormats, err := json.Marshal(formats)
	if err != nil {
		return 0, err
	}

	row := db.DestinationDef{
		Name:             name,
		Type:             destType,
		Credentials:      db.EncryptedString(credentials),
		Config:           config,
		SupportedFormats: string(encodedFormats),
		Enabled:          true,
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return 0, err
	}

	var rowid int64
	if err := s.db.WithContext(ctx).Raw("SELECT rowid FROM destination_defs WHERE id = ?", row.ID.String()).Scan(&rowid).Error; err != nil {
		return 0, err
	}
	return model.DestinationId(rowid), nil
}
