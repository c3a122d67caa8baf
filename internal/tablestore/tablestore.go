// Package tablestore implements the Table lookup external collaborator
// (spec §6.1) against the metadata store: it resolves a model.TableId to
// a model.TableRef by the table_defs row's sqlite rowid, decoding the
// stored column metadata.
package tablestore

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/pushkeep-io/pushkeep/internal/db"
	"github.com/pushkeep-io/pushkeep/internal/model"
)

// Store resolves table definitions from the metadata store. It
// implements controller.TableLookup.
type Store struct {
	db     *gorm.DB
	logger *zap.Logger
}

func New(gormDB *gorm.DB, logger *zap.Logger) *Store {
	return &Store{db: gormDB, logger: logger.Named("tablestore")}
}

// LookupTable implements controller.TableLookup. model.TableId is
// sqlite's rowid pseudo-column for the table_defs row (see DESIGN.md's
// "Known limitation" note on the id scheme); absence is reported as
// (zero, false), not an error, per spec §6.1.
func (s *Store) LookupTable(ctx context.Context, id model.TableId) (model.TableRef, bool) {
	var row db.TableDef
	err := s.db.WithContext(ctx).First(&row, "rowid = ?", int64(id)).Error
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			s.logger.Error("lookup table failed", zap.Int64("table_id", int64(id)), zap.Error(err))
		}
		return model.TableRef{}, false
	}

	var columns []model.ColumnMeta
	if err := json.Unmarshal([]byte(row.Columns), &columns); err != nil {
		s.logger.Error("decode table columns failed", zap.String("name", row.Name), zap.Error(err))
		return model.TableRef{}, false
	}

	return model.TableRef{
		Id:      id,
		Name:    row.Name,
		Query:   row.Query,
		Columns: columns,
	}, true
}

// Create inserts a new table definition and returns its model.TableId.
func (s *Store) Create(ctx context.Context, name, query string, columns []model.ColumnMeta) (model.TableId, error) {
	encoded, err := json.Marshal(columns)
	if err != nil {
		return 0, err
	}

	row := db.TableDef{Name: name, Query: query, Columns: string(encoded)}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return 0, err
	}

	var rowid int64
	if err := s.db.WithContext(ctx).Raw("SELECT rowid FROM table_defs WHERE id = ?", row.ID.String()).Scan(&rowid).Error; err != nil {
		return 0, err
	}
	return model.TableId(rowid), nil
}

// ByUUID resolves a table's UUID primary key (as stored on a
// db.PushSchedule row) to the model.TableId internal/controller deals
// in.
func (s *Store) ByUUID(ctx context.Context, id uuid.UUID) (model.TableId, bool) {
	var rowid int64
	if err := s.db.WithContext(ctx).Raw("SELECT rowid FROM table_defs WHERE id = ?", id.String()).Scan(&rowid).Error; err != nil || rowid == 0 {
		return 0, false
	}
	return model.TableId(rowid), true
}

// UUID returns the underlying UUID primary key for a TableId, the
// inverse of ByUUID, for callers that need to join against other
// UUID-keyed tables such as PushSchedule.
func (s *Store) UUID(ctx context.Context, id model.TableId) (uuid.UUID, bool) {
	var row db.TableDef
	if err := s.db.WithContext(ctx).First(&row, "rowid = ?", int64(id)).Error; err != nil {
		return uuid.UUID{}, false
	}
	return row.ID, true
}
