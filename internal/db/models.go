package db

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// base contains the common fields shared by all models. ID uses UUID v7
// (time-ordered) so rows sort chronologically without a separate
// created_at index lookup.
type base struct {
	ID        uuid.UUID `gorm:"type:text;primaryKey"`
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

// BeforeCreate generates a new UUID v7 if ID is not already set.
func (b *base) BeforeCreate(tx *gorm.DB) error {
	if b.ID == (uuid.UUID{}) {
		id, err := uuid.NewV7()
		if err != nil {
			return err
		}
		b.ID = id
	}
	return nil
}

// TableDef is a durable table definition: the name, query, and column
// metadata a TableRef is built from (internal/tablestore resolves a
// model.TableId to one of these). It is configuration, never push
// status — pushes against a table are tracked entirely in the
// in-memory Registry.
type TableDef struct {
	base
	Name    string `gorm:"uniqueIndex;not null"`
	Query   string `gorm:"type:text;not null"`
	Columns string `gorm:"type:text;not null;default:'[]'"` // JSON []model.ColumnMeta
}

// DestinationDef is a durable destination definition. Credentials are
// encrypted at rest; Config holds provider-specific, non-sensitive
// settings (bucket name, schema, connection pool size) as JSON.
// SupportedFormats lists the ResultTypes this destination's sinks
// accept, used by internal/deststore to build the Sink set at lookup
// time.
type DestinationDef struct {
	base
	Name             string          `gorm:"uniqueIndex;not null"`
	Type             string          `gorm:"not null"` // "local", "gcs", "postgres"
	Credentials      EncryptedString `gorm:"type:text"`
	Config           string          `gorm:"type:text;default:'{}'"`
	SupportedFormats string          `gorm:"type:text;not null;default:'[]'"` // JSON []string
	Enabled          bool            `gorm:"not null;default:true"`
}

// PushSchedule binds a (table, destination, format) triple to a cron
// expression for internal/scheduler's recurring pushes.
type PushSchedule struct {
	base
	Name            string    `gorm:"uniqueIndex;not null"`
	TableID         uuid.UUID `gorm:"type:text;not null;index"`
	DestinationID   uuid.UUID `gorm:"type:text;not null;index"`
	DestinationPath string    `gorm:"not null"`
	Format          string    `gorm:"not null"`
	CronExpression  string    `gorm:"not null"`
	Enabled         bool      `gorm:"not null;default:true"`
	LastTriggeredAt *time.Time
}
