package tablestore

import (
	"context"
	"testing"

	"go.uber.org/zap"
	gormlogger "gorm.io/gorm/logger"

	"github.com/pushkeep-io/pushkeep/internal/db"
	"github.com/pushkeep-io/pushkeep/internal/model"
)

func openTestDB(t *testing.T) *Store {
	t.Helper()
	gormDB, err := db.New(db.Config{
		Driver:   "sqlite",
		DSN:      ":memory:",
		Logger:   zap.NewNop(),
		LogLevel: gormlogger.Silent,
	})
	if err != nil {
		t.Fatalf("db.New: %v", err)
	}
	return New(gormDB, zap.NewNop())
}

func TestCreateAndLookupTable(t *testing.T) {
	store := openTestDB(t)
	ctx := context.Background()

	cols := []model.ColumnMeta{{Name: "id", Type: "int"}, {Name: "name", Type: "string"}}
	id, err := store.Create(ctx, "users", "SELECT id, name FROM users", cols)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	ref, ok := store.LookupTable(ctx, id)
	if !ok {
		t.Fatal("expected table to be found")
	}
	if ref.Name != "users" || ref.Query != "SELECT id, name FROM users" {
		t.Fatalf("unexpected table ref: %+v", ref)
	}
	if len(ref.Columns) != 2 {
		t.Fatalf("expected 2 columns, got %d", len(ref.Columns))
	}
}

func TestLookupTableUnknownIdIsAbsent(t *testing.T) {
	store := openTestDB(t)
	if _, ok := store.LookupTable(context.Background(), 9999); ok {
		t.Fatal("expected absent table to report false")
	}
}

func TestByUUIDAndUUIDRoundTrip(t *testing.T) {
	store := openTestDB(t)
	ctx := context.Background()

	id, err := store.Create(ctx, "orders", "SELECT 1", nil)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	tableUUID, ok := store.UUID(ctx, id)
	if !ok {
		t.Fatal("expected UUID to resolve")
	}

	resolved, ok := store.ByUUID(ctx, tableUUID)
	if !ok {
		t.Fatal("expected ByUUID to resolve")
	}
	if resolved != id {
		t.Fatalf("ByUUID = %d, want %d", resolved, id)
	}
}
