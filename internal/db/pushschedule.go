package db

import (
	"context"
	"fmt"

	"gorm.io/gorm"
)

// ScheduleRepository persists PushSchedule rows for internal/scheduler.
type ScheduleRepository struct {
	db *gorm.DB
}

func NewScheduleRepository(gormDB *gorm.DB) *ScheduleRepository {
	return &ScheduleRepository{db: gormDB}
}

// ListEnabled returns every enabled PushSchedule row.
func (r *ScheduleRepository) ListEnabled(ctx context.Context) ([]PushSchedule, error) {
	var rows []PushSchedule
	if err := r.db.WithContext(ctx).Where("enabled = ?", true).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("db: list enabled schedules: %w", err)
	}
	return rows, nil
}

// Create inserts a new PushSchedule row.
func (r *ScheduleRepository) Create(ctx context.Context, row *PushSchedule) error {
	if err := r.db.WithContext(ctx).Create(row).Error; err != nil {
		return fmt.Errorf("db: create schedule: %w", err)
	}
	return nil
}
