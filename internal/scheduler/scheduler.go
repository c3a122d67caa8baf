// Package scheduler drives recurring pushes from a cron expression,
// supplementing spec.md's purely on-demand model (§1 "Clients can start
// pushes...on demand") with the recurring trigger a complete push
// service needs. It is adapted from the teacher's
// server/internal/scheduler.Scheduler: one gocron job per schedule row,
// singleton mode so an overlapping tick never double-admits, tags keyed
// by the schedule's UUID.
//
// A tick simply calls Controller.Start exactly as a manual trigger
// would; PushAlreadyRunning from a tick whose predecessor is still
// running is an expected, logged skip rather than an error. gocron's
// singleton mode only keeps the tick function itself from overlapping;
// the tick returns as soon as Start admits the push, so the push can
// still be running when the next tick fires, and admission is then
// refused by the Controller.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pushkeep-io/pushkeep/internal/model"
	"github.com/pushkeep-io/pushkeep/internal/pusherr"
)

// Schedule binds a (table, destination, format) triple to a cron
// expression. It mirrors db.PushSchedule without importing the db
// package's gorm tags into this package's surface.
type Schedule struct {
	ID              uuid.UUID
	Name            string
	TableID         uuid.UUID
	DestinationID   uuid.UUID
	DestinationPath model.ResourcePath
	Format          model.ResultType
	CronExpression  string
}

// Store is the persistence collaborator the scheduler needs: loading
// enabled schedules at startup and resolving UUIDs into the live
// model.TableId/model.DestinationId the Controller expects.
type Store interface {
	ListEnabled(ctx context.Context) ([]Schedule, error)
	ResolveTable(ctx context.Context, id uuid.UUID) (model.TableId, bool)
	ResolveDestination(ctx context.Context, id uuid.UUID) (model.DestinationId, bool)
}

// Starter is the subset of internal/controller.Controller the
// scheduler drives. A plain function interface keeps this package
// independent of the controller package's full surface.
type Starter interface {
	Start(ctx context.Context, tableId model.TableId, columns []model.ColumnMeta, destId model.DestinationId, path model.ResourcePath, format model.ResultType, limit *uint64) pusherr.Condition
}

// Scheduler wraps gocron and triggers Controller.Start on each
// schedule's tick. The zero value is not usable — create with New.
type Scheduler struct {
	cron       gocron.Scheduler
	store      Store
	controller Starter
	logger     *zap.Logger
}

func New(store Store, controller Starter, logger *zap.Logger) (*Scheduler, error) {
	cron, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("scheduler: failed to create gocron scheduler: %w", err)
	}
	return &Scheduler{cron: cron, store: store, controller: controller, logger: logger.Named("scheduler")}, nil
}

// Start loads every enabled schedule, registers it as a gocron job, and
// starts the underlying cron loop. Call once at process startup.
func (s *Scheduler) Start(ctx context.Context) error {
	schedules, err := s.store.ListEnabled(ctx)
	if err != nil {
		return fmt.Errorf("scheduler: failed to load enabled schedules: %w", err)
	}

	for _, sched := range schedules {
		if err := s.addJob(sched); err != nil {
			s.logger.Error("failed to schedule push",
				zap.String("schedule_id", sched.ID.String()),
				zap.String("name", sched.Name),
				zap.Error(err))
		}
	}

	s.logger.Info("scheduler started", zap.Int("schedules", len(schedules)))
	s.cron.Start()
	return nil
}

// Stop shuts down the underlying gocron scheduler, waiting for any
// currently running tick to finish.
func (s *Scheduler) Stop() error {
	if err := s.cron.Shutdown(); err != nil {
		return fmt.Errorf("scheduler: shutdown error: %w", err)
	}
	s.logger.Info("scheduler stopped")
	return nil
}

// AddSchedule registers a newly created schedule. Safe to call while
// running.
func (s *Scheduler) AddSchedule(sched Schedule) error {
	if err := s.addJob(sched); err != nil {
		return fmt.Errorf("scheduler: failed to add schedule %s: %w", sched.ID, err)
	}
	s.logger.Info("schedule added", zap.String("schedule_id", sched.ID.String()), zap.String("name", sched.Name))
	return nil
}

// RemoveSchedule unregisters a schedule. Safe to call while running.
func (s *Scheduler) RemoveSchedule(id uuid.UUID) {
	s.cron.RemoveByTags(id.String())
	s.logger.Info("schedule removed", zap.String("schedule_id", id.String()))
}

// TriggerNow immediately runs a schedule's push, bypassing its cron
// expression. Returns the Condition from Controller.Start.
func (s *Scheduler) TriggerNow(ctx context.Context, sched Schedule) pusherr.Condition {
	return s.runTick(ctx, sched)
}

func (s *Scheduler) addJob(sched Schedule) error {
	_, err := s.cron.NewJob(
		gocron.CronJob(sched.CronExpression, false),
		gocron.NewTask(func(sc Schedule) {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			s.runTick(ctx, sc)
		}, sched),
		gocron.WithTags(sched.ID.String()),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return fmt.Errorf("gocron.NewJob failed for schedule %s (cron %q): %w", sched.ID, sched.CronExpression, err)
	}
	return nil
}

func (s *Scheduler) runTick(ctx context.Context, sched Schedule) pusherr.Condition {
	tableId, ok := s.store.ResolveTable(ctx, sched.TableID)
	if !ok {
		s.logger.Error("schedule references unknown table", zap.String("schedule_id", sched.ID.String()), zap.String("table_id", sched.TableID.String()))
		return pusherr.Abnormal(pusherr.NewTableNotFound(tableId))
	}

	destId, ok := s.store.ResolveDestination(ctx, sched.DestinationID)
	if !ok {
		s.logger.Error("schedule references unknown destination", zap.String("schedule_id", sched.ID.String()), zap.String("destination_id", sched.DestinationID.String()))
		return pusherr.Abnormal(pusherr.NewDestinationNotFound(destId))
	}

	cond := s.controller.Start(ctx, tableId, nil, destId, sched.DestinationPath, sched.Format, nil)
	if !cond.OK() {
		if cond.Err().Is(pusherr.NewPushAlreadyRunning(tableId, destId)) {
			s.logger.Info("tick skipped, previous push still running",
				zap.String("schedule_id", sched.ID.String()), zap.String("name", sched.Name))
		} else {
			s.logger.Error("scheduled push failed to start",
				zap.String("schedule_id", sched.ID.String()), zap.String("name", sched.Name), zap.Error(cond.Err()))
		}
		return cond
	}

	s.logger.Info("scheduled push started", zap.String("schedule_id", sched.ID.String()), zap.String("name", sched.Name))
	return cond
}
