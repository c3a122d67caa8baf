package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
	"gorm.io/gorm/utils"
)

// gormZapLogger adapts a *zap.Logger to gormlogger.Interface so that
// every GORM-internal message (SQL tracing, slow-query warnings,
// driver errors) lands in the same structured log stream as the rest
// of pushkeepd instead of on stdout.
type gormZapLogger struct {
	log           *zap.Logger
	level         gormlogger.LogLevel
	slowThreshold time.Duration
}

// newGormZapLogger returns a gormlogger.Interface backed by log.
// slowThreshold controls when Trace escalates a query to a warning; a
// zero threshold disables slow-query detection rather than falling
// back to a fixed default, so callers that don't care about it can
// leave the zero value alone instead of having to know a magic number.
func newGormZapLogger(log *zap.Logger, level gormlogger.LogLevel, slowThreshold time.Duration) gormlogger.Interface {
	if level == 0 {
		level = gormlogger.Warn
	}
	return &gormZapLogger{
		log:           log.WithOptions(zap.AddCallerSkip(3)),
		level:         level,
		slowThreshold: slowThreshold,
	}
}

// LogMode returns a copy of the logger at the given level. GORM calls
// this when an operation needs a temporary override, e.g. db.Debug()
// bumps the level to Info for one chained call.
func (l *gormZapLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	next := *l
	next.level = level
	return &next
}

// logAt is the single funnel Info/Warn/Error dispatch through, so
// adding a new GORM-internal severity doesn't mean writing another
// copy of the same level check.
func (l *gormZapLogger) logAt(min gormlogger.LogLevel, msg string, args []interface{}) {
	if l.level < min {
		return
	}
	line := fmt.Sprintf(msg, args...)
	switch min {
	case gormlogger.Error:
		l.log.Error(line)
	case gormlogger.Warn:
		l.log.Warn(line)
	default:
		l.log.Info(line)
	}
}

func (l *gormZapLogger) Info(_ context.Context, msg string, args ...interface{}) {
	l.logAt(gormlogger.Info, msg, args)
}

func (l *gormZapLogger) Warn(_ context.Context, msg string, args ...interface{}) {
	l.logAt(gormlogger.Warn, msg, args)
}

func (l *gormZapLogger) Error(_ context.Context, msg string, args ...interface{}) {
	l.logAt(gormlogger.Error, msg, args)
}

// Trace logs one completed SQL statement with its elapsed time, row
// count, and call site, escalating to a warning once it clears
// slowThreshold. gorm.ErrRecordNotFound is always treated as a normal
// miss rather than a database error: every lookup store in this
// service (internal/tablestore, internal/deststore) probes by id and
// expects that to happen routinely.
func (l *gormZapLogger) Trace(_ context.Context, begin time.Time, fc func() (sql string, rowsAffected int64), err error) {
	if l.level <= gormlogger.Silent {
		return
	}

	elapsed := time.Since(begin)
	sql, rows := fc()
	fields := []zap.Field{
		zap.String("sql", sql),
		zap.Duration("elapsed", elapsed),
		zap.Int64("rows", rows),
		zap.String("caller", utils.FileWithLineNum()),
	}

	switch {
	case err != nil && !errors.Is(err, gorm.ErrRecordNotFound):
		l.log.Error("metadata store query failed", append(fields, zap.Error(err))...)
	case l.slowThreshold > 0 && elapsed > l.slowThreshold:
		l.log.Warn("metadata store slow query", fields...)
	case l.level >= gormlogger.Info:
		l.log.Debug("metadata store query", fields...)
	}
}
