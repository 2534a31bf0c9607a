package database

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"flowwatch/core"

	"github.com/hashicorp/go-hclog"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const slowQueryThreshold = 500 * time.Millisecond

// ContentionStats counts SQLite lock contention hit by the record store.
type ContentionStats struct {
	BusyErrors   uint64 `json:"busy_errors_total"`
	LockedErrors uint64 `json:"locked_errors_total"`
}

type contentionCounters struct {
	busy   atomic.Uint64
	locked atomic.Uint64
}

// storeLogger is the gorm logger for the record store. Queries are logged
// through hclog; busy/locked failures are counted and reported to diagnostics
// whatever the log level.
type storeLogger struct {
	log      hclog.Logger
	level    logger.LogLevel
	counters *contentionCounters
	diag     *core.Diagnostics
}

func newStoreLogger(log hclog.Logger, diag *core.Diagnostics) *storeLogger {
	level := logger.Silent
	switch {
	case log.IsDebug():
		level = logger.Info
	case log.IsWarn():
		level = logger.Warn
	case log.IsError():
		level = logger.Error
	}
	return &storeLogger{
		log:      log,
		level:    level,
		counters: &contentionCounters{},
		diag:     diag,
	}
}

// LogMode returns a copy at level sharing the same counters.
func (l *storeLogger) LogMode(level logger.LogLevel) logger.Interface {
	clone := *l
	clone.level = level
	return &clone
}

func (l *storeLogger) Info(ctx context.Context, msg string, args ...interface{}) {
	if l.level >= logger.Info {
		l.log.Info(fmt.Sprintf(msg, args...))
	}
}

func (l *storeLogger) Warn(ctx context.Context, msg string, args ...interface{}) {
	if l.level >= logger.Warn {
		l.log.Warn(fmt.Sprintf(msg, args...))
	}
}

func (l *storeLogger) Error(ctx context.Context, msg string, args ...interface{}) {
	if l.level >= logger.Error {
		l.log.Error(fmt.Sprintf(msg, args...))
	}
}

func (l *storeLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	elapsed := time.Since(begin)

	switch {
	case err != nil && !errors.Is(err, gorm.ErrRecordNotFound):
		if kind := classifyContention(err); kind != "" {
			l.countContention(kind, err)
		}
		if l.level >= logger.Error {
			sql, rows := fc()
			l.log.Error("query failed", "error", err, "elapsed", elapsed, "rows", rows, "sql", sql)
		}
	case elapsed > slowQueryThreshold && l.level >= logger.Warn:
		sql, rows := fc()
		l.log.Warn("slow query", "elapsed", elapsed, "rows", rows, "sql", sql)
	case l.level >= logger.Info:
		sql, rows := fc()
		l.log.Debug("query", "elapsed", elapsed, "rows", rows, "sql", sql)
	}
}

func (l *storeLogger) countContention(kind string, err error) {
	switch kind {
	case "busy":
		l.counters.busy.Add(1)
	case "locked":
		l.counters.locked.Add(1)
	}
	l.diag.Warn("store", "sqlite "+kind, err)
}

// classifyContention returns "busy", "locked" or "" for err.
func classifyContention(err error) string {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return ""
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "sqlite_locked"), strings.Contains(msg, "database table is locked"):
		return "locked"
	case strings.Contains(msg, "sqlite_busy"), strings.Contains(msg, "database is locked"), strings.Contains(msg, "busy timeout"):
		return "busy"
	}
	return ""
}

// ContentionOf reports the contention counters of a database opened with Open.
func ContentionOf(db *gorm.DB) ContentionStats {
	if db == nil {
		return ContentionStats{}
	}
	l, ok := db.Config.Logger.(*storeLogger)
	if !ok {
		return ContentionStats{}
	}
	return ContentionStats{
		BusyErrors:   l.counters.busy.Load(),
		LockedErrors: l.counters.locked.Load(),
	}
}
