package database

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"flowwatch/config"
	"flowwatch/core"

	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func TestClassifyContention(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{errors.New("SQLITE_BUSY: database is locked"), "busy"},
		{errors.New("busy timeout expired"), "busy"},
		{errors.New("SQLITE_LOCKED: database table is locked"), "locked"},
		{fmt.Errorf("insert: %w", context.DeadlineExceeded), ""},
		{errors.New("UNIQUE constraint failed: workflow_errors.id"), ""},
		{nil, ""},
	}
	for _, tt := range tests {
		if got := classifyContention(tt.err); got != tt.want {
			t.Fatalf("classifyContention(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}

func TestStoreLogger_CountsContention(t *testing.T) {
	cfg := config.Default()
	cfg.DatabaseURL = filepath.Join(t.TempDir(), "test.db")
	diag := core.NewDiagnostics(10, nil)

	db, err := Open(cfg, nil, diag)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = Close(db) })

	l, ok := db.Config.Logger.(*storeLogger)
	if !ok {
		t.Fatalf("expected store logger, got %T", db.Config.Logger)
	}
	sql := func() (string, int64) { return "INSERT INTO workflow_errors ...", 0 }

	// Counters survive the copies gorm makes through LogMode.
	verbose := l.LogMode(logger.Info)
	verbose.Trace(context.Background(), time.Now(), sql, errors.New("SQLITE_BUSY: database is locked"))
	l.Trace(context.Background(), time.Now(), sql, errors.New("SQLITE_LOCKED: database table is locked"))
	l.Trace(context.Background(), time.Now(), sql, gorm.ErrRecordNotFound)

	got := ContentionOf(db)
	if got.BusyErrors != 1 || got.LockedErrors != 1 {
		t.Fatalf("ContentionOf = %+v, want one busy and one locked", got)
	}
	if diag.Len() != 2 {
		t.Fatalf("expected 2 diagnostics entries, got %d", diag.Len())
	}
	if entry := diag.List()[0]; entry.Source != "store" || entry.Message != "sqlite locked" {
		t.Fatalf("unexpected newest entry %+v", entry)
	}
}

func TestContentionOf_NilDB(t *testing.T) {
	if got := ContentionOf(nil); got != (ContentionStats{}) {
		t.Fatalf("expected zero stats for nil db, got %+v", got)
	}
}
