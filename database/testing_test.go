package database

import (
	"path/filepath"
	"testing"

	"flowwatch/config"

	"gorm.io/gorm"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	cfg := config.Default()
	cfg.DatabaseURL = filepath.Join(t.TempDir(), "test.db")

	db, err := Open(cfg, nil, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() {
		_ = Close(db)
	})
	return db
}
