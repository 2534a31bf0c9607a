package database

import (
	"context"
	"time"

	"flowwatch/config"
	"flowwatch/core"
	"flowwatch/models"

	"github.com/glebarez/sqlite"
	"github.com/hashicorp/go-hclog"
	"gorm.io/gorm"
)

// Open opens the record store described by cfg, applies pool limits and
// pragmas, and migrates the flowwatch tables. Lock contention is reported
// to diag, which may be nil.
func Open(cfg *config.Config, log hclog.Logger, diag *core.Diagnostics) (*gorm.DB, error) {
	if log == nil {
		log = hclog.NewNullLogger()
	}

	pragmas := storePragmas(cfg)
	db, err := gorm.Open(sqlite.Open(storeDSN(cfg.DatabaseURL, pragmas)), &gorm.Config{
		Logger: newStoreLogger(log, diag),
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	limits := storePoolLimits(cfg)
	sqlDB.SetMaxOpenConns(limits.maxOpen)
	sqlDB.SetMaxIdleConns(limits.maxIdle)
	sqlDB.SetConnMaxIdleTime(limits.idleTime)
	sqlDB.SetConnMaxLifetime(limits.lifetime)

	applyPragmas(db, pragmas, log)

	if err := Migrate(db); err != nil {
		return nil, err
	}

	log.Info("database initialized", "path", cfg.DatabaseURL, "pragmas", len(pragmas))
	return db, nil
}

// Migrate creates or updates the flowwatch tables.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(&models.ErrorRecord{}, &models.AppSetting{})
}

// Healthy pings the store, bounding the ping to 200ms when ctx has no deadline.
func Healthy(ctx context.Context, db *gorm.DB) bool {
	if db == nil {
		return false
	}
	sqlDB, err := db.DB()
	if err != nil {
		return false
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, 200*time.Millisecond)
		defer cancel()
	}
	return sqlDB.PingContext(ctx) == nil
}

// Close closes the database connection and releases resources
func Close(db *gorm.DB) error {
	if db == nil {
		return nil
	}

	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
