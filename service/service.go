package service

import (
	"context"
	"time"

	"flowwatch/config"
	"flowwatch/core"
	"flowwatch/database"
	"flowwatch/models"

	"github.com/hashicorp/go-hclog"
	"gorm.io/gorm"
)

// Services is the service container handed to the HTTP layer.
type Services struct {
	Records  *RecordStore
	Cache    *ListingCache
	Ingest   *IngestService
	Settings *database.Settings
	Diag     *core.Diagnostics
}

// NewServices wires the services over db.
func NewServices(db *gorm.DB, cfg *config.Config, log hclog.Logger, diag *core.Diagnostics) *Services {
	if log == nil {
		log = hclog.NewNullLogger()
	}

	records := NewRecordStore(db)
	cache := NewListingCache(records, time.Duration(cfg.CacheTTLMS)*time.Millisecond, log.Named("cache"), diag)
	ingest := NewIngestService(records, cache, cfg.IngestConcurrency, log.Named("ingest"), diag)

	return &Services{
		Records:  records,
		Cache:    cache,
		Ingest:   ingest,
		Settings: database.NewSettings(db),
		Diag:     diag,
	}
}

// ClearAll deletes every record and empties the cache.
func (s *Services) ClearAll(ctx context.Context) error {
	if err := s.Records.Clear(ctx); err != nil {
		return err
	}
	s.Cache.Clear()
	return nil
}

// Analytics computes the dashboard summary from the cached listing.
func (s *Services) Analytics(ctx context.Context, now time.Time) (models.ErrorAnalytics, error) {
	records, err := s.Cache.List(ctx)
	return CalculateAnalytics(records, now), err
}
