package service

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"flowwatch/core"
	"flowwatch/models"

	"github.com/hashicorp/go-hclog"
	"golang.org/x/sync/singleflight"
)

// DefaultCacheTTL is how long a listing snapshot is served without
// going back to the store.
const DefaultCacheTTL = 5 * time.Second

// ListingCache is a read-through cache over Store.List.
//
// The snapshot is EMPTY until the first successful refresh, FRESH while
// younger than the TTL and STALE afterwards or after Invalidate. A stale
// snapshot is still served when a refresh fails.
type ListingCache struct {
	store Store
	ttl   time.Duration
	now   func() time.Time
	log   hclog.Logger
	diag  *core.Diagnostics

	mu          sync.RWMutex
	snapshot    []models.ErrorRecord
	hasSnapshot bool
	stale       bool
	fetchedAt   time.Time
	generation  uint64

	group singleflight.Group

	hits          atomic.Int64
	refreshes     atomic.Int64
	refreshErrors atomic.Int64
}

// CacheStats is a point-in-time view of cache activity.
type CacheStats struct {
	Hits          int64   `json:"hits"`
	Refreshes     int64   `json:"refreshes"`
	RefreshErrors int64   `json:"refresh_errors"`
	Size          int     `json:"size"`
	AgeSeconds    float64 `json:"age_seconds"`
	Stale         bool    `json:"stale"`
}

// NewListingCache builds a cache. A non-positive ttl uses DefaultCacheTTL.
func NewListingCache(store Store, ttl time.Duration, log hclog.Logger, diag *core.Diagnostics) *ListingCache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	if log == nil {
		log = hclog.NewNullLogger()
	}
	return &ListingCache{
		store: store,
		ttl:   ttl,
		now:   time.Now,
		log:   log,
		diag:  diag,
	}
}

// List returns all records in store order. The error is non-nil only when
// the refresh failed and no earlier snapshot exists; the slice is then empty.
func (c *ListingCache) List(ctx context.Context) ([]models.ErrorRecord, error) {
	c.mu.RLock()
	if c.hasSnapshot && !c.stale && c.now().Sub(c.fetchedAt) < c.ttl {
		out := c.snapshot
		c.mu.RUnlock()
		c.hits.Add(1)
		return out, nil
	}
	c.mu.RUnlock()

	v, err, _ := c.group.Do("list", func() (interface{}, error) {
		return c.refresh(ctx)
	})
	if err == nil {
		return v.([]models.ErrorRecord), nil
	}

	c.refreshErrors.Add(1)
	c.diag.Error("cache", "listing refresh failed", err, nil)

	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.hasSnapshot {
		c.log.Warn("serving stale snapshot", "records", len(c.snapshot), "age", c.now().Sub(c.fetchedAt))
		return c.snapshot, nil
	}
	return []models.ErrorRecord{}, err
}

func (c *ListingCache) refresh(ctx context.Context) ([]models.ErrorRecord, error) {
	c.mu.RLock()
	gen := c.generation
	c.mu.RUnlock()

	records, err := c.store.List(ctx)
	if err != nil {
		return nil, err
	}
	if records == nil {
		records = []models.ErrorRecord{}
	}
	c.refreshes.Add(1)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.snapshot = records
	c.hasSnapshot = true
	c.fetchedAt = c.now()
	// A write that landed while we were reading leaves the snapshot stale.
	c.stale = gen != c.generation
	return records, nil
}

// Invalidate marks the snapshot stale. It is kept as a fallback.
func (c *ListingCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stale = true
	c.generation++
}

// Clear drops the snapshot entirely.
func (c *ListingCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.snapshot = nil
	c.hasSnapshot = false
	c.stale = false
	c.fetchedAt = time.Time{}
	c.generation++
}

// Update patches a record through the store and invalidates on success.
func (c *ListingCache) Update(ctx context.Context, id string, patch models.ErrorPatch) error {
	if err := c.store.Update(ctx, id, patch); err != nil {
		return err
	}
	c.Invalidate()
	return nil
}

// Delete removes a record through the store and invalidates on success.
func (c *ListingCache) Delete(ctx context.Context, id string) error {
	if err := c.store.Delete(ctx, id); err != nil {
		return err
	}
	c.Invalidate()
	return nil
}

// Stats reports cache counters.
func (c *ListingCache) Stats() CacheStats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	stats := CacheStats{
		Hits:          c.hits.Load(),
		Refreshes:     c.refreshes.Load(),
		RefreshErrors: c.refreshErrors.Load(),
		Size:          len(c.snapshot),
		Stale:         c.stale,
	}
	if c.hasSnapshot {
		stats.AgeSeconds = c.now().Sub(c.fetchedAt).Seconds()
	}
	return stats
}
