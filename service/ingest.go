package service

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"flowwatch/core"

	json "github.com/goccy/go-json"
	"github.com/hashicorp/go-hclog"
	"golang.org/x/sync/errgroup"
)

// DefaultIngestConcurrency bounds concurrent inserts for one webhook call.
const DefaultIngestConcurrency = 8

// IngestResult summarises one webhook call.
type IngestResult struct {
	Received       int               `json:"received"`
	Processed      int               `json:"processed"`
	Rejected       int               `json:"rejected"`
	RejectedErrors []json.RawMessage `json:"rejectedErrors,omitempty"`
	PersistFailed  int               `json:"persistFailed,omitempty"`
}

// IngestStats are cumulative ingest counters.
type IngestStats struct {
	Requests      int64 `json:"requests"`
	Received      int64 `json:"received"`
	Processed     int64 `json:"processed"`
	Rejected      int64 `json:"rejected"`
	PersistFailed int64 `json:"persist_failed"`
}

// IngestService turns webhook bodies into stored records.
type IngestService struct {
	store       Store
	cache       *ListingCache
	concurrency int
	log         hclog.Logger
	diag        *core.Diagnostics
	now         func() time.Time

	requests      atomic.Int64
	received      atomic.Int64
	processed     atomic.Int64
	rejected      atomic.Int64
	persistFailed atomic.Int64
}

// NewIngestService constructs an ingest service
func NewIngestService(store Store, cache *ListingCache, concurrency int, log hclog.Logger, diag *core.Diagnostics) *IngestService {
	if concurrency <= 0 {
		concurrency = DefaultIngestConcurrency
	}
	if log == nil {
		log = hclog.NewNullLogger()
	}
	return &IngestService{
		store:       store,
		cache:       cache,
		concurrency: concurrency,
		log:         log,
		diag:        diag,
		now:         time.Now,
	}
}

// Ingest normalizes body and persists every accepted record. Items are
// independent: a rejected or failed item never affects the others. The
// only error is core.ErrInvalidBody for a body that is not JSON.
func (s *IngestService) Ingest(ctx context.Context, body []byte) (*IngestResult, error) {
	s.requests.Add(1)

	batch, err := core.Normalize(body, s.now())
	if err != nil {
		s.diag.Warn("webhook", "rejected unparseable body", err)
		return nil, err
	}

	result := &IngestResult{
		Received:       batch.Received,
		Processed:      len(batch.Accepted),
		Rejected:       len(batch.Rejected),
		RejectedErrors: batch.Rejected,
	}

	// Writes finish even if the caller goes away.
	writeCtx := context.WithoutCancel(ctx)

	var (
		g          errgroup.Group
		failed     atomic.Int64
		invalidate sync.Once
	)
	g.SetLimit(s.concurrency)
	for i := range batch.Accepted {
		rec := &batch.Accepted[i]
		g.Go(func() error {
			if err := s.store.Create(writeCtx, rec); err != nil {
				failed.Add(1)
				s.diag.Error("webhook", "failed to persist error record", err, map[string]interface{}{
					"workflow_id":  rec.WorkflowID,
					"execution_id": rec.ExecutionID,
				})
				return nil
			}
			if s.cache != nil {
				invalidate.Do(s.cache.Invalidate)
			}
			return nil
		})
	}
	_ = g.Wait()

	result.PersistFailed = int(failed.Load())

	s.received.Add(int64(result.Received))
	s.processed.Add(int64(result.Processed))
	s.rejected.Add(int64(result.Rejected))
	s.persistFailed.Add(int64(result.PersistFailed))

	s.log.Info("webhook processed",
		"received", result.Received,
		"processed", result.Processed,
		"rejected", result.Rejected,
		"persist_failed", result.PersistFailed)
	return result, nil
}

// Stats reports cumulative counters.
func (s *IngestService) Stats() IngestStats {
	return IngestStats{
		Requests:      s.requests.Load(),
		Received:      s.received.Load(),
		Processed:     s.processed.Load(),
		Rejected:      s.rejected.Load(),
		PersistFailed: s.persistFailed.Load(),
	}
}
