package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"flowwatch/core"
	"flowwatch/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func canonicalJSON(id, workflow string) string {
	return fmt.Sprintf(`{"id":%q,"workflowId":"w-%s","workflowName":%q,"nodeName":"HTTP Request","errorMessage":"Connection timeout after 30s"}`, id, workflow, workflow)
}

func TestIngest_CountsAcceptedAndRejected(t *testing.T) {
	store := newTestStore(t)
	cache := NewListingCache(store, time.Minute, nil, nil)
	svc := NewIngestService(store, cache, 2, nil, core.NewDiagnostics(10, nil))

	items := []string{
		canonicalJSON("a", "Sync"),
		`{"unknown":"shape"}`,
		canonicalJSON("b", "Sync"),
		`{"workflowId":"w","workflowName":"n","nodeName":"x","errorMessage":"m","severity":"urgent"}`,
		canonicalJSON("c", "Export"),
	}
	body := "[" + strings.Join(items, ",") + "]"

	res, err := svc.Ingest(context.Background(), []byte(body))
	require.NoError(t, err)
	assert.Equal(t, 5, res.Received)
	assert.Equal(t, 3, res.Processed)
	assert.Equal(t, 2, res.Rejected)
	assert.Len(t, res.RejectedErrors, 2)
	assert.Equal(t, 0, res.PersistFailed)

	recs, err := cache.List(context.Background())
	require.NoError(t, err)
	assert.Len(t, recs, 3)
	for _, r := range recs {
		assert.Equal(t, models.ErrorTypeTimeout, r.ErrorType)
		assert.Equal(t, models.SeverityMedium, r.Severity)
		assert.False(t, r.Resolved)
	}

	stats := svc.Stats()
	assert.EqualValues(t, 1, stats.Requests)
	assert.EqualValues(t, 3, stats.Processed)
}

func TestIngest_InvalidatesCacheAfterWrite(t *testing.T) {
	store := newTestStore(t)
	cache := NewListingCache(store, time.Hour, nil, nil)
	svc := NewIngestService(store, cache, 0, nil, nil)

	recs, err := cache.List(context.Background())
	require.NoError(t, err)
	require.Empty(t, recs)

	_, err = svc.Ingest(context.Background(), []byte(canonicalJSON("x", "Sync")))
	require.NoError(t, err)

	recs, err = cache.List(context.Background())
	require.NoError(t, err)
	assert.Len(t, recs, 1, "write is visible without waiting for the TTL")
}

func TestIngest_PersistFailureIsIsolated(t *testing.T) {
	store := newTestStore(t)
	svc := NewIngestService(store, nil, 4, nil, core.NewDiagnostics(10, nil))

	body := "[" + canonicalJSON("dup", "Sync") + "," + canonicalJSON("dup", "Sync") + "," + canonicalJSON("ok", "Sync") + "]"
	res, err := svc.Ingest(context.Background(), []byte(body))
	require.NoError(t, err)
	assert.Equal(t, 3, res.Processed)
	assert.Equal(t, 1, res.PersistFailed)

	n, err := store.Count(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)
}

func TestIngest_StoreDownStillReports(t *testing.T) {
	store := &mockStore{}
	store.On("Create", mock.Anything, mock.Anything).Return(errors.New("disk full"))
	diag := core.NewDiagnostics(10, nil)
	svc := NewIngestService(store, nil, 1, nil, diag)

	res, err := svc.Ingest(context.Background(), []byte("["+canonicalJSON("a", "S")+","+canonicalJSON("b", "S")+"]"))
	require.NoError(t, err)
	assert.Equal(t, 2, res.Processed)
	assert.Equal(t, 2, res.PersistFailed)
	assert.Equal(t, 2, diag.Len())
}

func TestIngest_CancelledRequestStillWrites(t *testing.T) {
	store := newTestStore(t)
	svc := NewIngestService(store, nil, 1, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err := svc.Ingest(ctx, []byte(canonicalJSON("a", "Sync")))
	require.NoError(t, err)
	assert.Equal(t, 0, res.PersistFailed)
}

func TestIngest_InvalidBody(t *testing.T) {
	svc := NewIngestService(&mockStore{}, nil, 1, nil, nil)
	_, err := svc.Ingest(context.Background(), []byte("{oops"))
	assert.ErrorIs(t, err, core.ErrInvalidBody)
}

func TestIngest_EmptyArray(t *testing.T) {
	svc := NewIngestService(&mockStore{}, nil, 1, nil, nil)
	res, err := svc.Ingest(context.Background(), []byte("[]"))
	require.NoError(t, err)
	assert.Equal(t, 0, res.Received)
	assert.Equal(t, 0, res.Processed)
}
