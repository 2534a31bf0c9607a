package service

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"flowwatch/config"
	"flowwatch/database"
	"flowwatch/models"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *RecordStore {
	t.Helper()

	cfg := config.Default()
	cfg.DatabaseURL = filepath.Join(t.TempDir(), "flowwatch.db")

	db, err := database.Open(cfg, nil, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close(db) })
	return NewRecordStore(db)
}

func sampleRecord(id, workflow string, ts time.Time) models.ErrorRecord {
	return models.ErrorRecord{
		ID:           id,
		WorkflowID:   "wf-" + workflow,
		WorkflowName: workflow,
		NodeName:     "HTTP Request",
		ErrorMessage: fmt.Sprintf("failure %s", id),
		ErrorType:    models.ErrorTypeRuntime,
		Severity:     models.SeverityMedium,
		Timestamp:    ts,
		ExecutionID:  "exec-" + id,
	}
}

type mockStore struct {
	mock.Mock
}

func (m *mockStore) List(ctx context.Context) ([]models.ErrorRecord, error) {
	args := m.Called(ctx)
	recs, _ := args.Get(0).([]models.ErrorRecord)
	return recs, args.Error(1)
}

func (m *mockStore) Create(ctx context.Context, rec *models.ErrorRecord) error {
	return m.Called(ctx, rec).Error(0)
}

func (m *mockStore) Update(ctx context.Context, id string, patch models.ErrorPatch) error {
	return m.Called(ctx, id, patch).Error(0)
}

func (m *mockStore) Delete(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

func (m *mockStore) Clear(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}
