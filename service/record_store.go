package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"flowwatch/models"

	"gorm.io/gorm"
)

// ErrRecordNotFound is returned when an id matches no stored record.
var ErrRecordNotFound = errors.New("error record not found")

// Store is the persistence the cache and ingest pipeline depend on.
type Store interface {
	List(ctx context.Context) ([]models.ErrorRecord, error)
	Create(ctx context.Context, rec *models.ErrorRecord) error
	Update(ctx context.Context, id string, patch models.ErrorPatch) error
	Delete(ctx context.Context, id string) error
	Clear(ctx context.Context) error
}

// RecordStore keeps error records in SQLite through GORM.
type RecordStore struct {
	db  *gorm.DB
	now func() time.Time
}

// NewRecordStore constructs a record store
func NewRecordStore(db *gorm.DB) *RecordStore {
	return &RecordStore{db: db, now: time.Now}
}

// List returns every record, newest first.
func (s *RecordStore) List(ctx context.Context) ([]models.ErrorRecord, error) {
	var records []models.ErrorRecord
	if err := s.db.WithContext(ctx).Order("timestamp desc").Find(&records).Error; err != nil {
		return nil, fmt.Errorf("failed to list error records: %w", err)
	}
	return records, nil
}

// Get fetches a record by id
func (s *RecordStore) Get(ctx context.Context, id string) (*models.ErrorRecord, error) {
	var rec models.ErrorRecord
	if err := s.db.WithContext(ctx).First(&rec, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrRecordNotFound, id)
		}
		return nil, fmt.Errorf("failed to get error record: %w", err)
	}
	return &rec, nil
}

// Create inserts a record. The id is assigned when empty.
func (s *RecordStore) Create(ctx context.Context, rec *models.ErrorRecord) error {
	if rec.Resolved && rec.ResolvedAt == nil {
		now := s.now()
		rec.ResolvedAt = &now
	}
	if err := s.db.WithContext(ctx).Create(rec).Error; err != nil {
		return fmt.Errorf("failed to create error record: %w", err)
	}
	return nil
}

// Update applies a partial update to one record.
func (s *RecordStore) Update(ctx context.Context, id string, patch models.ErrorPatch) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("%w: empty id", ErrRecordNotFound)
	}

	cols := patch.Columns(s.now())
	if len(cols) == 0 {
		_, err := s.Get(ctx, id)
		return err
	}

	result := s.db.WithContext(ctx).Model(&models.ErrorRecord{}).Where("id = ?", id).Updates(cols)
	if result.Error != nil {
		return fmt.Errorf("failed to update error record: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: %s", ErrRecordNotFound, id)
	}
	return nil
}

// Delete removes one record.
func (s *RecordStore) Delete(ctx context.Context, id string) error {
	result := s.db.WithContext(ctx).Where("id = ?", id).Delete(&models.ErrorRecord{})
	if result.Error != nil {
		return fmt.Errorf("failed to delete error record: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: %s", ErrRecordNotFound, id)
	}
	return nil
}

// Clear removes every record.
func (s *RecordStore) Clear(ctx context.Context) error {
	if err := s.db.WithContext(ctx).Where("1 = 1").Delete(&models.ErrorRecord{}).Error; err != nil {
		return fmt.Errorf("failed to clear error records: %w", err)
	}
	return nil
}

// Count returns the number of stored records.
func (s *RecordStore) Count(ctx context.Context) (int64, error) {
	var total int64
	if err := s.db.WithContext(ctx).Model(&models.ErrorRecord{}).Count(&total).Error; err != nil {
		return 0, fmt.Errorf("failed to count error records: %w", err)
	}
	return total, nil
}
