package database

import (
	"context"
	"errors"
	"flowwatch/models"
	"strings"

	"gorm.io/gorm"
)

// Settings persists small key/value settings.
type Settings struct {
	db *gorm.DB
}

// NewSettings wraps db.
func NewSettings(db *gorm.DB) *Settings {
	return &Settings{db: db}
}

// Get returns a persisted setting.
// ok is false when the key does not exist.
func (s *Settings) Get(ctx context.Context, key string) (value string, ok bool, err error) {
	if s == nil || s.db == nil {
		return "", false, errors.New("database not initialized")
	}

	key = strings.TrimSpace(key)
	if key == "" {
		return "", false, errors.New("empty setting key")
	}

	var setting models.AppSetting
	if err := s.db.WithContext(ctx).First(&setting, "key = ?", key).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", false, nil
		}
		return "", false, err
	}
	return setting.Value, true, nil
}

// Set persists a setting, replacing any previous value.
func (s *Settings) Set(ctx context.Context, key, value string) error {
	if s == nil || s.db == nil {
		return errors.New("database not initialized")
	}

	key = strings.TrimSpace(key)
	if key == "" {
		return errors.New("empty setting key")
	}

	value = strings.TrimSpace(value)
	return s.db.WithContext(ctx).Save(&models.AppSetting{Key: key, Value: value}).Error
}

// Delete removes a setting if it exists.
func (s *Settings) Delete(ctx context.Context, key string) error {
	if s == nil || s.db == nil {
		return errors.New("database not initialized")
	}

	key = strings.TrimSpace(key)
	if key == "" {
		return errors.New("empty setting key")
	}

	return s.db.WithContext(ctx).Where("key = ?", key).Delete(&models.AppSetting{}).Error
}
