package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"strings"
	"sync"

	"docsift/internal/database"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SettingsStore is the persisted key -> JSON value bag. It is loaded once at
// startup and every change is written through before it is visible.
type SettingsStore struct {
	db *gorm.DB

	mu     sync.RWMutex
	values map[string]json.RawMessage
}

func NewSettingsStore(db *gorm.DB) *SettingsStore {
	return &SettingsStore{db: db, values: make(map[string]json.RawMessage)}
}

func (s *SettingsStore) Load(ctx context.Context) error {
	var rows []database.Setting
	if err := s.db.WithContext(ctx).Find(&rows).Error; err != nil {
		return fmt.Errorf("error loading settings: %w", err)
	}

	values := make(map[string]json.RawMessage, len(rows))
	for _, row := range rows {
		values[row.Key] = json.RawMessage(row.Value)
	}

	s.mu.Lock()
	s.values = values
	s.mu.Unlock()
	return nil
}

func (s *SettingsStore) Get(key string) (json.RawMessage, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	value, ok := s.values[key]
	return value, ok
}

func (s *SettingsStore) All() map[string]json.RawMessage {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return maps.Clone(s.values)
}

func (s *SettingsStore) Set(ctx context.Context, key string, value json.RawMessage) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return fmt.Errorf("%w: setting key must not be empty", ErrInvalidInput)
	}
	if len(value) == 0 {
		value = json.RawMessage("null")
	}
	if !json.Valid(value) {
		return fmt.Errorf("%w: value for setting %q is not valid JSON", ErrInvalidInput, key)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	row := database.Setting{Key: key, Value: datatypes.JSON(value)}
	if err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value"}),
	}).Create(&row).Error; err != nil {
		return fmt.Errorf("error saving setting %q: %w", key, err)
	}

	s.values[key] = value
	return nil
}

func (s *SettingsStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.db.WithContext(ctx).Delete(&database.Setting{}, "key = ?", key).Error; err != nil {
		return fmt.Errorf("error deleting setting %q: %w", key, err)
	}

	delete(s.values, key)
	return nil
}
