package repository

import (
	"errors"
	"time"

	"github.com/davido182/depositdigest/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// KVRepository stores the monitoring key-value data in the kv_entries table
type KVRepository struct {
	db *gorm.DB
}

// NewKVRepository creates a new key-value repository
func NewKVRepository(db *gorm.DB) *KVRepository {
	return &KVRepository{db: db}
}

// Get returns the value stored under key
func (r *KVRepository) Get(key string) (string, bool, error) {
	var entry models.KVEntry
	err := r.db.First(&entry, "key = ?", key).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return entry.Value, true, nil
}

// Set upserts the value for key
func (r *KVRepository) Set(key, value string) error {
	entry := models.KVEntry{Key: key, Value: value, UpdatedAt: time.Now()}
	return r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&entry).Error
}

// Remove deletes key; removing a missing key is not an error
func (r *KVRepository) Remove(key string) error {
	return r.db.Delete(&models.KVEntry{}, "key = ?", key).Error
}
