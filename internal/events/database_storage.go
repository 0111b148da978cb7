package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/davido182/depositdigest/internal/models"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const defaultQueryLimit = 1000

// DatabaseEventStorage keeps published monitoring events in system_events
type DatabaseEventStorage struct {
	db *gorm.DB
}

// NewDatabaseEventStorage creates a new database event storage
func NewDatabaseEventStorage(db *gorm.DB) *DatabaseEventStorage {
	return &DatabaseEventStorage{db: db}
}

// Store saves an event to the database
func (s *DatabaseEventStorage) Store(event Event) error {
	data, err := json.Marshal(event.Data)
	if err != nil {
		return fmt.Errorf("encode event data: %w", err)
	}

	row := &models.SystemEvent{
		EventID:   event.ID,
		Type:      string(event.Type),
		Timestamp: event.Timestamp,
		Source:    event.Source,
		SubjectID: event.SubjectID,
		UserID:    event.UserID,
		Severity:  event.Severity,
		Data:      datatypes.JSON(data),
	}
	return s.db.Create(row).Error
}

// Query returns matching events, newest first
func (s *DatabaseEventStorage) Query(filters EventFilters) ([]Event, error) {
	q := s.db.Model(&models.SystemEvent{})

	if len(filters.Types) > 0 {
		types := make([]string, len(filters.Types))
		for i, t := range filters.Types {
			types[i] = string(t)
		}
		q = q.Where("type IN ?", types)
	}
	if filters.UserID != "" {
		q = q.Where("user_id = ?", filters.UserID)
	}
	if !filters.StartTime.IsZero() {
		q = q.Where("timestamp >= ?", filters.StartTime)
	}
	if !filters.EndTime.IsZero() {
		q = q.Where("timestamp <= ?", filters.EndTime)
	}

	limit := filters.Limit
	if limit <= 0 {
		limit = defaultQueryLimit
	}

	var rows []models.SystemEvent
	if err := q.Order("timestamp DESC").Limit(limit).Find(&rows).Error; err != nil {
		return nil, err
	}

	out := make([]Event, len(rows))
	for i, row := range rows {
		var data map[string]interface{}
		if err := json.Unmarshal(row.Data, &data); err != nil {
			data = map[string]interface{}{}
		}
		out[i] = Event{
			ID:        row.EventID,
			Type:      EventType(row.Type),
			Timestamp: row.Timestamp,
			Source:    row.Source,
			SubjectID: row.SubjectID,
			UserID:    row.UserID,
			Severity:  row.Severity,
			Data:      data,
		}
	}
	return out, nil
}

// DeleteBefore hard-deletes events older than cutoff and returns how many went
func (s *DatabaseEventStorage) DeleteBefore(cutoff time.Time) (int64, error) {
	res := s.db.Unscoped().Where("timestamp < ?", cutoff).Delete(&models.SystemEvent{})
	return res.RowsAffected, res.Error
}
