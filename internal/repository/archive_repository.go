package repository

import (
	"encoding/json"
	"time"

	"github.com/davido182/depositdigest/internal/models"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ArchiveRepository keeps the full history of security events and audit entries
type ArchiveRepository struct {
	db *gorm.DB
}

// NewArchiveRepository creates a new archive repository
func NewArchiveRepository(db *gorm.DB) *ArchiveRepository {
	return &ArchiveRepository{db: db}
}

// ArchiveSecurityEvent stores a copy of ev
func (r *ArchiveRepository) ArchiveSecurityEvent(ev models.SecurityEvent) error {
	record := models.ArchivedSecurityEvent{
		ID:          ev.ID,
		UserID:      ev.UserID,
		EventType:   string(ev.EventType),
		Description: ev.Description,
		Severity:    string(ev.Severity),
		Metadata:    toJSON(ev.Metadata),
		CreatedAt:   ev.CreatedAt,
	}
	return r.db.Create(&record).Error
}

// ArchiveAuditEntry stores a copy of entry
func (r *ArchiveRepository) ArchiveAuditEntry(entry models.AuditLogEntry) error {
	record := models.ArchivedAuditEntry{
		ID:           entry.ID,
		UserID:       entry.UserID,
		Action:       entry.Action,
		ResourceType: entry.ResourceType,
		ResourceID:   entry.ResourceID,
		OldValues:    toJSON(entry.OldValues),
		NewValues:    toJSON(entry.NewValues),
		CreatedAt:    entry.CreatedAt,
	}
	return r.db.Create(&record).Error
}

// SecurityEventsSince returns archived events created at or after since, newest first
func (r *ArchiveRepository) SecurityEventsSince(since time.Time, limit int) ([]models.SecurityEvent, error) {
	if limit <= 0 {
		limit = 1000
	}

	var records []models.ArchivedSecurityEvent
	err := r.db.Where("created_at >= ?", since).
		Order("created_at DESC").
		Limit(limit).
		Find(&records).Error
	if err != nil {
		return nil, err
	}

	events := make([]models.SecurityEvent, len(records))
	for i, rec := range records {
		events[i] = models.SecurityEvent{
			ID:          rec.ID,
			UserID:      rec.UserID,
			EventType:   models.SecurityEventType(rec.EventType),
			Description: rec.Description,
			Severity:    models.Severity(rec.Severity),
			Metadata:    fromJSON(rec.Metadata),
			CreatedAt:   rec.CreatedAt,
		}
	}
	return events, nil
}

// AuditEntriesForResource returns the audit trail of one resource, oldest first
func (r *ArchiveRepository) AuditEntriesForResource(resourceType, resourceID string) ([]models.AuditLogEntry, error) {
	var records []models.ArchivedAuditEntry
	err := r.db.Where("resource_type = ? AND resource_id = ?", resourceType, resourceID).
		Order("created_at ASC").
		Find(&records).Error
	if err != nil {
		return nil, err
	}

	entries := make([]models.AuditLogEntry, len(records))
	for i, rec := range records {
		entries[i] = models.AuditLogEntry{
			ID:           rec.ID,
			UserID:       rec.UserID,
			Action:       rec.Action,
			ResourceType: rec.ResourceType,
			ResourceID:   rec.ResourceID,
			OldValues:    fromJSON(rec.OldValues),
			NewValues:    fromJSON(rec.NewValues),
			CreatedAt:    rec.CreatedAt,
		}
	}
	return entries, nil
}

// DeleteOlderThan prunes archived rows created before cutoff
func (r *ArchiveRepository) DeleteOlderThan(cutoff time.Time) (int64, error) {
	res := r.db.Where("created_at < ?", cutoff).Delete(&models.ArchivedSecurityEvent{})
	if res.Error != nil {
		return 0, res.Error
	}
	deleted := res.RowsAffected

	res = r.db.Where("created_at < ?", cutoff).Delete(&models.ArchivedAuditEntry{})
	if res.Error != nil {
		return deleted, res.Error
	}
	return deleted + res.RowsAffected, nil
}

func toJSON(m map[string]interface{}) datatypes.JSON {
	if len(m) == 0 {
		return datatypes.JSON("{}")
	}
	data, err := json.Marshal(m)
	if err != nil {
		return datatypes.JSON("{}")
	}
	return datatypes.JSON(data)
}

func fromJSON(raw datatypes.JSON) map[string]interface{} {
	if len(raw) == 0 {
		return nil
	}
	var m map[string]interface{}
	if err := json.Unmarshal(raw, &m); err != nil || len(m) == 0 {
		return nil
	}
	return m
}
