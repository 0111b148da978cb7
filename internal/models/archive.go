package models

import (
	"time"

	"gorm.io/datatypes"
)

// ArchivedSecurityEvent is the durable copy of a SecurityEvent.
// The capped KV stream keeps the latest 100; this table keeps all of them.
type ArchivedSecurityEvent struct {
	ID          string         `gorm:"primaryKey;size:64"`
	UserID      string         `gorm:"index;size:255"`
	EventType   string         `gorm:"index;size:64;not null"`
	Description string         `gorm:"size:1000"`
	Severity    string         `gorm:"index;size:20;not null"`
	Metadata    datatypes.JSON `gorm:"type:jsonb"`
	CreatedAt   time.Time      `gorm:"index;not null"`
}

func (ArchivedSecurityEvent) TableName() string {
	return "security_events"
}

// ArchivedAuditEntry is the durable copy of an AuditLogEntry
type ArchivedAuditEntry struct {
	ID           string         `gorm:"primaryKey;size:64"`
	UserID       string         `gorm:"index;size:255"`
	Action       string         `gorm:"index;size:100;not null"`
	ResourceType string         `gorm:"index;size:100"`
	ResourceID   string         `gorm:"size:255"`
	OldValues    datatypes.JSON `gorm:"type:jsonb"`
	NewValues    datatypes.JSON `gorm:"type:jsonb"`
	CreatedAt    time.Time      `gorm:"index;not null"`
}

func (ArchivedAuditEntry) TableName() string {
	return "audit_log_entries"
}

// KVEntry backs the string-valued key-value store when it runs on SQL
type KVEntry struct {
	Key       string `gorm:"primaryKey;size:255"`
	Value     string `gorm:"type:text;not null"`
	UpdatedAt time.Time
}

func (KVEntry) TableName() string {
	return "kv_entries"
}
