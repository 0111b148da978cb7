package models

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// SystemEvent is the database row behind every event published on the bus
type SystemEvent struct {
	gorm.Model
	EventID   string         `gorm:"uniqueIndex;size:255" json:"event_id"`
	Type      string         `gorm:"index;size:100" json:"type"`
	Timestamp time.Time      `gorm:"index" json:"timestamp"`
	Source    string         `gorm:"size:100" json:"source"`
	SubjectID string         `gorm:"index;size:255" json:"subject_id,omitempty"` // alert, event or audit entry id
	UserID    string         `gorm:"index;size:255" json:"user_id,omitempty"`
	Severity  string         `gorm:"index;size:20" json:"severity,omitempty"`
	Data      datatypes.JSON `gorm:"type:jsonb" json:"data"`
}

// TableName overrides the table name
func (SystemEvent) TableName() string {
	return "system_events"
}
