package models

import "time"

// SecurityEventType represents different types of security events
type SecurityEventType string

const (
	EventFailedLogin        SecurityEventType = "failed_login"
	EventLoginSuccess       SecurityEventType = "login_success"
	EventSuspiciousActivity SecurityEventType = "suspicious_activity"
	EventSessionExpired     SecurityEventType = "session_expired"
	EventSessionRenewed     SecurityEventType = "session_renewed"
	EventForcedLogout       SecurityEventType = "forced_logout"
	EventSystemError        SecurityEventType = "system_error"
	EventOperationRecovered SecurityEventType = "operation_recovered"
	EventFallbackUsed       SecurityEventType = "fallback_used"
	EventDetectorFailure    SecurityEventType = "detector_failure"
)

// SecurityEvent is an append-only, write-once security record
type SecurityEvent struct {
	ID          string                 `json:"id"`
	UserID      string                 `json:"user_id,omitempty"`
	EventType   SecurityEventType      `json:"event_type"`
	Description string                 `json:"description"`
	Severity    Severity               `json:"severity"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt   time.Time              `json:"created_at"`
}

// AuditLogEntry records a change made to a business resource
type AuditLogEntry struct {
	ID           string                 `json:"id"`
	UserID       string                 `json:"user_id,omitempty"`
	Action       string                 `json:"action"`
	ResourceType string                 `json:"resource_type"`
	ResourceID   string                 `json:"resource_id,omitempty"`
	OldValues    map[string]interface{} `json:"old_values,omitempty"`
	NewValues    map[string]interface{} `json:"new_values,omitempty"`
	CreatedAt    time.Time              `json:"created_at"`
}
