package models

import "time"

// AlertType groups alerts by the detector that raised them
type AlertType string

const (
	AlertTypeSecurity    AlertType = "security"
	AlertTypeHealth      AlertType = "health"
	AlertTypePerformance AlertType = "performance"
	AlertTypeError       AlertType = "error"
	AlertTypeResource    AlertType = "resource"
)

// Alert is an actionable notification; open until resolved
type Alert struct {
	ID          string                 `json:"id"`
	Type        AlertType              `json:"type"`
	Severity    Severity               `json:"severity"`
	Title       string                 `json:"title"`
	Description string                 `json:"description"`
	CreatedAt   time.Time              `json:"created_at"`
	Resolved    bool                   `json:"resolved"`
	ResolvedAt  *time.Time             `json:"resolved_at,omitempty"`
	Resolution  string                 `json:"resolution,omitempty"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
}
