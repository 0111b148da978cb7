package models

import "time"

// ErrorContext describes where a failure happened
type ErrorContext struct {
	Component string                 `json:"component"`
	Action    string                 `json:"action"`
	UserID    string                 `json:"user_id,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// ErrorReport is the in-memory record of one classified failure.
// Reports live in a bounded ring buffer and are never persisted.
type ErrorReport struct {
	ID         string        `json:"id"`
	Category   ErrorCategory `json:"category"`
	Severity   Severity      `json:"severity"`
	Message    string        `json:"message"`
	Context    ErrorContext  `json:"context"`
	RetryCount int           `json:"retry_count"`
	MaxRetries int           `json:"max_retries"`
	Resolved   bool          `json:"resolved"`
}
