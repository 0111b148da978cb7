package models

import "time"

// CheckStatus is the outcome of a single probe
type CheckStatus string

const (
	CheckPass CheckStatus = "pass"
	CheckWarn CheckStatus = "warn"
	CheckFail CheckStatus = "fail"
)

// SystemStatus is the folded status of all probes
type SystemStatus string

const (
	StatusHealthy   SystemStatus = "healthy"
	StatusDegraded  SystemStatus = "degraded"
	StatusUnhealthy SystemStatus = "unhealthy"
)

// HealthCheck is one probe result. Recomputed on every cycle.
type HealthCheck struct {
	Name       string                 `json:"name"`
	Status     CheckStatus            `json:"status"`
	DurationMs int64                  `json:"duration_ms"`
	Message    string                 `json:"message,omitempty"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
}

// SystemHealth is the aggregate of one health cycle
type SystemHealth struct {
	Status    SystemStatus  `json:"status"`
	Checks    []HealthCheck `json:"checks"`
	Timestamp time.Time     `json:"timestamp"`
	Uptime    time.Duration `json:"uptime"`
}

// ChecksWithStatus returns the names of the probes that reported status
func (h SystemHealth) ChecksWithStatus(status CheckStatus) []string {
	var names []string
	for _, c := range h.Checks {
		if c.Status == status {
			names = append(names, c.Name)
		}
	}
	return names
}
