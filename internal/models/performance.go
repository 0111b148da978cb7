package models

import "time"

// PerformanceMetric is one sample of request/runtime performance
type PerformanceMetric struct {
	ResponseTimeMs   float64   `json:"response_time_ms"`
	MemoryUsageBytes uint64    `json:"memory_usage_bytes"`
	DBQueryTimeMs    float64   `json:"db_query_time_ms"`
	CacheHitRate     float64   `json:"cache_hit_rate"`
	Timestamp        time.Time `json:"timestamp"`
	Endpoint         string    `json:"endpoint,omitempty"`
	UserID           string    `json:"user_id,omitempty"`
}
