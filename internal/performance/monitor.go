// Package performance keeps a rolling window of performance samples and
// samples Go runtime memory.
package performance

import (
	"math"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/davido182/depositdigest/internal/clock"
	"github.com/davido182/depositdigest/internal/models"
	"github.com/davido182/depositdigest/internal/storage"
	"github.com/davido182/depositdigest/pkg/logger"
)

const (
	SlowResponseMs     = 2000
	CriticalResponseMs = 5000
)

// Sink receives every recorded sample, e.g. a time-series database
type Sink interface {
	WritePerformanceMetric(m models.PerformanceMetric) error
}

// MemoryUsage is a heap snapshot
type MemoryUsage struct {
	HeapAllocBytes uint64  `json:"heap_alloc_bytes"`
	HeapSysBytes   uint64  `json:"heap_sys_bytes"`
	UsedPercent    float64 `json:"used_percent"`
}

// MemoryReader returns the current heap usage
type MemoryReader func() MemoryUsage

// RuntimeMemory reads heap usage from the Go runtime
func RuntimeMemory() MemoryUsage {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	usage := MemoryUsage{HeapAllocBytes: ms.HeapAlloc, HeapSysBytes: ms.HeapSys}
	if ms.HeapSys > 0 {
		usage.UsedPercent = float64(ms.HeapAlloc) / float64(ms.HeapSys) * 100
	}
	return usage
}

// Summary aggregates the samples inside a window. Cache hit rate is averaged
// only over samples that reported one (rate > 0).
type Summary struct {
	Window            time.Duration      `json:"window"`
	Samples           int                `json:"samples"`
	AvgResponseTimeMs float64            `json:"avg_response_time_ms"`
	P95ResponseTimeMs float64            `json:"p95_response_time_ms"`
	MaxResponseTimeMs float64            `json:"max_response_time_ms"`
	AvgDBQueryTimeMs  float64            `json:"avg_db_query_time_ms"`
	CacheSamples      int                `json:"cache_samples"`
	AvgCacheHitRate   float64            `json:"avg_cache_hit_rate"`
	Memory            MemoryUsage        `json:"memory"`
	Status            models.CheckStatus `json:"status"`
	SlowestEndpoint   string             `json:"slowest_endpoint,omitempty"`
}

// Monitor keeps performance samples for a rolling retention window
type Monitor struct {
	mu        sync.Mutex
	metrics   []models.PerformanceMetric
	retention time.Duration

	clock  clock.Clock
	memory MemoryReader
	sink   Sink
	log    *logger.FieldLogger
}

// NewMonitor creates a performance monitor; retention <= 0 keeps one hour
func NewMonitor(clk clock.Clock, retention time.Duration) *Monitor {
	if retention <= 0 {
		retention = storage.MetricWindow
	}
	return &Monitor{
		retention: retention,
		clock:     clk,
		memory:    RuntimeMemory,
		log:       logger.ForComponent("performance"),
	}
}

// SetSink forwards every sample to sink
func (m *Monitor) SetSink(sink Sink) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sink = sink
}

// SetMemoryReader replaces the runtime memory reader
func (m *Monitor) SetMemoryReader(r MemoryReader) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.memory = r
}

// Record appends a sample and prunes samples older than the retention window
func (m *Monitor) Record(metric models.PerformanceMetric) {
	now := m.clock.Now()
	if metric.Timestamp.IsZero() {
		metric.Timestamp = now
	}

	m.mu.Lock()
	m.metrics = append(m.metrics, metric)
	m.pruneLocked(now)
	sink := m.sink
	m.mu.Unlock()

	if sink != nil {
		if err := sink.WritePerformanceMetric(metric); err != nil {
			m.log.Debug("Failed to forward performance sample", map[string]interface{}{"error": err.Error()})
		}
	}
}

// SampleMemory records a sample carrying the current heap usage
func (m *Monitor) SampleMemory() MemoryUsage {
	usage := m.Memory()
	m.Record(models.PerformanceMetric{
		MemoryUsageBytes: usage.HeapAllocBytes,
		Endpoint:         "runtime",
	})
	return usage
}

// Memory returns the current heap usage without recording it
func (m *Monitor) Memory() MemoryUsage {
	m.mu.Lock()
	read := m.memory
	m.mu.Unlock()
	return read()
}

// Metrics returns samples taken at or after since, oldest first
func (m *Monitor) Metrics(since time.Time) []models.PerformanceMetric {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []models.PerformanceMetric
	for _, metric := range m.metrics {
		if !metric.Timestamp.Before(since) {
			out = append(out, metric)
		}
	}
	return out
}

// Summary aggregates request samples from the last window. Runtime memory
// samples are excluded from the response time figures.
func (m *Monitor) Summary(window time.Duration) Summary {
	now := m.clock.Now()
	samples := m.Metrics(now.Add(-window))

	s := Summary{Window: window, Memory: m.Memory()}

	var responseTimes []float64
	var totalResponse, totalDB, totalCache float64
	slowest := map[string]float64{}

	for _, metric := range samples {
		if metric.Endpoint == "runtime" {
			continue
		}
		s.Samples++
		responseTimes = append(responseTimes, metric.ResponseTimeMs)
		totalResponse += metric.ResponseTimeMs
		totalDB += metric.DBQueryTimeMs
		if metric.CacheHitRate > 0 {
			s.CacheSamples++
			totalCache += metric.CacheHitRate
		}
		if metric.ResponseTimeMs > slowest[metric.Endpoint] {
			slowest[metric.Endpoint] = metric.ResponseTimeMs
		}
	}

	if s.Samples > 0 {
		s.AvgResponseTimeMs = totalResponse / float64(s.Samples)
		s.AvgDBQueryTimeMs = totalDB / float64(s.Samples)
		sort.Float64s(responseTimes)
		s.MaxResponseTimeMs = responseTimes[len(responseTimes)-1]
		s.P95ResponseTimeMs = percentile(responseTimes, 0.95)

		var worst float64
		for endpoint, ms := range slowest {
			if ms > worst || (ms == worst && endpoint < s.SlowestEndpoint) {
				worst, s.SlowestEndpoint = ms, endpoint
			}
		}
	}
	if s.CacheSamples > 0 {
		s.AvgCacheHitRate = totalCache / float64(s.CacheSamples)
	}

	s.Status = StatusFor(s.AvgResponseTimeMs)
	return s
}

// StatusFor maps an average response time to a check status
func StatusFor(avgResponseMs float64) models.CheckStatus {
	switch {
	case avgResponseMs > CriticalResponseMs:
		return models.CheckFail
	case avgResponseMs > SlowResponseMs:
		return models.CheckWarn
	default:
		return models.CheckPass
	}
}

// Prune drops samples older than the retention window and returns how many
func (m *Monitor) Prune() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pruneLocked(m.clock.Now())
}

func (m *Monitor) pruneLocked(now time.Time) int {
	cutoff := now.Add(-m.retention)
	kept := m.metrics[:0]
	for _, metric := range m.metrics {
		if !metric.Timestamp.Before(cutoff) {
			kept = append(kept, metric)
		}
	}
	removed := len(m.metrics) - len(kept)
	m.metrics = kept
	return removed
}

// percentile expects sorted input
func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(math.Ceil(p*float64(len(sorted)))) - 1
	if idx < 0 {
		idx = 0
	}
	return sorted[idx]
}
