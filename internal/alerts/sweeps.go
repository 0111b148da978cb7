package alerts

import (
	"fmt"
	"time"

	"github.com/davido182/depositdigest/internal/models"
	"github.com/davido182/depositdigest/internal/performance"
)

const (
	MinCacheHitRate     = 0.5
	ErrorSpikeThreshold = 10
	ErrorSpikeWindow    = 5 * time.Minute
	HeapCriticalPercent = 90.0
	HeapWarningPercent  = 70.0
)

// CheckPerformance raises alerts for slow responses and a poor cache hit
// rate in the given summary
func (m *Manager) CheckPerformance(s performance.Summary) []models.Alert {
	var raised []models.Alert

	if s.Samples > 0 && s.AvgResponseTimeMs > performance.SlowResponseMs {
		severity := models.SeverityHigh
		if s.AvgResponseTimeMs > performance.CriticalResponseMs {
			severity = models.SeverityCritical
		}
		raised = append(raised, m.CreateAlert(models.AlertTypePerformance, severity,
			"Slow response times",
			fmt.Sprintf("Average response time %.0fms over the last %s", s.AvgResponseTimeMs, s.Window),
			map[string]interface{}{
				"avg_response_time_ms": s.AvgResponseTimeMs,
				"p95_response_time_ms": s.P95ResponseTimeMs,
				"slowest_endpoint":     s.SlowestEndpoint,
				"samples":              s.Samples,
			}))
	}

	if s.CacheSamples > 0 && s.AvgCacheHitRate < MinCacheHitRate {
		raised = append(raised, m.CreateAlert(models.AlertTypePerformance, models.SeverityMedium,
			"Low cache hit rate",
			fmt.Sprintf("Cache hit rate %.0f%% over the last %s", s.AvgCacheHitRate*100, s.Window),
			map[string]interface{}{
				"cache_hit_rate": s.AvgCacheHitRate,
				"samples":        s.CacheSamples,
			}))
	}
	return raised
}

// CheckErrorPatterns raises a high alert when the error rate spikes and a
// critical alert for each unresolved critical report not alerted before
func (m *Manager) CheckErrorPatterns(reports []models.ErrorReport) []models.Alert {
	now := m.clock.Now()
	since := now.Add(-ErrorSpikeWindow)

	var raised []models.Alert
	recent := 0
	var critical []models.ErrorReport
	present := make(map[string]struct{}, len(reports))
	for _, r := range reports {
		present[r.ID] = struct{}{}
		if !r.Context.Timestamp.Before(since) {
			recent++
		}
		if r.Severity == models.SeverityCritical && !r.Resolved {
			critical = append(critical, r)
		}
	}

	// forget reports the ring has already evicted
	m.mu.Lock()
	for id := range m.alertedReports {
		if _, ok := present[id]; !ok {
			delete(m.alertedReports, id)
		}
	}
	m.mu.Unlock()

	if recent >= ErrorSpikeThreshold {
		raised = append(raised, m.CreateAlert(models.AlertTypeError, models.SeverityHigh,
			"Error spike",
			fmt.Sprintf("%d errors in the last %s", recent, ErrorSpikeWindow),
			map[string]interface{}{"kind": "error_spike", "count": recent}))
	}

	for _, r := range critical {
		m.mu.Lock()
		_, seen := m.alertedReports[r.ID]
		m.alertedReports[r.ID] = struct{}{}
		m.mu.Unlock()
		if seen {
			continue
		}
		raised = append(raised, m.CreateAlert(models.AlertTypeError, models.SeverityCritical,
			"Critical error",
			r.Message,
			map[string]interface{}{
				"error_id":  r.ID,
				"category":  string(r.Category),
				"component": r.Context.Component,
				"action":    r.Context.Action,
			}))
	}
	return raised
}

// CheckResources raises an alert when heap usage is high
func (m *Manager) CheckResources(mem performance.MemoryUsage) *models.Alert {
	var severity models.Severity
	switch {
	case mem.UsedPercent > HeapCriticalPercent:
		severity = models.SeverityCritical
	case mem.UsedPercent > HeapWarningPercent:
		severity = models.SeverityMedium
	default:
		return nil
	}

	alert := m.CreateAlert(models.AlertTypeResource, severity,
		"High memory usage",
		fmt.Sprintf("Heap usage at %.1f%%", mem.UsedPercent),
		map[string]interface{}{
			"heap_alloc_bytes": mem.HeapAllocBytes,
			"heap_sys_bytes":   mem.HeapSysBytes,
			"used_percent":     mem.UsedPercent,
		})
	return &alert
}
