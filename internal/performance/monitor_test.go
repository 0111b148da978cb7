package performance

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/davido182/depositdigest/internal/clock"
	"github.com/davido182/depositdigest/internal/models"
)

type countingSink struct {
	written int
	err     error
}

func (s *countingSink) WritePerformanceMetric(models.PerformanceMetric) error {
	s.written++
	return s.err
}

func newTestMonitor() (*Monitor, *clock.Fake) {
	clk := clock.NewFake(time.Date(2024, 7, 1, 8, 0, 0, 0, time.UTC))
	m := NewMonitor(clk, 0)
	m.SetMemoryReader(func() MemoryUsage {
		return MemoryUsage{HeapAllocBytes: 600, HeapSysBytes: 1000, UsedPercent: 60}
	})
	return m, clk
}

func TestSummary(t *testing.T) {
	m, clk := newTestMonitor()

	m.Record(models.PerformanceMetric{ResponseTimeMs: 100, Endpoint: "/a", CacheHitRate: 0.8})
	m.Record(models.PerformanceMetric{ResponseTimeMs: 300, Endpoint: "/b", DBQueryTimeMs: 40})
	m.Record(models.PerformanceMetric{ResponseTimeMs: 200, Endpoint: "/a", CacheHitRate: 0.4})
	m.SampleMemory()
	clk.Advance(time.Minute)

	s := m.Summary(5 * time.Minute)
	assert.Equal(t, 3, s.Samples)
	assert.InDelta(t, 200, s.AvgResponseTimeMs, 0.001)
	assert.Equal(t, 300.0, s.MaxResponseTimeMs)
	assert.Equal(t, 300.0, s.P95ResponseTimeMs)
	assert.Equal(t, 2, s.CacheSamples)
	assert.InDelta(t, 0.6, s.AvgCacheHitRate, 0.001)
	assert.Equal(t, "/b", s.SlowestEndpoint)
	assert.Equal(t, models.CheckPass, s.Status)
	assert.Equal(t, 60.0, s.Memory.UsedPercent)
}

func TestSummaryWindowExcludesOldSamples(t *testing.T) {
	m, clk := newTestMonitor()

	m.Record(models.PerformanceMetric{ResponseTimeMs: 9000})
	clk.Advance(10 * time.Minute)
	m.Record(models.PerformanceMetric{ResponseTimeMs: 2500})

	s := m.Summary(5 * time.Minute)
	assert.Equal(t, 1, s.Samples)
	assert.Equal(t, models.CheckWarn, s.Status)

	assert.Equal(t, models.CheckFail, m.Summary(time.Hour).Status)
}

func TestRetentionPrunesOldSamples(t *testing.T) {
	m, clk := newTestMonitor()

	m.Record(models.PerformanceMetric{ResponseTimeMs: 1})
	clk.Advance(30 * time.Minute)
	m.Record(models.PerformanceMetric{ResponseTimeMs: 2})
	clk.Advance(45 * time.Minute)

	assert.Equal(t, 1, m.Prune())
	remaining := m.Metrics(time.Time{})
	require.Len(t, remaining, 1)
	assert.Equal(t, 2.0, remaining[0].ResponseTimeMs)
}

func TestSinkReceivesSamples(t *testing.T) {
	m, _ := newTestMonitor()
	sink := &countingSink{err: errors.New("influx down")}
	m.SetSink(sink)

	m.Record(models.PerformanceMetric{ResponseTimeMs: 5})
	m.SampleMemory()
	assert.Equal(t, 2, sink.written)
	assert.Len(t, m.Metrics(time.Time{}), 2)
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, models.CheckPass, StatusFor(0))
	assert.Equal(t, models.CheckPass, StatusFor(2000))
	assert.Equal(t, models.CheckWarn, StatusFor(2001))
	assert.Equal(t, models.CheckFail, StatusFor(5001))
}

func TestRuntimeMemory(t *testing.T) {
	usage := RuntimeMemory()
	assert.Greater(t, usage.HeapSysBytes, uint64(0))
	assert.GreaterOrEqual(t, usage.UsedPercent, 0.0)
	assert.LessOrEqual(t, usage.UsedPercent, 100.0)
}
