package health

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/davido182/depositdigest/internal/clock"
	"github.com/davido182/depositdigest/internal/events"
	"github.com/davido182/depositdigest/internal/models"
	"github.com/davido182/depositdigest/internal/performance"
	"github.com/davido182/depositdigest/internal/storage"
)

var start = time.Date(2024, 8, 1, 12, 0, 0, 0, time.UTC)

func fixed(name string, status models.CheckStatus) Probe {
	return NewProbe(name, func(context.Context) (Result, error) {
		return Result{Status: status}, nil
	})
}

type recordingEvaluator struct {
	mu     sync.Mutex
	cycles []models.SystemHealth
}

func (r *recordingEvaluator) EvaluateHealth(h models.SystemHealth) *models.Alert {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cycles = append(r.cycles, h)
	return nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recordingPublisher) Publish(e events.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func TestFoldMonotonicity(t *testing.T) {
	var checks []models.HealthCheck
	for i := 0; i < 20; i++ {
		checks = append(checks, models.HealthCheck{Name: fmt.Sprintf("p%d", i), Status: models.CheckPass})
	}
	assert.Equal(t, models.StatusHealthy, Fold(checks))
	assert.Equal(t, models.StatusHealthy, Fold(nil))

	withWarn := append(append([]models.HealthCheck(nil), checks...), models.HealthCheck{Status: models.CheckWarn})
	assert.Equal(t, models.StatusDegraded, Fold(withWarn))

	withFail := append(append([]models.HealthCheck(nil), withWarn...), models.HealthCheck{Status: models.CheckFail})
	assert.Equal(t, models.StatusUnhealthy, Fold(withFail))

	failFirst := append([]models.HealthCheck{{Status: models.CheckFail}}, checks...)
	assert.Equal(t, models.StatusUnhealthy, Fold(failFirst))
}

func TestPerformHealthCheckContainsProbeFailures(t *testing.T) {
	clk := clock.NewFake(start)
	agg := NewAggregator(storage.NewMemoryStore(), clk,
		fixed("database", models.CheckPass),
		NewProbe("auth_service", func(context.Context) (Result, error) {
			return Result{}, errors.New("connection refused")
		}),
		NewProbe("exploding", func(context.Context) (Result, error) {
			panic("nil map")
		}),
		fixed("memory", models.CheckWarn),
	)
	eval := &recordingEvaluator{}
	pub := &recordingPublisher{}
	agg.SetAlertEvaluator(eval)
	agg.SetPublisher(pub)

	clk.Advance(time.Minute)
	h := agg.PerformHealthCheck(context.Background())

	assert.Equal(t, models.StatusUnhealthy, h.Status)
	require.Len(t, h.Checks, 4)
	assert.Equal(t, "database", h.Checks[0].Name)
	assert.Equal(t, models.CheckFail, h.Checks[1].Status)
	assert.Equal(t, "connection refused", h.Checks[1].Message)
	assert.Equal(t, models.CheckFail, h.Checks[2].Status)
	assert.Contains(t, h.Checks[2].Message, "nil map")
	assert.Equal(t, time.Minute, h.Uptime)
	assert.Equal(t, []string{"auth_service", "exploding"}, h.ChecksWithStatus(models.CheckFail))

	require.Len(t, eval.cycles, 1)
	require.Len(t, pub.events, 1)
	assert.Equal(t, events.EventHealthChecked, pub.events[0].Type)

	latest, ok := agg.Latest()
	require.True(t, ok)
	assert.Equal(t, h.Status, latest.Status)
}

func TestProbeTimeout(t *testing.T) {
	agg := NewAggregator(storage.NewMemoryStore(), clock.NewFake(start),
		NewProbe("slow", func(ctx context.Context) (Result, error) {
			<-ctx.Done()
			return Result{}, ctx.Err()
		}))
	agg.SetProbeTimeout(10 * time.Millisecond)

	h := agg.PerformHealthCheck(context.Background())
	require.Len(t, h.Checks, 1)
	assert.Equal(t, models.CheckFail, h.Checks[0].Status)
	assert.Equal(t, context.DeadlineExceeded.Error(), h.Checks[0].Message)
}

func TestHistoryIsCapped(t *testing.T) {
	clk := clock.NewFake(start)
	agg := NewAggregator(storage.NewMemoryStore(), clk, fixed("database", models.CheckPass))

	_, ok := agg.Latest()
	assert.False(t, ok)

	for i := 0; i < 30; i++ {
		clk.Advance(time.Minute)
		agg.PerformHealthCheck(context.Background())
	}

	history := agg.History()
	require.Len(t, history, storage.MaxHealthHistory)
	assert.True(t, history[0].Timestamp.Equal(start.Add(7*time.Minute)))
	assert.True(t, history[23].Timestamp.Equal(start.Add(30*time.Minute)))
}

func TestCleanupDropsOldSnapshots(t *testing.T) {
	clk := clock.NewFake(start)
	agg := NewAggregator(storage.NewMemoryStore(), clk, fixed("database", models.CheckPass))

	agg.PerformHealthCheck(context.Background())
	agg.PerformHealthCheck(context.Background())
	clk.Advance(8 * 24 * time.Hour)
	agg.PerformHealthCheck(context.Background())

	assert.Equal(t, 2, agg.Cleanup(DefaultRetention))
	assert.Len(t, agg.History(), 1)
	assert.Equal(t, 0, agg.Cleanup(DefaultRetention))
}

func TestMemoryProbe(t *testing.T) {
	cases := []struct {
		used float64
		want models.CheckStatus
	}{
		{50, models.CheckPass},
		{70, models.CheckPass},
		{70.5, models.CheckWarn},
		{90, models.CheckWarn},
		{91, models.CheckFail},
	}
	for _, tc := range cases {
		p := MemoryProbe(func() performance.MemoryUsage { return performance.MemoryUsage{UsedPercent: tc.used} })
		res, err := p.Check(context.Background())
		require.NoError(t, err)
		assert.Equal(t, tc.want, res.Status, "used=%v", tc.used)
	}
}

type reportList []models.ErrorReport

func (r reportList) ReportsSince(since time.Time) []models.ErrorReport {
	var out []models.ErrorReport
	for _, rep := range r {
		if !rep.Context.Timestamp.Before(since) {
			out = append(out, rep)
		}
	}
	return out
}

func reports(n int, sev models.Severity, at time.Time) reportList {
	out := make(reportList, n)
	for i := range out {
		out[i] = models.ErrorReport{Severity: sev, Context: models.ErrorContext{Timestamp: at}}
	}
	return out
}

func TestErrorRateProbe(t *testing.T) {
	clk := clock.NewFake(start)
	recent := start.Add(-10 * time.Minute)
	old := start.Add(-2 * time.Hour)

	cases := []struct {
		name string
		src  reportList
		want models.CheckStatus
	}{
		{"empty", nil, models.CheckPass},
		{"five high", reports(5, models.SeverityHigh, recent), models.CheckPass},
		{"six high", reports(6, models.SeverityHigh, recent), models.CheckWarn},
		{"twenty one low", reports(21, models.SeverityLow, recent), models.CheckWarn},
		{"one critical", reports(1, models.SeverityCritical, recent), models.CheckFail},
		{"old critical", reports(1, models.SeverityCritical, old), models.CheckPass},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res, err := ErrorRateProbe(tc.src, clk).Check(context.Background())
			require.NoError(t, err)
			assert.Equal(t, tc.want, res.Status)
		})
	}
}

type eventList []models.SecurityEvent

func (e eventList) SecurityEventsSince(since time.Time) []models.SecurityEvent {
	var out []models.SecurityEvent
	for _, ev := range e {
		if !ev.CreatedAt.Before(since) {
			out = append(out, ev)
		}
	}
	return out
}

func TestSecurityProbe(t *testing.T) {
	clk := clock.NewFake(start)
	ev := func(sev models.Severity) models.SecurityEvent {
		return models.SecurityEvent{Severity: sev, CreatedAt: start.Add(-time.Minute)}
	}

	cases := []struct {
		name string
		src  eventList
		want models.CheckStatus
	}{
		{"none", nil, models.CheckPass},
		{"medium only", eventList{ev(models.SeverityMedium), ev(models.SeverityLow)}, models.CheckPass},
		{"one high", eventList{ev(models.SeverityHigh)}, models.CheckWarn},
		{"three severe", eventList{ev(models.SeverityHigh), ev(models.SeverityCritical), ev(models.SeverityHigh)}, models.CheckWarn},
		{"four severe", eventList{ev(models.SeverityHigh), ev(models.SeverityHigh), ev(models.SeverityHigh), ev(models.SeverityCritical)}, models.CheckFail},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res, err := SecurityProbe(tc.src, clk).Check(context.Background())
			require.NoError(t, err)
			assert.Equal(t, tc.want, res.Status)
		})
	}
}

func TestPerformanceProbe(t *testing.T) {
	clk := clock.NewFake(start)
	perf := performance.NewMonitor(clk, time.Hour)

	res, err := PerformanceProbe(perf, 5*time.Minute).Check(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.CheckPass, res.Status)

	perf.Record(models.PerformanceMetric{ResponseTimeMs: 6000, Endpoint: "/api/tenants", Timestamp: clk.Now()})
	res, err = PerformanceProbe(perf, 5*time.Minute).Check(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.CheckFail, res.Status)
}

func TestHTTPProbe(t *testing.T) {
	ok := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer ok.Close()
	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer down.Close()

	res, err := HTTPProbe("auth_service", ok.URL, nil).Check(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.CheckPass, res.Status)

	_, err = HTTPProbe("auth_service", down.URL, nil).Check(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 503")
}
