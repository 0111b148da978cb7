package alerts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/davido182/depositdigest/internal/clock"
	"github.com/davido182/depositdigest/internal/events"
	"github.com/davido182/depositdigest/internal/models"
	"github.com/davido182/depositdigest/internal/performance"
	"github.com/davido182/depositdigest/internal/resilience"
	"github.com/davido182/depositdigest/internal/storage"
)

type recordingEscalator struct {
	mu     sync.Mutex
	alerts []models.Alert
	err    error
}

func (r *recordingEscalator) Escalate(_ context.Context, a models.Alert) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.alerts = append(r.alerts, a)
	return r.err
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

func (r *recordingPublisher) types() []events.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []events.EventType
	for _, e := range r.events {
		out = append(out, e.Type)
	}
	return out
}

var start = time.Date(2024, 8, 1, 12, 0, 0, 0, time.UTC)

func newTestManager() (*Manager, *clock.Fake, *recordingEscalator) {
	clk := clock.NewFake(start)
	esc := &recordingEscalator{}
	return NewManager(storage.NewMemoryStore(), clk, &clock.SequentialIDs{Prefix: "alert"}, esc), clk, esc
}

func TestCreateAlertDoesNotDeduplicate(t *testing.T) {
	m, _, _ := newTestManager()
	meta := map[string]interface{}{"probe": "database"}

	a := m.CreateAlert(models.AlertTypeHealth, models.SeverityHigh, "Database slow", "p95 above 2s", meta)
	b := m.CreateAlert(models.AlertTypeHealth, models.SeverityHigh, "Database slow", "p95 above 2s", meta)

	assert.NotEqual(t, a.ID, b.ID)
	assert.Len(t, m.ActiveAlerts(), 2)
	assert.Equal(t, 2, m.Stats().Total)
}

func TestResolveAlertIsIdempotent(t *testing.T) {
	m, clk, _ := newTestManager()
	pub := &recordingPublisher{}
	m.SetPublisher(pub)

	a := m.CreateAlert(models.AlertTypeSecurity, models.SeverityMedium, "t", "d", nil)

	clk.Advance(time.Minute)
	first, err := m.ResolveAlert(a.ID, "")
	require.NoError(t, err)
	assert.True(t, first.Resolved)
	assert.Equal(t, "Resolved manually", first.Resolution)
	require.NotNil(t, first.ResolvedAt)
	assert.Equal(t, clk.Now(), *first.ResolvedAt)

	clk.Advance(time.Minute)
	second, err := m.ResolveAlert(a.ID, "again")
	require.NoError(t, err)
	assert.Equal(t, first, second)

	assert.Equal(t, []events.EventType{events.EventAlertCreated, events.EventAlertResolved}, pub.types())
	assert.Empty(t, m.ActiveAlerts())
}

func TestResolveUnknownAlert(t *testing.T) {
	m, _, _ := newTestManager()
	_, err := m.ResolveAlert("missing", "")
	assert.ErrorIs(t, err, ErrAlertNotFound)

	_, err = m.Get("missing")
	assert.ErrorIs(t, err, ErrAlertNotFound)
}

func TestCriticalAlertsEscalateAndPersist(t *testing.T) {
	m, _, esc := newTestManager()

	m.CreateAlert(models.AlertTypeError, models.SeverityHigh, "high", "", nil)
	for i := 0; i < 12; i++ {
		m.CreateAlert(models.AlertTypeError, models.SeverityCritical, fmt.Sprintf("critical %d", i), "", nil)
	}

	assert.Len(t, esc.alerts, 12)
	critical := m.CriticalAlerts()
	require.Len(t, critical, storage.MaxCriticalAlerts)
	assert.Equal(t, "critical 2", critical[0].Title)
	assert.Equal(t, 12, m.Stats().CriticalActive)
}

func TestEscalationFailureDoesNotBlockCreation(t *testing.T) {
	m, _, esc := newTestManager()
	esc.err = errors.New("pager offline")

	a := m.CreateAlert(models.AlertTypeHealth, models.SeverityCritical, "down", "", nil)
	got, err := m.Get(a.ID)
	require.NoError(t, err)
	assert.Equal(t, "down", got.Title)

	m.SetEscalator(EscalatorFunc(func(context.Context, models.Alert) error { panic("boom") }))
	assert.NotPanics(t, func() {
		m.CreateAlert(models.AlertTypeHealth, models.SeverityCritical, "down again", "", nil)
	})
}

func TestEvaluateHealth(t *testing.T) {
	m, _, esc := newTestManager()

	unhealthy := models.SystemHealth{
		Status: models.StatusUnhealthy,
		Checks: []models.HealthCheck{
			{Name: "database", Status: models.CheckFail},
			{Name: "memory", Status: models.CheckWarn},
			{Name: "auth_service", Status: models.CheckFail},
			{Name: "performance", Status: models.CheckPass},
		},
	}
	alert := m.EvaluateHealth(unhealthy)
	require.NotNil(t, alert)
	assert.Equal(t, models.SeverityCritical, alert.Severity)
	assert.Equal(t, "Failed health checks: database, auth_service", alert.Description)
	assert.Len(t, esc.alerts, 1)

	degraded := models.SystemHealth{
		Status: models.StatusDegraded,
		Checks: []models.HealthCheck{{Name: "memory", Status: models.CheckWarn}},
	}
	alert = m.EvaluateHealth(degraded)
	require.NotNil(t, alert)
	assert.Equal(t, models.SeverityMedium, alert.Severity)
	assert.Contains(t, alert.Description, "memory")
	assert.Len(t, m.AlertsByType(models.AlertTypeHealth), 2)

	assert.Nil(t, m.EvaluateHealth(models.SystemHealth{Status: models.StatusHealthy}))
	assert.Empty(t, m.ActiveAlerts())
	for _, a := range m.Alerts() {
		assert.Equal(t, "System recovered", a.Resolution)
	}
}

func TestAlertFromSecurityEvent(t *testing.T) {
	m, _, _ := newTestManager()

	m.AlertFromSecurityEvent(models.SecurityEvent{ID: "ev-1", EventType: models.EventFailedLogin, Severity: models.SeverityMedium})
	assert.Empty(t, m.Alerts())

	m.AlertFromSecurityEvent(models.SecurityEvent{
		ID:          "ev-2",
		UserID:      "u1",
		EventType:   models.EventFailedLogin,
		Severity:    models.SeverityHigh,
		Description: "Account locked after 5 failed login attempts",
		Metadata:    map[string]interface{}{"attempt_count": 5},
	})
	m.AlertFromSecurityEvent(models.SecurityEvent{ID: "ev-3", EventType: models.EventSystemError, Severity: models.SeverityHigh})

	all := m.Alerts()
	require.Len(t, all, 2)
	byType := map[models.AlertType]models.Alert{}
	for _, a := range all {
		byType[a.Type] = a
	}
	sec := byType[models.AlertTypeSecurity]
	assert.Equal(t, "Repeated failed logins", sec.Title)
	assert.Equal(t, "ev-2", sec.Metadata["event_id"])
	assert.Equal(t, 5, sec.Metadata["attempt_count"])
	assert.Contains(t, byType, models.AlertTypeError)
}

func TestCleanupRemovesOldAlerts(t *testing.T) {
	m, clk, _ := newTestManager()

	m.CreateAlert(models.AlertTypeHealth, models.SeverityCritical, "old", "", nil)
	clk.Advance(8 * 24 * time.Hour)
	m.CreateAlert(models.AlertTypeHealth, models.SeverityCritical, "new", "", nil)

	assert.Equal(t, 1, m.Cleanup(DefaultRetention))
	all := m.Alerts()
	require.Len(t, all, 1)
	assert.Equal(t, "new", all[0].Title)

	critical := m.CriticalAlerts()
	require.Len(t, critical, 1)
	assert.Equal(t, "new", critical[0].Title)
}

func TestCheckPerformance(t *testing.T) {
	m, _, _ := newTestManager()

	assert.Empty(t, m.CheckPerformance(performance.Summary{Samples: 10, AvgResponseTimeMs: 1500}))

	raised := m.CheckPerformance(performance.Summary{Samples: 10, AvgResponseTimeMs: 2500, CacheSamples: 4, AvgCacheHitRate: 0.3})
	require.Len(t, raised, 2)
	assert.Equal(t, models.SeverityHigh, raised[0].Severity)
	assert.Equal(t, models.SeverityMedium, raised[1].Severity)

	raised = m.CheckPerformance(performance.Summary{Samples: 1, AvgResponseTimeMs: 6000})
	require.Len(t, raised, 1)
	assert.Equal(t, models.SeverityCritical, raised[0].Severity)
}

func TestCheckErrorPatterns(t *testing.T) {
	m, clk, _ := newTestManager()

	var reports []models.ErrorReport
	for i := 0; i < 9; i++ {
		reports = append(reports, models.ErrorReport{
			ID:       fmt.Sprintf("r%d", i),
			Severity: models.SeverityLow,
			Context:  models.ErrorContext{Timestamp: clk.Now().Add(-time.Minute)},
		})
	}
	reports = append(reports, models.ErrorReport{
		ID:       "old",
		Severity: models.SeverityLow,
		Context:  models.ErrorContext{Timestamp: clk.Now().Add(-time.Hour)},
	})
	assert.Empty(t, m.CheckErrorPatterns(reports))

	reports = append(reports, models.ErrorReport{
		ID:       "crit",
		Severity: models.SeverityCritical,
		Message:  "fatal: ledger corrupted",
		Context:  models.ErrorContext{Timestamp: clk.Now()},
	})
	raised := m.CheckErrorPatterns(reports)
	require.Len(t, raised, 2)
	assert.Equal(t, "Error spike", raised[0].Title)
	assert.Equal(t, models.SeverityCritical, raised[1].Severity)

	raised = m.CheckErrorPatterns(reports)
	require.Len(t, raised, 1)
	assert.Equal(t, "Error spike", raised[0].Title)
}

func TestCheckErrorPatternsForgetsEvictedReports(t *testing.T) {
	m, clk, _ := newTestManager()
	crit := models.ErrorReport{
		ID:       "crit",
		Severity: models.SeverityCritical,
		Message:  "fatal: ledger corrupted",
		Context:  models.ErrorContext{Timestamp: clk.Now()},
	}

	require.Len(t, m.CheckErrorPatterns([]models.ErrorReport{crit}), 1)
	assert.Contains(t, m.alertedReports, "crit")

	assert.Empty(t, m.CheckErrorPatterns(nil))
	assert.Empty(t, m.alertedReports)
}

func TestAlertListIsCapped(t *testing.T) {
	m, _, _ := newTestManager()
	m.SetMaxAlerts(5)

	var ids []string
	for i := 0; i < 5; i++ {
		ids = append(ids, m.CreateAlert(models.AlertTypeSecurity, models.SeverityHigh, fmt.Sprintf("alert %d", i), "", nil).ID)
	}
	_, err := m.ResolveAlert(ids[3], "handled")
	require.NoError(t, err)

	m.CreateAlert(models.AlertTypeSecurity, models.SeverityHigh, "alert 5", "", nil)
	all := m.Alerts()
	require.Len(t, all, 5)
	_, err = m.Get(ids[3])
	assert.ErrorIs(t, err, ErrAlertNotFound, "resolved alerts are evicted first")
	_, err = m.Get(ids[0])
	assert.NoError(t, err)

	m.CreateAlert(models.AlertTypeSecurity, models.SeverityHigh, "alert 6", "", nil)
	require.Len(t, m.Alerts(), 5)
	_, err = m.Get(ids[0])
	assert.ErrorIs(t, err, ErrAlertNotFound, "then the oldest unresolved")
	assert.Equal(t, 5, m.Stats().Active)
}

func TestCheckResources(t *testing.T) {
	m, _, _ := newTestManager()

	assert.Nil(t, m.CheckResources(performance.MemoryUsage{UsedPercent: 50}))
	assert.Equal(t, models.SeverityMedium, m.CheckResources(performance.MemoryUsage{UsedPercent: 75}).Severity)
	assert.Equal(t, models.SeverityCritical, m.CheckResources(performance.MemoryUsage{UsedPercent: 95}).Severity)
}

func TestWebhookEscalator(t *testing.T) {
	var calls int32
	var got models.EscalationPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	clk := clock.NewFake(start)
	handler := resilience.NewErrorHandler(resilience.HandlerConfig{}, clk, &clock.SequentialIDs{Prefix: "err"}, nil)
	pub := &recordingPublisher{}
	esc := NewWebhookEscalator(srv.URL, handler, pub)

	m := NewManager(storage.NewMemoryStore(), clk, &clock.SequentialIDs{Prefix: "alert"}, esc)
	alert := m.CreateAlert(models.AlertTypeHealth, models.SeverityCritical, "System unhealthy", "Failed health checks: database", nil)

	assert.EqualValues(t, 2, atomic.LoadInt32(&calls))
	assert.Equal(t, []time.Duration{time.Second}, clk.Sleeps())
	assert.Equal(t, alert.ID, got.Alert.ID)
	require.Len(t, got.Embeds, 1)
	assert.Equal(t, "🚨 System unhealthy", got.Embeds[0].Title)
	assert.Contains(t, pub.types(), events.EventAlertEscalated)
}

func TestWebhookEscalatorGivesUp(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	clk := clock.NewFake(start)
	handler := resilience.NewErrorHandler(resilience.HandlerConfig{}, clk, &clock.SequentialIDs{Prefix: "err"}, nil)
	esc := NewWebhookEscalator(srv.URL, handler, nil)

	err := esc.Escalate(context.Background(), models.Alert{ID: "a1", Severity: models.SeverityCritical})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 500")
	assert.EqualValues(t, 2, atomic.LoadInt32(&calls))
	assert.Len(t, handler.Reports(), 1)
}
