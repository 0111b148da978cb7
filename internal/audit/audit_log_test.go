package audit

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/davido182/depositdigest/internal/clock"
	"github.com/davido182/depositdigest/internal/events"
	"github.com/davido182/depositdigest/internal/models"
	"github.com/davido182/depositdigest/internal/storage"
)

type recordingAlerts struct {
	mu     sync.Mutex
	events []models.SecurityEvent
}

func (r *recordingAlerts) AlertFromSecurityEvent(ev models.SecurityEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
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

type failingArchive struct{ calls int }

func (f *failingArchive) ArchiveSecurityEvent(models.SecurityEvent) error {
	f.calls++
	return errors.New("archive offline")
}

func (f *failingArchive) ArchiveAuditEntry(models.AuditLogEntry) error {
	f.calls++
	return errors.New("archive offline")
}

func newTestLogger() (*Logger, *clock.Fake) {
	clk := clock.NewFake(time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC))
	return NewLogger(storage.NewMemoryStore(), clk, &clock.SequentialIDs{Prefix: "ev"}, 0), clk
}

func TestLogSecurityEvent_FillsDefaults(t *testing.T) {
	l, clk := newTestLogger()

	ev := l.LogSecurityEvent(models.SecurityEvent{
		UserID:      "u1",
		EventType:   models.EventFailedLogin,
		Description: "Failed login",
	})

	assert.Equal(t, "ev-1", ev.ID)
	assert.Equal(t, clk.Now(), ev.CreatedAt)
	assert.Equal(t, models.SeverityLow, ev.Severity)

	stored := l.SecurityEvents()
	require.Len(t, stored, 1)
	assert.Equal(t, ev.ID, stored[0].ID)
	assert.True(t, ev.CreatedAt.Equal(stored[0].CreatedAt))
}

func TestStreamsAreCappedOldestFirst(t *testing.T) {
	l, clk := newTestLogger()

	for i := 0; i < 150; i++ {
		clk.Advance(time.Second)
		l.LogSecurityEvent(models.SecurityEvent{EventType: models.EventLoginSuccess, Description: fmt.Sprintf("event %d", i)})
		l.LogAudit(models.AuditLogEntry{Action: "update", ResourceType: "tenant", ResourceID: fmt.Sprint(i)})
	}

	securityEvents := l.SecurityEvents()
	require.Len(t, securityEvents, storage.MaxStreamEntries)
	assert.Equal(t, "event 50", securityEvents[0].Description)
	assert.Equal(t, "event 149", securityEvents[99].Description)

	entries := l.AuditEntries()
	require.Len(t, entries, storage.MaxStreamEntries)
	assert.Equal(t, "50", entries[0].ResourceID)
	assert.Equal(t, "149", entries[99].ResourceID)
}

func TestHighSeverityEventsAreMirroredToAlerts(t *testing.T) {
	l, _ := newTestLogger()
	sink := &recordingAlerts{}
	l.SetAlertSink(sink)

	l.LogSecurityEvent(models.SecurityEvent{EventType: models.EventFailedLogin, Severity: models.SeverityMedium})
	l.LogSecurityEvent(models.SecurityEvent{EventType: models.EventFailedLogin, Severity: models.SeverityHigh})
	l.LogSecurityEvent(models.SecurityEvent{EventType: models.EventSystemError, Severity: models.SeverityCritical})

	require.Len(t, sink.events, 2)
	assert.Equal(t, models.SeverityHigh, sink.events[0].Severity)
	assert.Equal(t, models.SeverityCritical, sink.events[1].Severity)
}

func TestPublishesToEventBus(t *testing.T) {
	l, _ := newTestLogger()
	pub := &recordingPublisher{}
	l.SetPublisher(pub)

	l.LogSecurityEvent(models.SecurityEvent{UserID: "u1", EventType: models.EventSuspiciousActivity, Severity: models.SeverityHigh})
	l.LogAudit(models.AuditLogEntry{UserID: "u2", Action: "delete", ResourceType: "property", ResourceID: "p9"})

	require.Len(t, pub.events, 2)
	assert.Equal(t, events.EventSecurity, pub.events[0].Type)
	assert.Equal(t, "high", pub.events[0].Severity)
	assert.Equal(t, events.EventAudit, pub.events[1].Type)
	assert.Equal(t, "property/p9", pub.events[1].SubjectID)
}

func TestArchiveFailureDoesNotLoseEntry(t *testing.T) {
	l, _ := newTestLogger()
	archive := &failingArchive{}
	l.SetArchive(archive)

	l.LogSecurityEvent(models.SecurityEvent{EventType: models.EventLoginSuccess})
	l.LogAudit(models.AuditLogEntry{Action: "create", ResourceType: "lease"})

	assert.Equal(t, 2, archive.calls)
	assert.Len(t, l.SecurityEvents(), 1)
	assert.Len(t, l.AuditEntries(), 1)
}

func TestQueries(t *testing.T) {
	l, clk := newTestLogger()

	l.LogSecurityEvent(models.SecurityEvent{UserID: "u1", EventType: models.EventFailedLogin, Severity: models.SeverityMedium})
	clk.Advance(2 * time.Hour)
	l.LogSecurityEvent(models.SecurityEvent{UserID: "u2", EventType: models.EventSuspiciousActivity, Severity: models.SeverityHigh})
	l.LogSecurityEvent(models.SecurityEvent{UserID: "u1", EventType: models.EventLoginSuccess, Severity: models.SeverityLow})
	l.LogAudit(models.AuditLogEntry{Action: "update", ResourceType: "tenant", ResourceID: "t1"})
	l.LogAudit(models.AuditLogEntry{Action: "update", ResourceType: "tenant", ResourceID: "t2"})

	assert.Len(t, l.SecurityEventsSince(clk.Now().Add(-time.Hour)), 2)
	assert.Len(t, l.GetByUser("u1"), 2)
	assert.Len(t, l.GetByType(models.EventSuspiciousActivity), 1)
	assert.Len(t, l.GetRecent(1), 1)
	assert.Len(t, l.GetRecent(0), 3)
	assert.Len(t, l.GetByResource("tenant", "t1"), 1)
	assert.Len(t, l.GetByResource("tenant", ""), 2)

	stats := l.Stats()
	assert.Equal(t, 3, stats.SecurityEvents)
	assert.Equal(t, 2, stats.AuditEntries)
	assert.Equal(t, 1, stats.BySeverity[models.SeverityHigh])
	require.NotNil(t, stats.LastEventAt)
	assert.Contains(t, l.String(), "security_events")
}
