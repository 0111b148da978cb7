package audit

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/davido182/depositdigest/internal/clock"
	"github.com/davido182/depositdigest/internal/events"
	"github.com/davido182/depositdigest/internal/models"
	"github.com/davido182/depositdigest/internal/monitoring"
	"github.com/davido182/depositdigest/internal/storage"
	"github.com/davido182/depositdigest/pkg/logger"
)

// AlertSink receives high and critical security events
type AlertSink interface {
	AlertFromSecurityEvent(ev models.SecurityEvent)
}

// Archive durably mirrors entries beyond the capped streams
type Archive interface {
	ArchiveSecurityEvent(ev models.SecurityEvent) error
	ArchiveAuditEntry(entry models.AuditLogEntry) error
}

// Logger appends security events and audit entries to two capped streams
// in the key-value store. Every call produces exactly one entry.
type Logger struct {
	mu         sync.Mutex
	kv         storage.KVStore
	maxEntries int

	clock     clock.Clock
	ids       clock.IDGenerator
	archive   Archive
	publisher events.Publisher
	alerts    AlertSink
	log       *logger.FieldLogger
}

// Stats summarises both streams
type Stats struct {
	SecurityEvents int                              `json:"security_events"`
	AuditEntries   int                              `json:"audit_entries"`
	MaxEntries     int                              `json:"max_entries"`
	BySeverity     map[models.Severity]int          `json:"by_severity"`
	ByType         map[models.SecurityEventType]int `json:"by_type"`
	LastEventAt    *time.Time                       `json:"last_event_at,omitempty"`
}

// NewLogger creates an audit logger; maxEntries <= 0 uses the default stream size
func NewLogger(kv storage.KVStore, clk clock.Clock, ids clock.IDGenerator, maxEntries int) *Logger {
	if maxEntries <= 0 {
		maxEntries = storage.MaxStreamEntries
	}

	return &Logger{
		kv:         kv,
		maxEntries: maxEntries,
		clock:      clk,
		ids:        ids,
		log:        logger.ForComponent("audit"),
	}
}

// SetArchive enables the durable mirror
func (a *Logger) SetArchive(archive Archive) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.archive = archive
}

// SetPublisher fans written entries out to the event bus
func (a *Logger) SetPublisher(p events.Publisher) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.publisher = p
}

// SetAlertSink mirrors high and critical security events into alerts
func (a *Logger) SetAlertSink(sink AlertSink) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.alerts = sink
}

// LogSecurityEvent appends ev to the security stream, filling in id and
// timestamp when absent, and returns the stored event
func (a *Logger) LogSecurityEvent(ev models.SecurityEvent) models.SecurityEvent {
	if ev.ID == "" {
		ev.ID = a.ids.NewID()
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = a.clock.Now()
	}
	if !ev.Severity.Valid() {
		ev.Severity = models.SeverityLow
	}

	a.mu.Lock()
	_, err := storage.AppendCapped(a.kv, storage.KeySecurityEvents, ev, a.maxEntries)
	archive, publisher, alerts := a.archive, a.publisher, a.alerts
	a.mu.Unlock()

	if err != nil {
		a.log.Error("Failed to append security event", err, map[string]interface{}{
			"event_id":   ev.ID,
			"event_type": ev.EventType,
		})
	}

	if archive != nil {
		if err := archive.ArchiveSecurityEvent(ev); err != nil {
			a.log.Warn("Failed to archive security event", map[string]interface{}{
				"event_id": ev.ID,
				"error":    err.Error(),
			})
		}
	}

	monitoring.RecordSecurityEvent(string(ev.EventType), string(ev.Severity))
	a.logEvent(ev)

	if publisher != nil {
		publisher.Publish(events.Event{
			ID:        ev.ID,
			Type:      events.EventSecurity,
			Timestamp: ev.CreatedAt,
			Source:    "audit_logger",
			SubjectID: string(ev.EventType),
			UserID:    ev.UserID,
			Severity:  string(ev.Severity),
			Data: map[string]interface{}{
				"description": ev.Description,
				"metadata":    ev.Metadata,
			},
		})
	}

	if alerts != nil && ev.Severity.AtLeast(models.SeverityHigh) {
		a.mirror(alerts, ev)
	}
	return ev
}

// LogAudit appends entry to the audit stream and returns the stored entry
func (a *Logger) LogAudit(entry models.AuditLogEntry) models.AuditLogEntry {
	if entry.ID == "" {
		entry.ID = a.ids.NewID()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = a.clock.Now()
	}

	a.mu.Lock()
	_, err := storage.AppendCapped(a.kv, storage.KeyAuditLogs, entry, a.maxEntries)
	archive, publisher := a.archive, a.publisher
	a.mu.Unlock()

	if err != nil {
		a.log.Error("Failed to append audit entry", err, map[string]interface{}{
			"entry_id": entry.ID,
			"action":   entry.Action,
		})
	}

	if archive != nil {
		if err := archive.ArchiveAuditEntry(entry); err != nil {
			a.log.Warn("Failed to archive audit entry", map[string]interface{}{
				"entry_id": entry.ID,
				"error":    err.Error(),
			})
		}
	}

	fields := map[string]interface{}{
		"action":        entry.Action,
		"resource_type": entry.ResourceType,
		"resource_id":   entry.ResourceID,
		"user_id":       entry.UserID,
	}
	if len(entry.NewValues) > 0 {
		data, _ := json.Marshal(entry.NewValues)
		fields["new_values"] = string(data)
	}
	a.log.Info("AUDIT: "+entry.Action, fields)

	if publisher != nil {
		publisher.Publish(events.Event{
			ID:        entry.ID,
			Type:      events.EventAudit,
			Timestamp: entry.CreatedAt,
			Source:    "audit_logger",
			SubjectID: entry.ResourceType + "/" + entry.ResourceID,
			UserID:    entry.UserID,
			Data: map[string]interface{}{
				"action":     entry.Action,
				"old_values": entry.OldValues,
				"new_values": entry.NewValues,
			},
		})
	}
	return entry
}

// SecurityEvents returns the security stream, oldest first
func (a *Logger) SecurityEvents() []models.SecurityEvent {
	a.mu.Lock()
	defer a.mu.Unlock()

	items, err := storage.LoadList[models.SecurityEvent](a.kv, storage.KeySecurityEvents)
	if err != nil {
		a.log.Warn("Failed to read security events", map[string]interface{}{"error": err.Error()})
		return nil
	}
	return items
}

// AuditEntries returns the audit stream, oldest first
func (a *Logger) AuditEntries() []models.AuditLogEntry {
	a.mu.Lock()
	defer a.mu.Unlock()

	items, err := storage.LoadList[models.AuditLogEntry](a.kv, storage.KeyAuditLogs)
	if err != nil {
		a.log.Warn("Failed to read audit entries", map[string]interface{}{"error": err.Error()})
		return nil
	}
	return items
}

// SecurityEventsSince returns events created at or after since
func (a *Logger) SecurityEventsSince(since time.Time) []models.SecurityEvent {
	var result []models.SecurityEvent
	for _, ev := range a.SecurityEvents() {
		if !ev.CreatedAt.Before(since) {
			result = append(result, ev)
		}
	}
	return result
}

// GetRecent returns the n most recent security events
func (a *Logger) GetRecent(n int) []models.SecurityEvent {
	all := a.SecurityEvents()
	if n <= 0 || n > len(all) {
		n = len(all)
	}
	return all[len(all)-n:]
}

// GetByUser returns all security events for a user
func (a *Logger) GetByUser(userID string) []models.SecurityEvent {
	var result []models.SecurityEvent
	for _, ev := range a.SecurityEvents() {
		if ev.UserID == userID {
			result = append(result, ev)
		}
	}
	return result
}

// GetByType returns all security events of one type
func (a *Logger) GetByType(t models.SecurityEventType) []models.SecurityEvent {
	var result []models.SecurityEvent
	for _, ev := range a.SecurityEvents() {
		if ev.EventType == t {
			result = append(result, ev)
		}
	}
	return result
}

// GetByResource returns audit entries touching one resource
func (a *Logger) GetByResource(resourceType, resourceID string) []models.AuditLogEntry {
	var result []models.AuditLogEntry
	for _, entry := range a.AuditEntries() {
		if entry.ResourceType == resourceType && (resourceID == "" || entry.ResourceID == resourceID) {
			result = append(result, entry)
		}
	}
	return result
}

// Stats returns audit statistics
func (a *Logger) Stats() Stats {
	securityEvents := a.SecurityEvents()

	stats := Stats{
		SecurityEvents: len(securityEvents),
		AuditEntries:   len(a.AuditEntries()),
		MaxEntries:     a.maxEntries,
		BySeverity:     make(map[models.Severity]int),
		ByType:         make(map[models.SecurityEventType]int),
	}
	for _, ev := range securityEvents {
		stats.BySeverity[ev.Severity]++
		stats.ByType[ev.EventType]++
	}
	if n := len(securityEvents); n > 0 {
		last := securityEvents[n-1].CreatedAt
		stats.LastEventAt = &last
	}
	return stats
}

// String returns a human-readable audit log summary
func (a *Logger) String() string {
	statsJSON, _ := json.MarshalIndent(a.Stats(), "", "  ")
	return fmt.Sprintf("Audit Log Stats:\n%s", string(statsJSON))
}

func (a *Logger) logEvent(ev models.SecurityEvent) {
	fields := map[string]interface{}{
		"event_id":   ev.ID,
		"event_type": ev.EventType,
		"severity":   ev.Severity,
		"user_id":    ev.UserID,
	}

	switch ev.Severity {
	case models.SeverityCritical, models.SeverityHigh:
		a.log.Warn("SECURITY: "+ev.Description, fields)
	case models.SeverityMedium:
		a.log.Info("SECURITY: "+ev.Description, fields)
	default:
		a.log.Debug("SECURITY: "+ev.Description, fields)
	}
}

func (a *Logger) mirror(sink AlertSink, ev models.SecurityEvent) {
	defer func() {
		if r := recover(); r != nil {
			a.log.Error("Alert mirror panicked", nil, map[string]interface{}{
				"event_id": ev.ID,
				"panic":    r,
			})
		}
	}()
	sink.AlertFromSecurityEvent(ev)
}
