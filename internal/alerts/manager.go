// Package alerts creates, resolves and escalates monitoring alerts.
package alerts

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/davido182/depositdigest/internal/clock"
	"github.com/davido182/depositdigest/internal/events"
	"github.com/davido182/depositdigest/internal/models"
	"github.com/davido182/depositdigest/internal/monitoring"
	"github.com/davido182/depositdigest/internal/storage"
	"github.com/davido182/depositdigest/pkg/logger"
)

const (
	// DefaultRetention is how long alerts are kept before cleanup removes them
	DefaultRetention = 7 * 24 * time.Hour
	// DefaultMaxAlerts bounds the in-memory alert list between cleanups
	DefaultMaxAlerts = 1000
)

var ErrAlertNotFound = errors.New("alert not found")

// Escalator is invoked synchronously for every critical alert
type Escalator interface {
	Escalate(ctx context.Context, alert models.Alert) error
}

// EscalatorFunc adapts a function to Escalator
type EscalatorFunc func(ctx context.Context, alert models.Alert) error

func (f EscalatorFunc) Escalate(ctx context.Context, alert models.Alert) error {
	return f(ctx, alert)
}

// Manager owns the alert list. Alerts are never merged: every CreateAlert
// call produces a new record.
type Manager struct {
	mu        sync.RWMutex
	alerts    []*models.Alert
	byID      map[string]*models.Alert
	maxAlerts int

	// unresolved critical error reports that already raised an alert
	alertedReports map[string]struct{}

	kv        storage.KVStore
	clock     clock.Clock
	ids       clock.IDGenerator
	escalator Escalator
	publisher events.Publisher
	log       *logger.FieldLogger
}

// Stats summarises the alert list
type Stats struct {
	Total          int                      `json:"total"`
	Active         int                      `json:"active"`
	CriticalActive int                      `json:"critical_active"`
	BySeverity     map[models.Severity]int  `json:"by_severity"`
	ByType         map[models.AlertType]int `json:"by_type"`
}

// NewManager creates an alert manager; escalator may be nil
func NewManager(kv storage.KVStore, clk clock.Clock, ids clock.IDGenerator, escalator Escalator) *Manager {
	return &Manager{
		byID:           make(map[string]*models.Alert),
		maxAlerts:      DefaultMaxAlerts,
		alertedReports: make(map[string]struct{}),
		kv:             kv,
		clock:          clk,
		ids:            ids,
		escalator:      escalator,
		log:            logger.ForComponent("alerts"),
	}
}

// SetPublisher fans alert lifecycle changes out to the event bus
func (m *Manager) SetPublisher(p events.Publisher) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.publisher = p
}

// SetMaxAlerts changes the in-memory cap; n <= 0 restores the default
func (m *Manager) SetMaxAlerts(n int) {
	if n <= 0 {
		n = DefaultMaxAlerts
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.maxAlerts = n
	m.evictLocked()
}

// SetEscalator replaces the escalation hook
func (m *Manager) SetEscalator(e Escalator) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.escalator = e
}

// CreateAlert records a new alert. Critical alerts are persisted to the
// critical-alert stream and escalated before CreateAlert returns.
func (m *Manager) CreateAlert(alertType models.AlertType, severity models.Severity, title, description string, metadata map[string]interface{}) models.Alert {
	if !severity.Valid() {
		severity = models.SeverityMedium
	}

	alert := &models.Alert{
		ID:          m.ids.NewID(),
		Type:        alertType,
		Severity:    severity,
		Title:       title,
		Description: description,
		CreatedAt:   m.clock.Now(),
		Metadata:    metadata,
	}

	m.mu.Lock()
	m.alerts = append(m.alerts, alert)
	m.byID[alert.ID] = alert
	m.evictLocked()
	snapshot := copyAlert(alert)
	escalator, publisher := m.escalator, m.publisher
	m.updateActiveGaugeLocked()
	m.mu.Unlock()

	monitoring.RecordAlertCreated(string(alertType), string(severity))
	m.logAlert(snapshot)
	m.publish(publisher, events.EventAlertCreated, snapshot)

	if severity == models.SeverityCritical {
		if _, err := storage.AppendCapped(m.kv, storage.KeyCriticalAlerts, snapshot, storage.MaxCriticalAlerts); err != nil {
			m.log.Error("Failed to persist critical alert", err, map[string]interface{}{"alert_id": snapshot.ID})
		}
		m.escalate(escalator, snapshot)
	}
	return snapshot
}

// ResolveAlert marks the alert resolved. Resolving an already resolved
// alert is a no-op that returns the alert unchanged.
func (m *Manager) ResolveAlert(id, resolution string) (models.Alert, error) {
	m.mu.Lock()
	alert, ok := m.byID[id]
	if !ok {
		m.mu.Unlock()
		return models.Alert{}, fmt.Errorf("%w: %s", ErrAlertNotFound, id)
	}
	if alert.Resolved {
		snapshot := copyAlert(alert)
		m.mu.Unlock()
		return snapshot, nil
	}

	if resolution == "" {
		resolution = "Resolved manually"
	}
	now := m.clock.Now()
	alert.Resolved = true
	alert.ResolvedAt = &now
	alert.Resolution = resolution
	snapshot := copyAlert(alert)
	publisher := m.publisher
	m.updateActiveGaugeLocked()
	m.mu.Unlock()

	m.log.Info("Alert resolved", map[string]interface{}{
		"alert_id":   id,
		"resolution": resolution,
	})
	m.publish(publisher, events.EventAlertResolved, snapshot)
	return snapshot, nil
}

// Get returns one alert by id
func (m *Manager) Get(id string) (models.Alert, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	alert, ok := m.byID[id]
	if !ok {
		return models.Alert{}, fmt.Errorf("%w: %s", ErrAlertNotFound, id)
	}
	return copyAlert(alert), nil
}

// Alerts returns all alerts, newest first
func (m *Manager) Alerts() []models.Alert {
	return m.filter(func(*models.Alert) bool { return true })
}

// ActiveAlerts returns unresolved alerts, newest first
func (m *Manager) ActiveAlerts() []models.Alert {
	return m.filter(func(a *models.Alert) bool { return !a.Resolved })
}

// AlertsByType returns alerts of one type, newest first
func (m *Manager) AlertsByType(t models.AlertType) []models.Alert {
	return m.filter(func(a *models.Alert) bool { return a.Type == t })
}

// CriticalAlerts returns the persisted critical-alert stream, oldest first
func (m *Manager) CriticalAlerts() []models.Alert {
	items, err := storage.LoadList[models.Alert](m.kv, storage.KeyCriticalAlerts)
	if err != nil {
		m.log.Warn("Failed to read critical alerts", map[string]interface{}{"error": err.Error()})
		return nil
	}
	return items
}

// Stats summarises the alert list
func (m *Manager) Stats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := Stats{
		Total:      len(m.alerts),
		BySeverity: make(map[models.Severity]int),
		ByType:     make(map[models.AlertType]int),
	}
	for _, a := range m.alerts {
		stats.BySeverity[a.Severity]++
		stats.ByType[a.Type]++
		if !a.Resolved {
			stats.Active++
			if a.Severity == models.SeverityCritical {
				stats.CriticalActive++
			}
		}
	}
	return stats
}

// Cleanup removes alerts created more than maxAge ago, from memory and from
// the critical-alert stream. It returns how many in-memory alerts were removed.
func (m *Manager) Cleanup(maxAge time.Duration) int {
	if maxAge <= 0 {
		maxAge = DefaultRetention
	}
	cutoff := m.clock.Now().Add(-maxAge)

	m.mu.Lock()
	kept := m.alerts[:0]
	removed := 0
	for _, a := range m.alerts {
		if a.CreatedAt.Before(cutoff) {
			delete(m.byID, a.ID)
			removed++
			continue
		}
		kept = append(kept, a)
	}
	for i := len(kept); i < len(m.alerts); i++ {
		m.alerts[i] = nil
	}
	m.alerts = kept
	m.updateActiveGaugeLocked()
	m.mu.Unlock()

	critical := m.CriticalAlerts()
	fresh := critical[:0]
	for _, a := range critical {
		if !a.CreatedAt.Before(cutoff) {
			fresh = append(fresh, a)
		}
	}
	if len(fresh) != len(critical) {
		if err := storage.SaveList(m.kv, storage.KeyCriticalAlerts, fresh); err != nil {
			m.log.Error("Failed to prune critical alerts", err, nil)
		}
	}

	if removed > 0 {
		m.log.Info("Old alerts removed", map[string]interface{}{"removed": removed})
	}
	return removed
}

// AlertFromSecurityEvent raises an alert for a high or critical security event
func (m *Manager) AlertFromSecurityEvent(ev models.SecurityEvent) {
	if !ev.Severity.AtLeast(models.SeverityHigh) {
		return
	}

	meta := map[string]interface{}{
		"event_id":   ev.ID,
		"event_type": string(ev.EventType),
	}
	if ev.UserID != "" {
		meta["user_id"] = ev.UserID
	}
	for k, v := range ev.Metadata {
		if _, exists := meta[k]; !exists {
			meta[k] = v
		}
	}

	alertType := models.AlertTypeSecurity
	if ev.EventType == models.EventSystemError {
		alertType = models.AlertTypeError
	}
	m.CreateAlert(alertType, ev.Severity, securityTitle(ev.EventType), ev.Description, meta)
}

// EvaluateHealth raises at most one alert per health cycle: critical when the
// system is unhealthy, medium when degraded. A healthy cycle resolves open
// health alerts.
func (m *Manager) EvaluateHealth(h models.SystemHealth) *models.Alert {
	switch h.Status {
	case models.StatusUnhealthy:
		failed := h.ChecksWithStatus(models.CheckFail)
		alert := m.CreateAlert(models.AlertTypeHealth, models.SeverityCritical,
			"System unhealthy",
			"Failed health checks: "+strings.Join(failed, ", "),
			map[string]interface{}{"failed_checks": failed, "health_timestamp": h.Timestamp})
		return &alert
	case models.StatusDegraded:
		warned := h.ChecksWithStatus(models.CheckWarn)
		alert := m.CreateAlert(models.AlertTypeHealth, models.SeverityMedium,
			"System degraded",
			"Health checks with warnings: "+strings.Join(warned, ", "),
			map[string]interface{}{"warning_checks": warned, "health_timestamp": h.Timestamp})
		return &alert
	default:
		for _, a := range m.ActiveAlerts() {
			if a.Type == models.AlertTypeHealth {
				_, _ = m.ResolveAlert(a.ID, "System recovered")
			}
		}
		return nil
	}
}

func (m *Manager) filter(keep func(*models.Alert) bool) []models.Alert {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []models.Alert
	for _, a := range m.alerts {
		if keep(a) {
			out = append(out, copyAlert(a))
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

func (m *Manager) escalate(escalator Escalator, alert models.Alert) {
	if escalator == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("escalator panicked: %v", r)
			}
		}()
		return escalator.Escalate(ctx, alert)
	}()

	if err != nil {
		monitoring.RecordEscalation("failed")
		m.log.Error("Alert escalation failed", err, map[string]interface{}{"alert_id": alert.ID})
		return
	}
	monitoring.RecordEscalation("sent")
}

func (m *Manager) publish(p events.Publisher, t events.EventType, alert models.Alert) {
	if p == nil {
		return
	}
	p.Publish(events.Event{
		Type:      t,
		Timestamp: m.clock.Now(),
		Source:    "alert_manager",
		SubjectID: alert.ID,
		Severity:  string(alert.Severity),
		Data: map[string]interface{}{
			"type":        string(alert.Type),
			"title":       alert.Title,
			"description": alert.Description,
			"resolved":    alert.Resolved,
			"resolution":  alert.Resolution,
		},
	})
}

func (m *Manager) logAlert(a models.Alert) {
	fields := map[string]interface{}{
		"alert_id": a.ID,
		"type":     a.Type,
		"severity": a.Severity,
		"title":    a.Title,
	}
	switch a.Severity {
	case models.SeverityCritical:
		m.log.Error("ALERT: "+a.Description, nil, fields)
	case models.SeverityHigh:
		m.log.Warn("ALERT: "+a.Description, fields)
	default:
		m.log.Info("ALERT: "+a.Description, fields)
	}
}

func (m *Manager) updateActiveGaugeLocked() {
	active := 0
	for _, a := range m.alerts {
		if !a.Resolved {
			active++
		}
	}
	monitoring.AlertsActive.Set(float64(active))
}

func securityTitle(t models.SecurityEventType) string {
	switch t {
	case models.EventFailedLogin:
		return "Repeated failed logins"
	case models.EventSuspiciousActivity:
		return "Suspicious activity detected"
	case models.EventForcedLogout:
		return "Session forcibly terminated"
	case models.EventSystemError:
		return "Operation failed"
	case models.EventDetectorFailure:
		return "Security detector failure"
	default:
		return "Security event: " + string(t)
	}
}

func copyAlert(a *models.Alert) models.Alert {
	out := *a
	if a.ResolvedAt != nil {
		t := *a.ResolvedAt
		out.ResolvedAt = &t
	}
	if a.Metadata != nil {
		out.Metadata = make(map[string]interface{}, len(a.Metadata))
		for k, v := range a.Metadata {
			out.Metadata[k] = v
		}
	}
	return out
}

// evictLocked trims the list to maxAlerts, dropping the oldest resolved
// alerts first and only then the oldest unresolved ones
func (m *Manager) evictLocked() {
	excess := len(m.alerts) - m.maxAlerts
	if excess <= 0 {
		return
	}

	drop := make(map[*models.Alert]bool, excess)
	for _, a := range m.alerts {
		if len(drop) == excess {
			break
		}
		if a.Resolved {
			drop[a] = true
		}
	}
	for _, a := range m.alerts {
		if len(drop) == excess {
			break
		}
		drop[a] = true
	}

	kept := m.alerts[:0]
	for _, a := range m.alerts {
		if drop[a] {
			delete(m.byID, a.ID)
			continue
		}
		kept = append(kept, a)
	}
	for i := len(kept); i < len(m.alerts); i++ {
		m.alerts[i] = nil
	}
	m.alerts = kept
}
