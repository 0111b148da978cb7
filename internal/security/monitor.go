// Package security tracks login attempts and action patterns inside sliding
// time windows, validates password policy and ages sessions.
package security

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/davido182/depositdigest/internal/clock"
	"github.com/davido182/depositdigest/internal/models"
	"github.com/davido182/depositdigest/internal/monitoring"
	"github.com/davido182/depositdigest/pkg/config"
	"github.com/davido182/depositdigest/pkg/logger"
)

const (
	DefaultMaxAttempts   = 5
	DefaultLockoutWindow = 15 * time.Minute
)

// AuditSink receives the security events the monitor emits
type AuditSink interface {
	LogSecurityEvent(event models.SecurityEvent) models.SecurityEvent
}

// Pattern is one suspicious-activity rule: Threshold calls inside Window.
// Actions lists action substrings the pattern applies to; empty means all.
type Pattern struct {
	Name      string
	Threshold int
	Window    time.Duration
	Actions   []string
}

func (p Pattern) applies(action string) bool {
	if len(p.Actions) == 0 {
		return true
	}
	action = strings.ToLower(action)
	for _, a := range p.Actions {
		if strings.Contains(action, strings.ToLower(a)) {
			return true
		}
	}
	return false
}

// DefaultPatterns returns the built-in detection rules
func DefaultPatterns() []Pattern {
	return []Pattern{
		{Name: "rapid_requests", Threshold: 10, Window: time.Minute},
		{Name: "failed_operations", Threshold: 5, Window: 5 * time.Minute, Actions: []string{"fail", "error"}},
		{Name: "unusual_access", Threshold: 3, Window: time.Hour, Actions: []string{"admin", "export", "delete", "access"}},
	}
}

// PatternsFromConfig converts patterns loaded from the YAML pattern file
func PatternsFromConfig(cfg []config.PatternConfig) []Pattern {
	patterns := make([]Pattern, 0, len(cfg))
	for _, p := range cfg {
		patterns = append(patterns, Pattern{
			Name:      p.Name,
			Threshold: p.Threshold,
			Window:    p.Window,
			Actions:   p.Actions,
		})
	}
	return patterns
}

// MonitorConfig tunes lockout and pattern detection
type MonitorConfig struct {
	MaxAttempts   int
	LockoutWindow time.Duration
	Patterns      []Pattern
}

type loginCounter struct {
	count         int
	lastAttemptAt time.Time
}

// Monitor owns the login-attempt counters and pattern windows
type Monitor struct {
	mu       sync.Mutex
	attempts map[string]*loginCounter
	windows  map[string][]time.Time

	maxAttempts   int
	lockoutWindow time.Duration
	patterns      []Pattern

	clock clock.Clock
	audit AuditSink
	log   *logger.FieldLogger
}

// MonitorStats is a point-in-time view of the monitor's state
type MonitorStats struct {
	TrackedIdentifiers int `json:"tracked_identifiers"`
	LockedIdentifiers  int `json:"locked_identifiers"`
	ActiveWindows      int `json:"active_windows"`
}

// NewMonitor creates a security monitor; audit may be nil
func NewMonitor(cfg MonitorConfig, clk clock.Clock, audit AuditSink) *Monitor {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.LockoutWindow <= 0 {
		cfg.LockoutWindow = DefaultLockoutWindow
	}
	if cfg.Patterns == nil {
		cfg.Patterns = DefaultPatterns()
	}

	return &Monitor{
		attempts:      make(map[string]*loginCounter),
		windows:       make(map[string][]time.Time),
		maxAttempts:   cfg.MaxAttempts,
		lockoutWindow: cfg.LockoutWindow,
		patterns:      cfg.Patterns,
		clock:         clk,
		audit:         audit,
		log:           logger.ForComponent("security_monitor"),
	}
}

// NormalizeIdentifier lower-cases and trims a login identifier
func NormalizeIdentifier(identifier string) string {
	return strings.ToLower(strings.TrimSpace(identifier))
}

// CheckLoginAttempts reports whether identifier may attempt a login. It is
// false only while the identifier is locked and inside the lockout window.
func (m *Monitor) CheckLoginAttempts(identifier string) bool {
	key := NormalizeIdentifier(identifier)

	m.mu.Lock()
	defer m.mu.Unlock()

	c := m.counterLocked(key, m.clock.Now())
	return c == nil || c.count < m.maxAttempts
}

// RecordFailedLogin counts a failed login for identifier. Reaching the limit
// emits a high-severity event, earlier failures a medium one.
func (m *Monitor) RecordFailedLogin(identifier, userID string) {
	key := NormalizeIdentifier(identifier)
	now := m.clock.Now()

	m.mu.Lock()
	c := m.counterLocked(key, now)
	if c == nil {
		c = &loginCounter{}
		m.attempts[key] = c
	}
	c.count++
	c.lastAttemptAt = now
	count := c.count
	m.mu.Unlock()

	monitoring.FailedLoginsTotal.Inc()

	severity := models.SeverityMedium
	description := fmt.Sprintf("Failed login attempt %d of %d", count, m.maxAttempts)
	if count >= m.maxAttempts {
		severity = models.SeverityHigh
		description = fmt.Sprintf("Account locked after %d failed login attempts", count)
		if count == m.maxAttempts {
			monitoring.LockoutsTotal.Inc()
		}
		m.log.Warn("Login identifier locked", map[string]interface{}{
			"identifier":    key,
			"attempt_count": count,
			"lockout":       m.lockoutWindow.String(),
		})
	}

	m.emit(models.SecurityEvent{
		UserID:      userID,
		EventType:   models.EventFailedLogin,
		Description: description,
		Severity:    severity,
		Metadata: map[string]interface{}{
			"identifier":    key,
			"attempt_count": count,
			"max_attempts":  m.maxAttempts,
		},
	})
}

// RecordSuccessfulLogin clears the counter for identifier
func (m *Monitor) RecordSuccessfulLogin(userID, identifier string) {
	key := NormalizeIdentifier(identifier)

	m.mu.Lock()
	delete(m.attempts, key)
	m.mu.Unlock()

	m.emit(models.SecurityEvent{
		UserID:      userID,
		EventType:   models.EventLoginSuccess,
		Description: "Successful login",
		Severity:    models.SeverityLow,
		Metadata:    map[string]interface{}{"identifier": key},
	})
}

// AttemptCount returns the live failure count for identifier
func (m *Monitor) AttemptCount(identifier string) int {
	key := NormalizeIdentifier(identifier)

	m.mu.Lock()
	defer m.mu.Unlock()

	if c := m.counterLocked(key, m.clock.Now()); c != nil {
		return c.count
	}
	return 0
}

// DetectSuspiciousActivity records action for userID in every applicable
// pattern window and emits a high-severity event for each pattern whose
// pruned count reaches its threshold. It returns the names of the patterns
// that fired. A panic inside detection is logged and reported, never raised.
func (m *Monitor) DetectSuspiciousActivity(userID, action string, metadata map[string]interface{}) (fired []string) {
	defer func() {
		if r := recover(); r != nil {
			fired = nil
			m.log.Error("Suspicious activity detection failed", nil, map[string]interface{}{
				"user_id": userID,
				"action":  action,
				"panic":   r,
			})
			m.emit(models.SecurityEvent{
				UserID:      userID,
				EventType:   models.EventDetectorFailure,
				Description: fmt.Sprintf("Suspicious activity detection failed: %v", r),
				Severity:    models.SeverityHigh,
				Metadata:    map[string]interface{}{"action": action},
			})
		}
	}()

	if userID == "" {
		userID = "anonymous"
	}
	now := m.clock.Now()

	for _, h := range m.recordAction(userID, action, now) {
		fired = append(fired, h.pattern.Name)
		monitoring.SuspiciousActivityTotal.WithLabelValues(h.pattern.Name).Inc()

		meta := make(map[string]interface{}, len(metadata)+4)
		for k, v := range metadata {
			meta[k] = v
		}
		meta["pattern"] = h.pattern.Name
		meta["action"] = action
		meta["count"] = h.count
		meta["window_seconds"] = int(h.pattern.Window.Seconds())

		m.emit(models.SecurityEvent{
			UserID:      userID,
			EventType:   models.EventSuspiciousActivity,
			Description: fmt.Sprintf("Suspicious activity detected: %s (%d %s in %s)", h.pattern.Name, h.count, action, h.pattern.Window),
			Severity:    models.SeverityHigh,
			Metadata:    meta,
		})
	}
	return fired
}

type patternHit struct {
	pattern Pattern
	count   int
}

func (m *Monitor) recordAction(userID, action string, now time.Time) []patternHit {
	m.mu.Lock()
	defer m.mu.Unlock()

	var hits []patternHit
	for _, p := range m.patterns {
		if !p.applies(action) {
			continue
		}
		key := windowKey(userID, action, p.Name)
		window := pruneWindow(append(m.windows[key], now), now, p.Window)
		m.windows[key] = window
		if len(window) >= p.Threshold {
			hits = append(hits, patternHit{pattern: p, count: len(window)})
		}
	}
	return hits
}

// Cleanup drops expired login counters and pattern windows with no live
// entries. It returns how many of each were removed.
func (m *Monitor) Cleanup() (counters, windows int) {
	now := m.clock.Now()

	m.mu.Lock()
	defer m.mu.Unlock()

	for key, c := range m.attempts {
		if now.Sub(c.lastAttemptAt) > m.lockoutWindow {
			delete(m.attempts, key)
			counters++
		}
	}

	longest := m.longestWindow()
	for key, window := range m.windows {
		pattern, ok := m.patternFor(key)
		span := longest
		if ok {
			span = pattern.Window
		}
		window = pruneWindow(window, now, span)
		if len(window) == 0 {
			delete(m.windows, key)
			windows++
			continue
		}
		m.windows[key] = window
	}
	return counters, windows
}

// Stats returns counts of tracked identifiers and windows
func (m *Monitor) Stats() MonitorStats {
	now := m.clock.Now()

	m.mu.Lock()
	defer m.mu.Unlock()

	stats := MonitorStats{ActiveWindows: len(m.windows)}
	for _, c := range m.attempts {
		if now.Sub(c.lastAttemptAt) > m.lockoutWindow {
			continue
		}
		stats.TrackedIdentifiers++
		if c.count >= m.maxAttempts {
			stats.LockedIdentifiers++
		}
	}
	return stats
}

// LockedIdentifiers returns the identifiers currently locked out, sorted
func (m *Monitor) LockedIdentifiers() []string {
	now := m.clock.Now()

	m.mu.Lock()
	defer m.mu.Unlock()

	var locked []string
	for key, c := range m.attempts {
		if now.Sub(c.lastAttemptAt) <= m.lockoutWindow && c.count >= m.maxAttempts {
			locked = append(locked, key)
		}
	}
	sort.Strings(locked)
	return locked
}

// counterLocked returns the live counter for key, dropping it when the
// lockout window has elapsed since the last attempt. Caller holds m.mu.
func (m *Monitor) counterLocked(key string, now time.Time) *loginCounter {
	c, ok := m.attempts[key]
	if !ok {
		return nil
	}
	if now.Sub(c.lastAttemptAt) > m.lockoutWindow {
		delete(m.attempts, key)
		return nil
	}
	return c
}

func (m *Monitor) patternFor(key string) (Pattern, bool) {
	idx := strings.LastIndex(key, "|")
	if idx < 0 {
		return Pattern{}, false
	}
	name := key[idx+1:]
	for _, p := range m.patterns {
		if p.Name == name {
			return p, true
		}
	}
	return Pattern{}, false
}

func (m *Monitor) longestWindow() time.Duration {
	var longest time.Duration
	for _, p := range m.patterns {
		if p.Window > longest {
			longest = p.Window
		}
	}
	return longest
}

func (m *Monitor) emit(ev models.SecurityEvent) {
	if m.audit == nil {
		return
	}
	m.audit.LogSecurityEvent(ev)
}

func windowKey(userID, action, pattern string) string {
	return userID + "|" + action + "|" + pattern
}

// pruneWindow keeps timestamps with now - t < span. Timestamps are appended
// in order so the survivors are a suffix.
func pruneWindow(window []time.Time, now time.Time, span time.Duration) []time.Time {
	i := 0
	for i < len(window) && now.Sub(window[i]) >= span {
		i++
	}
	if i == 0 {
		return window
	}
	return append(window[:0:0], window[i:]...)
}
