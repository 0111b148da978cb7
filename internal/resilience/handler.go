package resilience

import (
	"fmt"
	"sync"
	"time"

	"github.com/davido182/depositdigest/internal/clock"
	"github.com/davido182/depositdigest/internal/models"
	"github.com/davido182/depositdigest/internal/monitoring"
	"github.com/davido182/depositdigest/pkg/logger"
)

const (
	DefaultReportCapacity = 100
	DefaultMaxRetries     = 3
	DefaultBaseDelay      = time.Second
)

// AuditSink receives the security events the error handler emits
type AuditSink interface {
	LogSecurityEvent(event models.SecurityEvent) models.SecurityEvent
}

// HandlerConfig tunes the error handler
type HandlerConfig struct {
	// Capacity of the report ring buffer
	Capacity int
	// BaseDelay is the wait before the first retry; it doubles per retry
	BaseDelay time.Duration
}

// HandleOptions adjusts how a single failure is handled
type HandleOptions struct {
	// Severity overrides the classifier's heuristic when set
	Severity models.Severity
	// SkipAudit keeps the failure out of the audit stream even when severe
	SkipAudit bool
}

// ErrorHandler classifies failures, keeps the most recent reports in memory
// and forwards severe ones to the audit stream
type ErrorHandler struct {
	mu        sync.Mutex
	reports   *reportRing
	baseDelay time.Duration

	clock clock.Clock
	ids   clock.IDGenerator
	audit AuditSink
	log   *logger.FieldLogger
}

// ErrorStats summarises the reports currently held
type ErrorStats struct {
	Total      int                          `json:"total"`
	Unresolved int                          `json:"unresolved"`
	ByCategory map[models.ErrorCategory]int `json:"by_category"`
	BySeverity map[models.Severity]int      `json:"by_severity"`
}

// NewErrorHandler creates an error handler; audit may be nil
func NewErrorHandler(cfg HandlerConfig, clk clock.Clock, ids clock.IDGenerator, audit AuditSink) *ErrorHandler {
	if cfg.Capacity <= 0 {
		cfg.Capacity = DefaultReportCapacity
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = DefaultBaseDelay
	}

	return &ErrorHandler{
		reports:   newReportRing(cfg.Capacity),
		baseDelay: cfg.BaseDelay,
		clock:     clk,
		ids:       ids,
		audit:     audit,
		log:       logger.ForComponent("error_handler"),
	}
}

// HandleError classifies err, records a report and forwards high or critical
// failures to the audit stream. It never panics and never returns an error.
func (h *ErrorHandler) HandleError(err error, ectx models.ErrorContext, opts HandleOptions) models.ErrorReport {
	if err == nil {
		return models.ErrorReport{}
	}

	rep := h.newReport(err, ectx, opts.Severity, 0)
	h.logReport(rep, err)

	if !opts.SkipAudit && rep.Severity.AtLeast(models.SeverityHigh) {
		h.auditFailure(rep)
	}
	return h.snapshot(rep)
}

// Reports returns copies of the held reports, oldest first
func (h *ErrorHandler) Reports() []models.ErrorReport {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]models.ErrorReport, 0, h.reports.size)
	h.reports.each(func(r *models.ErrorReport) {
		out = append(out, copyReport(r))
	})
	return out
}

// ReportsSince returns reports whose context timestamp is at or after since
func (h *ErrorHandler) ReportsSince(since time.Time) []models.ErrorReport {
	h.mu.Lock()
	defer h.mu.Unlock()

	var out []models.ErrorReport
	h.reports.each(func(r *models.ErrorReport) {
		if !r.Context.Timestamp.Before(since) {
			out = append(out, copyReport(r))
		}
	})
	return out
}

// ResolveReport marks a report resolved; it reports whether the id was found
func (h *ErrorHandler) ResolveReport(id string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	found := false
	h.reports.each(func(r *models.ErrorReport) {
		if r.ID == id {
			r.Resolved = true
			found = true
		}
	})
	return found
}

// ClearReports drops every held report
func (h *ErrorHandler) ClearReports() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.reports.reset()
}

// Stats summarises the held reports
func (h *ErrorHandler) Stats() ErrorStats {
	h.mu.Lock()
	defer h.mu.Unlock()

	stats := ErrorStats{
		ByCategory: make(map[models.ErrorCategory]int),
		BySeverity: make(map[models.Severity]int),
	}
	h.reports.each(func(r *models.ErrorReport) {
		stats.Total++
		stats.ByCategory[r.Category]++
		stats.BySeverity[r.Severity]++
		if !r.Resolved {
			stats.Unresolved++
		}
	})
	return stats
}

// backoff returns the wait before attempt k (k >= 1): 2^(k-1) * base
func (h *ErrorHandler) backoff(attempt int) time.Duration {
	if attempt < 1 {
		return 0
	}
	return h.baseDelay << uint(attempt-1)
}

func (h *ErrorHandler) newReport(err error, ectx models.ErrorContext, override models.Severity, maxRetries int) *models.ErrorReport {
	c := ClassifyError(err, override)
	if ectx.Timestamp.IsZero() {
		ectx.Timestamp = h.clock.Now()
	}

	rep := &models.ErrorReport{
		ID:         h.ids.NewID(),
		Category:   c.Category,
		Severity:   c.Severity,
		Message:    err.Error(),
		Context:    ectx,
		MaxRetries: maxRetries,
	}

	h.mu.Lock()
	h.reports.push(rep)
	h.mu.Unlock()

	monitoring.RecordErrorReport(string(rep.Category), string(rep.Severity))
	return rep
}

func (h *ErrorHandler) snapshot(rep *models.ErrorReport) models.ErrorReport {
	h.mu.Lock()
	defer h.mu.Unlock()
	return copyReport(rep)
}

func (h *ErrorHandler) update(rep *models.ErrorReport, fn func(r *models.ErrorReport)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	fn(rep)
}

func (h *ErrorHandler) logReport(rep *models.ErrorReport, err error) {
	fields := map[string]interface{}{
		"error_id":  rep.ID,
		"category":  rep.Category,
		"severity":  rep.Severity,
		"component": rep.Context.Component,
		"action":    rep.Context.Action,
	}
	if rep.Context.UserID != "" {
		fields["user_id"] = rep.Context.UserID
	}

	switch rep.Severity {
	case models.SeverityCritical, models.SeverityHigh:
		h.log.Error("Operation failed", err, fields)
	case models.SeverityMedium:
		fields["error"] = err.Error()
		h.log.Warn("Operation failed", fields)
	default:
		fields["error"] = err.Error()
		h.log.Info("Operation failed", fields)
	}
}

func (h *ErrorHandler) auditFailure(rep *models.ErrorReport) {
	h.emit(models.SecurityEvent{
		UserID:      rep.Context.UserID,
		EventType:   models.EventSystemError,
		Description: fmt.Sprintf("%s error in %s: %s", rep.Category, describeContext(rep.Context), rep.Message),
		Severity:    rep.Severity,
		Metadata: map[string]interface{}{
			"error_id":    rep.ID,
			"category":    string(rep.Category),
			"component":   rep.Context.Component,
			"action":      rep.Context.Action,
			"retry_count": rep.RetryCount,
		},
	})
}

func (h *ErrorHandler) emit(ev models.SecurityEvent) {
	if h.audit == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			h.log.Error("Audit sink panicked", nil, map[string]interface{}{"panic": r})
		}
	}()
	h.audit.LogSecurityEvent(ev)
}

func describeContext(ectx models.ErrorContext) string {
	switch {
	case ectx.Component != "" && ectx.Action != "":
		return ectx.Component + "." + ectx.Action
	case ectx.Component != "":
		return ectx.Component
	case ectx.Action != "":
		return ectx.Action
	default:
		return "unknown context"
	}
}

func copyReport(r *models.ErrorReport) models.ErrorReport {
	out := *r
	if r.Context.Metadata != nil {
		out.Context.Metadata = make(map[string]interface{}, len(r.Context.Metadata))
		for k, v := range r.Context.Metadata {
			out.Context.Metadata[k] = v
		}
	}
	return out
}
