package resilience

import (
	"context"
	"fmt"

	"github.com/davido182/depositdigest/internal/models"
	"github.com/davido182/depositdigest/internal/monitoring"
)

// Operation is a unit of work the retry executor may run more than once
type Operation[T any] func(ctx context.Context) (T, error)

// Retry runs op, retrying up to maxRetries times. Attempt 0 runs immediately;
// attempt k waits 2^(k-1) * base delay first. When every attempt fails the
// last error is returned unchanged so callers can match on it with errors.Is.
func Retry[T any](ctx context.Context, h *ErrorHandler, op Operation[T], ectx models.ErrorContext, maxRetries int) (T, error) {
	var zero T
	if maxRetries < 0 {
		maxRetries = 0
	}

	var (
		rep     *models.ErrorReport
		lastErr error
	)

	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			if err := h.clock.Sleep(ctx, h.backoff(attempt)); err != nil {
				return zero, err
			}
		}

		result, err := op(ctx)
		if err == nil {
			if rep != nil {
				h.recovered(rep, attempt+1)
			}
			return result, nil
		}
		lastErr = err

		if rep == nil {
			rep = h.newReport(err, ectx, "", maxRetries)
		} else {
			h.update(rep, func(r *models.ErrorReport) {
				r.RetryCount = attempt
				r.Message = err.Error()
			})
		}

		if attempt < maxRetries {
			monitoring.RecordRetryAttempt(ectx.Component, ectx.Action, "retry")
			h.log.Debug("Operation failed, retrying", map[string]interface{}{
				"error_id":  rep.ID,
				"attempt":   attempt + 1,
				"max":       maxRetries + 1,
				"next_wait": h.backoff(attempt + 1).String(),
				"error":     err.Error(),
			})
		}
	}

	h.exhausted(rep, lastErr)
	return zero, lastErr
}

// WithFallback retries op once. If both attempts fail and fallback is non-nil
// the fallback value is returned instead of the error.
func WithFallback[T any](ctx context.Context, h *ErrorHandler, op Operation[T], ectx models.ErrorContext, fallback *T) (T, error) {
	result, err := Retry(ctx, h, op, ectx, 1)
	if err == nil || fallback == nil {
		return result, err
	}
	if ctx.Err() != nil {
		return result, err
	}

	h.log.Warn("Using fallback value", map[string]interface{}{
		"component": ectx.Component,
		"action":    ectx.Action,
		"error":     err.Error(),
	})
	h.emit(models.SecurityEvent{
		UserID:      ectx.UserID,
		EventType:   models.EventFallbackUsed,
		Description: fmt.Sprintf("Fallback value used for %s after retries exhausted", describeContext(ectx)),
		Severity:    models.SeverityMedium,
		Metadata: map[string]interface{}{
			"component": ectx.Component,
			"action":    ectx.Action,
			"error":     err.Error(),
		},
	})
	return *fallback, nil
}

func (h *ErrorHandler) recovered(rep *models.ErrorReport, attempts int) {
	h.update(rep, func(r *models.ErrorReport) {
		r.Resolved = true
	})
	monitoring.RecordRetryAttempt(rep.Context.Component, rep.Context.Action, "recovered")

	h.log.Info("Operation recovered", map[string]interface{}{
		"error_id": rep.ID,
		"attempts": attempts,
	})
	h.emit(models.SecurityEvent{
		UserID:      rep.Context.UserID,
		EventType:   models.EventOperationRecovered,
		Description: fmt.Sprintf("Operation recovered after %d attempts", attempts),
		Severity:    models.SeverityLow,
		Metadata: map[string]interface{}{
			"error_id":      rep.ID,
			"component":     rep.Context.Component,
			"action":        rep.Context.Action,
			"attempt_count": attempts,
		},
	})
}

func (h *ErrorHandler) exhausted(rep *models.ErrorReport, err error) {
	c := ClassifyError(err, models.SeverityHigh)
	h.update(rep, func(r *models.ErrorReport) {
		r.Category = c.Category
		r.Severity = c.Severity
	})
	monitoring.RecordRetryAttempt(rep.Context.Component, rep.Context.Action, "exhausted")

	snap := h.snapshot(rep)
	h.logReport(&snap, err)
	h.auditFailure(&snap)
}
