// Package resilience classifies failures, keeps recent error reports and
// retries operations with exponential backoff.
package resilience

import (
	"errors"
	"strings"

	"github.com/davido182/depositdigest/internal/models"
)

// Classification is the outcome of classifying one failure
type Classification struct {
	Category models.ErrorCategory
	Severity models.Severity
}

// CategorizedError lets a throw site state its category explicitly instead of
// relying on message keywords
type CategorizedError interface {
	error
	Category() models.ErrorCategory
}

// StackTracer is implemented by errors that carry a stack trace
type StackTracer interface {
	StackTrace() string
}

type keywordGroup struct {
	category models.ErrorCategory
	keywords []string
}

// First matching group wins; the order is the tie-break.
var categoryGroups = []keywordGroup{
	{models.CategoryNetwork, []string{"network", "fetch", "connection", "timeout"}},
	{models.CategoryAuthentication, []string{"unauthorized", "forbidden", "token"}},
	{models.CategoryDatabase, []string{"database", "sql", "postgres", "supabase", "gorm", "pgx", "redis"}},
	{models.CategoryValidation, []string{"validation", "invalid", "required", "format"}},
}

// stack frames that indicate a failure while rendering output
var renderFrames = []string{"render", "html/template", "text/template"}

// Classify maps a failure message and optional stack to a category and
// severity. A valid override replaces the severity heuristic.
func Classify(message, stack string, override models.Severity) Classification {
	msg := strings.ToLower(message)
	haystack := msg + "\n" + strings.ToLower(stack)

	c := Classification{
		Category: categoryFor(haystack, strings.ToLower(stack)),
		Severity: severityFor(msg),
	}
	if override.Valid() {
		c.Severity = override
	}
	return c
}

// ClassifyError classifies err, honouring CategorizedError and StackTracer
func ClassifyError(err error, override models.Severity) Classification {
	if err == nil {
		return Classification{Category: models.CategoryUnknown, Severity: models.SeverityLow}
	}

	var stack string
	var st StackTracer
	if errors.As(err, &st) {
		stack = st.StackTrace()
	}

	c := Classify(err.Error(), stack, override)

	var ce CategorizedError
	if errors.As(err, &ce) && ce.Category() != "" {
		c.Category = ce.Category()
	}
	return c
}

func categoryFor(haystack, stack string) models.ErrorCategory {
	for _, group := range categoryGroups {
		if containsAny(haystack, group.keywords) {
			return group.category
		}
	}
	if containsAny(stack, renderFrames) {
		return models.CategoryUI
	}
	return models.CategoryUnknown
}

func severityFor(msg string) models.Severity {
	switch {
	case containsAny(msg, []string{"critical", "fatal"}):
		return models.SeverityCritical
	case containsAny(msg, []string{"network", "connection", "unauthorized", "forbidden"}):
		return models.SeverityHigh
	case containsAny(msg, []string{"validation", "invalid"}):
		return models.SeverityMedium
	default:
		return models.SeverityLow
	}
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}
