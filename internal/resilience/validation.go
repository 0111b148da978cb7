package resilience

import (
	"regexp"
	"strings"
)

type messageMapping struct {
	match   string
	message string
}

// Checked in order; the first substring found wins.
var validationMessages = []messageMapping{
	{"invalid email", "Please enter a valid email address"},
	{"email already", "An account with this email already exists"},
	{"weak password", "Password does not meet the security requirements"},
	{"too long", "The value entered is too long"},
	{"too short", "The value entered is too short"},
	{"required", "This field is required"},
	{"invalid date", "Please enter a valid date"},
	{"invalid number", "Please enter a valid number"},
	{"duplicate", "This record already exists"},
	{"format", "The value has an invalid format"},
}

var sensitiveTokens = regexp.MustCompile(`(?i)password|token|secret|key`)

// HandleValidationError rewrites a validation failure into a message suitable
// for end users. Unrecognised messages are returned with sensitive words
// redacted.
func HandleValidationError(err error) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	lower := strings.ToLower(msg)

	for _, m := range validationMessages {
		if strings.Contains(lower, m.match) {
			return m.message
		}
	}
	return sensitiveTokens.ReplaceAllString(msg, "[REDACTED]")
}
