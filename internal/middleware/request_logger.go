package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/davido182/depositdigest/internal/models"
	"github.com/davido182/depositdigest/internal/monitoring"
	"github.com/davido182/depositdigest/pkg/logger"
)

// PerformanceRecorder stores one sample per request
type PerformanceRecorder interface {
	RecordPerformance(m models.PerformanceMetric)
}

// ActivityDetector feeds requests into the suspicious-activity windows
type ActivityDetector interface {
	DetectSuspiciousActivity(userID, action string, metadata map[string]interface{})
}

// UnauthorizedAction is the activity recorded for a rejected request
const UnauthorizedAction = "unauthorized_access"

// RequestLogger logs every request and records its latency as a performance
// sample. Only requests rejected with 401 or 403 count towards the caller's
// activity windows; ordinary traffic and polling never do. Either
// collaborator may be nil.
func RequestLogger(perf PerformanceRecorder, detector ActivityDetector) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()

		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = path
		}

		fields := map[string]interface{}{
			"method":     c.Request.Method,
			"path":       path,
			"query":      query,
			"status":     status,
			"latency_ms": latency.Milliseconds(),
			"ip":         c.ClientIP(),
			"user_agent": c.Request.UserAgent(),
		}

		userID := GetUserID(c)
		if userID != "" {
			fields["user_id"] = userID
		}

		monitoring.RecordAPIRequest(c.Request.Method, endpoint, strconv.Itoa(status), latency)

		if perf != nil {
			perf.RecordPerformance(models.PerformanceMetric{
				ResponseTimeMs: float64(latency.Microseconds()) / 1000,
				Endpoint:       endpoint,
				UserID:         userID,
			})
		}

		if detector != nil && (status == http.StatusUnauthorized || status == http.StatusForbidden) {
			actor := userID
			if actor == "" {
				actor = c.ClientIP()
			}
			detector.DetectSuspiciousActivity(actor, UnauthorizedAction, map[string]interface{}{
				"method":   c.Request.Method,
				"endpoint": endpoint,
				"status":   status,
			})
		}

		message := "HTTP request"
		if status >= 500 {
			logger.Error(message, nil, fields)
		} else if status >= 400 {
			logger.Warn(message, fields)
		} else {
			logger.Debug(message, fields)
		}
	}
}
