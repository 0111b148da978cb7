package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/davido182/depositdigest/internal/models"
	"github.com/davido182/depositdigest/internal/service"
)

type HealthHandler struct {
	startTime time.Time
	svc       *service.MonitoringService
}

func NewHealthHandler(svc *service.MonitoringService) *HealthHandler {
	return &HealthHandler{
		startTime: time.Now(),
		svc:       svc,
	}
}

// HealthCheck handles GET /health. It serves the latest scheduled cycle and
// only runs one itself before the first cycle exists. Answers 503 when the
// system is unhealthy.
func (h *HealthHandler) HealthCheck(c *gin.Context) {
	result, ok := h.svc.Health.Latest()
	if !ok {
		result = h.svc.PerformHealthCheck(c.Request.Context())
	}

	status := http.StatusOK
	if result.Status == models.StatusUnhealthy {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, result)
}

// HealthHistory handles GET /health/history
func (h *HealthHandler) HealthHistory(c *gin.Context) {
	history := h.svc.Health.History()
	c.JSON(http.StatusOK, gin.H{
		"history": history,
		"count":   len(history),
	})
}

// LivenessCheck handles GET /live
func (h *HealthHandler) LivenessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "alive",
		"uptime": time.Since(h.startTime).String(),
	})
}
