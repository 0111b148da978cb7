package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/davido182/depositdigest/internal/alerts"
	"github.com/davido182/depositdigest/internal/middleware"
	"github.com/davido182/depositdigest/internal/models"
	"github.com/davido182/depositdigest/internal/service"
)

type MonitoringHandler struct {
	svc *service.MonitoringService
}

func NewMonitoringHandler(svc *service.MonitoringService) *MonitoringHandler {
	return &MonitoringHandler{svc: svc}
}

// CreateAlertRequest is the body of POST /api/alerts
type CreateAlertRequest struct {
	Type        models.AlertType       `json:"type" binding:"required"`
	Severity    models.Severity        `json:"severity" binding:"required"`
	Title       string                 `json:"title" binding:"required"`
	Description string                 `json:"description"`
	Metadata    map[string]interface{} `json:"metadata"`
}

// ResolveAlertRequest is the optional body of POST /api/alerts/:id/resolve
type ResolveAlertRequest struct {
	Resolution string `json:"resolution"`
}

// AuditRequest is the body of POST /api/audit
type AuditRequest struct {
	Action       string                 `json:"action" binding:"required"`
	ResourceType string                 `json:"resource_type" binding:"required"`
	ResourceID   string                 `json:"resource_id"`
	OldValues    map[string]interface{} `json:"old_values"`
	NewValues    map[string]interface{} `json:"new_values"`
}

// GetSystemMetrics handles GET /api/system/metrics
func (h *MonitoringHandler) GetSystemMetrics(c *gin.Context) {
	c.JSON(http.StatusOK, h.svc.GetSystemMetrics())
}

// ListAlerts handles GET /api/alerts?active=true&type=security
func (h *MonitoringHandler) ListAlerts(c *gin.Context) {
	var list []models.Alert
	switch {
	case c.Query("type") != "":
		list = h.svc.Alerts.AlertsByType(models.AlertType(c.Query("type")))
	case c.Query("active") == "true":
		list = h.svc.Alerts.ActiveAlerts()
	default:
		list = h.svc.Alerts.Alerts()
	}
	if list == nil {
		list = []models.Alert{}
	}

	c.JSON(http.StatusOK, gin.H{
		"alerts": list,
		"count":  len(list),
		"stats":  h.svc.Alerts.Stats(),
	})
}

// CriticalAlerts handles GET /api/alerts/critical
func (h *MonitoringHandler) CriticalAlerts(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"alerts": h.svc.Alerts.CriticalAlerts()})
}

// CreateAlert handles POST /api/alerts
func (h *MonitoringHandler) CreateAlert(c *gin.Context) {
	var req CreateAlertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.HandleAppError(c, middleware.NewBadRequestError(err.Error()))
		return
	}
	if !req.Severity.Valid() {
		middleware.HandleAppError(c, middleware.NewBadRequestError("severity must be one of low, medium, high, critical"))
		return
	}

	alert := h.svc.CreateAlert(req.Type, req.Severity, req.Title, req.Description, req.Metadata)
	c.JSON(http.StatusCreated, alert)
}

// ResolveAlert handles POST /api/alerts/:id/resolve
func (h *MonitoringHandler) ResolveAlert(c *gin.Context) {
	var req ResolveAlertRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			middleware.HandleAppError(c, middleware.NewBadRequestError(err.Error()))
			return
		}
	}

	alert, err := h.svc.ResolveAlert(c.Param("id"), req.Resolution)
	if err != nil {
		if errors.Is(err, alerts.ErrAlertNotFound) {
			middleware.HandleAppError(c, middleware.NewNotFoundError("Alert"))
			return
		}
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, alert)
}

// SecurityEvents handles GET /api/security/events?user_id=&type=&limit=
func (h *MonitoringHandler) SecurityEvents(c *gin.Context) {
	var list []models.SecurityEvent
	switch {
	case c.Query("user_id") != "":
		list = h.svc.Audit.GetByUser(c.Query("user_id"))
	case c.Query("type") != "":
		list = h.svc.Audit.GetByType(models.SecurityEventType(c.Query("type")))
	default:
		list = h.svc.Audit.GetRecent(queryInt(c, "limit", 50))
	}
	if list == nil {
		list = []models.SecurityEvent{}
	}
	c.JSON(http.StatusOK, gin.H{"events": list, "count": len(list)})
}

// AuditEntries handles GET /api/audit?resource_type=&resource_id=
func (h *MonitoringHandler) AuditEntries(c *gin.Context) {
	var list []models.AuditLogEntry
	if rt := c.Query("resource_type"); rt != "" {
		list = h.svc.Audit.GetByResource(rt, c.Query("resource_id"))
	} else {
		list = h.svc.Audit.AuditEntries()
	}
	if list == nil {
		list = []models.AuditLogEntry{}
	}
	c.JSON(http.StatusOK, gin.H{"entries": list, "count": len(list)})
}

// LogAudit handles POST /api/audit
func (h *MonitoringHandler) LogAudit(c *gin.Context) {
	var req AuditRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.HandleAppError(c, middleware.NewBadRequestError(err.Error()))
		return
	}

	entry := h.svc.Audit.LogAudit(models.AuditLogEntry{
		UserID:       middleware.GetUserID(c),
		Action:       req.Action,
		ResourceType: req.ResourceType,
		ResourceID:   req.ResourceID,
		OldValues:    req.OldValues,
		NewValues:    req.NewValues,
	})
	c.JSON(http.StatusCreated, entry)
}

// ErrorReports handles GET /api/errors
func (h *MonitoringHandler) ErrorReports(c *gin.Context) {
	reports := h.svc.Errors.Reports()
	if reports == nil {
		reports = []models.ErrorReport{}
	}
	c.JSON(http.StatusOK, gin.H{
		"reports": reports,
		"stats":   h.svc.Errors.Stats(),
	})
}

// ResolveErrorReport handles POST /api/errors/:id/resolve
func (h *MonitoringHandler) ResolveErrorReport(c *gin.Context) {
	if !h.svc.Errors.ResolveReport(c.Param("id")) {
		middleware.HandleAppError(c, middleware.NewNotFoundError("Error report"))
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "error report resolved"})
}

func queryInt(c *gin.Context, key string, def int) int {
	v, err := strconv.Atoi(c.Query(key))
	if err != nil || v <= 0 {
		return def
	}
	return v
}
