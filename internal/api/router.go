package api

import (
	"github.com/gin-gonic/gin"

	"github.com/davido182/depositdigest/internal/middleware"
	"github.com/davido182/depositdigest/internal/service"
	"github.com/davido182/depositdigest/internal/websocket"
	"github.com/davido182/depositdigest/pkg/config"
)

// SetupRouter builds the HTTP surface of the monitoring service. hub may be
// nil, in which case no stream endpoint is registered.
func SetupRouter(svc *service.MonitoringService, hub *websocket.Hub, limiter *middleware.RateLimiter, cfg *config.Config) *gin.Engine {
	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	router.Use(middleware.ErrorHandler(svc.Errors))
	router.Use(middleware.OptionalAuthMiddleware(svc.Sessions))
	router.Use(middleware.RequestLogger(svc, svc))
	if limiter != nil {
		router.Use(middleware.RateLimitMiddleware(limiter))
	}

	router.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, "+middleware.ServiceTokenHeader)

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	healthHandler := NewHealthHandler(svc)
	router.GET("/health", healthHandler.HealthCheck)
	router.HEAD("/health", healthHandler.HealthCheck)
	router.GET("/health/history", healthHandler.HealthHistory)
	router.GET("/live", healthHandler.LivenessCheck)

	prometheusHandler := NewPrometheusHandler()
	router.GET("/metrics", prometheusHandler.MetricsEndpoint)

	monitoringHandler := NewMonitoringHandler(svc)
	authHandler := NewAuthHandler(svc)

	// sessions gate every write and the sensitive reads; the auth flow uses
	// the shared service token
	requireSession := middleware.AuthMiddleware(svc.Sessions)
	requireService := middleware.ServiceAuthMiddleware(cfg.ServiceToken)

	api := router.Group("/api")
	{
		api.GET("/system/metrics", monitoringHandler.GetSystemMetrics)

		alertsGroup := api.Group("/alerts")
		alertsGroup.GET("", monitoringHandler.ListAlerts)
		alertsGroup.GET("/critical", monitoringHandler.CriticalAlerts)
		alertsGroup.POST("", requireSession, monitoringHandler.CreateAlert)
		alertsGroup.POST("/:id/resolve", requireSession, monitoringHandler.ResolveAlert)

		api.GET("/errors", requireSession, monitoringHandler.ErrorReports)
		api.POST("/errors/:id/resolve", requireSession, monitoringHandler.ResolveErrorReport)

		api.GET("/security/events", requireSession, monitoringHandler.SecurityEvents)
		api.POST("/security/password/validate", authHandler.ValidatePassword)

		api.GET("/audit", requireSession, monitoringHandler.AuditEntries)
		api.POST("/audit", requireSession, monitoringHandler.LogAudit)

		auth := api.Group("/auth", requireService)
		auth.POST("/login-check", authHandler.LoginCheck)
		auth.POST("/login-failed", authHandler.LoginFailed)
		auth.POST("/login-success", authHandler.LoginSuccess)
		auth.POST("/session", authHandler.IssueSession)

		if hub != nil {
			api.GET("/stream", NewStreamHandler(hub).Stream)
		}
	}

	return router
}
