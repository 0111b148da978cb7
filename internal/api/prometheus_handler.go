package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusHandler serves the collectors registered by the monitoring package
type PrometheusHandler struct {
	handler http.Handler
}

func NewPrometheusHandler() *PrometheusHandler {
	return &PrometheusHandler{handler: promhttp.Handler()}
}

// MetricsEndpoint handles GET /metrics
func (h *PrometheusHandler) MetricsEndpoint(c *gin.Context) {
	h.handler.ServeHTTP(c.Writer, c.Request)
}
