package api

import (
	"github.com/gin-gonic/gin"

	"github.com/davido182/depositdigest/internal/websocket"
)

// StreamHandler upgrades dashboard connections onto the live event hub
type StreamHandler struct {
	hub *websocket.Hub
}

func NewStreamHandler(hub *websocket.Hub) *StreamHandler {
	return &StreamHandler{hub: hub}
}

// Stream handles GET /api/stream
func (h *StreamHandler) Stream(c *gin.Context) {
	h.hub.ServeHTTP(c.Writer, c.Request)
}
