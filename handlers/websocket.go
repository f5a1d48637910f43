package handlers

import (
	"log"

	"github.com/gin-gonic/gin"

	"fermata/websocket"
)

// WebSocketHandler handles WebSocket subscriptions for transcode events
type WebSocketHandler struct {
	hub websocket.Hub
}

// NewWebSocketHandler creates a new WebSocket handler
func NewWebSocketHandler(hub websocket.Hub) *WebSocketHandler {
	return &WebSocketHandler{hub: hub}
}

// HandleAllEvents subscribes a client to every transcode event
func (h *WebSocketHandler) HandleAllEvents(c *gin.Context) {
	upgrader := websocket.GetUpgrader()
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	client := websocket.NewClient(h.hub, conn, "all")
	h.hub.RegisterClient(client)

	// Start client pumps
	client.StartPumps()
}
