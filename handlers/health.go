package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"fermata/config"
)

// HealthHandler handles health check endpoints
type HealthHandler struct {
	cfg *config.Store
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(cfg *config.Store) *HealthHandler {
	return &HealthHandler{cfg: cfg}
}

// HealthCheck returns the health status of the service
func (h *HealthHandler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"service":   "fermata",
		"version":   "1.0.0",
		"timestamp": time.Now().Unix(),
	})
}

// APIStatus returns the status of the API
func (h *HealthHandler) APIStatus(c *gin.Context) {
	settings := h.cfg.Snapshot()
	c.JSON(http.StatusOK, gin.H{
		"message":      "Fermata API is running",
		"library_path": settings.LibraryPath,
		"cache_path":   settings.CachePath,
	})
}
