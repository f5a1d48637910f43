package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"fermata/config"
)

// SettingsHandler handles settings endpoints
type SettingsHandler struct {
	cfg *config.Store
}

// NewSettingsHandler creates a new settings handler
func NewSettingsHandler(cfg *config.Store) *SettingsHandler {
	return &SettingsHandler{cfg: cfg}
}

// settingsUpdate is the accepted settings payload. Out-of-range counts are
// clamped on the next read, never rejected.
type settingsUpdate struct {
	AutoTranscode      *bool `json:"autoTranscode"`
	AutoTranscodeCount *int  `json:"autoTranscodeCount"`
}

// GetSettings returns the current live settings
func (h *SettingsHandler) GetSettings(c *gin.Context) {
	settings := h.cfg.Snapshot()
	c.JSON(http.StatusOK, gin.H{
		"autoTranscode":      settings.AutoTranscode,
		"autoTranscodeCount": settings.AutoTranscodeCount,
		"libraryPath":        settings.LibraryPath,
		"cachePath":          settings.CachePath,
	})
}

// UpdateSettings updates the live transcoding settings
func (h *SettingsHandler) UpdateSettings(c *gin.Context) {
	var update settingsUpdate
	if err := c.ShouldBindJSON(&update); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid request body",
			"details": err.Error(),
		})
		return
	}

	if update.AutoTranscode != nil {
		h.cfg.SetAutoTranscode(*update.AutoTranscode)
	}
	if update.AutoTranscodeCount != nil {
		h.cfg.SetAutoTranscodeCount(*update.AutoTranscodeCount)
	}

	settings := h.cfg.Snapshot()
	c.JSON(http.StatusOK, gin.H{
		"message":            "settings updated",
		"autoTranscode":      settings.AutoTranscode,
		"autoTranscodeCount": settings.AutoTranscodeCount,
	})
}
