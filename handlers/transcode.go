package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"fermata/services"
	"fermata/types"
)

// TranscodeHandler handles transcode scheduling endpoints
type TranscodeHandler struct {
	scheduler *services.Scheduler
	library   services.LibraryService
}

// NewTranscodeHandler creates a new transcode handler
func NewTranscodeHandler(scheduler *services.Scheduler, library services.LibraryService) *TranscodeHandler {
	return &TranscodeHandler{
		scheduler: scheduler,
		library:   library,
	}
}

// TriggerBook queues background transcoding for a newly added book
func (h *TranscodeHandler) TriggerBook(c *gin.Context) {
	bookID := c.Param("bookId")
	if bookID == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "book ID is required",
		})
		return
	}

	book, found := h.library.GetBook(bookID)
	if !found {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "book not found",
		})
		return
	}

	accepted := h.scheduler.PreTranscodeBook(book)
	c.JSON(http.StatusAccepted, gin.H{
		"message":  "transcoding queued",
		"accepted": accepted,
	})
}

// TriggerPosition queues priority transcoding for the episodes following the
// current playback position
func (h *TranscodeHandler) TriggerPosition(c *gin.Context) {
	var req types.TriggerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid request body",
			"details": err.Error(),
		})
		return
	}

	book, found := h.library.GetBook(req.BookID)
	if !found {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "book not found",
		})
		return
	}

	if req.SeasonIndex < 0 || req.SeasonIndex >= len(book.Seasons) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "season index out of range",
		})
		return
	}

	accepted := h.scheduler.PreTranscodeFromPosition(book, req.SeasonIndex, req.EpisodeIndex)
	c.JSON(http.StatusAccepted, gin.H{
		"message":  "transcoding queued",
		"accepted": accepted,
	})
}

// Status returns the scheduler status snapshot
func (h *TranscodeHandler) Status(c *gin.Context) {
	c.JSON(http.StatusOK, h.scheduler.Status())
}

// Cancel requests cancellation of outstanding transcode work
func (h *TranscodeHandler) Cancel(c *gin.Context) {
	c.JSON(http.StatusOK, h.scheduler.Cancel())
}
