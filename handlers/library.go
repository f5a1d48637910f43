package handlers

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"fermata/services"
)

// LibraryHandler handles library browsing endpoints
type LibraryHandler struct {
	library services.LibraryService
}

// NewLibraryHandler creates a new library handler
func NewLibraryHandler(library services.LibraryService) *LibraryHandler {
	return &LibraryHandler{
		library: library,
	}
}

// ListBooks returns the full book/season/episode tree
func (h *LibraryHandler) ListBooks(c *gin.Context) {
	books, err := h.library.ScanBooks()
	if err != nil {
		log.Printf("Error scanning library: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "failed to scan library",
			"details": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"books": books,
		"count": len(books),
	})
}

// GetBook returns one book by ID
func (h *LibraryHandler) GetBook(c *gin.Context) {
	bookID := c.Param("bookId")
	book, found := h.library.GetBook(bookID)
	if !found {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "book not found",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"book": book,
	})
}
