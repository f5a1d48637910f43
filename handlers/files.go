package handlers

import (
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"fermata/config"
	"fermata/services"
	"fermata/types"
)

// FileHandler handles audio streaming endpoints. Non-web-friendly formats
// are transcoded on demand: the request blocks until the artifact is ready.
type FileHandler struct {
	cfg      *config.Store
	pipeline *services.EncodingPipeline
}

// NewFileHandler creates a new file handler
func NewFileHandler(cfg *config.Store, pipeline *services.EncodingPipeline) *FileHandler {
	return &FileHandler{
		cfg:      cfg,
		pipeline: pipeline,
	}
}

// StreamFile streams an audio file with support for range requests. Files in
// formats browsers can't play are transparently converted first.
func (h *FileHandler) StreamFile(c *gin.Context) {
	requestedPath := c.Param("filepath")

	// Remove leading slash from filepath param
	if strings.HasPrefix(requestedPath, "/") {
		requestedPath = requestedPath[1:]
	}

	// Security: Validate file path
	if err := validateFilePath(requestedPath); err != nil {
		c.JSON(http.StatusForbidden, gin.H{
			"error":   "path security violation",
			"details": err.Error(),
		})
		return
	}

	libraryPath := h.cfg.Snapshot().LibraryPath
	fullPath := filepath.Join(libraryPath, requestedPath)

	// Security: Ensure resolved path is within the library
	absLibraryPath, err := filepath.Abs(libraryPath)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "server configuration error",
		})
		return
	}

	absRequestPath, err := filepath.Abs(fullPath)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "invalid file path",
		})
		return
	}

	if !strings.HasPrefix(absRequestPath, absLibraryPath) {
		c.JSON(http.StatusForbidden, gin.H{
			"error": "path traversal not allowed",
		})
		return
	}

	if _, err := os.Stat(fullPath); err != nil {
		if os.IsNotExist(err) {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "file not found",
				"path":  requestedPath,
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "file access error",
			"details": err.Error(),
		})
		return
	}

	servePath := fullPath
	ext := strings.ToLower(filepath.Ext(requestedPath))

	// Non-web-friendly format: block until a streamable artifact exists.
	if needsTranscode(ext) {
		ref, ok := refFromRelativePath(requestedPath)
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "path does not map to a library episode",
			})
			return
		}

		artifactPath, err := h.pipeline.EnsureTranscoded(c.Request.Context(), fullPath, ref)
		if err != nil {
			var encErr *services.EncodingError
			if errors.As(err, &encErr) {
				log.Printf("On-demand transcode of %s failed: %v", ref, err)
				c.JSON(http.StatusInternalServerError, gin.H{
					"error":   "transcoding failed",
					"details": encErr.Error(),
				})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{
				"error":   "transcoding failed",
				"details": err.Error(),
			})
			return
		}
		servePath = artifactPath
	}

	h.serveAudioFile(c, servePath)
}

// serveAudioFile streams one on-disk audio file, honoring Range headers.
func (h *FileHandler) serveAudioFile(c *gin.Context, path string) {
	fileInfo, err := os.Stat(path)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "file access error",
		})
		return
	}

	if fileInfo.IsDir() {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "path is a directory, not a file",
		})
		return
	}

	file, err := os.Open(path)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "failed to open file",
			"details": err.Error(),
		})
		return
	}
	defer file.Close()

	// Set appropriate headers for audio streaming
	c.Header("Content-Type", getContentType(path))
	c.Header("Content-Length", strconv.FormatInt(fileInfo.Size(), 10))
	c.Header("Accept-Ranges", "bytes")
	c.Header("Cache-Control", "public, max-age=3600")

	// Handle range requests for seeking
	rangeHeader := c.GetHeader("Range")
	if rangeHeader != "" {
		h.handleRangeRequest(c, file, fileInfo.Size(), rangeHeader, path)
		return
	}

	// Stream the entire file
	c.Status(http.StatusOK)
	if _, err := io.Copy(c.Writer, file); err != nil {
		log.Printf("Error streaming file %s: %v", path, err)
	}
}

// handleRangeRequest handles HTTP range requests for efficient seeking
func (h *FileHandler) handleRangeRequest(c *gin.Context, file *os.File, fileSize int64, rangeHeader string, filePath string) {
	// Parse range header (e.g., "bytes=0-1023" or "bytes=1024-")
	if !strings.HasPrefix(rangeHeader, "bytes=") {
		c.Status(http.StatusRequestedRangeNotSatisfiable)
		return
	}

	rangeSpec := strings.TrimPrefix(rangeHeader, "bytes=")
	ranges := strings.Split(rangeSpec, "-")

	if len(ranges) != 2 {
		c.Status(http.StatusRequestedRangeNotSatisfiable)
		return
	}

	var start, end int64
	var err error

	// Parse start position
	if ranges[0] != "" {
		start, err = strconv.ParseInt(ranges[0], 10, 64)
		if err != nil || start < 0 {
			c.Status(http.StatusRequestedRangeNotSatisfiable)
			return
		}
	}

	// Parse end position
	if ranges[1] != "" {
		end, err = strconv.ParseInt(ranges[1], 10, 64)
		if err != nil || end < start {
			c.Status(http.StatusRequestedRangeNotSatisfiable)
			return
		}
	} else {
		end = fileSize - 1
	}

	// Validate range bounds
	if start >= fileSize {
		c.Status(http.StatusRequestedRangeNotSatisfiable)
		return
	}
	if end >= fileSize {
		end = fileSize - 1
	}

	contentLength := end - start + 1

	// Seek to start position
	_, err = file.Seek(start, 0)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "failed to seek file",
		})
		return
	}

	// Set partial content headers
	c.Header("Content-Type", getContentType(filePath))
	c.Header("Content-Length", strconv.FormatInt(contentLength, 10))
	c.Header("Content-Range", fmt.Sprintf("bytes %d-%d/%d", start, end, fileSize))
	c.Header("Accept-Ranges", "bytes")
	c.Header("Cache-Control", "public, max-age=3600")
	c.Status(http.StatusPartialContent)

	// Copy only the requested range
	_, err = io.CopyN(c.Writer, file, contentLength)
	if err != nil {
		log.Printf("Error streaming range %d-%d: %v", start, end, err)
	}
}

// refFromRelativePath maps a library-relative path to its episode ref.
// "book/episode.ext" uses the implicit season; "book/season/episode.ext"
// names it explicitly.
func refFromRelativePath(relPath string) (types.EpisodeRef, bool) {
	segments := strings.Split(filepath.ToSlash(relPath), "/")
	base := segments[len(segments)-1]
	episode := strings.TrimSuffix(base, filepath.Ext(base))

	switch len(segments) {
	case 2:
		return types.EpisodeRef{BookID: segments[0], SeasonID: "main", EpisodeID: episode}, true
	case 3:
		return types.EpisodeRef{BookID: segments[0], SeasonID: segments[1], EpisodeID: episode}, true
	default:
		return types.EpisodeRef{}, false
	}
}

// needsTranscode reports whether an extension requires conversion before
// browsers can play it.
func needsTranscode(ext string) bool {
	switch ext {
	case ".mp3", ".aac", ".m4a", ".m4b", ".ogg", ".opus":
		return false
	default:
		return true
	}
}

// validateFilePath checks for path traversal attempts and other security issues
func validateFilePath(path string) error {
	// Check for path traversal attempts
	if strings.Contains(path, "..") {
		return fmt.Errorf("path traversal not allowed")
	}

	// Check for absolute paths
	if strings.HasPrefix(path, "/") {
		return fmt.Errorf("absolute paths not allowed")
	}

	// Check for empty path
	if strings.TrimSpace(path) == "" {
		return fmt.Errorf("empty path not allowed")
	}

	return nil
}

// getContentType returns the appropriate MIME type for an audio file
func getContentType(filePath string) string {
	switch strings.ToLower(filepath.Ext(filePath)) {
	case ".flac":
		return "audio/flac"
	case ".mp3":
		return "audio/mpeg"
	case ".m4a", ".m4b":
		return "audio/mp4"
	case ".aac":
		return "audio/aac"
	case ".ogg", ".opus":
		return "audio/ogg"
	case ".wav":
		return "audio/wav"
	default:
		return "application/octet-stream"
	}
}
