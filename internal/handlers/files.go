package handlers

import (
	"net/http"
	"os"

	"github.com/gin-gonic/gin"

	"github.com/fennecvideo/fennec/internal/logger"
	"github.com/fennecvideo/fennec/internal/services"
)

type FileHandler struct {
	log    *logger.Logger
	browse services.BrowseService
}

func NewFileHandler(log *logger.Logger, browse services.BrowseService) *FileHandler {
	return &FileHandler{
		log:    log.With("handler", "FileHandler"),
		browse: browse,
	}
}

// GET /api/files?limit=&offset=&completed=
func (h *FileHandler) ListFiles(c *gin.Context) {
	limit := queryInt(c, "limit", 100)
	offset := queryInt(c, "offset", 0)
	completedOnly := c.Query("completed") == "true"
	files, err := h.browse.Files(c.Request.Context(), limit, offset, completedOnly)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"files": files, "count": len(files)})
}

// GET /api/files/:id
func (h *FileHandler) GetFile(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	detail, err := h.browse.File(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, detail)
}

// GET /api/files/:id/video
// Serves the source file with range support so the browser can seek.
func (h *FileHandler) ServeVideo(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	detail, err := h.browse.File(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	if _, err := os.Stat(detail.File.Path); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "file missing on disk"})
		return
	}
	// http.ServeFile underneath: honors Range requests.
	c.File(detail.File.Path)
}

// GET /api/scenes/:id/thumb
// Serves the scene's poster frame.
func (h *FileHandler) ServeThumb(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	detail, err := h.browse.Scene(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	if detail.PosterFramePath == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "scene has no poster frame"})
		return
	}
	if _, err := os.Stat(*detail.PosterFramePath); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "poster frame missing on disk"})
		return
	}
	c.File(*detail.PosterFramePath)
}
