package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/fennecvideo/fennec/internal/logger"
	"github.com/fennecvideo/fennec/internal/services"
)

type AdminHandler struct {
	log   *logger.Logger
	admin services.AdminService
}

func NewAdminHandler(log *logger.Logger, admin services.AdminService) *AdminHandler {
	return &AdminHandler{
		log:   log.With("handler", "AdminHandler"),
		admin: admin,
	}
}

// POST /api/admin/pause
func (h *AdminHandler) Pause(c *gin.Context) {
	if err := h.admin.Pause(c.Request.Context()); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"state": "paused"})
}

// POST /api/admin/resume
func (h *AdminHandler) Resume(c *gin.Context) {
	if err := h.admin.Resume(c.Request.Context()); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"state": "running"})
}

// GET /api/admin/failed
func (h *AdminHandler) ListFailed(c *gin.Context) {
	jobs, err := h.admin.FailedJobs(c.Request.Context(), queryInt(c, "limit", 100))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"jobs": jobs, "count": len(jobs)})
}

// POST /api/admin/retry-failed
func (h *AdminHandler) RetryFailed(c *gin.Context) {
	n, err := h.admin.RetryFailed(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"requeued": n})
}

// POST /api/admin/requeue/:id
func (h *AdminHandler) Requeue(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	if err := h.admin.Requeue(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"file_id": id, "status": "queued"})
}

// POST /api/admin/reset-processing
func (h *AdminHandler) ResetProcessing(c *gin.Context) {
	n, err := h.admin.ResetProcessing(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"reset": n})
}

// POST /api/admin/restart
func (h *AdminHandler) Restart(c *gin.Context) {
	if err := h.admin.RequestRestart(c.Request.Context()); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"restart": "requested"})
}

// POST /api/admin/wipe
func (h *AdminHandler) WipeIndex(c *gin.Context) {
	if err := h.admin.WipeIndex(c.Request.Context()); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"wiped": true})
}

// POST /api/admin/purge-deleted
func (h *AdminHandler) PurgeDeleted(c *gin.Context) {
	n, err := h.admin.PurgeDeleted(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"purged": n})
}

// POST /api/admin/purge-outside-roots
func (h *AdminHandler) PurgeOutsideRoots(c *gin.Context) {
	n, err := h.admin.PurgeOutsideRoots(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"purged": n})
}
