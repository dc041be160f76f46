package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/fennecvideo/fennec/internal/logger"
	"github.com/fennecvideo/fennec/internal/services"
)

type ExportHandler struct {
	log    *logger.Logger
	export services.ExportService
}

func NewExportHandler(log *logger.Logger, export services.ExportService) *ExportHandler {
	return &ExportHandler{
		log:    log.With("handler", "ExportHandler"),
		export: export,
	}
}

type edlBody struct {
	Title    string  `json:"title"`
	SceneIDs []int64 `json:"scene_ids" binding:"required"`
}

// POST /api/export/edl
// Returns a CMX 3600 EDL as a downloadable attachment.
func (h *ExportHandler) ExportEDL(c *gin.Context) {
	var body edlBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body: " + err.Error()})
		return
	}
	edl, err := h.export.BuildEDL(c.Request.Context(), body.Title, body.SceneIDs)
	if err != nil {
		respondError(c, err)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="fennec_export.edl"`)
	c.Data(http.StatusOK, "application/octet-stream", []byte(edl))
}
