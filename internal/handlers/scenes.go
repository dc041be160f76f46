package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/fennecvideo/fennec/internal/logger"
	"github.com/fennecvideo/fennec/internal/services"
)

type SceneHandler struct {
	log    *logger.Logger
	browse services.BrowseService
}

func NewSceneHandler(log *logger.Logger, browse services.BrowseService) *SceneHandler {
	return &SceneHandler{
		log:    log.With("handler", "SceneHandler"),
		browse: browse,
	}
}

// GET /api/scenes?limit=&offset=
// The scene wall: paged completed scenes with file metadata and faces.
func (h *SceneHandler) ListScenes(c *gin.Context) {
	limit := queryInt(c, "limit", 100)
	offset := queryInt(c, "offset", 0)
	page, err := h.browse.Scenes(c.Request.Context(), limit, offset)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

// GET /api/scenes/:id
func (h *SceneHandler) GetScene(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	detail, err := h.browse.Scene(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, detail)
}
