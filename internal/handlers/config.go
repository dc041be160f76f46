package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/fennecvideo/fennec/internal/logger"
	"github.com/fennecvideo/fennec/internal/services"
	"github.com/fennecvideo/fennec/internal/types"
)

type ConfigHandler struct {
	log      *logger.Logger
	settings services.SettingsService
}

func NewConfigHandler(log *logger.Logger, settings services.SettingsService) *ConfigHandler {
	return &ConfigHandler{
		log:      log.With("handler", "ConfigHandler"),
		settings: settings,
	}
}

// GET /api/config
func (h *ConfigHandler) GetConfig(c *gin.Context) {
	entries, err := h.settings.All(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	out := gin.H{}
	for _, e := range entries {
		out[e.Key] = e.Value
	}
	c.JSON(http.StatusOK, out)
}

type watchFoldersBody struct {
	Folders []string `json:"folders" binding:"required"`
}

// PUT /api/config/watch-folders
func (h *ConfigHandler) SetWatchFolders(c *gin.Context) {
	var body watchFoldersBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body: " + err.Error()})
		return
	}
	if err := h.settings.SetWatchFolders(c.Request.Context(), body.Folders); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"folders": body.Folders})
}

// PUT /api/config/thresholds
func (h *ConfigHandler) SetThresholds(c *gin.Context) {
	var body types.SearchThresholds
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body: " + err.Error()})
		return
	}
	if err := h.settings.SetThresholds(c.Request.Context(), body); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, body)
}

// PUT /api/config/models
// Changing the enabled model set affects newly queued files only; existing
// enrichment is not re-run.
func (h *ConfigHandler) SetEnabledModels(c *gin.Context) {
	var body types.EnabledModels
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body: " + err.Error()})
		return
	}
	if err := h.settings.SetEnabledModels(c.Request.Context(), body); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, body)
}
