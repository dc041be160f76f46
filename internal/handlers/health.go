package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/fennecvideo/fennec/internal/logger"
	"github.com/fennecvideo/fennec/internal/models"
	"github.com/fennecvideo/fennec/internal/services"
)

type HealthHandler struct {
	log      *logger.Logger
	db       *gorm.DB
	hosts    *models.Hosts
	settings services.SettingsService
}

func NewHealthHandler(log *logger.Logger, db *gorm.DB, hosts *models.Hosts, settings services.SettingsService) *HealthHandler {
	return &HealthHandler{
		log:      log.With("handler", "HealthHandler"),
		db:       db,
		hosts:    hosts,
		settings: settings,
	}
}

// GET /api/health
// Liveness: the process is up and the database answers.
func (h *HealthHandler) Health(c *gin.Context) {
	sqlDB, err := h.db.DB()
	if err == nil {
		err = sqlDB.PingContext(c.Request.Context())
	}
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "database": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// GET /api/ready
// Readiness: database plus every enabled model host. The UI uses this to
// decide whether to offer search.
func (h *HealthHandler) Ready(c *gin.Context) {
	ctx := c.Request.Context()

	sqlDB, err := h.db.DB()
	if err == nil {
		err = sqlDB.PingContext(ctx)
	}
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"ready": false, "database": err.Error()})
		return
	}

	enabled, err := h.settings.EnabledModels(ctx)
	if err != nil {
		respondError(c, err)
		return
	}
	readiness := h.hosts.Readiness(ctx, enabled)
	allReady := true
	for _, ok := range readiness {
		if !ok {
			allReady = false
		}
	}
	status := http.StatusOK
	if !allReady {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, gin.H{"ready": allReady, "models": readiness})
}
