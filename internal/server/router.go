package server

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/fennecvideo/fennec/internal/handlers"
	"github.com/fennecvideo/fennec/internal/middleware"
)

type RouterConfig struct {
	HealthHandler *handlers.HealthHandler
	SceneHandler  *handlers.SceneHandler
	SearchHandler *handlers.SearchHandler
	FileHandler   *handlers.FileHandler
	FaceHandler   *handlers.FaceHandler
	StatsHandler  *handlers.StatsHandler
	ConfigHandler *handlers.ConfigHandler
	AdminHandler  *handlers.AdminHandler
	ExportHandler *handlers.ExportHandler
	DemoGuard     *middleware.DemoGuard
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.Default()

	router.Use(otelgin.Middleware("fennec-server"))
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{
			"http://localhost:80",
			"http://localhost:3000",
			"http://localhost:5173",
		},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", "X-Requested-With"},
		AllowCredentials: true,
	}))

	api := router.Group("/api")
	{
		api.GET("/health", cfg.HealthHandler.Health)
		api.GET("/ready", cfg.HealthHandler.Ready)

		api.GET("/scenes", cfg.SceneHandler.ListScenes)
		api.GET("/scenes/:id", cfg.SceneHandler.GetScene)
		api.GET("/scenes/:id/thumb", cfg.FileHandler.ServeThumb)

		api.POST("/search", cfg.SearchHandler.Search)

		api.GET("/files", cfg.FileHandler.ListFiles)
		api.GET("/files/:id", cfg.FileHandler.GetFile)
		api.GET("/files/:id/video", cfg.FileHandler.ServeVideo)

		api.GET("/faces", cfg.FaceHandler.ListFaces)
		api.GET("/faces/:id/thumb", cfg.FaceHandler.FaceThumb)

		api.GET("/stats", cfg.StatsHandler.GetStats)
		api.GET("/stats/vectors", cfg.StatsHandler.GetVectorStats)
		api.GET("/status", cfg.StatsHandler.GetStatus)

		api.POST("/export/edl", cfg.ExportHandler.ExportEDL)
	}

	guarded := api.Group("/")
	guarded.Use(cfg.DemoGuard.BlockMutations())
	{
		guarded.GET("config", cfg.ConfigHandler.GetConfig)
		guarded.PUT("config/watch-folders", cfg.ConfigHandler.SetWatchFolders)
		guarded.PUT("config/thresholds", cfg.ConfigHandler.SetThresholds)
		guarded.PUT("config/models", cfg.ConfigHandler.SetEnabledModels)

		guarded.POST("admin/pause", cfg.AdminHandler.Pause)
		guarded.POST("admin/resume", cfg.AdminHandler.Resume)
		guarded.GET("admin/failed", cfg.AdminHandler.ListFailed)
		guarded.POST("admin/retry-failed", cfg.AdminHandler.RetryFailed)
		guarded.POST("admin/requeue/:id", cfg.AdminHandler.Requeue)
		guarded.POST("admin/reset-processing", cfg.AdminHandler.ResetProcessing)
		guarded.POST("admin/restart", cfg.AdminHandler.Restart)
		guarded.POST("admin/wipe", cfg.AdminHandler.WipeIndex)
		guarded.POST("admin/purge-deleted", cfg.AdminHandler.PurgeDeleted)
		guarded.POST("admin/purge-outside-roots", cfg.AdminHandler.PurgeOutsideRoots)
	}

	return router
}
