package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fennecvideo/fennec/internal/cache"
	"github.com/fennecvideo/fennec/internal/db"
	"github.com/fennecvideo/fennec/internal/handlers"
	"github.com/fennecvideo/fennec/internal/logger"
	"github.com/fennecvideo/fennec/internal/middleware"
	"github.com/fennecvideo/fennec/internal/models"
	"github.com/fennecvideo/fennec/internal/observability"
	"github.com/fennecvideo/fennec/internal/repos"
	"github.com/fennecvideo/fennec/internal/server"
	"github.com/fennecvideo/fennec/internal/services"
	"github.com/fennecvideo/fennec/internal/utils"
)

func main() {
	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownOtel := observability.InitOTel(ctx, log, observability.OtelConfig{
		ServiceName: "fennec-server",
		Environment: utils.GetEnv("ENVIRONMENT", "development", log),
		Version:     utils.GetEnv("VERSION", "dev", log),
	})

	// Postgres
	postgresService, err := db.NewPostgresService(log)
	if err != nil {
		log.Fatal("Postgres init failed", "error", err)
	}
	if err := postgresService.AutoMigrateAll(); err != nil {
		log.Fatal("Postgres auto migration failed", "error", err)
	}
	thePG := postgresService.DB()

	// Repos
	log.Info("Setting up repos...")
	fileRepo := repos.NewFileRepo(thePG, log)
	sceneRepo := repos.NewSceneRepo(thePG, log)
	faceRepo := repos.NewFaceRepo(thePG, log)
	embeddingRepo := repos.NewEmbeddingRepo(thePG, log)
	queueRepo := repos.NewQueueRepo(thePG, log)
	configRepo := repos.NewConfigRepo(thePG, log)
	adminRepo := repos.NewAdminRepo(thePG, log)

	// Services
	log.Info("Setting up services...")
	settingsService := services.NewSettingsService(configRepo, log)

	hosts, err := models.NewHosts(log)
	if err != nil {
		log.Fatal("model host setup failed", "error", err)
	}

	embedCache := cache.New(log)
	defer embedCache.Close()

	searchService := services.NewSearchService(sceneRepo, faceRepo, embeddingRepo, hosts, settingsService, embedCache, log)
	browseService := services.NewBrowseService(fileRepo, sceneRepo, faceRepo, embeddingRepo, log)
	statsService := services.NewStatsService(fileRepo, sceneRepo, faceRepo, embeddingRepo, queueRepo, settingsService, log)
	adminService := services.NewAdminService(fileRepo, queueRepo, adminRepo, settingsService, log)
	exportService := services.NewExportService(sceneRepo, fileRepo, log)

	// Handlers
	log.Info("Setting up handlers...")
	router := server.NewRouter(server.RouterConfig{
		HealthHandler: handlers.NewHealthHandler(log, thePG, hosts, settingsService),
		SceneHandler:  handlers.NewSceneHandler(log, browseService),
		SearchHandler: handlers.NewSearchHandler(log, searchService),
		FileHandler:   handlers.NewFileHandler(log, browseService),
		FaceHandler:   handlers.NewFaceHandler(log, browseService),
		StatsHandler:  handlers.NewStatsHandler(log, statsService),
		ConfigHandler: handlers.NewConfigHandler(log, settingsService),
		AdminHandler:  handlers.NewAdminHandler(log, adminService),
		ExportHandler: handlers.NewExportHandler(log, exportService),
		DemoGuard:     middleware.NewDemoGuard(log),
	})

	port := utils.GetEnv("PORT", "8080", log)
	srv := &http.Server{Addr: ":" + port, Handler: router}

	go func() {
		log.Info("server listening", "port", port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("server stopped", "error", err)
		}
	}()

	// In-flight requests get a grace period on SIGINT/SIGTERM.
	<-ctx.Done()
	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server shutdown", "error", err)
	}

	if shutdownOtel != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownOtel(shutdownCtx)
	}
}
