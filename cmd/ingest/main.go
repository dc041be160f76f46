package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/fennecvideo/fennec/internal/db"
	"github.com/fennecvideo/fennec/internal/logger"
	"github.com/fennecvideo/fennec/internal/models"
	"github.com/fennecvideo/fennec/internal/observability"
	"github.com/fennecvideo/fennec/internal/repos"
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
		ServiceName: "fennec-ingest",
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

	// Services
	log.Info("Setting up services...")
	settingsService := services.NewSettingsService(configRepo, log)
	if err := settingsService.Seed(ctx, loadSeed(log)); err != nil {
		log.Fatal("config seed failed", "error", err)
	}

	mediaTools := services.NewMediaToolsService(log)
	if err := mediaTools.AssertReady(ctx); err != nil {
		log.Fatal("media tools not ready", "error", err)
	}

	hosts, err := models.NewHosts(log)
	if err != nil {
		log.Fatal("model host setup failed", "error", err)
	}

	scannerService := services.NewScannerService(fileRepo, queueRepo, sceneRepo, settingsService, log)
	pipelineService := services.NewPipelineService(fileRepo, sceneRepo, faceRepo, embeddingRepo, queueRepo, mediaTools, hosts, settingsService, log)
	clusteringService := services.NewClusteringService(sceneRepo, faceRepo, embeddingRepo, log)
	schedulerService := services.NewSchedulerService(scannerService, pipelineService, clusteringService, settingsService, queueRepo, log)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return schedulerService.Run(gctx)
	})

	log.Info("ingest started")
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("ingest stopped with error", "error", err)
	}

	if shutdownOtel != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownOtel(shutdownCtx)
	}
	log.Info("ingest shut down")
}

// loadSeed builds the first-boot config. WATCH_FOLDERS wins over the seed
// file so container deployments need no mounted config.
func loadSeed(log *logger.Logger) services.SettingsSeed {
	var seed services.SettingsSeed

	seedPath := utils.GetEnv("CONFIG_SEED_PATH", "", log)
	if seedPath != "" {
		raw, err := os.ReadFile(seedPath)
		if err != nil {
			log.Warn("config seed file unreadable, using defaults", "path", seedPath, "error", err)
		} else if err := yaml.Unmarshal(raw, &seed); err != nil {
			log.Warn("config seed file invalid, using defaults", "path", seedPath, "error", err)
		}
	}

	if raw := utils.GetEnv("WATCH_FOLDERS", "", log); raw != "" {
		var folders []string
		for _, part := range strings.Split(raw, ",") {
			if part = strings.TrimSpace(part); part != "" {
				folders = append(folders, part)
			}
		}
		if len(folders) > 0 {
			seed.WatchFolders = folders
		}
	}
	return seed
}
