package services

import (
	"context"
	"fmt"

	"github.com/fennecvideo/fennec/internal/errdefs"
	"github.com/fennecvideo/fennec/internal/logger"
	"github.com/fennecvideo/fennec/internal/repos"
	"github.com/fennecvideo/fennec/internal/types"
)

// AdminService holds the mutating control-plane operations: pause/resume,
// queue maintenance and the destructive cleanups.
type AdminService interface {
	Pause(ctx context.Context) error
	Resume(ctx context.Context) error
	RetryFailed(ctx context.Context) (int64, error)
	Requeue(ctx context.Context, fileID int64) error
	FailedJobs(ctx context.Context, limit int) ([]*types.QueueItem, error)

	// ResetProcessing force-releases jobs stuck in processing, for when a
	// worker died without settling its claim.
	ResetProcessing(ctx context.Context) (int64, error)
	// RequestRestart flags the worker loop to reset in-flight jobs and run a
	// fresh scan on its next tick.
	RequestRestart(ctx context.Context) error

	// WipeIndex drops everything except config. The next scan rebuilds
	// from disk.
	WipeIndex(ctx context.Context) error
	// PurgeDeleted hard-deletes soft-deleted files and their children.
	PurgeDeleted(ctx context.Context) (int64, error)
	// PurgeOutsideRoots hard-deletes rows that fall outside the current
	// watch folders, for after a folder is removed from config.
	PurgeOutsideRoots(ctx context.Context) (int64, error)
}

type adminService struct {
	files    repos.FileRepo
	queue    repos.QueueRepo
	admin    repos.AdminRepo
	settings SettingsService
	log      *logger.Logger
}

func NewAdminService(files repos.FileRepo, queue repos.QueueRepo, admin repos.AdminRepo, settings SettingsService, log *logger.Logger) AdminService {
	return &adminService{
		files:    files,
		queue:    queue,
		admin:    admin,
		settings: settings,
		log:      log.With("service", "AdminService"),
	}
}

func (a *adminService) Pause(ctx context.Context) error {
	a.log.Info("pausing indexer")
	return a.settings.SetIndexerState(ctx, types.IndexerPaused)
}

func (a *adminService) Resume(ctx context.Context) error {
	a.log.Info("resuming indexer")
	return a.settings.SetIndexerState(ctx, types.IndexerRunning)
}

func (a *adminService) RetryFailed(ctx context.Context) (int64, error) {
	n, err := a.queue.ResetFailed(ctx, nil)
	if err != nil {
		return 0, err
	}
	a.log.Info("requeued failed jobs", "count", n)
	return n, nil
}

func (a *adminService) Requeue(ctx context.Context, fileID int64) error {
	file, err := a.files.GetByID(ctx, nil, fileID)
	if err != nil {
		return err
	}
	if file == nil || file.DeletedAt != nil {
		return errdefs.NotFound(fmt.Sprintf("file %d", fileID))
	}
	models, err := a.settings.EnabledModels(ctx)
	if err != nil {
		return err
	}
	if err := a.files.UpdateFields(ctx, nil, fileID, map[string]interface{}{"indexed_at": nil}); err != nil {
		return err
	}
	_, err = a.queue.Enqueue(ctx, nil, fileID, totalStages(models))
	return err
}

func (a *adminService) FailedJobs(ctx context.Context, limit int) ([]*types.QueueItem, error) {
	return a.queue.ListFailed(ctx, nil, limit)
}

func (a *adminService) ResetProcessing(ctx context.Context) (int64, error) {
	n, err := a.queue.ResetProcessing(ctx, nil)
	if err != nil {
		return 0, err
	}
	a.log.Info("reset processing jobs to pending", "count", n)
	return n, nil
}

func (a *adminService) RequestRestart(ctx context.Context) error {
	a.log.Info("restart requested")
	return a.settings.SetRestartRequested(ctx, true)
}

func (a *adminService) WipeIndex(ctx context.Context) error {
	a.log.Warn("wiping index")
	return a.admin.WipeIndex(ctx, nil)
}

func (a *adminService) PurgeDeleted(ctx context.Context) (int64, error) {
	n, err := a.files.PurgeDeleted(ctx, nil)
	if err != nil {
		return 0, err
	}
	a.log.Info("purged soft-deleted files", "count", n)
	return n, nil
}

func (a *adminService) PurgeOutsideRoots(ctx context.Context) (int64, error) {
	roots, err := a.settings.WatchFolders(ctx)
	if err != nil {
		return 0, err
	}
	if len(roots) == 0 {
		return 0, errdefs.BadRequest("no watch folders configured")
	}
	n, err := a.files.PurgeOutsideRoots(ctx, nil, roots)
	if err != nil {
		return 0, err
	}
	a.log.Info("purged files outside watch folders", "count", n)
	return n, nil
}
