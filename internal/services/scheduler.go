package services

import (
	"context"
	"errors"
	"time"

	"github.com/fennecvideo/fennec/internal/errdefs"
	"github.com/fennecvideo/fennec/internal/logger"
	"github.com/fennecvideo/fennec/internal/repos"
	"github.com/fennecvideo/fennec/internal/types"
)

const (
	schedulerTick  = 5 * time.Second
	stuckJobMaxAge = 2 * time.Hour
)

// SchedulerService is the single ingest loop: scan on the poll interval,
// drain the queue between scans, recluster after activity. Exactly one
// instance runs per deployment; the DB-level claim makes an accidental
// second instance safe, not useful.
type SchedulerService interface {
	Run(ctx context.Context) error
}

type schedulerService struct {
	scanner    ScannerService
	pipeline   PipelineService
	clustering ClusteringService
	settings   SettingsService
	queue      repos.QueueRepo
	log        *logger.Logger
}

func NewSchedulerService(
	scanner ScannerService,
	pipeline PipelineService,
	clustering ClusteringService,
	settings SettingsService,
	queue repos.QueueRepo,
	log *logger.Logger,
) SchedulerService {
	return &schedulerService{
		scanner:    scanner,
		pipeline:   pipeline,
		clustering: clustering,
		settings:   settings,
		queue:      queue,
		log:        log.With("service", "SchedulerService"),
	}
}

func (s *schedulerService) Run(ctx context.Context) error {
	// Jobs left in processing by a crash go back to pending before the
	// loop starts, so nothing waits on a worker that no longer exists.
	if n, err := s.queue.ResetProcessing(ctx, nil); err != nil {
		return err
	} else if n > 0 {
		s.log.Warn("reset orphaned processing jobs", "count", n)
	}

	var lastScan time.Time
	ticker := time.NewTicker(schedulerTick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		state, err := s.settings.IndexerState(ctx)
		if err != nil {
			s.log.Error("read indexer state", "error", err)
			continue
		}
		if state == types.IndexerPaused {
			continue
		}

		// An operator restart resets in-flight jobs and forces a scan on
		// this tick.
		if restart, err := s.settings.RestartRequested(ctx); err != nil {
			s.log.Error("read restart flag", "error", err)
		} else if restart {
			if err := s.settings.SetRestartRequested(ctx, false); err != nil {
				s.log.Error("clear restart flag", "error", err)
			}
			if n, err := s.queue.ResetProcessing(ctx, nil); err != nil {
				s.log.Error("reset processing jobs", "error", err)
			} else {
				s.log.Info("restart: reset processing jobs", "count", n)
			}
			lastScan = time.Time{}
		}

		interval, err := s.settings.PollInterval(ctx)
		if err != nil {
			s.log.Error("read poll interval", "error", err)
			continue
		}

		activity := false
		if time.Since(lastScan) >= interval {
			summary, err := s.scanner.Scan(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				s.log.Error("scan failed", "error", err)
			} else {
				lastScan = time.Now()
				activity = summary.New+summary.Updated+summary.MarkedMissing > 0
			}
		}

		// Long-running guard: anything stuck in processing past the cap
		// goes back to pending. Happens if a previous stage wedged ffmpeg.
		if n, err := s.queue.ResetStuck(ctx, nil, stuckJobMaxAge); err != nil {
			s.log.Error("reset stuck jobs", "error", err)
		} else if n > 0 {
			s.log.Warn("reset stuck jobs", "count", n)
		}

		drained, err := s.drain(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.log.Error("queue drain failed", "error", err)
		}
		activity = activity || drained > 0

		if activity {
			if err := s.clustering.ReclusterScenes(ctx); err != nil {
				s.log.Error("scene clustering failed", "error", err)
			}
			if err := s.clustering.ReclusterFaces(ctx); err != nil {
				s.log.Error("face clustering failed", "error", err)
			}
		}
	}
}

// drain processes queue items until the queue is empty, the indexer is
// paused, or the context ends. Returns how many items were processed.
func (s *schedulerService) drain(ctx context.Context) (int, error) {
	processed := 0
	for {
		if err := ctx.Err(); err != nil {
			return processed, err
		}
		state, err := s.settings.IndexerState(ctx)
		if err != nil {
			return processed, err
		}
		if state == types.IndexerPaused {
			return processed, nil
		}
		ok, err := s.pipeline.ProcessNext(ctx)
		if errors.Is(err, errdefs.ErrModelNotReady) {
			s.log.Warn("model hosts not ready, pausing drain until next tick")
			return processed, nil
		}
		if err != nil {
			return processed, err
		}
		if !ok {
			return processed, nil
		}
		processed++
	}
}
