package services

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/fennecvideo/fennec/internal/logger"
	"github.com/fennecvideo/fennec/internal/repos"
	"github.com/fennecvideo/fennec/internal/types"
)

// videoExtensions are the container suffixes the scanner treats as video.
// Everything else is ignored without logging.
var videoExtensions = map[string]bool{
	".mp4": true, ".mov": true, ".m4v": true, ".3gp": true, ".3g2": true,
	".avi": true, ".mkv": true, ".webm": true, ".mxf": true, ".wmv": true,
	".asf": true, ".flv": true, ".ts": true, ".m2ts": true, ".mts": true,
	".mpg": true, ".mpeg": true, ".vob": true, ".ogv": true, ".rm": true,
	".rmvb": true, ".wtv": true, ".dv": true, ".mj2": true, ".bik": true,
	".bk2": true,
}

// ScanSummary is what one full scan pass reports back.
type ScanSummary struct {
	ScanID       string
	DirsScanned  int
	FilesFound   int
	New          int
	Updated      int
	Skipped      int
	Resurrected  int
	MarkedMissing int
	Took         time.Duration
}

// ScannerService walks the watch folders and reconciles the files table
// with what is on disk. Probing is deferred to the metadata stage, so a
// scan only ever stats files.
type ScannerService interface {
	// Scan runs one full pass: discover, classify, then check for files
	// that vanished. New and changed files land on the enrichment queue.
	Scan(ctx context.Context) (*ScanSummary, error)
}

type scannerService struct {
	files    repos.FileRepo
	queue    repos.QueueRepo
	scenes   repos.SceneRepo
	settings SettingsService
	log      *logger.Logger
}

func NewScannerService(files repos.FileRepo, queue repos.QueueRepo, scenes repos.SceneRepo, settings SettingsService, log *logger.Logger) ScannerService {
	return &scannerService{
		files:    files,
		queue:    queue,
		scenes:   scenes,
		settings: settings,
		log:      log.With("service", "ScannerService"),
	}
}

func IsVideoFile(path string) bool {
	return videoExtensions[strings.ToLower(filepath.Ext(path))]
}

// totalStages is the queue's stage denominator for the current model
// config: three fixed stages plus one per enabled model. Transcript
// embedding only counts when transcription itself is on, since it consumes
// the transcript.
func totalStages(models types.EnabledModels) int {
	n := 3
	if models.Clip {
		n++
	}
	if models.Whisper {
		n++
		if models.TranscriptEmbed {
			n++
		}
	}
	if models.ArcFace {
		n++
	}
	return n
}

func (s *scannerService) Scan(ctx context.Context) (*ScanSummary, error) {
	started := time.Now()
	summary := &ScanSummary{ScanID: uuid.NewString()}

	folders, err := s.settings.WatchFolders(ctx)
	if err != nil {
		return nil, err
	}
	models, err := s.settings.EnabledModels(ctx)
	if err != nil {
		return nil, err
	}
	stages := totalStages(models)

	progress := &types.ScanProgress{ScanID: summary.ScanID, Phase: types.ScanDiscovering}
	if err := s.settings.SetScanProgress(ctx, progress); err != nil {
		return nil, err
	}

	// Unmounted or misconfigured roots must not cascade into mass
	// soft-deletes, so a folder that fails to stat skips the missing check
	// for its whole subtree.
	var accessibleRoots []string
	var discovered []discoveredFile
	for _, folder := range folders {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		info, statErr := os.Stat(folder)
		if statErr != nil || !info.IsDir() {
			s.log.Warn("watch folder not accessible, skipping", "folder", folder, "error", statErr)
			continue
		}
		accessibleRoots = append(accessibleRoots, folder)

		progress.CurrentFolder = folder
		_ = s.settings.SetScanProgress(ctx, progress)

		found, dirs, walkErr := s.discover(ctx, folder)
		if walkErr != nil {
			return nil, walkErr
		}
		discovered = append(discovered, found...)
		summary.DirsScanned += dirs
	}
	summary.FilesFound = len(discovered)
	progress.Phase = types.ScanProcessing
	progress.CurrentFolder = ""
	progress.DirsScanned = summary.DirsScanned
	progress.FilesFound = summary.FilesFound
	_ = s.settings.SetScanProgress(ctx, progress)

	seen := make(map[string]bool, len(discovered))
	for _, df := range discovered {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		seen[df.path] = true
		outcome, err := s.reconcile(ctx, df, stages)
		if err != nil {
			return nil, err
		}
		switch outcome {
		case fileNew:
			summary.New++
		case fileUpdated:
			summary.Updated++
		case fileResurrected:
			summary.Resurrected++
		case fileSkipped:
			summary.Skipped++
		}
		summary.update(progress)
		if (summary.New+summary.Updated+summary.Skipped+summary.Resurrected)%100 == 0 {
			_ = s.settings.SetScanProgress(ctx, progress)
		}
	}

	progress.Phase = types.ScanCheckingMissing
	_ = s.settings.SetScanProgress(ctx, progress)

	missing, err := s.markMissing(ctx, seen, accessibleRoots)
	if err != nil {
		return nil, err
	}
	summary.MarkedMissing = missing

	summary.Took = time.Since(started)
	progress.Phase = types.ScanComplete
	_ = s.settings.SetScanProgress(ctx, progress)
	if err := s.settings.RecordScanFinished(ctx, time.Now(), summary.Took); err != nil {
		return nil, err
	}

	s.log.Info("scan complete",
		"scan_id", summary.ScanID,
		"found", summary.FilesFound,
		"new", summary.New,
		"updated", summary.Updated,
		"skipped", summary.Skipped,
		"resurrected", summary.Resurrected,
		"missing", summary.MarkedMissing,
		"took", summary.Took)
	return summary, nil
}

func (sum *ScanSummary) update(p *types.ScanProgress) {
	// A resurrected file reports as new, so processed always equals
	// new + updated + skipped.
	p.FilesProcessed = sum.New + sum.Updated + sum.Skipped + sum.Resurrected
	p.FilesNew = sum.New + sum.Resurrected
	p.FilesUpdated = sum.Updated
	p.FilesSkipped = sum.Skipped
}

type discoveredFile struct {
	path    string
	size    int64
	modTime time.Time
}

func (s *scannerService) discover(ctx context.Context, root string) ([]discoveredFile, int, error) {
	var out []discoveredFile
	dirs := 0
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// Permission problems on a subdir should not kill the scan.
			s.log.Warn("walk error, skipping entry", "path", path, "error", err)
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			// Hidden directories are never indexed.
			if name := d.Name(); name != "." && strings.HasPrefix(name, ".") {
				return fs.SkipDir
			}
			dirs++
			return nil
		}
		if strings.HasPrefix(d.Name(), ".") || !IsVideoFile(path) {
			return nil
		}
		info, infoErr := d.Info()
		if infoErr != nil {
			s.log.Warn("stat failed, skipping file", "path", path, "error", infoErr)
			return nil
		}
		out = append(out, discoveredFile{path: path, size: info.Size(), modTime: info.ModTime()})
		return nil
	})
	if err != nil {
		return nil, dirs, err
	}
	return out, dirs, nil
}

type reconcileOutcome int

const (
	fileSkipped reconcileOutcome = iota
	fileNew
	fileUpdated
	fileResurrected
)

// reconcile classifies one on-disk file against the database. Change
// detection is (size, mtime); content hashing would defeat the instant-scan
// goal on network mounts.
func (s *scannerService) reconcile(ctx context.Context, df discoveredFile, stages int) (reconcileOutcome, error) {
	existing, err := s.files.GetByPath(ctx, nil, df.path)
	if err != nil {
		return fileSkipped, err
	}

	if existing == nil {
		mod := df.modTime
		created := df.modTime
		f := &types.File{
			Path:           df.path,
			Filename:       filepath.Base(df.path),
			ParentFolder:   filepath.Base(filepath.Dir(df.path)),
			FileSizeBytes:  df.size,
			FileModifiedAt: &mod,
			FileCreatedAt:  &created,
		}
		if _, err := s.files.Create(ctx, nil, f); err != nil {
			return fileSkipped, err
		}
		if _, err := s.queue.Enqueue(ctx, nil, f.ID, stages); err != nil {
			return fileSkipped, err
		}
		return fileNew, nil
	}

	changed := existing.FileSizeBytes != df.size ||
		existing.FileModifiedAt == nil ||
		!existing.FileModifiedAt.Equal(df.modTime)

	if existing.DeletedAt != nil {
		// Same path came back. Clear the tombstone; re-enrich only if the
		// bytes changed while it was gone.
		updates := map[string]interface{}{
			"deleted_at":       nil,
			"file_size_bytes":  df.size,
			"file_modified_at": df.modTime,
		}
		if changed {
			updates["indexed_at"] = nil
		}
		if err := s.files.UpdateFields(ctx, nil, existing.ID, updates); err != nil {
			return fileSkipped, err
		}
		if changed {
			// Stale artifacts from the previous bytes must not survive;
			// deleting the scenes cascades to embeddings and faces.
			if err := s.scenes.DeleteForFile(ctx, nil, existing.ID); err != nil {
				return fileSkipped, err
			}
			if _, err := s.queue.Enqueue(ctx, nil, existing.ID, stages); err != nil {
				return fileSkipped, err
			}
		}
		return fileResurrected, nil
	}

	if changed {
		if err := s.files.UpdateFields(ctx, nil, existing.ID, map[string]interface{}{
			"file_size_bytes":  df.size,
			"file_modified_at": df.modTime,
			"indexed_at":       nil,
		}); err != nil {
			return fileSkipped, err
		}
		// The old scene set belongs to the old bytes. Drop it so the next
		// enrichment re-detects instead of reusing stale rows.
		if err := s.scenes.DeleteForFile(ctx, nil, existing.ID); err != nil {
			return fileSkipped, err
		}
		if _, err := s.queue.Enqueue(ctx, nil, existing.ID, stages); err != nil {
			return fileSkipped, err
		}
		return fileUpdated, nil
	}

	// Unchanged but never enriched (crash before completion, or enqueued
	// while paused). Make sure it still has a queue row.
	if existing.IndexedAt == nil {
		item, err := s.queue.GetByFileID(ctx, nil, existing.ID)
		if err != nil {
			return fileSkipped, err
		}
		if item == nil {
			if _, err := s.queue.Enqueue(ctx, nil, existing.ID, stages); err != nil {
				return fileSkipped, err
			}
		}
	}
	return fileSkipped, nil
}

// markMissing soft-deletes rows whose path no longer exists on disk, but
// only under roots that were actually reachable this pass.
func (s *scannerService) markMissing(ctx context.Context, seen map[string]bool, accessibleRoots []string) (int, error) {
	if len(accessibleRoots) == 0 {
		return 0, nil
	}
	active, err := s.files.ListActive(ctx, nil)
	if err != nil {
		return 0, err
	}
	marked := 0
	for _, f := range active {
		if err := ctx.Err(); err != nil {
			return marked, err
		}
		if seen[f.Path] {
			continue
		}
		if !underAnyRoot(f.Path, accessibleRoots) {
			continue
		}
		if _, statErr := os.Stat(f.Path); statErr == nil {
			continue
		}
		if err := s.files.MarkDeleted(ctx, nil, f.ID); err != nil {
			return marked, err
		}
		if err := s.queue.DeleteForFile(ctx, nil, f.ID); err != nil {
			return marked, err
		}
		marked++
	}
	return marked, nil
}

func underAnyRoot(path string, roots []string) bool {
	for _, root := range roots {
		prefix := strings.TrimRight(root, "/") + "/"
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}
