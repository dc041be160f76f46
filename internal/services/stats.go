package services

import (
	"context"
	"time"

	"github.com/fennecvideo/fennec/internal/logger"
	"github.com/fennecvideo/fennec/internal/repos"
	"github.com/fennecvideo/fennec/internal/types"
)

// IngestStatus is the dashboard status block: indexer state, queue counts,
// scan progress and the last scan outcome.
type IngestStatus struct {
	IndexerState string               `json:"indexer_state"`
	Queue        types.QueueSnapshot  `json:"queue"`
	ScanProgress *types.ScanProgress  `json:"scan_progress"`
	LastScanAt   *time.Time           `json:"last_scan_at"`
	LastScanMS   int64                `json:"last_scan_duration_ms"`
	ModelsReady  map[string]bool      `json:"models_ready,omitempty"`
}

// StatsService aggregates the numbers the dashboard shows.
type StatsService interface {
	Stats(ctx context.Context) (*types.Stats, error)
	VectorStats(ctx context.Context) ([]types.ModelCoverage, error)
	Status(ctx context.Context) (*IngestStatus, error)
}

type statsService struct {
	files      repos.FileRepo
	scenes     repos.SceneRepo
	faces      repos.FaceRepo
	embeddings repos.EmbeddingRepo
	queue      repos.QueueRepo
	settings   SettingsService
	log        *logger.Logger
}

func NewStatsService(
	files repos.FileRepo,
	scenes repos.SceneRepo,
	faces repos.FaceRepo,
	embeddings repos.EmbeddingRepo,
	queue repos.QueueRepo,
	settings SettingsService,
	log *logger.Logger,
) StatsService {
	return &statsService{
		files:      files,
		scenes:     scenes,
		faces:      faces,
		embeddings: embeddings,
		queue:      queue,
		settings:   settings,
		log:        log.With("service", "StatsService"),
	}
}

func (s *statsService) Stats(ctx context.Context) (*types.Stats, error) {
	out := &types.Stats{}
	var err error
	if out.Files, err = s.files.CountActive(ctx, nil); err != nil {
		return nil, err
	}
	if out.Scenes, err = s.scenes.Count(ctx, nil); err != nil {
		return nil, err
	}
	if out.Faces, err = s.faces.Count(ctx, nil); err != nil {
		return nil, err
	}
	if out.TotalDurationSeconds, out.TotalFileSizeBytes, err = s.files.SumActive(ctx, nil); err != nil {
		return nil, err
	}
	return out, nil
}

// VectorStats reports per-model coverage over indexed scenes. Whisper has
// no vectors; its "found" count is scenes with a transcript. ArcFace is
// expected to be partial since most scenes contain no faces.
func (s *statsService) VectorStats(ctx context.Context) ([]types.ModelCoverage, error) {
	scanned, err := s.scenes.CountIndexed(ctx, nil)
	if err != nil {
		return nil, err
	}
	specs, err := s.settings.ModelVersions(ctx)
	if err != nil {
		return nil, err
	}
	enabled, err := s.settings.EnabledModels(ctx)
	if err != nil {
		return nil, err
	}

	coverageRows, err := s.embeddings.CoverageByModel(ctx, nil)
	if err != nil {
		return nil, err
	}
	byModel := make(map[string]repos.ModelCoverageRow, len(coverageRows))
	for _, row := range coverageRows {
		byModel[row.ModelName] = row
	}

	var out []types.ModelCoverage

	appendModel := func(name string, found int64, lastUpdated *time.Time, partial bool, totalDetected int64) {
		spec := specs[name]
		cov := 0.0
		if scanned > 0 {
			cov = float64(found) / float64(scanned)
		}
		out = append(out, types.ModelCoverage{
			Name:            name,
			Model:           name,
			Version:         spec.Version,
			Dimension:       spec.Dimension,
			Scanned:         scanned,
			Found:           found,
			Coverage:        cov,
			PartialExpected: partial,
			TotalDetected:   totalDetected,
			LastUpdated:     lastUpdated,
		})
	}

	if enabled.Clip {
		row := byModel[types.ModelClip]
		appendModel(types.ModelClip, row.Found, row.LastUpdated, false, 0)
	}
	if enabled.Whisper {
		withTranscript, err := s.scenes.CountWithTranscript(ctx, nil)
		if err != nil {
			return nil, err
		}
		// Silent footage is normal, so partial coverage is expected.
		appendModel(types.ModelWhisper, withTranscript, nil, true, 0)
	}
	if enabled.Whisper && enabled.TranscriptEmbed {
		row := byModel[types.ModelTranscript]
		appendModel(types.ModelTranscript, row.Found, row.LastUpdated, true, 0)
	}
	if enabled.ArcFace {
		scenesWithFaces, err := s.faces.CountScenesWithFaces(ctx, nil)
		if err != nil {
			return nil, err
		}
		totalFaces, err := s.faces.Count(ctx, nil)
		if err != nil {
			return nil, err
		}
		appendModel(types.ModelArcFace, scenesWithFaces, nil, true, totalFaces)
	}
	return out, nil
}

func (s *statsService) Status(ctx context.Context) (*IngestStatus, error) {
	state, err := s.settings.IndexerState(ctx)
	if err != nil {
		return nil, err
	}
	counts, err := s.queue.Counts(ctx, nil)
	if err != nil {
		return nil, err
	}
	current, err := s.queue.Current(ctx, nil)
	if err != nil {
		return nil, err
	}
	progress, err := s.settings.ScanProgress(ctx)
	if err != nil {
		return nil, err
	}
	lastScanAt, lastScanMS, err := s.settings.LastScan(ctx)
	if err != nil {
		return nil, err
	}
	return &IngestStatus{
		IndexerState: state,
		Queue: types.QueueSnapshot{
			Pending:    counts[types.QueuePending],
			Processing: counts[types.QueueProcessing],
			Complete:   counts[types.QueueComplete],
			Failed:     counts[types.QueueFailed],
			Current:    current,
		},
		ScanProgress: progress,
		LastScanAt:   lastScanAt,
		LastScanMS:   lastScanMS,
	}, nil
}
