package services

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pgvector/pgvector-go"

	"github.com/fennecvideo/fennec/internal/errdefs"
	"github.com/fennecvideo/fennec/internal/logger"
	"github.com/fennecvideo/fennec/internal/models"
	"github.com/fennecvideo/fennec/internal/repos"
	"github.com/fennecvideo/fennec/internal/types"
	"github.com/fennecvideo/fennec/internal/utils"
)

const defaultSceneThreshold = 0.4

// PipelineService drains the enrichment queue one file at a time. Every
// stage is idempotent under re-run: scene detection reuses rows that already
// exist, embeddings skip when the stored model version matches the
// registry, faces are rewritten per scene. A job that dies mid-way re-enters
// at the first stage whose artifacts are missing, without duplicating
// anything the earlier run committed.
type PipelineService interface {
	// ProcessNext claims and fully processes one queue item. Returns false
	// when the queue had nothing pending.
	ProcessNext(ctx context.Context) (bool, error)
}

type pipelineService struct {
	files      repos.FileRepo
	scenes     repos.SceneRepo
	faces      repos.FaceRepo
	embeddings repos.EmbeddingRepo
	queue      repos.QueueRepo
	media      MediaToolsService
	hosts      *models.Hosts
	settings   SettingsService
	log        *logger.Logger

	postersDir string
	audioDir   string
}

func NewPipelineService(
	files repos.FileRepo,
	scenes repos.SceneRepo,
	faces repos.FaceRepo,
	embeddings repos.EmbeddingRepo,
	queue repos.QueueRepo,
	media MediaToolsService,
	hosts *models.Hosts,
	settings SettingsService,
	log *logger.Logger,
) PipelineService {
	slog := log.With("service", "PipelineService")
	return &pipelineService{
		files:      files,
		scenes:     scenes,
		faces:      faces,
		embeddings: embeddings,
		queue:      queue,
		media:      media,
		hosts:      hosts,
		settings:   settings,
		log:        slog,
		postersDir: utils.GetEnv("POSTERS_DIR", "/data/posters", log),
		audioDir:   utils.GetEnv("AUDIO_WORK_DIR", "/tmp/fennec-media", log),
	}
}

type stage struct {
	name string
	run  func(ctx context.Context, job *jobState) error
}

type jobState struct {
	item    *types.QueueItem
	file    *types.File
	scenes  []*types.Scene
	models  types.EnabledModels
	specs   map[string]types.ModelSpec
	posters types.PosterSettings
}

func (p *pipelineService) ProcessNext(ctx context.Context) (bool, error) {
	item, err := p.queue.ClaimNextPending(ctx, nil)
	if err != nil {
		return false, err
	}
	if item == nil {
		return false, nil
	}

	jobLog := p.log.With("queue_id", item.ID, "file_id", item.FileID)

	file, err := p.files.GetByID(ctx, nil, item.FileID)
	if err != nil {
		return true, err
	}
	if file == nil || file.DeletedAt != nil {
		jobLog.Warn("queued file gone, dropping job")
		return true, p.queue.Complete(ctx, nil, item.ID)
	}

	job := &jobState{item: item, file: file}
	if job.models, err = p.settings.EnabledModels(ctx); err != nil {
		return true, err
	}
	if job.specs, err = p.settings.ModelVersions(ctx); err != nil {
		return true, err
	}
	if job.posters, err = p.settings.PosterSettings(ctx); err != nil {
		return true, err
	}

	stages := p.buildStages(job.models)
	for i, st := range stages {
		if err := ctx.Err(); err != nil {
			// Shutdown mid-job: put it back untouched.
			_ = p.queue.Release(context.Background(), nil, item.ID)
			return true, err
		}
		if i > 0 {
			// Pause is observed at stage boundaries, not just between jobs.
			state, stateErr := p.settings.IndexerState(ctx)
			if stateErr != nil {
				return true, stateErr
			}
			if state == types.IndexerPaused {
				jobLog.Info("indexer paused, releasing job at stage boundary", "stage", st.name)
				return true, p.queue.Release(ctx, nil, item.ID)
			}
		}
		if err := p.queue.SetStage(ctx, nil, item.ID, st.name, i+1); err != nil {
			return true, err
		}
		jobLog.Info("stage start", "stage", st.name, "num", i+1, "total", len(stages))
		if err := st.run(ctx, job); err != nil {
			return true, p.settle(ctx, jobLog, item, st.name, err)
		}
	}

	now := time.Now()
	if err := p.files.UpdateFields(ctx, nil, file.ID, map[string]interface{}{"indexed_at": now}); err != nil {
		return true, err
	}
	if err := p.queue.Complete(ctx, nil, item.ID); err != nil {
		return true, err
	}
	jobLog.Info("file enriched", "path", file.Path, "scenes", len(job.scenes))
	return true, nil
}

// settle maps a stage error onto the queue item. Model hosts that are not
// up yet put the job back without consuming a retry; everything else is a
// failure with the stage name recorded.
func (p *pipelineService) settle(ctx context.Context, jobLog *logger.Logger, item *types.QueueItem, stageName string, err error) error {
	switch {
	case errors.Is(err, errdefs.ErrModelNotReady):
		jobLog.Warn("model host not ready, releasing job", "stage", stageName, "error", err)
		if relErr := p.queue.Release(ctx, nil, item.ID); relErr != nil {
			return relErr
		}
		// Surface the sentinel so the scheduler backs off instead of
		// re-claiming the same job in a tight loop.
		return err
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		return p.queue.Release(context.Background(), nil, item.ID)
	default:
		jobLog.Error("stage failed", "stage", stageName, "error", err)
		return p.queue.Fail(ctx, nil, item.ID, fmt.Sprintf("%s: %v", stageName, err))
	}
}

func (p *pipelineService) buildStages(enabled types.EnabledModels) []stage {
	stages := []stage{
		{types.StageMetadata, p.stageMetadata},
		{types.StageSceneDetection, p.stageSceneDetection},
		{types.StagePosterExtract, p.stagePosterExtract},
	}
	if enabled.Clip {
		stages = append(stages, stage{types.StageVisualEmbed, p.stageVisualEmbed})
	}
	if enabled.Whisper {
		stages = append(stages, stage{types.StageTranscription, p.stageTranscription})
		if enabled.TranscriptEmbed {
			stages = append(stages, stage{types.StageTranscriptEmbed, p.stageTranscriptEmbed})
		}
	}
	if enabled.ArcFace {
		stages = append(stages, stage{types.StageFaceDetection, p.stageFaceDetection})
	}
	return stages
}

func (p *pipelineService) stageMetadata(ctx context.Context, job *jobState) error {
	if _, err := os.Stat(job.file.Path); err != nil {
		return fmt.Errorf("%w: %s", errdefs.ErrMissingFile, job.file.Path)
	}
	probed, err := p.media.Probe(ctx, job.file.Path)
	if err != nil {
		return err
	}
	updates := map[string]interface{}{
		"duration_seconds": probed.DurationSeconds,
		"width":            probed.Width,
		"height":           probed.Height,
		"fps":              probed.FPS,
		"codec":            probed.Codec,
		"audio_tracks":     probed.AudioTracks,
	}
	if probed.PixFmt != "" {
		updates["pix_fmt"] = probed.PixFmt
	}
	if probed.ColorSpace != "" {
		updates["color_space"] = probed.ColorSpace
	}
	if probed.ColorTransfer != "" {
		updates["color_transfer"] = probed.ColorTransfer
	}
	if probed.ColorPrimaries != "" {
		updates["color_primaries"] = probed.ColorPrimaries
	}
	if err := p.files.UpdateFields(ctx, nil, job.file.ID, updates); err != nil {
		return err
	}
	job.file.DurationSeconds = &probed.DurationSeconds
	return nil
}

func (p *pipelineService) stageSceneDetection(ctx context.Context, job *jobState) error {
	// A re-entered job finds its scene rows from the earlier run; detecting
	// again would mint new scene ids and cascade away every embedding and
	// face attached to the old ones. The scanner deletes the scenes when the
	// file's bytes actually changed.
	existing, err := p.scenes.ListByFile(ctx, nil, job.file.ID)
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		job.scenes = existing
		return nil
	}

	duration := 0.0
	if job.file.DurationSeconds != nil {
		duration = *job.file.DurationSeconds
	}
	spans, err := p.media.DetectScenes(ctx, job.file.Path, defaultSceneThreshold, duration)
	if err != nil {
		return err
	}
	scenes := make([]*types.Scene, 0, len(spans))
	for i, span := range spans {
		scenes = append(scenes, &types.Scene{
			FileID:     job.file.ID,
			SceneIndex: i,
			StartTC:    span.Start,
			EndTC:      span.End,
		})
	}
	if err := p.scenes.ReplaceForFile(ctx, nil, job.file.ID, scenes); err != nil {
		return err
	}
	job.scenes = scenes
	return nil
}

// posterFilename is the on-disk name for a scene's poster frame.
func posterFilename(fileID int64, sceneIndex int, format string) string {
	ext := strings.ToLower(format)
	if ext == "" {
		ext = "webp"
	}
	return fmt.Sprintf("%d_%04d.%s", fileID, sceneIndex, ext)
}

func sceneMidpoint(s *types.Scene) float64 {
	return s.StartTC + (s.EndTC-s.StartTC)/2
}

func (p *pipelineService) stagePosterExtract(ctx context.Context, job *jobState) error {
	for _, scene := range job.scenes {
		if scene.PosterFramePath != nil {
			if _, err := os.Stat(*scene.PosterFramePath); err == nil {
				continue
			}
		}
		outPath := filepath.Join(p.postersDir, posterFilename(job.file.ID, scene.SceneIndex, job.posters.Format))
		if err := p.media.ExtractPoster(ctx, job.file.Path, sceneMidpoint(scene), outPath, job.posters); err != nil {
			return err
		}
		if err := p.scenes.UpdateFields(ctx, nil, scene.ID, map[string]interface{}{"poster_frame_path": outPath}); err != nil {
			return err
		}
		scene.PosterFramePath = &outPath
	}
	return nil
}

func (p *pipelineService) stageVisualEmbed(ctx context.Context, job *jobState) error {
	spec := job.specs[types.ModelClip]
	for _, scene := range job.scenes {
		current, err := p.embeddings.GetBySceneModel(ctx, nil, scene.ID, types.ModelClip)
		if err != nil {
			return err
		}
		if current != nil && current.ModelVersion == spec.Version {
			continue
		}
		poster, err := p.posterBytes(scene)
		if err != nil {
			return err
		}
		vec, err := p.hosts.Visual.EmbedImage(ctx, poster)
		if err != nil {
			return err
		}
		if err := p.upsertEmbedding(ctx, scene.ID, types.ModelClip, spec, vec); err != nil {
			return err
		}
	}
	return nil
}

// posterBytes reads a scene's stored poster frame. The visual and face
// models both consume the poster, not a fresh full-resolution grab, so face
// boxes land in poster pixel space.
func (p *pipelineService) posterBytes(scene *types.Scene) ([]byte, error) {
	if scene.PosterFramePath == nil {
		return nil, fmt.Errorf("%w: scene %d has no poster frame", errdefs.ErrStageTransient, scene.ID)
	}
	data, err := os.ReadFile(*scene.PosterFramePath)
	if err != nil {
		return nil, fmt.Errorf("%w: read poster for scene %d: %v", errdefs.ErrStageTransient, scene.ID, err)
	}
	return data, nil
}

func (p *pipelineService) stageTranscription(ctx context.Context, job *jobState) error {
	if job.file.AudioTracks != nil && *job.file.AudioTracks == 0 {
		return nil
	}
	wavPath := filepath.Join(p.audioDir, fmt.Sprintf("%d.wav", job.file.ID))
	if _, err := p.media.ExtractAudio(ctx, job.file.Path, wavPath); err != nil {
		return err
	}
	defer os.Remove(wavPath)

	segments, err := p.hosts.Speech.Transcribe(ctx, wavPath)
	if err != nil {
		return err
	}

	for _, scene := range job.scenes {
		text := transcriptForSpan(segments, scene.StartTC, scene.EndTC)
		var value interface{}
		if text != "" {
			value = text
			scene.Transcript = &text
		} else {
			scene.Transcript = nil
		}
		if err := p.scenes.UpdateFields(ctx, nil, scene.ID, map[string]interface{}{"transcript": value}); err != nil {
			return err
		}
	}
	return nil
}

// transcriptForSpan joins the segments that overlap [start, end). A segment
// belongs to every scene it overlaps, so dialog crossing a cut is
// searchable from both sides.
func transcriptForSpan(segments []models.TranscriptSegment, start, end float64) string {
	var parts []string
	for _, seg := range segments {
		if seg.EndSec <= start || seg.StartSec >= end {
			continue
		}
		if text := strings.TrimSpace(seg.Text); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, " ")
}

func (p *pipelineService) stageTranscriptEmbed(ctx context.Context, job *jobState) error {
	spec := job.specs[types.ModelTranscript]
	for _, scene := range job.scenes {
		if scene.Transcript == nil || strings.TrimSpace(*scene.Transcript) == "" {
			continue
		}
		current, err := p.embeddings.GetBySceneModel(ctx, nil, scene.ID, types.ModelTranscript)
		if err != nil {
			return err
		}
		if current != nil && current.ModelVersion == spec.Version {
			continue
		}
		vec, err := p.hosts.Text.EmbedText(ctx, *scene.Transcript)
		if err != nil {
			return err
		}
		if err := p.upsertEmbedding(ctx, scene.ID, types.ModelTranscript, spec, vec); err != nil {
			return err
		}
	}
	return nil
}

func (p *pipelineService) stageFaceDetection(ctx context.Context, job *jobState) error {
	for _, scene := range job.scenes {
		poster, err := p.posterBytes(scene)
		if err != nil {
			return err
		}
		detections, err := p.hosts.Face.DetectFaces(ctx, poster)
		if err != nil {
			return err
		}
		if err := p.faces.DeleteForScene(ctx, nil, scene.ID); err != nil {
			return err
		}
		rows := make([]*types.Face, 0, len(detections))
		for _, d := range detections {
			rows = append(rows, &types.Face{
				SceneID:   scene.ID,
				BBoxX:     d.BBox[0],
				BBoxY:     d.BBox[1],
				BBoxW:     d.BBox[2],
				BBoxH:     d.BBox[3],
				Embedding: pgvector.NewVector(d.Embedding),
			})
		}
		if err := p.faces.CreateBatch(ctx, nil, rows); err != nil {
			return err
		}
	}
	return nil
}

func (p *pipelineService) upsertEmbedding(ctx context.Context, sceneID int64, modelName string, spec types.ModelSpec, vec []float32) error {
	if len(vec) == 0 {
		return fmt.Errorf("%w: empty %s embedding for scene %d", errdefs.ErrStageTransient, modelName, sceneID)
	}
	return p.embeddings.Upsert(ctx, nil, &types.Embedding{
		SceneID:      sceneID,
		ModelName:    modelName,
		ModelVersion: spec.Version,
		Dimension:    len(vec),
		Embedding:    pgvector.NewVector(vec),
		CreatedAt:    time.Now(),
	})
}
