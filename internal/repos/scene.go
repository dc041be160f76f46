package repos

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/fennecvideo/fennec/internal/logger"
	"github.com/fennecvideo/fennec/internal/types"
)

type SceneRepo interface {
	// ReplaceForFile deletes any existing scenes for the file and inserts the
	// given set in one transaction. Scene detection re-runs land here, so
	// re-processing never duplicates rows.
	ReplaceForFile(ctx context.Context, tx *gorm.DB, fileID int64, scenes []*types.Scene) error
	DeleteForFile(ctx context.Context, tx *gorm.DB, fileID int64) error
	ListByFile(ctx context.Context, tx *gorm.DB, fileID int64) ([]*types.Scene, error)
	GetByID(ctx context.Context, tx *gorm.DB, id int64) (*types.Scene, error)
	GetByFileIndex(ctx context.Context, tx *gorm.DB, fileID int64, sceneIndex int) (*types.Scene, error)
	UpdateFields(ctx context.Context, tx *gorm.DB, id int64, updates map[string]interface{}) error
	UpdateCluster(ctx context.Context, tx *gorm.DB, id int64, clusterID int, clusterOrder float64) error

	// ListCompleted is the browse projection: scenes of non-deleted,
	// fully-enriched files joined with their file metadata, ordered by file
	// id then scene index.
	ListCompleted(ctx context.Context, tx *gorm.DB, limit, offset int) ([]*types.SceneResult, error)

	// ListFiltered fetches result rows for the search surface: optional
	// candidate id set plus metadata predicates, same projection as
	// ListCompleted. Ordering is left to the caller.
	ListFiltered(ctx context.Context, tx *gorm.DB, f types.SceneFilter) ([]*types.SceneResult, error)
	CountCompleted(ctx context.Context, tx *gorm.DB) (int64, error)
	Count(ctx context.Context, tx *gorm.DB) (int64, error)
	CountIndexed(ctx context.Context, tx *gorm.DB) (int64, error)
	CountWithTranscript(ctx context.Context, tx *gorm.DB) (int64, error)
}

type sceneRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewSceneRepo(db *gorm.DB, baseLog *logger.Logger) SceneRepo {
	return &sceneRepo{db: db, log: baseLog.With("repo", "SceneRepo")}
}

func (r *sceneRepo) conn(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return r.db
}

const sceneResultColumns = `
	s.id, s.scene_index, s.start_tc AS start_time, s.end_tc AS end_time,
	s.transcript, s.poster_frame_path,
	s.clip_cluster_id, s.clip_cluster_order,
	f.id AS file_id, f.filename, f.path, f.duration_seconds,
	f.width, f.height, f.fps, f.codec, f.audio_tracks,
	f.file_size_bytes, f.file_modified_at`

func (r *sceneRepo) ReplaceForFile(ctx context.Context, tx *gorm.DB, fileID int64, scenes []*types.Scene) error {
	return r.conn(tx).WithContext(ctx).Transaction(func(txx *gorm.DB) error {
		if err := txx.Where("file_id = ?", fileID).Delete(&types.Scene{}).Error; err != nil {
			return err
		}
		if len(scenes) == 0 {
			return nil
		}
		return txx.CreateInBatches(scenes, 200).Error
	})
}

func (r *sceneRepo) DeleteForFile(ctx context.Context, tx *gorm.DB, fileID int64) error {
	return r.conn(tx).WithContext(ctx).
		Where("file_id = ?", fileID).
		Delete(&types.Scene{}).Error
}

func (r *sceneRepo) ListByFile(ctx context.Context, tx *gorm.DB, fileID int64) ([]*types.Scene, error) {
	var out []*types.Scene
	err := r.conn(tx).WithContext(ctx).
		Where("file_id = ?", fileID).
		Order("scene_index ASC").
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *sceneRepo) GetByID(ctx context.Context, tx *gorm.DB, id int64) (*types.Scene, error) {
	var s types.Scene
	err := r.conn(tx).WithContext(ctx).First(&s, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *sceneRepo) GetByFileIndex(ctx context.Context, tx *gorm.DB, fileID int64, sceneIndex int) (*types.Scene, error) {
	var s types.Scene
	err := r.conn(tx).WithContext(ctx).
		First(&s, "file_id = ? AND scene_index = ?", fileID, sceneIndex).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *sceneRepo) UpdateFields(ctx context.Context, tx *gorm.DB, id int64, updates map[string]interface{}) error {
	if len(updates) == 0 {
		return nil
	}
	return r.conn(tx).WithContext(ctx).Model(&types.Scene{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *sceneRepo) UpdateCluster(ctx context.Context, tx *gorm.DB, id int64, clusterID int, clusterOrder float64) error {
	return r.conn(tx).WithContext(ctx).Model(&types.Scene{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"clip_cluster_id":    clusterID,
			"clip_cluster_order": clusterOrder,
		}).Error
}

func (r *sceneRepo) completedBase(ctx context.Context, tx *gorm.DB) *gorm.DB {
	return r.conn(tx).WithContext(ctx).
		Table("scenes s").
		Joins("JOIN files f ON f.id = s.file_id").
		Where("f.deleted_at IS NULL").
		Where("f.indexed_at IS NOT NULL")
}

func (r *sceneRepo) ListCompleted(ctx context.Context, tx *gorm.DB, limit, offset int) ([]*types.SceneResult, error) {
	var out []*types.SceneResult
	err := r.completedBase(ctx, tx).
		Select(sceneResultColumns).
		Order("f.id ASC, s.scene_index ASC").
		Limit(limit).Offset(offset).
		Scan(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *sceneRepo) ListFiltered(ctx context.Context, tx *gorm.DB, f types.SceneFilter) ([]*types.SceneResult, error) {
	q := r.completedBase(ctx, tx).Select(sceneResultColumns)

	if f.SceneIDs != nil {
		if len(f.SceneIDs) == 0 {
			return nil, nil
		}
		q = q.Where("s.id IN ?", f.SceneIDs)
	}
	if f.DialogKeyword != nil && *f.DialogKeyword != "" {
		q = q.Where("s.transcript ILIKE ?", "%"+*f.DialogKeyword+"%")
	}
	if f.Path != nil && *f.Path != "" {
		q = q.Where("f.path ILIKE ?", "%"+*f.Path+"%")
	}
	if f.Codec != nil && *f.Codec != "" {
		q = q.Where("f.codec = ?", *f.Codec)
	}
	if f.FPSMin != nil {
		q = q.Where("f.fps >= ?", *f.FPSMin)
	}
	if f.FPSMax != nil {
		q = q.Where("f.fps <= ?", *f.FPSMax)
	}
	if f.DurationMin != nil {
		q = q.Where("f.duration_seconds >= ?", *f.DurationMin)
	}
	if f.DurationMax != nil {
		q = q.Where("f.duration_seconds <= ?", *f.DurationMax)
	}
	if f.WidthMin != nil {
		q = q.Where("f.width >= ?", *f.WidthMin)
	}
	if f.HeightMin != nil {
		q = q.Where("f.height >= ?", *f.HeightMin)
	}
	// Timecode window: keep scenes that overlap [TCMin, TCMax].
	if f.TCMin != nil {
		q = q.Where("s.end_tc > ?", *f.TCMin)
	}
	if f.TCMax != nil {
		q = q.Where("s.start_tc < ?", *f.TCMax)
	}
	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}

	var out []*types.SceneResult
	if err := q.Order("f.id ASC, s.scene_index ASC").Scan(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *sceneRepo) CountCompleted(ctx context.Context, tx *gorm.DB) (int64, error) {
	var n int64
	err := r.completedBase(ctx, tx).Count(&n).Error
	return n, err
}

func (r *sceneRepo) Count(ctx context.Context, tx *gorm.DB) (int64, error) {
	var n int64
	err := r.conn(tx).WithContext(ctx).Model(&types.Scene{}).Count(&n).Error
	return n, err
}

func (r *sceneRepo) CountWithTranscript(ctx context.Context, tx *gorm.DB) (int64, error) {
	var n int64
	err := r.conn(tx).WithContext(ctx).Model(&types.Scene{}).
		Where("transcript IS NOT NULL AND transcript <> ''").
		Count(&n).Error
	return n, err
}

func (r *sceneRepo) CountIndexed(ctx context.Context, tx *gorm.DB) (int64, error) {
	var n int64
	err := r.conn(tx).WithContext(ctx).
		Table("scenes s").
		Joins("JOIN files f ON f.id = s.file_id").
		Where("f.indexed_at IS NOT NULL").
		Count(&n).Error
	return n, err
}
