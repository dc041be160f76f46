package repos

import (
	"context"
	"errors"

	"github.com/pgvector/pgvector-go"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/fennecvideo/fennec/internal/logger"
	"github.com/fennecvideo/fennec/internal/types"
)

type FaceRepo interface {
	CreateBatch(ctx context.Context, tx *gorm.DB, faces []*types.Face) error
	DeleteForScene(ctx context.Context, tx *gorm.DB, sceneID int64) error
	DeleteForFile(ctx context.Context, tx *gorm.DB, fileID int64) error
	ListByScene(ctx context.Context, tx *gorm.DB, sceneID int64) ([]*types.Face, error)
	ListByScenes(ctx context.Context, tx *gorm.DB, sceneIDs []int64) (map[int64][]types.FaceRef, error)
	GetByID(ctx context.Context, tx *gorm.DB, id int64) (*types.Face, error)
	GetBySceneIndex(ctx context.Context, tx *gorm.DB, sceneID int64, faceIndex int) (*types.Face, error)
	ListAll(ctx context.Context, tx *gorm.DB) ([]*types.Face, error)
	ListRecent(ctx context.Context, tx *gorm.DB, limit int) ([]*types.Face, error)
	UpdateCluster(ctx context.Context, tx *gorm.DB, id int64, clusterID int, clusterOrder float64) error

	// Nearest runs a cosine nearest-neighbour search over all faces of
	// non-deleted files and keeps hits at or above the threshold.
	Nearest(ctx context.Context, tx *gorm.DB, query pgvector.Vector, threshold float64, limit int) ([]types.FaceHit, error)

	Count(ctx context.Context, tx *gorm.DB) (int64, error)
	CountScenesWithFaces(ctx context.Context, tx *gorm.DB) (int64, error)
}

type faceRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewFaceRepo(db *gorm.DB, baseLog *logger.Logger) FaceRepo {
	return &faceRepo{db: db, log: baseLog.With("repo", "FaceRepo")}
}

func (r *faceRepo) conn(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return r.db
}

func (r *faceRepo) CreateBatch(ctx context.Context, tx *gorm.DB, faces []*types.Face) error {
	if len(faces) == 0 {
		return nil
	}
	return r.conn(tx).WithContext(ctx).CreateInBatches(faces, 200).Error
}

func (r *faceRepo) DeleteForScene(ctx context.Context, tx *gorm.DB, sceneID int64) error {
	return r.conn(tx).WithContext(ctx).
		Where("scene_id = ?", sceneID).
		Delete(&types.Face{}).Error
}

func (r *faceRepo) DeleteForFile(ctx context.Context, tx *gorm.DB, fileID int64) error {
	return r.conn(tx).WithContext(ctx).
		Where("scene_id IN (?)",
			r.conn(tx).Model(&types.Scene{}).Select("id").Where("file_id = ?", fileID)).
		Delete(&types.Face{}).Error
}

func (r *faceRepo) ListByScene(ctx context.Context, tx *gorm.DB, sceneID int64) ([]*types.Face, error) {
	var out []*types.Face
	err := r.conn(tx).WithContext(ctx).
		Where("scene_id = ?", sceneID).
		Order("id ASC").
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *faceRepo) ListByScenes(ctx context.Context, tx *gorm.DB, sceneIDs []int64) (map[int64][]types.FaceRef, error) {
	out := make(map[int64][]types.FaceRef, len(sceneIDs))
	if len(sceneIDs) == 0 {
		return out, nil
	}
	var faces []*types.Face
	err := r.conn(tx).WithContext(ctx).
		Select("id", "scene_id", "bbox_x", "bbox_y", "bbox_w", "bbox_h").
		Where("scene_id IN ?", sceneIDs).
		Order("id ASC").
		Find(&faces).Error
	if err != nil {
		return nil, err
	}
	for _, f := range faces {
		out[f.SceneID] = append(out[f.SceneID], types.FaceRef{ID: f.ID, BBox: f.BBox()})
	}
	return out, nil
}

func (r *faceRepo) GetByID(ctx context.Context, tx *gorm.DB, id int64) (*types.Face, error) {
	var f types.Face
	err := r.conn(tx).WithContext(ctx).First(&f, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &f, nil
}

func (r *faceRepo) GetBySceneIndex(ctx context.Context, tx *gorm.DB, sceneID int64, faceIndex int) (*types.Face, error) {
	var out []*types.Face
	err := r.conn(tx).WithContext(ctx).
		Where("scene_id = ?", sceneID).
		Order("id ASC").
		Offset(faceIndex).Limit(1).
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out[0], nil
}

func (r *faceRepo) ListAll(ctx context.Context, tx *gorm.DB) ([]*types.Face, error) {
	var out []*types.Face
	err := r.conn(tx).WithContext(ctx).Order("id ASC").Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *faceRepo) ListRecent(ctx context.Context, tx *gorm.DB, limit int) ([]*types.Face, error) {
	var out []*types.Face
	err := r.conn(tx).WithContext(ctx).
		Select("id", "scene_id", "bbox_x", "bbox_y", "bbox_w", "bbox_h", "cluster_id", "cluster_order").
		Order("id DESC").
		Limit(limit).
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *faceRepo) UpdateCluster(ctx context.Context, tx *gorm.DB, id int64, clusterID int, clusterOrder float64) error {
	return r.conn(tx).WithContext(ctx).Model(&types.Face{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"cluster_id":    clusterID,
			"cluster_order": clusterOrder,
		}).Error
}

func (r *faceRepo) Nearest(ctx context.Context, tx *gorm.DB, query pgvector.Vector, threshold float64, limit int) ([]types.FaceHit, error) {
	if limit <= 0 {
		limit = 500
	}
	var hits []types.FaceHit
	err := r.conn(tx).WithContext(ctx).
		Table("faces fa").
		Select("fa.id AS face_id, fa.scene_id, 1 - (fa.embedding <=> ?) AS similarity", query).
		Joins("JOIN scenes s ON s.id = fa.scene_id").
		Joins("JOIN files f ON f.id = s.file_id").
		Where("f.deleted_at IS NULL").
		Where("1 - (fa.embedding <=> ?) >= ?", query, threshold).
		Order(clause.Expr{SQL: "fa.embedding <=> ?", Vars: []interface{}{query}}).
		Limit(limit).
		Scan(&hits).Error
	if err != nil {
		return nil, err
	}
	return hits, nil
}

func (r *faceRepo) Count(ctx context.Context, tx *gorm.DB) (int64, error) {
	var n int64
	err := r.conn(tx).WithContext(ctx).Model(&types.Face{}).Count(&n).Error
	return n, err
}

func (r *faceRepo) CountScenesWithFaces(ctx context.Context, tx *gorm.DB) (int64, error) {
	var n int64
	err := r.conn(tx).WithContext(ctx).Model(&types.Face{}).
		Distinct("scene_id").
		Count(&n).Error
	return n, err
}
