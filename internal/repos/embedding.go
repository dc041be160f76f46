package repos

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pgvector/pgvector-go"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/fennecvideo/fennec/internal/logger"
	"github.com/fennecvideo/fennec/internal/types"
)

type EmbeddingRepo interface {
	// Upsert writes one embedding row keyed on (scene_id, model_name).
	// Re-running a stage overwrites the previous vector in place.
	Upsert(ctx context.Context, tx *gorm.DB, emb *types.Embedding) error
	GetBySceneModel(ctx context.Context, tx *gorm.DB, sceneID int64, modelName string) (*types.Embedding, error)
	ListByScene(ctx context.Context, tx *gorm.DB, sceneID int64) ([]types.VectorSummary, error)
	DeleteForScene(ctx context.Context, tx *gorm.DB, sceneID int64) error
	DeleteForFile(ctx context.Context, tx *gorm.DB, fileID int64) error

	// NearestByModel runs a cosine nearest-neighbour search within one
	// model partition. dimension must match the model's vector width so the
	// cast lines up with the partial index.
	NearestByModel(ctx context.Context, tx *gorm.DB, modelName string, dimension int, query pgvector.Vector, threshold float64, limit int) ([]types.SceneHit, error)

	// ListVectors loads every embedding of one model for scenes of
	// non-deleted files, ordered by scene id. Clustering reads through here.
	ListVectors(ctx context.Context, tx *gorm.DB, modelName string) ([]*types.Embedding, error)

	CoverageByModel(ctx context.Context, tx *gorm.DB) ([]ModelCoverageRow, error)
	CountScenesWithModel(ctx context.Context, tx *gorm.DB, modelName string) (int64, error)
}

type ModelCoverageRow struct {
	ModelName    string
	ModelVersion string
	Dimension    int
	Found        int64
	LastUpdated  *time.Time
}

type embeddingRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewEmbeddingRepo(db *gorm.DB, baseLog *logger.Logger) EmbeddingRepo {
	return &embeddingRepo{db: db, log: baseLog.With("repo", "EmbeddingRepo")}
}

func (r *embeddingRepo) conn(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return r.db
}

func (r *embeddingRepo) Upsert(ctx context.Context, tx *gorm.DB, emb *types.Embedding) error {
	return r.conn(tx).WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "scene_id"}, {Name: "model_name"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"embedding", "model_version", "dimension", "created_at",
			}),
		}).
		Create(emb).Error
}

func (r *embeddingRepo) GetBySceneModel(ctx context.Context, tx *gorm.DB, sceneID int64, modelName string) (*types.Embedding, error) {
	var e types.Embedding
	err := r.conn(tx).WithContext(ctx).
		First(&e, "scene_id = ? AND model_name = ?", sceneID, modelName).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (r *embeddingRepo) ListByScene(ctx context.Context, tx *gorm.DB, sceneID int64) ([]types.VectorSummary, error) {
	var rows []struct {
		ModelName    string
		ModelVersion string
		Dimension    int
	}
	err := r.conn(tx).WithContext(ctx).Model(&types.Embedding{}).
		Select("model_name", "model_version", "dimension").
		Where("scene_id = ?", sceneID).
		Order("model_name ASC").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]types.VectorSummary, 0, len(rows))
	for _, row := range rows {
		out = append(out, types.VectorSummary{
			Model:     row.ModelName,
			Version:   row.ModelVersion,
			Dimension: row.Dimension,
		})
	}
	return out, nil
}

func (r *embeddingRepo) DeleteForScene(ctx context.Context, tx *gorm.DB, sceneID int64) error {
	return r.conn(tx).WithContext(ctx).
		Where("scene_id = ?", sceneID).
		Delete(&types.Embedding{}).Error
}

func (r *embeddingRepo) DeleteForFile(ctx context.Context, tx *gorm.DB, fileID int64) error {
	return r.conn(tx).WithContext(ctx).
		Where("scene_id IN (?)",
			r.conn(tx).Model(&types.Scene{}).Select("id").Where("file_id = ?", fileID)).
		Delete(&types.Embedding{}).Error
}

func (r *embeddingRepo) NearestByModel(ctx context.Context, tx *gorm.DB, modelName string, dimension int, query pgvector.Vector, threshold float64, limit int) ([]types.SceneHit, error) {
	if limit <= 0 {
		limit = 500
	}
	cast := fmt.Sprintf("e.embedding::vector(%d)", dimension)
	var hits []types.SceneHit
	err := r.conn(tx).WithContext(ctx).
		Table("embeddings e").
		Select("e.scene_id, 1 - ("+cast+" <=> ?) AS similarity", query).
		Joins("JOIN scenes s ON s.id = e.scene_id").
		Joins("JOIN files f ON f.id = s.file_id").
		Where("e.model_name = ?", modelName).
		Where("f.deleted_at IS NULL").
		Where("1 - ("+cast+" <=> ?) >= ?", query, threshold).
		Order(clause.Expr{SQL: cast + " <=> ?", Vars: []interface{}{query}}).
		Limit(limit).
		Scan(&hits).Error
	if err != nil {
		return nil, err
	}
	return hits, nil
}

func (r *embeddingRepo) ListVectors(ctx context.Context, tx *gorm.DB, modelName string) ([]*types.Embedding, error) {
	var out []*types.Embedding
	err := r.conn(tx).WithContext(ctx).
		Table("embeddings e").
		Select("e.*").
		Joins("JOIN scenes s ON s.id = e.scene_id").
		Joins("JOIN files f ON f.id = s.file_id").
		Where("e.model_name = ?", modelName).
		Where("f.deleted_at IS NULL").
		Order("e.scene_id ASC").
		Scan(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *embeddingRepo) CoverageByModel(ctx context.Context, tx *gorm.DB) ([]ModelCoverageRow, error) {
	var rows []ModelCoverageRow
	err := r.conn(tx).WithContext(ctx).Model(&types.Embedding{}).
		Select("model_name, model_version, dimension, COUNT(*) AS found, MAX(created_at) AS last_updated").
		Group("model_name, model_version, dimension").
		Order("model_name ASC").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *embeddingRepo) CountScenesWithModel(ctx context.Context, tx *gorm.DB, modelName string) (int64, error) {
	var n int64
	err := r.conn(tx).WithContext(ctx).Model(&types.Embedding{}).
		Where("model_name = ?", modelName).
		Count(&n).Error
	return n, err
}
