package repos

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/fennecvideo/fennec/internal/logger"
	"github.com/fennecvideo/fennec/internal/types"
)

type FileRepo interface {
	Create(ctx context.Context, tx *gorm.DB, file *types.File) (*types.File, error)
	GetByID(ctx context.Context, tx *gorm.DB, id int64) (*types.File, error)
	GetByPath(ctx context.Context, tx *gorm.DB, path string) (*types.File, error)
	List(ctx context.Context, tx *gorm.DB, limit, offset int, completedOnly bool) ([]*types.File, error)
	UpdateFields(ctx context.Context, tx *gorm.DB, id int64, updates map[string]interface{}) error
	MarkDeleted(ctx context.Context, tx *gorm.DB, id int64) error
	ListActive(ctx context.Context, tx *gorm.DB) ([]*types.File, error)
	PurgeDeleted(ctx context.Context, tx *gorm.DB) (int64, error)
	PurgeOutsideRoots(ctx context.Context, tx *gorm.DB, roots []string) (int64, error)
	CountActive(ctx context.Context, tx *gorm.DB) (int64, error)
	SumActive(ctx context.Context, tx *gorm.DB) (durationSeconds float64, sizeBytes int64, err error)
}

type fileRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewFileRepo(db *gorm.DB, baseLog *logger.Logger) FileRepo {
	return &fileRepo{db: db, log: baseLog.With("repo", "FileRepo")}
}

func (r *fileRepo) conn(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return r.db
}

func (r *fileRepo) Create(ctx context.Context, tx *gorm.DB, file *types.File) (*types.File, error) {
	if err := r.conn(tx).WithContext(ctx).Create(file).Error; err != nil {
		return nil, err
	}
	return file, nil
}

func (r *fileRepo) GetByID(ctx context.Context, tx *gorm.DB, id int64) (*types.File, error) {
	var f types.File
	err := r.conn(tx).WithContext(ctx).First(&f, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &f, nil
}

func (r *fileRepo) GetByPath(ctx context.Context, tx *gorm.DB, path string) (*types.File, error) {
	var f types.File
	err := r.conn(tx).WithContext(ctx).First(&f, "path = ?", path).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &f, nil
}

func (r *fileRepo) List(ctx context.Context, tx *gorm.DB, limit, offset int, completedOnly bool) ([]*types.File, error) {
	q := r.conn(tx).WithContext(ctx).
		Where("deleted_at IS NULL").
		Order("indexed_at DESC NULLS LAST").
		Limit(limit).Offset(offset)
	if completedOnly {
		q = q.Where("indexed_at IS NOT NULL")
	}
	var out []*types.File
	if err := q.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *fileRepo) UpdateFields(ctx context.Context, tx *gorm.DB, id int64, updates map[string]interface{}) error {
	if len(updates) == 0 {
		return nil
	}
	return r.conn(tx).WithContext(ctx).Model(&types.File{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *fileRepo) MarkDeleted(ctx context.Context, tx *gorm.DB, id int64) error {
	now := time.Now()
	return r.conn(tx).WithContext(ctx).Model(&types.File{}).
		Where("id = ?", id).
		Update("deleted_at", now).Error
}

func (r *fileRepo) ListActive(ctx context.Context, tx *gorm.DB) ([]*types.File, error) {
	var out []*types.File
	err := r.conn(tx).WithContext(ctx).
		Select("id", "path", "file_modified_at", "file_size_bytes", "indexed_at").
		Where("deleted_at IS NULL").
		Order("id").
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *fileRepo) PurgeDeleted(ctx context.Context, tx *gorm.DB) (int64, error) {
	res := r.conn(tx).WithContext(ctx).
		Where("deleted_at IS NOT NULL").
		Delete(&types.File{})
	return res.RowsAffected, res.Error
}

func (r *fileRepo) PurgeOutsideRoots(ctx context.Context, tx *gorm.DB, roots []string) (int64, error) {
	if len(roots) == 0 {
		return 0, nil
	}
	q := r.conn(tx).WithContext(ctx)
	for _, root := range roots {
		prefix := strings.TrimRight(root, "/") + "/"
		q = q.Where("path NOT LIKE ?", prefix+"%")
	}
	res := q.Delete(&types.File{})
	return res.RowsAffected, res.Error
}

func (r *fileRepo) CountActive(ctx context.Context, tx *gorm.DB) (int64, error) {
	var n int64
	err := r.conn(tx).WithContext(ctx).Model(&types.File{}).
		Where("deleted_at IS NULL").
		Count(&n).Error
	return n, err
}

func (r *fileRepo) SumActive(ctx context.Context, tx *gorm.DB) (float64, int64, error) {
	var row struct {
		Duration float64
		Size     int64
	}
	err := r.conn(tx).WithContext(ctx).Model(&types.File{}).
		Select("COALESCE(SUM(duration_seconds), 0) AS duration, COALESCE(SUM(file_size_bytes), 0) AS size").
		Where("deleted_at IS NULL").
		Scan(&row).Error
	return row.Duration, row.Size, err
}
