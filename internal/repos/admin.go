package repos

import (
	"context"

	"gorm.io/gorm"

	"github.com/fennecvideo/fennec/internal/logger"
	"github.com/fennecvideo/fennec/internal/types"
)

// AdminRepo holds the destructive maintenance operations that cut across
// tables. Kept separate so the normal repos stay free of wipe paths.
type AdminRepo interface {
	// WipeIndex deletes every indexed row child-first. Config survives so
	// watch folders and thresholds outlive a re-index.
	WipeIndex(ctx context.Context, tx *gorm.DB) error
}

type adminRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewAdminRepo(db *gorm.DB, baseLog *logger.Logger) AdminRepo {
	return &adminRepo{db: db, log: baseLog.With("repo", "AdminRepo")}
}

func (r *adminRepo) conn(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return r.db
}

func (r *adminRepo) WipeIndex(ctx context.Context, tx *gorm.DB) error {
	return r.conn(tx).WithContext(ctx).Transaction(func(txx *gorm.DB) error {
		if err := txx.Where("1 = 1").Delete(&types.Embedding{}).Error; err != nil {
			return err
		}
		if err := txx.Where("1 = 1").Delete(&types.Face{}).Error; err != nil {
			return err
		}
		if err := txx.Where("1 = 1").Delete(&types.Scene{}).Error; err != nil {
			return err
		}
		if err := txx.Where("1 = 1").Delete(&types.QueueItem{}).Error; err != nil {
			return err
		}
		return txx.Where("1 = 1").Delete(&types.File{}).Error
	})
}
