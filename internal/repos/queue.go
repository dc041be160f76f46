package repos

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/fennecvideo/fennec/internal/logger"
	"github.com/fennecvideo/fennec/internal/types"
)

type QueueRepo interface {
	// Enqueue replaces any existing queue row for the file with a fresh
	// pending one. One row per file at all times.
	Enqueue(ctx context.Context, tx *gorm.DB, fileID int64, totalStages int) (*types.QueueItem, error)

	// ClaimNextPending atomically moves the oldest pending item to
	// processing and returns it, or (nil, nil) when the queue is empty.
	// Uses FOR UPDATE SKIP LOCKED so concurrent claimers never collide.
	ClaimNextPending(ctx context.Context, tx *gorm.DB) (*types.QueueItem, error)

	GetByID(ctx context.Context, tx *gorm.DB, id int64) (*types.QueueItem, error)
	GetByFileID(ctx context.Context, tx *gorm.DB, fileID int64) (*types.QueueItem, error)
	SetStage(ctx context.Context, tx *gorm.DB, id int64, stage string, stageNum int) error
	Complete(ctx context.Context, tx *gorm.DB, id int64) error
	Fail(ctx context.Context, tx *gorm.DB, id int64, errMsg string) error

	// Release puts a processing item back to pending without consuming a
	// retry. Used when a model host is not ready yet.
	Release(ctx context.Context, tx *gorm.DB, id int64) error

	ResetFailed(ctx context.Context, tx *gorm.DB) (int64, error)
	ResetProcessing(ctx context.Context, tx *gorm.DB) (int64, error)
	ResetStuck(ctx context.Context, tx *gorm.DB, olderThan time.Duration) (int64, error)
	Counts(ctx context.Context, tx *gorm.DB) (map[string]int64, error)

	// Current returns the processing item joined with its file, or nil.
	Current(ctx context.Context, tx *gorm.DB) (*types.CurrentJob, error)

	ListFailed(ctx context.Context, tx *gorm.DB, limit int) ([]*types.QueueItem, error)
	DeleteForFile(ctx context.Context, tx *gorm.DB, fileID int64) error
	HasActive(ctx context.Context, tx *gorm.DB) (bool, error)
}

type queueRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewQueueRepo(db *gorm.DB, baseLog *logger.Logger) QueueRepo {
	return &queueRepo{db: db, log: baseLog.With("repo", "QueueRepo")}
}

func (r *queueRepo) conn(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return r.db
}

func (r *queueRepo) Enqueue(ctx context.Context, tx *gorm.DB, fileID int64, totalStages int) (*types.QueueItem, error) {
	item := &types.QueueItem{
		FileID:      fileID,
		Status:      types.QueuePending,
		QueuedAt:    time.Now(),
		TotalStages: totalStages,
	}
	err := r.conn(tx).WithContext(ctx).Transaction(func(txx *gorm.DB) error {
		if err := txx.Where("file_id = ?", fileID).Delete(&types.QueueItem{}).Error; err != nil {
			return err
		}
		return txx.Create(item).Error
	})
	if err != nil {
		return nil, err
	}
	return item, nil
}

func (r *queueRepo) ClaimNextPending(ctx context.Context, tx *gorm.DB) (*types.QueueItem, error) {
	var claimed *types.QueueItem
	err := r.conn(tx).WithContext(ctx).Transaction(func(txx *gorm.DB) error {
		var item types.QueueItem
		err := txx.
			Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
			Where("status = ?", types.QueuePending).
			Order("queued_at ASC, id ASC").
			First(&item).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		now := time.Now()
		item.Status = types.QueueProcessing
		item.StartedAt = &now
		item.Error = nil
		if err := txx.Model(&types.QueueItem{}).
			Where("id = ?", item.ID).
			Updates(map[string]interface{}{
				"status":     types.QueueProcessing,
				"started_at": now,
				"error":      nil,
			}).Error; err != nil {
			return err
		}
		claimed = &item
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

func (r *queueRepo) GetByID(ctx context.Context, tx *gorm.DB, id int64) (*types.QueueItem, error) {
	var item types.QueueItem
	err := r.conn(tx).WithContext(ctx).First(&item, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (r *queueRepo) GetByFileID(ctx context.Context, tx *gorm.DB, fileID int64) (*types.QueueItem, error) {
	var item types.QueueItem
	err := r.conn(tx).WithContext(ctx).First(&item, "file_id = ?", fileID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (r *queueRepo) SetStage(ctx context.Context, tx *gorm.DB, id int64, stage string, stageNum int) error {
	return r.conn(tx).WithContext(ctx).Model(&types.QueueItem{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"current_stage":     stage,
			"current_stage_num": stageNum,
		}).Error
}

func (r *queueRepo) Complete(ctx context.Context, tx *gorm.DB, id int64) error {
	now := time.Now()
	return r.conn(tx).WithContext(ctx).Model(&types.QueueItem{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":       types.QueueComplete,
			"completed_at": now,
			"error":        nil,
		}).Error
}

func (r *queueRepo) Fail(ctx context.Context, tx *gorm.DB, id int64, errMsg string) error {
	now := time.Now()
	return r.conn(tx).WithContext(ctx).Model(&types.QueueItem{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":       types.QueueFailed,
			"completed_at": now,
			"error":        errMsg,
			"retry_count":  gorm.Expr("retry_count + 1"),
		}).Error
}

func (r *queueRepo) Release(ctx context.Context, tx *gorm.DB, id int64) error {
	return r.conn(tx).WithContext(ctx).Model(&types.QueueItem{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":     types.QueuePending,
			"started_at": nil,
		}).Error
}

func (r *queueRepo) ResetFailed(ctx context.Context, tx *gorm.DB) (int64, error) {
	res := r.conn(tx).WithContext(ctx).Model(&types.QueueItem{}).
		Where("status = ?", types.QueueFailed).
		Updates(map[string]interface{}{
			"status":       types.QueuePending,
			"started_at":   nil,
			"completed_at": nil,
			"error":        nil,
		})
	return res.RowsAffected, res.Error
}

func (r *queueRepo) ResetProcessing(ctx context.Context, tx *gorm.DB) (int64, error) {
	res := r.conn(tx).WithContext(ctx).Model(&types.QueueItem{}).
		Where("status = ?", types.QueueProcessing).
		Updates(map[string]interface{}{
			"status":     types.QueuePending,
			"started_at": nil,
		})
	return res.RowsAffected, res.Error
}

func (r *queueRepo) ResetStuck(ctx context.Context, tx *gorm.DB, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().Add(-olderThan)
	res := r.conn(tx).WithContext(ctx).Model(&types.QueueItem{}).
		Where("status = ? AND started_at < ?", types.QueueProcessing, cutoff).
		Updates(map[string]interface{}{
			"status":     types.QueuePending,
			"started_at": nil,
		})
	return res.RowsAffected, res.Error
}

func (r *queueRepo) Counts(ctx context.Context, tx *gorm.DB) (map[string]int64, error) {
	var rows []struct {
		Status string
		N      int64
	}
	err := r.conn(tx).WithContext(ctx).Model(&types.QueueItem{}).
		Select("status, COUNT(*) AS n").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := map[string]int64{
		types.QueuePending:    0,
		types.QueueProcessing: 0,
		types.QueueComplete:   0,
		types.QueueFailed:     0,
	}
	for _, row := range rows {
		out[row.Status] = row.N
	}
	return out, nil
}

func (r *queueRepo) Current(ctx context.Context, tx *gorm.DB) (*types.CurrentJob, error) {
	var rows []*types.CurrentJob
	err := r.conn(tx).WithContext(ctx).
		Table("enrichment_queue q").
		Select(`q.id, q.file_id, f.filename, f.path, f.duration_seconds,
			q.current_stage, q.current_stage_num, q.total_stages,
			q.retry_count, q.started_at`).
		Joins("JOIN files f ON f.id = q.file_id").
		Where("q.status = ?", types.QueueProcessing).
		Order("q.started_at ASC").
		Limit(1).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

func (r *queueRepo) ListFailed(ctx context.Context, tx *gorm.DB, limit int) ([]*types.QueueItem, error) {
	if limit <= 0 {
		limit = 100
	}
	var out []*types.QueueItem
	err := r.conn(tx).WithContext(ctx).
		Where("status = ?", types.QueueFailed).
		Order("completed_at DESC").
		Limit(limit).
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *queueRepo) DeleteForFile(ctx context.Context, tx *gorm.DB, fileID int64) error {
	return r.conn(tx).WithContext(ctx).
		Where("file_id = ?", fileID).
		Delete(&types.QueueItem{}).Error
}

func (r *queueRepo) HasActive(ctx context.Context, tx *gorm.DB) (bool, error) {
	var n int64
	err := r.conn(tx).WithContext(ctx).Model(&types.QueueItem{}).
		Where("status IN ?", []string{types.QueuePending, types.QueueProcessing}).
		Count(&n).Error
	return n > 0, err
}
