package repos

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/fennecvideo/fennec/internal/logger"
	"github.com/fennecvideo/fennec/internal/types"
)

// ConfigRepo reads and writes the JSON key/value config table. Values are
// marshalled on the way in; GetInto unmarshals on the way out.
type ConfigRepo interface {
	Get(ctx context.Context, tx *gorm.DB, key string) (*types.ConfigEntry, error)
	GetInto(ctx context.Context, tx *gorm.DB, key string, dest interface{}) (bool, error)
	Set(ctx context.Context, tx *gorm.DB, key string, value interface{}) error
	SetIfAbsent(ctx context.Context, tx *gorm.DB, key string, value interface{}) error
	ListAll(ctx context.Context, tx *gorm.DB) ([]*types.ConfigEntry, error)
	Delete(ctx context.Context, tx *gorm.DB, key string) error
}

type configRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewConfigRepo(db *gorm.DB, baseLog *logger.Logger) ConfigRepo {
	return &configRepo{db: db, log: baseLog.With("repo", "ConfigRepo")}
}

func (r *configRepo) conn(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return r.db
}

func (r *configRepo) Get(ctx context.Context, tx *gorm.DB, key string) (*types.ConfigEntry, error) {
	var entry types.ConfigEntry
	err := r.conn(tx).WithContext(ctx).First(&entry, "key = ?", key).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

func (r *configRepo) GetInto(ctx context.Context, tx *gorm.DB, key string, dest interface{}) (bool, error) {
	entry, err := r.Get(ctx, tx, key)
	if err != nil {
		return false, err
	}
	if entry == nil {
		return false, nil
	}
	if err := json.Unmarshal(entry.Value, dest); err != nil {
		return false, fmt.Errorf("unmarshal config %q: %w", key, err)
	}
	return true, nil
}

func (r *configRepo) Set(ctx context.Context, tx *gorm.DB, key string, value interface{}) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal config %q: %w", key, err)
	}
	entry := &types.ConfigEntry{
		Key:       key,
		Value:     types.JSONText(raw),
		UpdatedAt: time.Now(),
	}
	return r.conn(tx).WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "key"}},
			DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
		}).
		Create(entry).Error
}

func (r *configRepo) SetIfAbsent(ctx context.Context, tx *gorm.DB, key string, value interface{}) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal config %q: %w", key, err)
	}
	entry := &types.ConfigEntry{
		Key:       key,
		Value:     types.JSONText(raw),
		UpdatedAt: time.Now(),
	}
	return r.conn(tx).WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "key"}},
			DoNothing: true,
		}).
		Create(entry).Error
}

func (r *configRepo) ListAll(ctx context.Context, tx *gorm.DB) ([]*types.ConfigEntry, error) {
	var out []*types.ConfigEntry
	err := r.conn(tx).WithContext(ctx).Order("key ASC").Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *configRepo) Delete(ctx context.Context, tx *gorm.DB, key string) error {
	return r.conn(tx).WithContext(ctx).
		Where("key = ?", key).
		Delete(&types.ConfigEntry{}).Error
}
