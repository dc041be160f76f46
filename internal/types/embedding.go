package types

import (
	"time"

	"github.com/pgvector/pgvector-go"
)

// Model names used in the embeddings table.
const (
	ModelClip       = "clip"
	ModelTranscript = "transcript"
	ModelWhisper    = "whisper"
	ModelArcFace    = "arcface"
)

// Embedding is a model-tagged vector attached to a scene. At most one row
// exists per (scene, model); a newer model version overwrites the older row.
// Rows of different models share the table but not a dimension, so
// nearest-neighbour queries always filter by ModelName first.
type Embedding struct {
	ID      int64  `gorm:"primaryKey;autoIncrement" json:"id"`
	SceneID int64  `gorm:"not null;index;uniqueIndex:uniq_scene_model" json:"scene_id"`
	Scene   *Scene `gorm:"constraint:OnDelete:CASCADE;foreignKey:SceneID;references:ID" json:"scene,omitempty"`

	ModelName    string `gorm:"column:model_name;not null;uniqueIndex:uniq_scene_model" json:"model_name"`
	ModelVersion string `gorm:"column:model_version;not null" json:"model_version"`
	Dimension    int    `gorm:"column:dimension;not null" json:"dimension"`

	Embedding pgvector.Vector `gorm:"type:vector" json:"-"`

	CreatedAt time.Time `gorm:"not null;autoCreateTime" json:"created_at"`
}

func (Embedding) TableName() string { return "embeddings" }
