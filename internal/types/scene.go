package types

import "time"

// Scene is one soft cut within a file. Within a file, scenes form a strictly
// ordered non-overlapping cover of [0, duration); EndTC is exclusive and
// SceneIndex equals the scene's position in time order.
type Scene struct {
	ID         int64   `gorm:"primaryKey;autoIncrement" json:"id"`
	FileID     int64   `gorm:"not null;index" json:"file_id"`
	File       *File   `gorm:"constraint:OnDelete:CASCADE;foreignKey:FileID;references:ID" json:"file,omitempty"`
	SceneIndex int     `gorm:"column:scene_index;not null" json:"scene_index"`
	StartTC    float64 `gorm:"column:start_tc;not null" json:"start_tc"`
	EndTC      float64 `gorm:"column:end_tc;not null" json:"end_tc"`

	PosterFramePath *string `gorm:"column:poster_frame_path" json:"poster_frame_path"`
	Transcript      *string `gorm:"column:transcript" json:"transcript"`

	// Visual clustering output. -1 is the unclustered bucket; order is the
	// cosine distance to the cluster centroid (ascending = most
	// representative).
	ClipClusterID    *int     `gorm:"column:clip_cluster_id" json:"clip_cluster_id"`
	ClipClusterOrder *float64 `gorm:"column:clip_cluster_order" json:"clip_cluster_order"`

	CreatedAt time.Time `gorm:"not null;autoCreateTime" json:"created_at"`

	Faces      []Face      `gorm:"constraint:OnDelete:CASCADE;foreignKey:SceneID" json:"faces,omitempty"`
	Embeddings []Embedding `gorm:"constraint:OnDelete:CASCADE;foreignKey:SceneID" json:"embeddings,omitempty"`
}

func (Scene) TableName() string { return "scenes" }
