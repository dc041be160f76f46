package types

import (
	"time"

	"github.com/pgvector/pgvector-go"
)

// Face is one detected face inside a scene's poster frame. The bounding box
// is in source-image pixels of the poster; the embedding is L2-normalized so
// cosine similarity reduces to dot product.
type Face struct {
	ID      int64  `gorm:"primaryKey;autoIncrement" json:"id"`
	SceneID int64  `gorm:"not null;index" json:"scene_id"`
	Scene   *Scene `gorm:"constraint:OnDelete:CASCADE;foreignKey:SceneID;references:ID" json:"scene,omitempty"`

	BBoxX float64 `gorm:"column:bbox_x;not null" json:"bbox_x"`
	BBoxY float64 `gorm:"column:bbox_y;not null" json:"bbox_y"`
	BBoxW float64 `gorm:"column:bbox_w;not null" json:"bbox_w"`
	BBoxH float64 `gorm:"column:bbox_h;not null" json:"bbox_h"`

	Embedding pgvector.Vector `gorm:"type:vector(512)" json:"-"`

	ClusterID    *int     `gorm:"column:cluster_id;index" json:"cluster_id"`
	ClusterOrder *float64 `gorm:"column:cluster_order" json:"cluster_order"`

	CreatedAt time.Time `gorm:"not null;autoCreateTime" json:"created_at"`
}

func (Face) TableName() string { return "faces" }

// BBox returns the box as [x, y, w, h] the way the UI consumes it.
func (f *Face) BBox() [4]float64 {
	return [4]float64{f.BBoxX, f.BBoxY, f.BBoxW, f.BBoxH}
}
