package types

import (
	"time"

	"gorm.io/datatypes"
)

// File is one video on disk. Path is unique among non-deleted rows; deletion
// is a soft delete (DeletedAt set) so a re-scan can resurrect the row.
// gorm.DeletedAt is deliberately not used: purge and resurrect both need to
// see soft-deleted rows.
type File struct {
	ID       int64  `gorm:"primaryKey;autoIncrement" json:"id"`
	Path     string `gorm:"uniqueIndex;not null" json:"path"`
	Filename string `gorm:"not null" json:"filename"`
	// Immediate parent directory name, for display grouping.
	ParentFolder string `gorm:"column:parent_folder" json:"parent_folder"`

	// Probed video metadata. Null until the metadata stage runs (probing is
	// deferred out of the scan so scans stay instant).
	DurationSeconds *float64 `gorm:"column:duration_seconds" json:"duration_seconds"`
	Width           *int     `gorm:"column:width" json:"width"`
	Height          *int     `gorm:"column:height" json:"height"`
	FPS             *float64 `gorm:"column:fps" json:"fps"`
	Codec           *string  `gorm:"column:codec" json:"codec"`
	AudioTracks     *int     `gorm:"column:audio_tracks" json:"audio_tracks"`
	PixFmt          *string  `gorm:"column:pix_fmt" json:"pix_fmt"`
	ColorSpace      *string  `gorm:"column:color_space" json:"color_space"`
	ColorTransfer   *string  `gorm:"column:color_transfer" json:"color_transfer"`
	ColorPrimaries  *string  `gorm:"column:color_primaries" json:"color_primaries"`

	FileSizeBytes  int64          `gorm:"column:file_size_bytes" json:"file_size_bytes"`
	FileCreatedAt  *time.Time     `gorm:"column:file_created_at" json:"file_created_at"`
	FileModifiedAt *time.Time     `gorm:"column:file_modified_at" json:"file_modified_at"`
	Tags           datatypes.JSON `gorm:"column:tags;type:jsonb" json:"tags"`

	CreatedAt time.Time  `gorm:"not null;autoCreateTime" json:"created_at"`
	IndexedAt *time.Time `gorm:"column:indexed_at" json:"indexed_at"`
	DeletedAt *time.Time `gorm:"column:deleted_at;index" json:"deleted_at,omitempty"`

	Scenes []Scene `gorm:"constraint:OnDelete:CASCADE;foreignKey:FileID" json:"scenes,omitempty"`
}

func (File) TableName() string { return "files" }
