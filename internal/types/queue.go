package types

import "time"

// Queue item states.
const (
	QueuePending    = "pending"
	QueueProcessing = "processing"
	QueueComplete   = "complete"
	QueueFailed     = "failed"
)

// Pipeline stage names, in execution order.
const (
	StageMetadata        = "metadata"
	StageSceneDetection  = "scene_detection"
	StagePosterExtract   = "poster_extraction"
	StageVisualEmbed     = "visual_embedding"
	StageTranscription   = "transcription"
	StageTranscriptEmbed = "transcript_embedding"
	StageFaceDetection   = "face_detection"
)

// QueueItem is one unit of enrichment work. Strict FIFO by QueuedAt with id
// as the tiebreak; the pipeline claims one item at a time.
type QueueItem struct {
	ID     int64 `gorm:"primaryKey;autoIncrement" json:"id"`
	FileID int64 `gorm:"not null;uniqueIndex" json:"file_id"`
	File   *File `gorm:"constraint:OnDelete:CASCADE;foreignKey:FileID;references:ID" json:"file,omitempty"`

	Status      string     `gorm:"not null;default:'pending';index" json:"status"`
	QueuedAt    time.Time  `gorm:"column:queued_at;not null" json:"queued_at"`
	StartedAt   *time.Time `gorm:"column:started_at" json:"started_at"`
	CompletedAt *time.Time `gorm:"column:completed_at" json:"completed_at"`

	Error      *string `gorm:"column:error" json:"error"`
	RetryCount int     `gorm:"column:retry_count;not null;default:0" json:"retry_count"`

	CurrentStage    *string `gorm:"column:current_stage" json:"current_stage"`
	CurrentStageNum int     `gorm:"column:current_stage_num;not null;default:0" json:"current_stage_num"`
	TotalStages     int     `gorm:"column:total_stages;not null;default:0" json:"total_stages"`
}

func (QueueItem) TableName() string { return "enrichment_queue" }
