package types

import "time"

// Search clauses. A SearchRequest carries any subset; clauses combine by
// intersection on scene id. Thresholds left nil fall back to the config
// defaults.

type VisualTextClause struct {
	Query     string
	Threshold *float64
}

type VisualMatchClause struct {
	SceneID   int64
	Threshold *float64
}

type FaceClause struct {
	// FaceID is the canonical handle. SceneID+FaceIndex is accepted as a
	// human-facing fallback when FaceID is zero.
	FaceID    int64
	SceneID   int64
	FaceIndex int
	Threshold *float64
}

type DialogSemanticClause struct {
	Query     string
	Threshold *float64
}

type SearchRequest struct {
	VisualText     *VisualTextClause
	VisualMatch    *VisualMatchClause
	Face           *FaceClause
	DialogKeyword  *string
	DialogSemantic *DialogSemanticClause

	Path        *string
	Codec       *string
	FPSMin      *float64
	FPSMax      *float64
	DurationMin *float64
	DurationMax *float64
	WidthMin    *int
	HeightMin   *int
	TCMin       *float64
	TCMax       *float64

	Limit int
}

// SceneFilter is the SQL-side filter the scene repo applies when fetching
// result rows: the candidate id set from the vector clauses plus every
// metadata predicate.
type SceneFilter struct {
	SceneIDs      []int64
	DialogKeyword *string
	Path          *string
	Codec         *string
	FPSMin        *float64
	FPSMax        *float64
	DurationMin   *float64
	DurationMax   *float64
	WidthMin      *int
	HeightMin     *int
	TCMin         *float64
	TCMax         *float64
	Limit         int
}

// FaceRef is the face shape embedded in scene rows.
type FaceRef struct {
	ID   int64      `json:"id"`
	BBox [4]float64 `json:"bbox"`
}

// SceneResult is one browse/search row: the scene plus enough of its file
// for thumbnail and display.
type SceneResult struct {
	ID              int64     `json:"id"`
	SceneIndex      int       `json:"scene_index"`
	StartTime       float64   `json:"start_time"`
	EndTime         float64   `json:"end_time"`
	Transcript      *string   `json:"transcript"`
	PosterFramePath *string   `json:"poster_frame_path"`
	FileID          int64     `json:"file_id"`
	Filename        string    `json:"filename"`
	Path            string    `json:"path"`
	DurationSeconds *float64  `json:"duration_seconds"`
	Width           *int      `json:"width"`
	Height          *int      `json:"height"`
	FPS             *float64  `json:"fps"`
	Codec           *string   `json:"codec"`
	AudioTracks     *int      `json:"audio_tracks"`
	FileSizeBytes   int64     `json:"file_size_bytes"`
	FileModifiedAt  *time.Time `json:"file_modified_at"`

	ClipClusterID    *int     `json:"clip_cluster_id"`
	ClipClusterOrder *float64 `json:"clip_cluster_order"`

	Faces []FaceRef `json:"faces"`

	Similarity           *float64 `json:"similarity,omitempty"`
	FaceSimilarity       *float64 `json:"face_similarity,omitempty"`
	TranscriptSimilarity *float64 `json:"transcript_similarity,omitempty"`
}

// VectorSummary is the per-model presence line of a scene detail view.
type VectorSummary struct {
	Model     string `json:"model"`
	Version   string `json:"version"`
	Dimension int    `json:"dimension"`
	Count     int    `json:"count,omitempty"`
}

// Stats is the dashboard summary.
type Stats struct {
	Files                int64   `json:"files"`
	Scenes               int64   `json:"scenes"`
	Faces                int64   `json:"faces"`
	TotalDurationSeconds float64 `json:"total_duration_seconds"`
	TotalFileSizeBytes   int64   `json:"total_file_size_bytes"`
}

// ModelCoverage is one row of the vector-stats report.
type ModelCoverage struct {
	Name            string     `json:"name"`
	Model           string     `json:"model"`
	Version         string     `json:"version"`
	Dimension       int        `json:"dimension"`
	Scanned         int64      `json:"scanned"`
	Found           int64      `json:"found"`
	Coverage        float64    `json:"coverage"`
	PartialExpected bool       `json:"partial_expected"`
	TotalDetected   int64      `json:"total_detected,omitempty"`
	LastUpdated     *time.Time `json:"last_updated"`
}

// QueueSnapshot is the queue status view: counts per state plus the
// currently-processing item.
type QueueSnapshot struct {
	Pending    int64         `json:"pending"`
	Processing int64         `json:"processing"`
	Complete   int64         `json:"complete"`
	Failed     int64         `json:"failed"`
	Current    *CurrentJob   `json:"current"`
}

type CurrentJob struct {
	ID              int64      `json:"id"`
	FileID          int64      `json:"file_id"`
	Filename        string     `json:"filename"`
	Path            string     `json:"path"`
	DurationSeconds *float64   `json:"duration_seconds"`
	CurrentStage    *string    `json:"current_stage"`
	CurrentStageNum int        `json:"current_stage_num"`
	TotalStages     int        `json:"total_stages"`
	RetryCount      int        `json:"retry_count"`
	StartedAt       *time.Time `json:"started_at"`
}

// SceneHit is a nearest-neighbour result: scene id plus cosine similarity.
type SceneHit struct {
	SceneID    int64
	Similarity float64
}

// FaceHit is a face nearest-neighbour result projected to its scene.
type FaceHit struct {
	FaceID     int64
	SceneID    int64
	Similarity float64
}
