package types

import "time"

// Config keys persisted in the config table. Values are JSON.
const (
	ConfigIndexerState       = "indexer_state"
	ConfigPollInterval       = "poll_interval_seconds"
	ConfigWatchFolders       = "watch_folders"
	ConfigEnrichmentModels   = "enrichment_models"
	ConfigModelVersions      = "model_versions"
	ConfigPosterWidth        = "poster_width"
	ConfigPosterQuality      = "poster_quality"
	ConfigPosterFormat       = "poster_format"
	ConfigThresholdVisual    = "search_threshold_visual"
	ConfigThresholdVisMatch  = "search_threshold_visual_match"
	ConfigThresholdFace      = "search_threshold_face"
	ConfigThresholdTranscrpt = "search_threshold_transcript"
	ConfigScanProgress       = "scan_progress"
	ConfigRestartRequested   = "restart_requested"
	ConfigLastScanAt         = "last_scan_at"
	ConfigLastScanDurationMS = "last_scan_duration_ms"
)

// Indexer states.
const (
	IndexerRunning = "running"
	IndexerPaused  = "paused"
)

// ConfigEntry is one key/value row of the runtime config map.
type ConfigEntry struct {
	Key       string    `gorm:"primaryKey" json:"key"`
	Value     JSONText  `gorm:"not null" json:"value"`
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime" json:"updated_at"`
}

func (ConfigEntry) TableName() string { return "config" }

// ModelSpec is one entry of the model_versions registry.
type ModelSpec struct {
	Version   string `json:"version"`
	Dimension int    `json:"dimension"`
}

// EnabledModels is the enrichment_models config value. The yaml tags match
// the first-boot seed file.
type EnabledModels struct {
	Clip            bool `json:"clip" yaml:"clip"`
	Whisper         bool `json:"whisper" yaml:"whisper"`
	TranscriptEmbed bool `json:"transcript_embed" yaml:"transcript_embed"`
	ArcFace         bool `json:"arcface" yaml:"arcface"`
}

// SearchThresholds are the per-clause cosine similarity floors.
type SearchThresholds struct {
	Visual      float64 `json:"visual"`
	VisualMatch float64 `json:"visual_match"`
	Face        float64 `json:"face"`
	Transcript  float64 `json:"transcript"`
}

// PosterSettings control poster frame extraction.
type PosterSettings struct {
	Width   int    `json:"width"`
	Quality int    `json:"quality"`
	Format  string `json:"format"`
}

func DefaultEnabledModels() EnabledModels {
	return EnabledModels{Clip: true, Whisper: true, TranscriptEmbed: true, ArcFace: true}
}

func DefaultThresholds() SearchThresholds {
	return SearchThresholds{Visual: 0.10, VisualMatch: 0.20, Face: 0.25, Transcript: 0.35}
}

func DefaultPosterSettings() PosterSettings {
	return PosterSettings{Width: 1280, Quality: 80, Format: "webp"}
}

func DefaultModelVersions() map[string]ModelSpec {
	return map[string]ModelSpec{
		ModelClip:       {Version: "ViT-B-32", Dimension: 512},
		ModelTranscript: {Version: "all-MiniLM-L6-v2", Dimension: 384},
		ModelWhisper:    {Version: "base", Dimension: 0},
		ModelArcFace:    {Version: "buffalo_l", Dimension: 512},
	}
}
