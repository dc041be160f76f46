package types

import "time"

// Scan phases.
const (
	ScanIdle            = "idle"
	ScanDiscovering     = "discovering"
	ScanProcessing      = "processing"
	ScanCheckingMissing = "checking_missing"
	ScanComplete        = "complete"
)

// ScanProgress describes the in-flight scan. It lives in the config table
// under the scan_progress key so the query API can report it live.
type ScanProgress struct {
	ScanID        string    `json:"scan_id,omitempty"`
	Phase         string    `json:"phase"`
	CurrentFolder string    `json:"current_folder,omitempty"`
	DirsScanned   int       `json:"dirs_scanned"`
	FilesFound    int       `json:"files_found"`
	FilesProcessed int      `json:"files_processed"`
	FilesNew       int      `json:"files_new"`
	FilesUpdated   int      `json:"files_updated"`
	FilesSkipped   int      `json:"files_skipped"`
	UpdatedAt      time.Time `json:"updated_at"`
}
