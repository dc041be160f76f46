package services

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fennecvideo/fennec/internal/repos"
	"github.com/fennecvideo/fennec/internal/repos/testutil"
	"github.com/fennecvideo/fennec/internal/types"
)

func TestIsVideoFile(t *testing.T) {
	yes := []string{"/a/clip.mp4", "/a/CLIP.MOV", "/a/b.mkv", "/a/tape.mxf", "/a/old.rmvb", "/a/rec.wtv", "/a/cam.dv", "/a/cine.bik"}
	no := []string{"/a/notes.txt", "/a/still.jpg", "/a/clip.mp4.part", "/a/noext", "/a/audio.wav", "/a/legacy.divx", "/a/web.f4v"}
	for _, p := range yes {
		if !IsVideoFile(p) {
			t.Errorf("IsVideoFile(%q) = false, want true", p)
		}
	}
	for _, p := range no {
		if IsVideoFile(p) {
			t.Errorf("IsVideoFile(%q) = true, want false", p)
		}
	}
}

func TestTotalStages(t *testing.T) {
	cases := []struct {
		models types.EnabledModels
		want   int
	}{
		{types.EnabledModels{Clip: true, Whisper: true, TranscriptEmbed: true, ArcFace: true}, 7},
		{types.EnabledModels{Clip: true, Whisper: true, TranscriptEmbed: false, ArcFace: true}, 6},
		{types.EnabledModels{Clip: true}, 4},
		// Transcript embedding without transcription has nothing to embed.
		{types.EnabledModels{TranscriptEmbed: true}, 3},
		{types.EnabledModels{}, 3},
	}
	for _, c := range cases {
		if got := totalStages(c.models); got != c.want {
			t.Errorf("totalStages(%+v) = %d, want %d", c.models, got, c.want)
		}
	}
}

type scanHarness struct {
	scanner  ScannerService
	files    repos.FileRepo
	queue    repos.QueueRepo
	scenes   repos.SceneRepo
	settings SettingsService
	dir      string
}

func newScanHarness(t *testing.T) *scanHarness {
	t.Helper()
	db := testutil.SqliteDB(t)
	log := testutil.Logger(t)
	files := repos.NewFileRepo(db, log)
	scenes := repos.NewSceneRepo(db, log)
	queue := repos.NewQueueRepo(db, log)
	settings := NewSettingsService(repos.NewConfigRepo(db, log), log)

	dir := t.TempDir()
	if err := settings.Seed(context.Background(), SettingsSeed{WatchFolders: []string{dir}}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	return &scanHarness{
		scanner:  NewScannerService(files, queue, scenes, settings, log),
		files:    files,
		queue:    queue,
		scenes:   scenes,
		settings: settings,
		dir:      dir,
	}
}

// writeClip drops a fake video file with a stable mtime so repeated scans
// compare equal.
func writeClip(t *testing.T, path string, content string, mtime time.Time) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	if err := os.Chtimes(path, mtime, mtime); err != nil {
		t.Fatalf("chtimes %s: %v", path, err)
	}
}

func TestScanDiscoversAndEnqueuesNewFiles(t *testing.T) {
	h := newScanHarness(t)
	ctx := context.Background()
	mtime := time.Now().Add(-time.Hour).Truncate(time.Second)

	writeClip(t, filepath.Join(h.dir, "a.mp4"), "video-bytes", mtime)
	writeClip(t, filepath.Join(h.dir, "notes.txt"), "not video", mtime)
	writeClip(t, filepath.Join(h.dir, ".hidden.mp4"), "hidden", mtime)

	sum, err := h.scanner.Scan(ctx)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if sum.New != 1 || sum.FilesFound != 1 {
		t.Fatalf("expected one new video, got %+v", sum)
	}

	f, err := h.files.GetByPath(ctx, nil, filepath.Join(h.dir, "a.mp4"))
	if err != nil {
		t.Fatalf("get file: %v", err)
	}
	if f == nil {
		t.Fatal("file row missing after scan")
	}
	item, err := h.queue.GetByFileID(ctx, nil, f.ID)
	if err != nil {
		t.Fatalf("get queue row: %v", err)
	}
	if item == nil || item.Status != types.QueuePending {
		t.Fatalf("expected pending queue row, got %+v", item)
	}
	// Default config enables all four models: 3 fixed + 4 model stages.
	if item.TotalStages != 7 {
		t.Fatalf("expected 7 stages, got %d", item.TotalStages)
	}
}

func TestScanSkipsUnchangedFiles(t *testing.T) {
	h := newScanHarness(t)
	ctx := context.Background()
	mtime := time.Now().Add(-time.Hour).Truncate(time.Second)
	writeClip(t, filepath.Join(h.dir, "b.mp4"), "stable", mtime)

	if _, err := h.scanner.Scan(ctx); err != nil {
		t.Fatalf("first scan: %v", err)
	}
	sum, err := h.scanner.Scan(ctx)
	if err != nil {
		t.Fatalf("second scan: %v", err)
	}
	if sum.New != 0 || sum.Updated != 0 || sum.Skipped != 1 {
		t.Fatalf("unchanged file reclassified: %+v", sum)
	}
}

func TestScanReenqueuesChangedFiles(t *testing.T) {
	h := newScanHarness(t)
	ctx := context.Background()
	path := filepath.Join(h.dir, "c.mp4")
	mtime := time.Now().Add(-2 * time.Hour).Truncate(time.Second)
	writeClip(t, path, "take one", mtime)

	if _, err := h.scanner.Scan(ctx); err != nil {
		t.Fatalf("first scan: %v", err)
	}

	// Pretend enrichment finished so we can see it reset.
	f, _ := h.files.GetByPath(ctx, nil, path)
	now := time.Now()
	if err := h.files.UpdateFields(ctx, nil, f.ID, map[string]interface{}{"indexed_at": now}); err != nil {
		t.Fatalf("mark indexed: %v", err)
	}

	writeClip(t, path, "take one, extended edit", mtime.Add(time.Minute))
	sum, err := h.scanner.Scan(ctx)
	if err != nil {
		t.Fatalf("rescan: %v", err)
	}
	if sum.Updated != 1 {
		t.Fatalf("changed file not updated: %+v", sum)
	}

	f, _ = h.files.GetByPath(ctx, nil, path)
	if f.IndexedAt != nil {
		t.Fatal("changed file still marked indexed")
	}
	item, _ := h.queue.GetByFileID(ctx, nil, f.ID)
	if item == nil || item.Status != types.QueuePending {
		t.Fatalf("changed file not re-queued: %+v", item)
	}
}

func TestScanMarksMissingAndResurrects(t *testing.T) {
	h := newScanHarness(t)
	ctx := context.Background()
	path := filepath.Join(h.dir, "d.mp4")
	mtime := time.Now().Add(-time.Hour).Truncate(time.Second)
	writeClip(t, path, "here today", mtime)

	if _, err := h.scanner.Scan(ctx); err != nil {
		t.Fatalf("first scan: %v", err)
	}
	if err := os.Remove(path); err != nil {
		t.Fatalf("remove: %v", err)
	}

	sum, err := h.scanner.Scan(ctx)
	if err != nil {
		t.Fatalf("scan after remove: %v", err)
	}
	if sum.MarkedMissing != 1 {
		t.Fatalf("missing file not marked: %+v", sum)
	}
	f, _ := h.files.GetByPath(ctx, nil, path)
	if f == nil || f.DeletedAt == nil {
		t.Fatalf("expected tombstone, got %+v", f)
	}
	if item, _ := h.queue.GetByFileID(ctx, nil, f.ID); item != nil {
		t.Fatalf("queue row survived the tombstone: %+v", item)
	}

	// Same bytes come back: tombstone clears, no re-enrichment.
	writeClip(t, path, "here today", mtime)
	sum, err = h.scanner.Scan(ctx)
	if err != nil {
		t.Fatalf("scan after restore: %v", err)
	}
	if sum.Resurrected != 1 {
		t.Fatalf("restored file not resurrected: %+v", sum)
	}
	f, _ = h.files.GetByPath(ctx, nil, path)
	if f.DeletedAt != nil {
		t.Fatal("tombstone not cleared")
	}
}

func TestScanProgressCountsResurrectedAsNew(t *testing.T) {
	h := newScanHarness(t)
	ctx := context.Background()
	path := filepath.Join(h.dir, "f.mp4")
	mtime := time.Now().Add(-time.Hour).Truncate(time.Second)
	writeClip(t, path, "gone and back", mtime)
	writeClip(t, filepath.Join(h.dir, "g.mp4"), "steady", mtime)

	if _, err := h.scanner.Scan(ctx); err != nil {
		t.Fatalf("first scan: %v", err)
	}
	if err := os.Remove(path); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if _, err := h.scanner.Scan(ctx); err != nil {
		t.Fatalf("scan after remove: %v", err)
	}

	writeClip(t, path, "gone and back", mtime)
	if _, err := h.scanner.Scan(ctx); err != nil {
		t.Fatalf("scan after restore: %v", err)
	}

	p, err := h.settings.ScanProgress(ctx)
	if err != nil {
		t.Fatalf("get progress: %v", err)
	}
	if p == nil || p.Phase != types.ScanComplete {
		t.Fatalf("unexpected progress: %+v", p)
	}
	// A resurrected file counts as new so the totals always reconcile.
	if p.FilesProcessed != p.FilesNew+p.FilesUpdated+p.FilesSkipped {
		t.Fatalf("progress counts do not add up: %+v", p)
	}
	if p.FilesNew != 1 || p.FilesSkipped != 1 {
		t.Fatalf("expected 1 new (resurrected) and 1 skipped: %+v", p)
	}
}

func TestScanChangedFileDropsOldScenes(t *testing.T) {
	h := newScanHarness(t)
	ctx := context.Background()
	path := filepath.Join(h.dir, "h.mp4")
	mtime := time.Now().Add(-2 * time.Hour).Truncate(time.Second)
	writeClip(t, path, "original cut", mtime)

	if _, err := h.scanner.Scan(ctx); err != nil {
		t.Fatalf("first scan: %v", err)
	}
	f, _ := h.files.GetByPath(ctx, nil, path)
	if err := h.scenes.ReplaceForFile(ctx, nil, f.ID, []*types.Scene{
		{FileID: f.ID, SceneIndex: 0, StartTC: 0, EndTC: 4},
		{FileID: f.ID, SceneIndex: 1, StartTC: 4, EndTC: 9},
	}); err != nil {
		t.Fatalf("seed scenes: %v", err)
	}

	writeClip(t, path, "recut with new footage", mtime.Add(time.Minute))
	if _, err := h.scanner.Scan(ctx); err != nil {
		t.Fatalf("rescan: %v", err)
	}

	// The old scene rows belong to the old bytes; enrichment must start
	// from a clean slate.
	scenes, err := h.scenes.ListByFile(ctx, nil, f.ID)
	if err != nil {
		t.Fatalf("list scenes: %v", err)
	}
	if len(scenes) != 0 {
		t.Fatalf("stale scenes survived the change: %d rows", len(scenes))
	}
}

func TestScanToleratesUnreachableRoot(t *testing.T) {
	h := newScanHarness(t)
	ctx := context.Background()
	mtime := time.Now().Add(-time.Hour).Truncate(time.Second)
	writeClip(t, filepath.Join(h.dir, "e.mp4"), "safe", mtime)
	if _, err := h.scanner.Scan(ctx); err != nil {
		t.Fatalf("first scan: %v", err)
	}

	// Point the config at the real dir plus a root that does not exist. The
	// missing root is skipped; the indexed file must not get tombstoned.
	if err := h.settings.SetWatchFolders(ctx, []string{h.dir, "/mnt/unplugged-nas"}); err != nil {
		t.Fatalf("set watch folders: %v", err)
	}
	sum, err := h.scanner.Scan(ctx)
	if err != nil {
		t.Fatalf("scan with dead root: %v", err)
	}
	if sum.MarkedMissing != 0 {
		t.Fatalf("dead root caused tombstones: %+v", sum)
	}
	f, _ := h.files.GetByPath(ctx, nil, filepath.Join(h.dir, "e.mp4"))
	if f == nil || f.DeletedAt != nil {
		t.Fatalf("file under live root was tombstoned: %+v", f)
	}
}
