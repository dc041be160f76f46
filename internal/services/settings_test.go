package services

import (
	"context"
	"testing"
	"time"

	"github.com/fennecvideo/fennec/internal/repos"
	"github.com/fennecvideo/fennec/internal/repos/testutil"
	"github.com/fennecvideo/fennec/internal/types"
)

func newSettings(t *testing.T) SettingsService {
	t.Helper()
	db := testutil.SqliteDB(t)
	log := testutil.Logger(t)
	return NewSettingsService(repos.NewConfigRepo(db, log), log)
}

func TestSettingsSeedNeverOverwrites(t *testing.T) {
	s := newSettings(t)
	ctx := context.Background()

	if err := s.Seed(ctx, SettingsSeed{WatchFolders: []string{"/media/a"}, PollIntervalSeconds: 60}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if err := s.SetWatchFolders(ctx, []string{"/media/edited"}); err != nil {
		t.Fatalf("set watch folders: %v", err)
	}

	// A restart re-seeds; the operator's edit must survive.
	if err := s.Seed(ctx, SettingsSeed{WatchFolders: []string{"/media/a"}, PollIntervalSeconds: 600}); err != nil {
		t.Fatalf("re-seed: %v", err)
	}
	folders, err := s.WatchFolders(ctx)
	if err != nil {
		t.Fatalf("watch folders: %v", err)
	}
	if len(folders) != 1 || folders[0] != "/media/edited" {
		t.Fatalf("seed overwrote operator edit: %v", folders)
	}
	interval, err := s.PollInterval(ctx)
	if err != nil {
		t.Fatalf("poll interval: %v", err)
	}
	if interval != 60*time.Second {
		t.Fatalf("re-seed changed interval: %v", interval)
	}
}

func TestSettingsDefaultsOnFreshDatabase(t *testing.T) {
	s := newSettings(t)
	ctx := context.Background()

	state, err := s.IndexerState(ctx)
	if err != nil {
		t.Fatalf("indexer state: %v", err)
	}
	if state != types.IndexerRunning {
		t.Fatalf("fresh db should default to running, got %q", state)
	}

	interval, err := s.PollInterval(ctx)
	if err != nil {
		t.Fatalf("poll interval: %v", err)
	}
	if interval != 3600*time.Second {
		t.Fatalf("default interval wrong: %v", interval)
	}

	models, err := s.EnabledModels(ctx)
	if err != nil {
		t.Fatalf("enabled models: %v", err)
	}
	if models != types.DefaultEnabledModels() {
		t.Fatalf("default models wrong: %+v", models)
	}

	th, err := s.Thresholds(ctx)
	if err != nil {
		t.Fatalf("thresholds: %v", err)
	}
	if th != types.DefaultThresholds() {
		t.Fatalf("default thresholds wrong: %+v", th)
	}
}

func TestSettingsModelVersionsGapFill(t *testing.T) {
	s := newSettings(t)
	ctx := context.Background()

	// Partial override: only clip pinned; the rest come from defaults.
	if err := s.SetRaw(ctx, types.ConfigModelVersions, map[string]types.ModelSpec{
		types.ModelClip: {Version: "ViT-L-14", Dimension: 768},
	}); err != nil {
		t.Fatalf("set raw: %v", err)
	}

	versions, err := s.ModelVersions(ctx)
	if err != nil {
		t.Fatalf("model versions: %v", err)
	}
	if versions[types.ModelClip].Version != "ViT-L-14" || versions[types.ModelClip].Dimension != 768 {
		t.Fatalf("override lost: %+v", versions[types.ModelClip])
	}
	if _, ok := versions[types.ModelArcFace]; !ok {
		t.Fatalf("gap fill missing arcface: %+v", versions)
	}
	if _, ok := versions[types.ModelTranscript]; !ok {
		t.Fatalf("gap fill missing transcript model: %+v", versions)
	}
}

func TestSettingsScanBookkeeping(t *testing.T) {
	s := newSettings(t)
	ctx := context.Background()

	if p, err := s.ScanProgress(ctx); err != nil || p != nil {
		t.Fatalf("fresh db scan progress: %v, %v", p, err)
	}

	if err := s.SetScanProgress(ctx, &types.ScanProgress{ScanID: "abc", Phase: types.ScanDiscovering}); err != nil {
		t.Fatalf("set progress: %v", err)
	}
	p, err := s.ScanProgress(ctx)
	if err != nil {
		t.Fatalf("get progress: %v", err)
	}
	if p == nil || p.ScanID != "abc" || p.Phase != types.ScanDiscovering {
		t.Fatalf("progress round trip: %+v", p)
	}

	finished := time.Now().Truncate(time.Second)
	if err := s.RecordScanFinished(ctx, finished, 90*time.Second); err != nil {
		t.Fatalf("record finished: %v", err)
	}
	at, ms, err := s.LastScan(ctx)
	if err != nil {
		t.Fatalf("last scan: %v", err)
	}
	if at == nil || !at.Equal(finished) {
		t.Fatalf("last scan time: %v", at)
	}
	if ms != 90000 {
		t.Fatalf("last scan duration: %d", ms)
	}
}
