package services

import (
	"context"
	"testing"

	"github.com/fennecvideo/fennec/internal/repos"
	"github.com/fennecvideo/fennec/internal/repos/testutil"
	"github.com/fennecvideo/fennec/internal/types"
)

type adminHarness struct {
	admin    AdminService
	files    repos.FileRepo
	queue    repos.QueueRepo
	settings SettingsService
}

func newAdminHarness(t *testing.T) *adminHarness {
	t.Helper()
	db := testutil.SqliteDB(t)
	log := testutil.Logger(t)
	files := repos.NewFileRepo(db, log)
	queue := repos.NewQueueRepo(db, log)
	settings := NewSettingsService(repos.NewConfigRepo(db, log), log)
	return &adminHarness{
		admin:    NewAdminService(files, queue, repos.NewAdminRepo(db, log), settings, log),
		files:    files,
		queue:    queue,
		settings: settings,
	}
}

func (h *adminHarness) seedProcessingJob(t *testing.T) *types.QueueItem {
	t.Helper()
	ctx := context.Background()
	f, err := h.files.Create(ctx, nil, &types.File{Path: "/media/stuck.mp4", Filename: "stuck.mp4"})
	if err != nil {
		t.Fatalf("create file: %v", err)
	}
	if _, err := h.queue.Enqueue(ctx, nil, f.ID, 7); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	item, err := h.queue.ClaimNextPending(ctx, nil)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if item == nil || item.Status != types.QueueProcessing {
		t.Fatalf("expected processing claim, got %+v", item)
	}
	return item
}

func TestAdminResetProcessingReleasesInFlightJobs(t *testing.T) {
	h := newAdminHarness(t)
	ctx := context.Background()
	claimed := h.seedProcessingJob(t)

	n, err := h.admin.ResetProcessing(ctx)
	if err != nil {
		t.Fatalf("reset processing: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 reset, got %d", n)
	}
	item, err := h.queue.GetByID(ctx, nil, claimed.ID)
	if err != nil {
		t.Fatalf("get item: %v", err)
	}
	if item.Status != types.QueuePending || item.StartedAt != nil {
		t.Fatalf("job not back to pending: %+v", item)
	}
	if item.RetryCount != 0 {
		t.Fatalf("reset consumed a retry: %d", item.RetryCount)
	}
}

func TestAdminRequestRestartSetsFlag(t *testing.T) {
	h := newAdminHarness(t)
	ctx := context.Background()

	if v, err := h.settings.RestartRequested(ctx); err != nil || v {
		t.Fatalf("fresh flag should be unset: v=%v err=%v", v, err)
	}
	if err := h.admin.RequestRestart(ctx); err != nil {
		t.Fatalf("request restart: %v", err)
	}
	v, err := h.settings.RestartRequested(ctx)
	if err != nil {
		t.Fatalf("read flag: %v", err)
	}
	if !v {
		t.Fatal("restart flag not set")
	}

	// The worker loop clears it after acting on it.
	if err := h.settings.SetRestartRequested(ctx, false); err != nil {
		t.Fatalf("clear flag: %v", err)
	}
	if v, _ := h.settings.RestartRequested(ctx); v {
		t.Fatal("restart flag not cleared")
	}
}
