package repos

import (
	"context"
	"testing"
	"time"

	"github.com/fennecvideo/fennec/internal/repos/testutil"
	"github.com/fennecvideo/fennec/internal/types"
)

func TestQueueEnqueueReplacesExistingRow(t *testing.T) {
	db := testutil.SqliteDB(t)
	log := testutil.Logger(t)
	repo := NewQueueRepo(db, log)
	ctx := context.Background()

	first, err := repo.Enqueue(ctx, nil, 1, 5)
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if err := repo.Fail(ctx, nil, first.ID, "boom"); err != nil {
		t.Fatalf("fail: %v", err)
	}

	second, err := repo.Enqueue(ctx, nil, 1, 7)
	if err != nil {
		t.Fatalf("re-enqueue: %v", err)
	}
	if second.ID == first.ID {
		t.Fatal("expected a fresh row on re-enqueue")
	}

	var n int64
	if err := db.Model(&types.QueueItem{}).Where("file_id = ?", 1).Count(&n).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected one row per file, got %d", n)
	}

	item, err := repo.GetByFileID(ctx, nil, 1)
	if err != nil {
		t.Fatalf("get by file: %v", err)
	}
	if item.Status != types.QueuePending || item.RetryCount != 0 || item.TotalStages != 7 {
		t.Fatalf("re-enqueued row not reset: %+v", item)
	}
}

func TestQueueFailAndResetFailed(t *testing.T) {
	db := testutil.SqliteDB(t)
	log := testutil.Logger(t)
	repo := NewQueueRepo(db, log)
	ctx := context.Background()

	item, err := repo.Enqueue(ctx, nil, 2, 6)
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if err := repo.SetStage(ctx, nil, item.ID, types.StageMetadata, 1); err != nil {
		t.Fatalf("set stage: %v", err)
	}
	if err := repo.Fail(ctx, nil, item.ID, "ffprobe exploded"); err != nil {
		t.Fatalf("fail: %v", err)
	}

	failed, err := repo.ListFailed(ctx, nil, 10)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(failed) != 1 || failed[0].RetryCount != 1 {
		t.Fatalf("unexpected failed list: %+v", failed)
	}
	if failed[0].Error == nil || *failed[0].Error != "ffprobe exploded" {
		t.Fatalf("error message lost: %+v", failed[0].Error)
	}

	reset, err := repo.ResetFailed(ctx, nil)
	if err != nil {
		t.Fatalf("reset failed: %v", err)
	}
	if reset != 1 {
		t.Fatalf("expected 1 reset, got %d", reset)
	}
	got, _ := repo.GetByID(ctx, nil, item.ID)
	if got.Status != types.QueuePending || got.Error != nil {
		t.Fatalf("reset row not pending: %+v", got)
	}
	// Retry count survives the reset so repeat offenders stay visible.
	if got.RetryCount != 1 {
		t.Fatalf("retry count lost on reset: %d", got.RetryCount)
	}
}

func TestQueueCountsAndHasActive(t *testing.T) {
	db := testutil.SqliteDB(t)
	log := testutil.Logger(t)
	repo := NewQueueRepo(db, log)
	ctx := context.Background()

	a, _ := repo.Enqueue(ctx, nil, 10, 5)
	b, _ := repo.Enqueue(ctx, nil, 11, 5)
	if err := repo.Complete(ctx, nil, a.ID); err != nil {
		t.Fatalf("complete: %v", err)
	}

	counts, err := repo.Counts(ctx, nil)
	if err != nil {
		t.Fatalf("counts: %v", err)
	}
	if counts[types.QueuePending] != 1 || counts[types.QueueComplete] != 1 {
		t.Fatalf("unexpected counts: %v", counts)
	}
	// States with no rows are still present, zero-filled.
	if _, ok := counts[types.QueueFailed]; !ok {
		t.Fatal("failed count missing from map")
	}

	active, err := repo.HasActive(ctx, nil)
	if err != nil {
		t.Fatalf("has active: %v", err)
	}
	if !active {
		t.Fatal("expected active work")
	}

	if err := repo.Complete(ctx, nil, b.ID); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if active, _ = repo.HasActive(ctx, nil); active {
		t.Fatal("expected no active work")
	}
}

func TestQueueResetStuck(t *testing.T) {
	db := testutil.SqliteDB(t)
	log := testutil.Logger(t)
	repo := NewQueueRepo(db, log)
	ctx := context.Background()

	item, err := repo.Enqueue(ctx, nil, 20, 5)
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	stale := time.Now().Add(-3 * time.Hour)
	if err := db.Model(&types.QueueItem{}).Where("id = ?", item.ID).Updates(map[string]interface{}{
		"status":     types.QueueProcessing,
		"started_at": stale,
	}).Error; err != nil {
		t.Fatalf("force stale processing: %v", err)
	}

	reset, err := repo.ResetStuck(ctx, nil, 2*time.Hour)
	if err != nil {
		t.Fatalf("reset stuck: %v", err)
	}
	if reset != 1 {
		t.Fatalf("expected 1 stuck reset, got %d", reset)
	}
	got, _ := repo.GetByID(ctx, nil, item.ID)
	if got.Status != types.QueuePending || got.StartedAt != nil {
		t.Fatalf("stuck row not released: %+v", got)
	}

	// A fresh processing row stays put.
	if err := db.Model(&types.QueueItem{}).Where("id = ?", item.ID).Updates(map[string]interface{}{
		"status":     types.QueueProcessing,
		"started_at": time.Now(),
	}).Error; err != nil {
		t.Fatalf("mark processing: %v", err)
	}
	if reset, _ = repo.ResetStuck(ctx, nil, 2*time.Hour); reset != 0 {
		t.Fatalf("fresh row was reset: %d", reset)
	}
}

func TestQueueReleaseKeepsRetryCount(t *testing.T) {
	db := testutil.SqliteDB(t)
	log := testutil.Logger(t)
	repo := NewQueueRepo(db, log)
	ctx := context.Background()

	item, err := repo.Enqueue(ctx, nil, 30, 5)
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if err := db.Model(&types.QueueItem{}).Where("id = ?", item.ID).Updates(map[string]interface{}{
		"status":     types.QueueProcessing,
		"started_at": time.Now(),
	}).Error; err != nil {
		t.Fatalf("mark processing: %v", err)
	}

	if err := repo.Release(ctx, nil, item.ID); err != nil {
		t.Fatalf("release: %v", err)
	}
	got, _ := repo.GetByID(ctx, nil, item.ID)
	if got.Status != types.QueuePending || got.StartedAt != nil {
		t.Fatalf("release did not return row to pending: %+v", got)
	}
	if got.RetryCount != 0 {
		t.Fatalf("release consumed a retry: %d", got.RetryCount)
	}
}

// Claiming relies on FOR UPDATE SKIP LOCKED, so this one needs Postgres.
func TestQueueClaimNextPendingFIFO(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	log := testutil.Logger(t)
	repo := NewQueueRepo(db, log)
	ctx := context.Background()

	if err := tx.Where("1 = 1").Delete(&types.QueueItem{}).Error; err != nil {
		t.Fatalf("clear queue: %v", err)
	}

	first, err := repo.Enqueue(ctx, tx, 101, 5)
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	second, err := repo.Enqueue(ctx, tx, 102, 5)
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	claimed, err := repo.ClaimNextPending(ctx, tx)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if claimed == nil || claimed.ID != first.ID {
		t.Fatalf("expected oldest item %d, got %+v", first.ID, claimed)
	}
	if claimed.Status != types.QueueProcessing || claimed.StartedAt == nil {
		t.Fatalf("claimed row not marked processing: %+v", claimed)
	}

	claimed, err = repo.ClaimNextPending(ctx, tx)
	if err != nil {
		t.Fatalf("claim second: %v", err)
	}
	if claimed == nil || claimed.ID != second.ID {
		t.Fatalf("expected second item %d, got %+v", second.ID, claimed)
	}

	claimed, err = repo.ClaimNextPending(ctx, tx)
	if err != nil {
		t.Fatalf("claim empty: %v", err)
	}
	if claimed != nil {
		t.Fatalf("expected nil on empty queue, got %+v", claimed)
	}
}
