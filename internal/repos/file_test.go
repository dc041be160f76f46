package repos

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/fennecvideo/fennec/internal/repos/testutil"
	"github.com/fennecvideo/fennec/internal/types"
)

func mkFile(t *testing.T, repo FileRepo, path string) *types.File {
	t.Helper()
	mod := time.Now().Add(-time.Hour).Truncate(time.Second)
	f, err := repo.Create(context.Background(), nil, &types.File{
		Path:           path,
		Filename:       filepath.Base(path),
		ParentFolder:   "footage",
		FileSizeBytes:  1024,
		FileModifiedAt: &mod,
	})
	if err != nil {
		t.Fatalf("create %s: %v", path, err)
	}
	return f
}

func TestFileRepoSoftDeleteLifecycle(t *testing.T) {
	db := testutil.SqliteDB(t)
	log := testutil.Logger(t)
	repo := NewFileRepo(db, log)
	ctx := context.Background()

	f := mkFile(t, repo, "/media/footage/a_001.mp4")

	got, err := repo.GetByPath(ctx, nil, f.Path)
	if err != nil {
		t.Fatalf("get by path: %v", err)
	}
	if got == nil || got.ID != f.ID {
		t.Fatalf("get by path returned %+v", got)
	}

	n, err := repo.CountActive(ctx, nil)
	if err != nil {
		t.Fatalf("count active: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 active file, got %d", n)
	}

	if err := repo.MarkDeleted(ctx, nil, f.ID); err != nil {
		t.Fatalf("mark deleted: %v", err)
	}
	if n, _ = repo.CountActive(ctx, nil); n != 0 {
		t.Fatalf("expected 0 active after soft delete, got %d", n)
	}

	// Soft-deleted rows stay visible by path so a re-scan can resurrect.
	got, err = repo.GetByPath(ctx, nil, f.Path)
	if err != nil {
		t.Fatalf("get by path after delete: %v", err)
	}
	if got == nil || got.DeletedAt == nil {
		t.Fatalf("expected tombstoned row, got %+v", got)
	}

	if err := repo.UpdateFields(ctx, nil, f.ID, map[string]interface{}{"deleted_at": nil}); err != nil {
		t.Fatalf("resurrect: %v", err)
	}
	if n, _ = repo.CountActive(ctx, nil); n != 1 {
		t.Fatalf("expected 1 active after resurrect, got %d", n)
	}
}

func TestFileRepoPurgeDeleted(t *testing.T) {
	db := testutil.SqliteDB(t)
	log := testutil.Logger(t)
	repo := NewFileRepo(db, log)
	ctx := context.Background()

	keep := mkFile(t, repo, "/media/footage/keep1.mp4")
	gone := mkFile(t, repo, "/media/footage/gone1.mp4")
	if err := repo.MarkDeleted(ctx, nil, gone.ID); err != nil {
		t.Fatalf("mark deleted: %v", err)
	}

	purged, err := repo.PurgeDeleted(ctx, nil)
	if err != nil {
		t.Fatalf("purge: %v", err)
	}
	if purged != 1 {
		t.Fatalf("expected 1 purged, got %d", purged)
	}

	if got, _ := repo.GetByPath(ctx, nil, gone.Path); got != nil {
		t.Fatal("purged row still present")
	}
	if got, _ := repo.GetByID(ctx, nil, keep.ID); got == nil {
		t.Fatal("active row was purged")
	}
}

func TestFileRepoPurgeOutsideRoots(t *testing.T) {
	db := testutil.SqliteDB(t)
	log := testutil.Logger(t)
	repo := NewFileRepo(db, log)
	ctx := context.Background()

	inside := mkFile(t, repo, "/media/footage/in_01.mp4")
	outside := mkFile(t, repo, "/old/archive/out01.mp4")

	purged, err := repo.PurgeOutsideRoots(ctx, nil, []string{"/media/footage"})
	if err != nil {
		t.Fatalf("purge outside roots: %v", err)
	}
	if purged != 1 {
		t.Fatalf("expected 1 purged, got %d", purged)
	}
	if got, _ := repo.GetByID(ctx, nil, inside.ID); got == nil {
		t.Fatal("in-root file was purged")
	}
	if got, _ := repo.GetByID(ctx, nil, outside.ID); got != nil {
		t.Fatal("out-of-root file survived")
	}

	// No roots configured means nothing to purge against.
	purged, err = repo.PurgeOutsideRoots(ctx, nil, nil)
	if err != nil {
		t.Fatalf("purge with no roots: %v", err)
	}
	if purged != 0 {
		t.Fatalf("expected no-op, purged %d", purged)
	}
}

func TestFileRepoListCompletedOnly(t *testing.T) {
	db := testutil.SqliteDB(t)
	log := testutil.Logger(t)
	repo := NewFileRepo(db, log)
	ctx := context.Background()

	done := mkFile(t, repo, "/media/footage/done1.mp4")
	mkFile(t, repo, "/media/footage/todo1.mp4")
	now := time.Now()
	if err := repo.UpdateFields(ctx, nil, done.ID, map[string]interface{}{"indexed_at": now}); err != nil {
		t.Fatalf("mark indexed: %v", err)
	}

	all, err := repo.List(ctx, nil, 10, 0, false)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 files, got %d", len(all))
	}

	completed, err := repo.List(ctx, nil, 10, 0, true)
	if err != nil {
		t.Fatalf("list completed: %v", err)
	}
	if len(completed) != 1 || completed[0].ID != done.ID {
		t.Fatalf("unexpected completed list: %+v", completed)
	}
}
