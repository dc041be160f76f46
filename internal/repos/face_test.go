package repos

import (
	"context"
	"testing"

	"github.com/pgvector/pgvector-go"

	"github.com/fennecvideo/fennec/internal/repos/testutil"
	"github.com/fennecvideo/fennec/internal/types"
)

// faceVec builds a 512-dim unit vector with a single hot axis, matching the
// arcface column width.
func faceVec(axis int) pgvector.Vector {
	v := make([]float32, 512)
	v[axis] = 1
	return pgvector.NewVector(v)
}

func TestFaceCreateBatchAndSceneIndexLookup(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	log := testutil.Logger(t)
	repo := NewFaceRepo(db, log)
	ctx := context.Background()

	scene := seedSceneTx(t, tx, "/media/footage/face_batch.mp4")
	faces := []*types.Face{
		{SceneID: scene.ID, BBoxX: 10, BBoxY: 10, BBoxW: 50, BBoxH: 60, Embedding: faceVec(0)},
		{SceneID: scene.ID, BBoxX: 200, BBoxY: 40, BBoxW: 45, BBoxH: 55, Embedding: faceVec(1)},
	}
	if err := repo.CreateBatch(ctx, tx, faces); err != nil {
		t.Fatalf("create batch: %v", err)
	}

	got, err := repo.ListByScene(ctx, tx, scene.ID)
	if err != nil {
		t.Fatalf("list by scene: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 faces, got %d", len(got))
	}

	// Face index is position in id order within the scene.
	second, err := repo.GetBySceneIndex(ctx, tx, scene.ID, 1)
	if err != nil {
		t.Fatalf("get by scene index: %v", err)
	}
	if second == nil || second.ID != got[1].ID {
		t.Fatalf("expected face %d at index 1, got %+v", got[1].ID, second)
	}
	missing, err := repo.GetBySceneIndex(ctx, tx, scene.ID, 5)
	if err != nil {
		t.Fatalf("get by out-of-range index: %v", err)
	}
	if missing != nil {
		t.Fatalf("expected nil for out-of-range index, got %+v", missing)
	}
}

func TestFaceNearestThresholdAndProjection(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	log := testutil.Logger(t)
	repo := NewFaceRepo(db, log)
	ctx := context.Background()

	sceneA := seedSceneTx(t, tx, "/media/footage/face_near_a.mp4")
	sceneB := seedSceneTx(t, tx, "/media/footage/face_near_b.mp4")
	faces := []*types.Face{
		{SceneID: sceneA.ID, BBoxW: 10, BBoxH: 10, Embedding: faceVec(0)},
		{SceneID: sceneB.ID, BBoxW: 10, BBoxH: 10, Embedding: faceVec(7)},
	}
	if err := repo.CreateBatch(ctx, tx, faces); err != nil {
		t.Fatalf("create batch: %v", err)
	}

	hits, err := repo.Nearest(ctx, tx, faceVec(0), 0.9, 10)
	if err != nil {
		t.Fatalf("nearest: %v", err)
	}
	if len(hits) != 1 {
		t.Fatalf("expected 1 hit, got %d", len(hits))
	}
	if hits[0].FaceID != faces[0].ID || hits[0].SceneID != sceneA.ID {
		t.Fatalf("hit projection wrong: %+v", hits[0])
	}
	if hits[0].Similarity < 0.999 {
		t.Fatalf("identical face should score ~1, got %f", hits[0].Similarity)
	}
}

func TestFaceDeleteForSceneAndCounts(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	log := testutil.Logger(t)
	repo := NewFaceRepo(db, log)
	ctx := context.Background()

	scene := seedSceneTx(t, tx, "/media/footage/face_del.mp4")
	faces := []*types.Face{
		{SceneID: scene.ID, BBoxW: 10, BBoxH: 10, Embedding: faceVec(2)},
		{SceneID: scene.ID, BBoxW: 10, BBoxH: 10, Embedding: faceVec(3)},
	}
	if err := repo.CreateBatch(ctx, tx, faces); err != nil {
		t.Fatalf("create batch: %v", err)
	}

	withFaces, err := repo.CountScenesWithFaces(ctx, tx)
	if err != nil {
		t.Fatalf("count scenes with faces: %v", err)
	}
	if withFaces < 1 {
		t.Fatalf("expected at least this scene counted, got %d", withFaces)
	}

	// Re-running face detection clears the scene first.
	if err := repo.DeleteForScene(ctx, tx, scene.ID); err != nil {
		t.Fatalf("delete for scene: %v", err)
	}
	got, err := repo.ListByScene(ctx, tx, scene.ID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("faces survived delete: %d", len(got))
	}
}

func TestFaceUpdateCluster(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	log := testutil.Logger(t)
	repo := NewFaceRepo(db, log)
	ctx := context.Background()

	scene := seedSceneTx(t, tx, "/media/footage/face_clus.mp4")
	faces := []*types.Face{{SceneID: scene.ID, BBoxW: 10, BBoxH: 10, Embedding: faceVec(4)}}
	if err := repo.CreateBatch(ctx, tx, faces); err != nil {
		t.Fatalf("create batch: %v", err)
	}

	if err := repo.UpdateCluster(ctx, tx, faces[0].ID, 3, 0.12); err != nil {
		t.Fatalf("update cluster: %v", err)
	}
	got, err := repo.GetByID(ctx, tx, faces[0].ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.ClusterID == nil || *got.ClusterID != 3 {
		t.Fatalf("cluster id not stored: %+v", got)
	}
	if got.ClusterOrder == nil || *got.ClusterOrder != 0.12 {
		t.Fatalf("cluster order not stored: %+v", got)
	}
}
