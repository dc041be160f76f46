package services

import (
	"context"
	"testing"

	"github.com/pgvector/pgvector-go"
	"gorm.io/gorm"

	"github.com/fennecvideo/fennec/internal/errdefs"
	"github.com/fennecvideo/fennec/internal/models"
	"github.com/fennecvideo/fennec/internal/repos"
	"github.com/fennecvideo/fennec/internal/repos/testutil"
	"github.com/fennecvideo/fennec/internal/types"
)

func TestClauseScoresFirstClauseSeedsPrimary(t *testing.T) {
	cs := &clauseScores{}

	visual := map[int64]float64{1: 0.9, 2: 0.8, 3: 0.7}
	cs.intersect(visual)

	if len(cs.ids) != 3 {
		t.Fatalf("expected 3 candidates, got %d", len(cs.ids))
	}
	// Primary ordering belongs to the first clause applied.
	for id, score := range visual {
		if cs.primary[id] != score {
			t.Fatalf("primary score for %d = %v, want %v", id, cs.primary[id], score)
		}
	}

	face := map[int64]float64{2: 0.95, 3: 0.5, 4: 0.99}
	cs.intersect(face)

	if len(cs.ids) != 2 || !cs.ids[2] || !cs.ids[3] {
		t.Fatalf("intersection wrong: %v", cs.ids)
	}
	// Later clauses narrow the set but never retake the primary sort.
	if cs.primary[2] != 0.8 || cs.primary[3] != 0.7 {
		t.Fatalf("primary scores overwritten: %v", cs.primary)
	}
}

func TestClauseScoresIntersectionCanEmpty(t *testing.T) {
	cs := &clauseScores{}
	cs.intersect(map[int64]float64{1: 0.9})
	cs.intersect(map[int64]float64{2: 0.9})

	if len(cs.ids) != 0 {
		t.Fatalf("disjoint clauses should empty the set: %v", cs.ids)
	}
	// Empty is distinct from "no vector clause": nil means unfiltered.
	if cs.ids == nil {
		t.Fatal("emptied set became nil")
	}
}

// stubEmbeddingSearch serves canned nearest-neighbour results; only the two
// methods the visual-match clause touches are implemented.
type stubEmbeddingSearch struct {
	repos.EmbeddingRepo
	ref  *types.Embedding
	hits []types.SceneHit
}

func (s *stubEmbeddingSearch) GetBySceneModel(ctx context.Context, tx *gorm.DB, sceneID int64, modelName string) (*types.Embedding, error) {
	return s.ref, nil
}

func (s *stubEmbeddingSearch) NearestByModel(ctx context.Context, tx *gorm.DB, modelName string, dimension int, query pgvector.Vector, threshold float64, limit int) ([]types.SceneHit, error) {
	return s.hits, nil
}

func TestVisualMatchExcludesQueryScene(t *testing.T) {
	embeddings := &stubEmbeddingSearch{
		ref: &types.Embedding{SceneID: 5, ModelName: types.ModelClip, Embedding: pgvector.NewVector([]float32{1, 0})},
		hits: []types.SceneHit{
			{SceneID: 5, Similarity: 1.0},
			{SceneID: 8, Similarity: 0.72},
			{SceneID: 9, Similarity: 0.41},
		},
	}
	s := &searchService{embeddings: embeddings, log: testutil.Logger(t)}

	hits, err := s.visualMatchHits(context.Background(), &types.VisualMatchClause{SceneID: 5},
		types.DefaultThresholds(), types.DefaultModelVersions())
	if err != nil {
		t.Fatalf("visual match: %v", err)
	}
	if _, ok := hits[5]; ok {
		t.Fatal("query scene returned as its own match")
	}
	if len(hits) != 2 || hits[8] != 0.72 || hits[9] != 0.41 {
		t.Fatalf("unexpected hits: %v", hits)
	}
}

type stubSceneSearch struct {
	repos.SceneRepo
	gotFilter *types.SceneFilter
	rows      []*types.SceneResult
}

func (s *stubSceneSearch) ListFiltered(ctx context.Context, tx *gorm.DB, f types.SceneFilter) ([]*types.SceneResult, error) {
	s.gotFilter = &f
	return s.rows, nil
}

type stubFaceSearch struct {
	repos.FaceRepo
}

func (s *stubFaceSearch) ListByScenes(ctx context.Context, tx *gorm.DB, sceneIDs []int64) (map[int64][]types.FaceRef, error) {
	return map[int64][]types.FaceRef{}, nil
}

type downTextClient struct{}

func (downTextClient) Ready(ctx context.Context) error { return errdefs.ErrModelNotReady }

func (downTextClient) EmbedText(ctx context.Context, text string) ([]float32, error) {
	return nil, errdefs.ErrModelNotReady
}

func TestSearchSemanticFallsBackToKeywordWhenModelDown(t *testing.T) {
	transcript := "find the treasure"
	scenes := &stubSceneSearch{rows: []*types.SceneResult{
		{ID: 3, FileID: 1, Filename: "map.mp4", Transcript: &transcript},
	}}
	s := &searchService{
		scenes:   scenes,
		faces:    &stubFaceSearch{},
		hosts:    &models.Hosts{Text: downTextClient{}},
		settings: newSettings(t),
		log:      testutil.Logger(t),
	}

	results, err := s.Search(context.Background(), types.SearchRequest{
		DialogSemantic: &types.DialogSemanticClause{Query: "treasure"},
	})
	if err != nil {
		t.Fatalf("search should degrade, not fail: %v", err)
	}
	if len(results) != 1 || results[0].ID != 3 {
		t.Fatalf("unexpected results: %v", results)
	}
	if scenes.gotFilter == nil || scenes.gotFilter.DialogKeyword == nil {
		t.Fatal("keyword filter not applied")
	}
	if *scenes.gotFilter.DialogKeyword != "treasure" {
		t.Fatalf("keyword filter = %q", *scenes.gotFilter.DialogKeyword)
	}
	// No vector clause applied, so the fetch is limit-bounded SQL.
	if scenes.gotFilter.SceneIDs != nil {
		t.Fatalf("unexpected candidate set: %v", scenes.gotFilter.SceneIDs)
	}
}

func TestIdsOfRoundTrip(t *testing.T) {
	ids := idsOf(map[int64]bool{7: true, 3: true, 9: true})
	if len(ids) != 3 {
		t.Fatalf("expected 3 ids, got %v", ids)
	}
	seen := map[int64]bool{}
	for _, id := range ids {
		seen[id] = true
	}
	for _, want := range []int64{3, 7, 9} {
		if !seen[want] {
			t.Fatalf("id %d missing from %v", want, ids)
		}
	}
}
