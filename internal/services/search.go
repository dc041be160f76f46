package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/pgvector/pgvector-go"

	"github.com/fennecvideo/fennec/internal/cache"
	"github.com/fennecvideo/fennec/internal/errdefs"
	"github.com/fennecvideo/fennec/internal/logger"
	"github.com/fennecvideo/fennec/internal/models"
	"github.com/fennecvideo/fennec/internal/repos"
	"github.com/fennecvideo/fennec/internal/types"
)

const (
	defaultSearchLimit = 200
	candidateFetchCap  = 500
)

// SearchService runs combined-filter search. Vector clauses apply in a
// fixed order (visual text, visual match, face, transcript semantic) and
// intersect on scene id; the first applied clause's similarity is the
// primary sort key. Metadata predicates and the dialog keyword are plain
// SQL on the final fetch.
type SearchService interface {
	Search(ctx context.Context, req types.SearchRequest) ([]*types.SceneResult, error)
}

type searchService struct {
	scenes     repos.SceneRepo
	faces      repos.FaceRepo
	embeddings repos.EmbeddingRepo
	hosts      *models.Hosts
	settings   SettingsService
	embedCache *cache.EmbedCache
	log        *logger.Logger
}

func NewSearchService(
	scenes repos.SceneRepo,
	faces repos.FaceRepo,
	embeddings repos.EmbeddingRepo,
	hosts *models.Hosts,
	settings SettingsService,
	embedCache *cache.EmbedCache,
	log *logger.Logger,
) SearchService {
	return &searchService{
		scenes:     scenes,
		faces:      faces,
		embeddings: embeddings,
		hosts:      hosts,
		settings:   settings,
		embedCache: embedCache,
		log:        log.With("service", "SearchService"),
	}
}

// clauseScores tracks the surviving candidate set. nil ids means "no vector
// clause applied yet"; an empty map after an intersection short-circuits to
// zero results.
type clauseScores struct {
	ids     map[int64]bool
	primary map[int64]float64

	visual     map[int64]float64
	face       map[int64]float64
	transcript map[int64]float64
}

func (cs *clauseScores) intersect(hits map[int64]float64) {
	if cs.ids == nil {
		cs.ids = make(map[int64]bool, len(hits))
		for id := range hits {
			cs.ids[id] = true
		}
		cs.primary = hits
		return
	}
	for id := range cs.ids {
		if _, ok := hits[id]; !ok {
			delete(cs.ids, id)
		}
	}
}

func (s *searchService) Search(ctx context.Context, req types.SearchRequest) ([]*types.SceneResult, error) {
	thresholds, err := s.settings.Thresholds(ctx)
	if err != nil {
		return nil, err
	}
	specs, err := s.settings.ModelVersions(ctx)
	if err != nil {
		return nil, err
	}

	cs := &clauseScores{}

	if req.VisualText != nil {
		hits, err := s.visualTextHits(ctx, req.VisualText, thresholds, specs)
		if err != nil {
			return nil, err
		}
		cs.visual = hits
		cs.intersect(hits)
	}
	if req.VisualMatch != nil {
		hits, err := s.visualMatchHits(ctx, req.VisualMatch, thresholds, specs)
		if err != nil {
			return nil, err
		}
		if cs.visual == nil {
			cs.visual = hits
		}
		cs.intersect(hits)
	}
	if req.Face != nil {
		hits, err := s.faceHits(ctx, req.Face, thresholds)
		if err != nil {
			return nil, err
		}
		cs.face = hits
		cs.intersect(hits)
	}
	if req.DialogSemantic != nil {
		hits, err := s.transcriptHits(ctx, req.DialogSemantic, thresholds, specs)
		switch {
		case errors.Is(err, errdefs.ErrModelNotReady):
			// Degrade to a plain keyword match on the same query instead of
			// failing the whole search.
			s.log.Warn("text model not ready, falling back to dialog keyword", "error", err)
			if req.DialogKeyword == nil {
				q := req.DialogSemantic.Query
				req.DialogKeyword = &q
			}
		case err != nil:
			return nil, err
		default:
			cs.transcript = hits
			cs.intersect(hits)
		}
	}

	filter := types.SceneFilter{
		DialogKeyword: req.DialogKeyword,
		Path:          req.Path,
		Codec:         req.Codec,
		FPSMin:        req.FPSMin,
		FPSMax:        req.FPSMax,
		DurationMin:   req.DurationMin,
		DurationMax:   req.DurationMax,
		WidthMin:      req.WidthMin,
		HeightMin:     req.HeightMin,
		TCMin:         req.TCMin,
		TCMax:         req.TCMax,
	}

	limit := req.Limit
	if limit <= 0 {
		limit = defaultSearchLimit
	}

	vectorSearch := cs.ids != nil
	if vectorSearch {
		filter.SceneIDs = idsOf(cs.ids)
		// Sort happens here after the fetch, so the SQL limit must not
		// truncate the candidate set.
	} else {
		filter.Limit = limit
	}

	results, err := s.scenes.ListFiltered(ctx, nil, filter)
	if err != nil {
		return nil, err
	}

	s.attachScores(results, cs)

	if err := s.attachFaces(ctx, results); err != nil {
		return nil, err
	}

	if vectorSearch {
		sort.SliceStable(results, func(a, b int) bool {
			return cs.primary[results[a].ID] > cs.primary[results[b].ID]
		})
		if len(results) > limit {
			results = results[:limit]
		}
	}
	return results, nil
}

func (s *searchService) attachScores(results []*types.SceneResult, cs *clauseScores) {
	for _, r := range results {
		if cs.visual != nil {
			if v, ok := cs.visual[r.ID]; ok {
				sim := v
				r.Similarity = &sim
			}
		}
		if cs.face != nil {
			if v, ok := cs.face[r.ID]; ok {
				sim := v
				r.FaceSimilarity = &sim
			}
		}
		if cs.transcript != nil {
			if v, ok := cs.transcript[r.ID]; ok {
				sim := v
				r.TranscriptSimilarity = &sim
			}
		}
	}
}

func (s *searchService) attachFaces(ctx context.Context, results []*types.SceneResult) error {
	if len(results) == 0 {
		return nil
	}
	ids := make([]int64, 0, len(results))
	for _, r := range results {
		ids = append(ids, r.ID)
	}
	byScene, err := s.faces.ListByScenes(ctx, nil, ids)
	if err != nil {
		return err
	}
	for _, r := range results {
		r.Faces = byScene[r.ID]
		if r.Faces == nil {
			r.Faces = []types.FaceRef{}
		}
	}
	return nil
}

func (s *searchService) visualTextHits(ctx context.Context, c *types.VisualTextClause, t types.SearchThresholds, specs map[string]types.ModelSpec) (map[int64]float64, error) {
	query := strings.TrimSpace(c.Query)
	if query == "" {
		return nil, errdefs.BadRequest("visual query text is empty")
	}
	vec, err := s.embedQueryText(ctx, types.ModelClip, query)
	if err != nil {
		return nil, err
	}
	threshold := t.Visual
	if c.Threshold != nil {
		threshold = *c.Threshold
	}
	hits, err := s.embeddings.NearestByModel(ctx, nil, types.ModelClip, specs[types.ModelClip].Dimension, pgvector.NewVector(vec), threshold, candidateFetchCap)
	if err != nil {
		return nil, err
	}
	return sceneHitMap(hits), nil
}

func (s *searchService) visualMatchHits(ctx context.Context, c *types.VisualMatchClause, t types.SearchThresholds, specs map[string]types.ModelSpec) (map[int64]float64, error) {
	ref, err := s.embeddings.GetBySceneModel(ctx, nil, c.SceneID, types.ModelClip)
	if err != nil {
		return nil, err
	}
	if ref == nil {
		return nil, errdefs.NotFound(fmt.Sprintf("visual embedding for scene %d", c.SceneID))
	}
	threshold := t.VisualMatch
	if c.Threshold != nil {
		threshold = *c.Threshold
	}
	hits, err := s.embeddings.NearestByModel(ctx, nil, types.ModelClip, specs[types.ModelClip].Dimension, ref.Embedding, threshold, candidateFetchCap)
	if err != nil {
		return nil, err
	}
	out := sceneHitMap(hits)
	// The reference scene matches itself at similarity 1.0; it is not a
	// result.
	delete(out, c.SceneID)
	return out, nil
}

func (s *searchService) faceHits(ctx context.Context, c *types.FaceClause, t types.SearchThresholds) (map[int64]float64, error) {
	var ref *types.Face
	var err error
	if c.FaceID != 0 {
		ref, err = s.faces.GetByID(ctx, nil, c.FaceID)
	} else {
		ref, err = s.faces.GetBySceneIndex(ctx, nil, c.SceneID, c.FaceIndex)
	}
	if err != nil {
		return nil, err
	}
	if ref == nil {
		return nil, errdefs.NotFound("reference face")
	}
	threshold := t.Face
	if c.Threshold != nil {
		threshold = *c.Threshold
	}
	hits, err := s.faces.Nearest(ctx, nil, ref.Embedding, threshold, candidateFetchCap)
	if err != nil {
		return nil, err
	}
	// Several faces can hit in one scene; keep the best.
	out := make(map[int64]float64, len(hits))
	for _, h := range hits {
		if v, ok := out[h.SceneID]; !ok || h.Similarity > v {
			out[h.SceneID] = h.Similarity
		}
	}
	return out, nil
}

func (s *searchService) transcriptHits(ctx context.Context, c *types.DialogSemanticClause, t types.SearchThresholds, specs map[string]types.ModelSpec) (map[int64]float64, error) {
	query := strings.TrimSpace(c.Query)
	if query == "" {
		return nil, errdefs.BadRequest("dialog query text is empty")
	}
	vec, err := s.embedQueryText(ctx, types.ModelTranscript, query)
	if err != nil {
		return nil, err
	}
	threshold := t.Transcript
	if c.Threshold != nil {
		threshold = *c.Threshold
	}
	hits, err := s.embeddings.NearestByModel(ctx, nil, types.ModelTranscript, specs[types.ModelTranscript].Dimension, pgvector.NewVector(vec), threshold, candidateFetchCap)
	if err != nil {
		return nil, err
	}
	return sceneHitMap(hits), nil
}

func (s *searchService) embedQueryText(ctx context.Context, model, text string) ([]float32, error) {
	if vec := s.embedCache.Get(ctx, model, text); vec != nil {
		return vec, nil
	}
	var vec []float32
	var err error
	switch model {
	case types.ModelClip:
		vec, err = s.hosts.Visual.EmbedText(ctx, text)
	case types.ModelTranscript:
		vec, err = s.hosts.Text.EmbedText(ctx, text)
	default:
		return nil, fmt.Errorf("no text embedder for model %q", model)
	}
	if err != nil {
		return nil, err
	}
	s.embedCache.Set(ctx, model, text, vec)
	return vec, nil
}

func sceneHitMap(hits []types.SceneHit) map[int64]float64 {
	out := make(map[int64]float64, len(hits))
	for _, h := range hits {
		out[h.SceneID] = h.Similarity
	}
	return out
}

func idsOf(set map[int64]bool) []int64 {
	out := make([]int64, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Slice(out, func(a, b int) bool { return out[a] < out[b] })
	return out
}
