package services

import (
	"context"
	"fmt"

	"github.com/fennecvideo/fennec/internal/errdefs"
	"github.com/fennecvideo/fennec/internal/logger"
	"github.com/fennecvideo/fennec/internal/repos"
	"github.com/fennecvideo/fennec/internal/types"
)

// ScenePage is one page of the scene wall.
type ScenePage struct {
	Scenes []*types.SceneResult `json:"scenes"`
	Total  int64                `json:"total"`
	Limit  int                  `json:"limit"`
	Offset int                  `json:"offset"`
}

// SceneDetail is the single-scene view: result row plus per-model vector
// presence.
type SceneDetail struct {
	types.SceneResult
	Vectors []types.VectorSummary `json:"vectors"`
}

// FileDetail is one file plus its scenes.
type FileDetail struct {
	File   *types.File    `json:"file"`
	Scenes []*types.Scene `json:"scenes"`
}

// FaceListing is one face row of the faces browser.
type FaceListing struct {
	ID           int64      `json:"id"`
	SceneID      int64      `json:"scene_id"`
	BBox         [4]float64 `json:"bbox"`
	ClusterID    *int       `json:"cluster_id"`
	ClusterOrder *float64   `json:"cluster_order"`
}

// BrowseService backs the read-only listing endpoints.
type BrowseService interface {
	Scenes(ctx context.Context, limit, offset int) (*ScenePage, error)
	Scene(ctx context.Context, sceneID int64) (*SceneDetail, error)
	Files(ctx context.Context, limit, offset int, completedOnly bool) ([]*types.File, error)
	File(ctx context.Context, fileID int64) (*FileDetail, error)
	Faces(ctx context.Context, limit int) ([]FaceListing, error)

	// FacePoster resolves a face to its bbox and the poster frame it was
	// detected near, for crop rendering.
	FacePoster(ctx context.Context, faceID int64) (*types.Face, string, error)
}

type browseService struct {
	files      repos.FileRepo
	scenes     repos.SceneRepo
	faces      repos.FaceRepo
	embeddings repos.EmbeddingRepo
	log        *logger.Logger
}

func NewBrowseService(files repos.FileRepo, scenes repos.SceneRepo, faces repos.FaceRepo, embeddings repos.EmbeddingRepo, log *logger.Logger) BrowseService {
	return &browseService{
		files:      files,
		scenes:     scenes,
		faces:      faces,
		embeddings: embeddings,
		log:        log.With("service", "BrowseService"),
	}
}

func (b *browseService) Scenes(ctx context.Context, limit, offset int) (*ScenePage, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	rows, err := b.scenes.ListCompleted(ctx, nil, limit, offset)
	if err != nil {
		return nil, err
	}
	total, err := b.scenes.CountCompleted(ctx, nil)
	if err != nil {
		return nil, err
	}
	ids := make([]int64, 0, len(rows))
	for _, r := range rows {
		ids = append(ids, r.ID)
	}
	byScene, err := b.faces.ListByScenes(ctx, nil, ids)
	if err != nil {
		return nil, err
	}
	for _, r := range rows {
		r.Faces = byScene[r.ID]
		if r.Faces == nil {
			r.Faces = []types.FaceRef{}
		}
	}
	return &ScenePage{Scenes: rows, Total: total, Limit: limit, Offset: offset}, nil
}

func (b *browseService) Scene(ctx context.Context, sceneID int64) (*SceneDetail, error) {
	rows, err := b.scenes.ListFiltered(ctx, nil, types.SceneFilter{SceneIDs: []int64{sceneID}})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, errdefs.NotFound(fmt.Sprintf("scene %d", sceneID))
	}
	detail := &SceneDetail{SceneResult: *rows[0]}

	byScene, err := b.faces.ListByScenes(ctx, nil, []int64{sceneID})
	if err != nil {
		return nil, err
	}
	detail.Faces = byScene[sceneID]
	if detail.Faces == nil {
		detail.Faces = []types.FaceRef{}
	}

	if detail.Vectors, err = b.embeddings.ListByScene(ctx, nil, sceneID); err != nil {
		return nil, err
	}
	return detail, nil
}

func (b *browseService) Files(ctx context.Context, limit, offset int, completedOnly bool) ([]*types.File, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	return b.files.List(ctx, nil, limit, offset, completedOnly)
}

func (b *browseService) File(ctx context.Context, fileID int64) (*FileDetail, error) {
	file, err := b.files.GetByID(ctx, nil, fileID)
	if err != nil {
		return nil, err
	}
	if file == nil || file.DeletedAt != nil {
		return nil, errdefs.NotFound(fmt.Sprintf("file %d", fileID))
	}
	scenes, err := b.scenes.ListByFile(ctx, nil, fileID)
	if err != nil {
		return nil, err
	}
	return &FileDetail{File: file, Scenes: scenes}, nil
}

func (b *browseService) Faces(ctx context.Context, limit int) ([]FaceListing, error) {
	if limit <= 0 || limit > 2000 {
		limit = 500
	}
	rows, err := b.faces.ListRecent(ctx, nil, limit)
	if err != nil {
		return nil, err
	}
	out := make([]FaceListing, 0, len(rows))
	for _, f := range rows {
		out = append(out, FaceListing{
			ID:           f.ID,
			SceneID:      f.SceneID,
			BBox:         f.BBox(),
			ClusterID:    f.ClusterID,
			ClusterOrder: f.ClusterOrder,
		})
	}
	return out, nil
}

func (b *browseService) FacePoster(ctx context.Context, faceID int64) (*types.Face, string, error) {
	face, err := b.faces.GetByID(ctx, nil, faceID)
	if err != nil {
		return nil, "", err
	}
	if face == nil {
		return nil, "", errdefs.NotFound(fmt.Sprintf("face %d", faceID))
	}
	scene, err := b.scenes.GetByID(ctx, nil, face.SceneID)
	if err != nil {
		return nil, "", err
	}
	if scene == nil || scene.PosterFramePath == nil {
		return nil, "", errdefs.NotFound(fmt.Sprintf("poster frame for face %d", faceID))
	}
	return face, *scene.PosterFramePath, nil
}
