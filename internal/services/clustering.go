package services

import (
	"context"
	"strconv"

	"github.com/fennecvideo/fennec/internal/cluster"
	"github.com/fennecvideo/fennec/internal/logger"
	"github.com/fennecvideo/fennec/internal/repos"
	"github.com/fennecvideo/fennec/internal/types"
	"github.com/fennecvideo/fennec/internal/utils"
)

// ClusteringService recomputes the scene and face groupings after the queue
// drains. Both passes are full recomputations; incremental clustering is
// not worth the bookkeeping at this library size.
type ClusteringService interface {
	ReclusterScenes(ctx context.Context) error
	ReclusterFaces(ctx context.Context) error
}

type clusteringService struct {
	scenes     repos.SceneRepo
	faces      repos.FaceRepo
	embeddings repos.EmbeddingRepo
	log        *logger.Logger

	sceneParams cluster.Params
	faceParams  cluster.Params
}

func NewClusteringService(scenes repos.SceneRepo, faces repos.FaceRepo, embeddings repos.EmbeddingRepo, log *logger.Logger) ClusteringService {
	slog := log.With("service", "ClusteringService")
	return &clusteringService{
		scenes:     scenes,
		faces:      faces,
		embeddings: embeddings,
		log:        slog,
		sceneParams: cluster.Params{
			Eps:    envFloat("CLUSTER_EPS_VISUAL", 0.30, slog),
			MinPts: 2,
		},
		faceParams: cluster.Params{
			Eps:    envFloat("CLUSTER_EPS_FACE", 0.35, slog),
			MinPts: 2,
		},
	}
}

func envFloat(key string, def float64, log *logger.Logger) float64 {
	raw := utils.GetEnv(key, "", log)
	if raw == "" {
		return def
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || v <= 0 {
		return def
	}
	return v
}

func (c *clusteringService) ReclusterScenes(ctx context.Context) error {
	rows, err := c.embeddings.ListVectors(ctx, nil, types.ModelClip)
	if err != nil {
		return err
	}
	items := make([]cluster.Item, 0, len(rows))
	for _, row := range rows {
		items = append(items, cluster.Item{ID: row.SceneID, Vec: row.Embedding.Slice()})
	}
	assignments := cluster.Run(items, c.sceneParams)
	for _, a := range assignments {
		if err := c.scenes.UpdateCluster(ctx, nil, a.ID, a.ClusterID, a.Order); err != nil {
			return err
		}
	}
	c.log.Info("scene clustering done", "scenes", len(items), "clusters", countClusters(assignments))
	return nil
}

func (c *clusteringService) ReclusterFaces(ctx context.Context) error {
	rows, err := c.faces.ListAll(ctx, nil)
	if err != nil {
		return err
	}
	items := make([]cluster.Item, 0, len(rows))
	for _, row := range rows {
		items = append(items, cluster.Item{ID: row.ID, Vec: row.Embedding.Slice()})
	}
	assignments := cluster.Run(items, c.faceParams)
	for _, a := range assignments {
		if err := c.faces.UpdateCluster(ctx, nil, a.ID, a.ClusterID, a.Order); err != nil {
			return err
		}
	}
	c.log.Info("face clustering done", "faces", len(items), "clusters", countClusters(assignments))
	return nil
}

func countClusters(assignments []cluster.Assignment) int {
	seen := map[int]bool{}
	for _, a := range assignments {
		if a.ClusterID != cluster.Noise {
			seen[a.ClusterID] = true
		}
	}
	return len(seen)
}
