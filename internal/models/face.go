package models

import (
	"context"
	"encoding/base64"

	"github.com/fennecvideo/fennec/internal/logger"
)

// FaceDetection is one detected face: pixel bbox plus identity embedding.
type FaceDetection struct {
	BBox      [4]float64 `json:"bbox"`
	Embedding []float32  `json:"embedding"`
}

// FaceModelClient talks to the ArcFace host.
type FaceModelClient interface {
	Ready(ctx context.Context) error
	DetectFaces(ctx context.Context, imageBytes []byte) ([]FaceDetection, error)
}

type faceModelClient struct {
	*hostClient
}

func NewFaceModelClient(log *logger.Logger) FaceModelClient {
	return &faceModelClient{
		hostClient: newHostClient(log, "FaceModelClient", "ARCFACE_HOST_URL", "http://localhost:8194"),
	}
}

type detectFacesRequest struct {
	ImageB64 string `json:"image_b64"`
}

type detectFacesResponse struct {
	Faces []FaceDetection `json:"faces"`
}

func (c *faceModelClient) DetectFaces(ctx context.Context, imageBytes []byte) ([]FaceDetection, error) {
	var resp detectFacesResponse
	req := detectFacesRequest{ImageB64: base64.StdEncoding.EncodeToString(imageBytes)}
	if err := c.postJSON(ctx, "/detect", req, &resp); err != nil {
		return nil, err
	}
	return resp.Faces, nil
}
