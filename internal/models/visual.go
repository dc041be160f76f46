package models

import (
	"context"
	"encoding/base64"

	"github.com/fennecvideo/fennec/internal/logger"
)

// VisualModelClient talks to the CLIP host. Image and text land in the same
// embedding space, which is what makes text-to-video search work.
type VisualModelClient interface {
	Ready(ctx context.Context) error
	EmbedImage(ctx context.Context, imageBytes []byte) ([]float32, error)
	EmbedText(ctx context.Context, text string) ([]float32, error)
}

type visualModelClient struct {
	*hostClient
}

func NewVisualModelClient(log *logger.Logger) VisualModelClient {
	return &visualModelClient{
		hostClient: newHostClient(log, "VisualModelClient", "CLIP_HOST_URL", "http://localhost:8191"),
	}
}

type embedImageRequest struct {
	ImageB64 string `json:"image_b64"`
}

type embedTextRequest struct {
	Text string `json:"text"`
}

type embedResponse struct {
	Embedding []float32 `json:"embedding"`
}

func (c *visualModelClient) EmbedImage(ctx context.Context, imageBytes []byte) ([]float32, error) {
	var resp embedResponse
	req := embedImageRequest{ImageB64: base64.StdEncoding.EncodeToString(imageBytes)}
	if err := c.postJSON(ctx, "/embed_image", req, &resp); err != nil {
		return nil, err
	}
	return resp.Embedding, nil
}

func (c *visualModelClient) EmbedText(ctx context.Context, text string) ([]float32, error) {
	var resp embedResponse
	if err := c.postJSON(ctx, "/embed_text", embedTextRequest{Text: text}, &resp); err != nil {
		return nil, err
	}
	return resp.Embedding, nil
}
