package models

import (
	"context"

	"github.com/fennecvideo/fennec/internal/logger"
)

// TextModelClient talks to the sentence-transformer host used for semantic
// transcript search.
type TextModelClient interface {
	Ready(ctx context.Context) error
	EmbedText(ctx context.Context, text string) ([]float32, error)
}

type textModelClient struct {
	*hostClient
}

func NewTextModelClient(log *logger.Logger) TextModelClient {
	return &textModelClient{
		hostClient: newHostClient(log, "TextModelClient", "SENTENCE_HOST_URL", "http://localhost:8192"),
	}
}

func (c *textModelClient) EmbedText(ctx context.Context, text string) ([]float32, error) {
	var resp embedResponse
	if err := c.postJSON(ctx, "/embed_text", embedTextRequest{Text: text}, &resp); err != nil {
		return nil, err
	}
	return resp.Embedding, nil
}
