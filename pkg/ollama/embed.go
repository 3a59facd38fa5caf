package ollama

import (
	"context"
	"errors"
)

type embedRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type embedResponse struct {
	Embedding []float64 `json:"embedding"`
}

// Encode returns the embedding of text from the configured embed model.
func (c *Client) Encode(ctx context.Context, text string) ([]float32, error) {
	var resp embedResponse
	if err := c.post(ctx, "/api/embeddings", embedRequest{Model: c.opts.EmbedModel, Prompt: text}, &resp); err != nil {
		return nil, err
	}
	if len(resp.Embedding) == 0 {
		return nil, errors.New("ollama: /api/embeddings: empty embedding")
	}
	out := make([]float32, len(resp.Embedding))
	for i, v := range resp.Embedding {
		out[i] = float32(v)
	}
	return out, nil
}
