package embedding

import (
	"context"
	"fmt"
	"strings"

	"github.com/m1520n/rag-chatbot/engine/domain"
	"github.com/m1520n/rag-chatbot/engine/textnorm"
	"github.com/m1520n/rag-chatbot/pkg/fn"
)

// Weights scales each field's vector before fusion.
type Weights struct {
	Name        float64 `yaml:"name" json:"name"`
	Description float64 `yaml:"description" json:"description"`
	Tags        float64 `yaml:"tags" json:"tags"`
	Category    float64 `yaml:"category" json:"category"`
}

// DefaultWeights lets tags dominate and keeps the noisy description weakest.
func DefaultWeights() Weights {
	return Weights{Name: 1.5, Description: 0.8, Tags: 4.0, Category: 2.0}
}

// Validate rejects non-positive weights.
func (w Weights) Validate() error {
	for _, f := range []struct {
		name string
		v    float64
	}{
		{"name", w.Name}, {"description", w.Description}, {"tags", w.Tags}, {"category", w.Category},
	} {
		if !(f.v > 0) {
			return fmt.Errorf("embedding: weight %s must be positive, got %v", f.name, f.v)
		}
	}
	return nil
}

type field struct {
	name   string
	text   string
	weight float64
}

// Composer fuses the per-field embeddings of a product into one unit vector.
type Composer struct {
	enc     Encoder
	norm    *textnorm.Normalizer
	weights Weights
}

// NewComposer validates the weights and builds a Composer.
func NewComposer(enc Encoder, norm *textnorm.Normalizer, w Weights) (*Composer, error) {
	if err := w.Validate(); err != nil {
		return nil, err
	}
	if norm == nil {
		norm = textnorm.New(nil)
	}
	return &Composer{enc: enc, norm: norm, weights: w}, nil
}

// Normalizer returns the text normalizer the composer uses.
func (c *Composer) Normalizer() *textnorm.Normalizer { return c.norm }

// Compose encodes each non-empty field independently, sums the weighted
// vectors and normalizes the sum. Empty fields contribute nothing and are
// never sent to the encoder. A sum with no direction yields ErrEmptyEmbedding.
func (c *Composer) Compose(ctx context.Context, name, description, tags string, category domain.Category) ([]float32, error) {
	all := []field{
		{"name", name, c.weights.Name},
		{"description", description, c.weights.Description},
		{"tags", tags, c.weights.Tags},
		{"category", string(category), c.weights.Category},
	}
	var fields []field
	for _, f := range all {
		if strings.TrimSpace(f.text) != "" {
			fields = append(fields, f)
		}
	}
	if len(fields) == 0 {
		return nil, domain.ErrEmptyEmbedding
	}

	vecs, err := fn.Collect(fn.ParMapResult(fields, len(fields), func(f field) fn.Result[[]float32] {
		v, err := c.enc.Encode(ctx, f.text)
		if err != nil {
			return fn.Err[[]float32](fmt.Errorf("embedding: encode %s: %w", f.name, err))
		}
		return fn.Ok(v)
	})).Unwrap()
	if err != nil {
		return nil, err
	}

	dim := len(vecs[0])
	sum := make([]float64, dim)
	for i, v := range vecs {
		if len(v) != dim {
			return nil, fmt.Errorf("embedding: field %s has dimension %d, want %d", fields[i].name, len(v), dim)
		}
		for j, x := range v {
			sum[j] += fields[i].weight * float64(x)
		}
	}

	out := make([]float32, dim)
	for j, x := range sum {
		out[j] = float32(x)
	}
	unit, ok := Normalize(out)
	if !ok {
		return nil, domain.ErrEmptyEmbedding
	}
	return unit, nil
}

// ComposeRecord normalizes a catalog record and embeds it.
func (c *Composer) ComposeRecord(ctx context.Context, rec domain.ProductRecord, baseURL string) (domain.FusedEmbedding, error) {
	text := c.norm.Normalize(rec)
	vec, err := c.Compose(ctx, text.Name, text.Description, text.Tags, text.Category)
	if err != nil {
		return domain.FusedEmbedding{}, fmt.Errorf("embedding: product %s: %w", rec.ID, err)
	}
	return domain.FusedEmbedding{
		Vector: vec,
		Text:   text,
		URL:    textnorm.ProductURL(baseURL, rec.Name, rec.ID),
	}, nil
}

// EncodeQuery cleans and embeds free text without weighting.
func (c *Composer) EncodeQuery(ctx context.Context, text string) ([]float32, error) {
	cleaned := textnorm.Clean(text)
	if strings.TrimSpace(cleaned) == "" {
		return nil, domain.ErrEmptyQuery
	}
	v, err := c.enc.Encode(ctx, cleaned)
	if err != nil {
		return nil, fmt.Errorf("embedding: encode query: %w", err)
	}
	unit, ok := Normalize(v)
	if !ok {
		return nil, domain.ErrEmptyEmbedding
	}
	return unit, nil
}
