// Package semantic stores product vectors and answers nearest-neighbour queries.
package semantic

import (
	"context"

	"github.com/m1520n/rag-chatbot/engine/domain"
)

// Hit is one nearest-neighbour result. Distance is 1 - cosine similarity,
// so smaller means closer.
type Hit struct {
	ID       string
	Distance float64
	Metadata domain.Metadata
}

// VectorIndex is the contract every vector store adapter satisfies.
//
// QueryNearest returns at most limit hits in ascending distance and an empty
// slice, never an error, for an empty index. Clear drops and recreates the
// whole index. Upsert rejects entries whose metadata fails validation.
type VectorIndex interface {
	Upsert(ctx context.Context, e domain.IndexEntry) error
	Get(ctx context.Context, id string) (domain.IndexEntry, bool, error)
	Delete(ctx context.Context, id string) error
	DeleteMany(ctx context.Context, ids []string) error
	QueryNearest(ctx context.Context, vec []float32, limit int) ([]Hit, error)
	EnumerateAll(ctx context.Context) ([]domain.IndexEntry, error)
	Clear(ctx context.Context) error
	Count(ctx context.Context) (int, error)
}

func validateEntry(e domain.IndexEntry) error {
	if e.ID == "" {
		return domain.NewValidationError("id", e.ID, domain.ErrInvalidMetadata)
	}
	if len(e.Vector) == 0 {
		return domain.NewValidationError("vector", e.ID, domain.ErrEmptyEmbedding)
	}
	return e.Metadata.Validate()
}
