// Package catalog reads product records from the system of record.
package catalog

import (
	"context"

	"github.com/m1520n/rag-chatbot/engine/domain"
)

// Source is the read contract over the product catalog. Filters select
// records missing any of the named fields.
type Source interface {
	FetchActive(ctx context.Context) ([]domain.ProductRecord, error)
	FetchActivePaginated(ctx context.Context, offset, limit int, filters ...domain.CatalogFilter) ([]domain.ProductRecord, error)
	CountActive(ctx context.Context, filters ...domain.CatalogFilter) (int, error)
	// Get returns the record whatever its active flag, or domain.ErrNotFound.
	Get(ctx context.Context, id string) (domain.ProductRecord, error)
}

// Writer seeds a catalog. Both stores implement it.
type Writer interface {
	Insert(ctx context.Context, rec domain.ProductRecord) error
}
