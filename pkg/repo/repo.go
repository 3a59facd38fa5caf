// Package repo defines a generic read/write repository and its Neo4j implementation.
package repo

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get when no entity has the id.
var ErrNotFound = errors.New("repo: not found")

// Repository is the storage contract shared by graph-backed stores.
type Repository[T any, ID comparable] interface {
	Get(ctx context.Context, id ID) (T, error)
	List(ctx context.Context, opts ListOpts) ([]T, error)
	Count(ctx context.Context, opts ListOpts) (int, error)
	Save(ctx context.Context, entity T) (T, error)
}

// ListOpts controls pagination and filtering for List and Count.
type ListOpts struct {
	Offset int
	Limit  int
	// Where holds predicates over the node bound as n. They are ANDed.
	Where []string
	// Params are bound into the query alongside Where.
	Params map[string]any
	// OrderBy is a property of n; Desc flips the direction.
	OrderBy string
	Desc    bool
}
