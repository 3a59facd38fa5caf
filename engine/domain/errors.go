package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors shared across the search engine.
var (
	ErrEmptyEmbedding         = errors.New("embedding has zero norm")
	ErrEmptyQuery             = errors.New("empty query")
	ErrIndexingAlreadyRunning = errors.New("indexing already running")
	ErrVectorStore            = errors.New("vector store failure")
	ErrNotFound               = errors.New("not found")
	ErrInvalidMetadata        = errors.New("invalid metadata")
	ErrQueryTooLong           = errors.New("query too long")
	ErrQueryInjection         = errors.New("query contains suspicious content")
)

// ValidationError wraps a sentinel with context.
type ValidationError struct {
	Field   string
	Value   string
	Wrapped error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation: %s: %s (value=%q)", e.Wrapped, e.Field, e.Value)
}

func (e *ValidationError) Unwrap() error { return e.Wrapped }

// NewValidationError creates a ValidationError.
func NewValidationError(field, value string, wrapped error) *ValidationError {
	return &ValidationError{Field: field, Value: value, Wrapped: wrapped}
}

// StoreError reports a failed vector store operation. It matches both
// ErrVectorStore and the underlying cause under errors.Is.
type StoreError struct {
	Op  string
	ID  string
	Err error
}

func (e *StoreError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("vector store: %s %s: %v", e.Op, e.ID, e.Err)
	}
	return fmt.Sprintf("vector store: %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() []error { return []error{ErrVectorStore, e.Err} }

// NewStoreError creates a StoreError.
func NewStoreError(op, id string, err error) *StoreError {
	return &StoreError{Op: op, ID: id, Err: err}
}
