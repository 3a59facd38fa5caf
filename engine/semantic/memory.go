package semantic

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/m1520n/rag-chatbot/engine/domain"
	"github.com/m1520n/rag-chatbot/engine/embedding"
)

// MemoryIndex is an in-process VectorIndex using brute-force cosine distance.
type MemoryIndex struct {
	mu      sync.RWMutex
	entries map[string]domain.IndexEntry
}

// NewMemoryIndex creates an empty MemoryIndex.
func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{entries: make(map[string]domain.IndexEntry)}
}

func (m *MemoryIndex) Upsert(_ context.Context, e domain.IndexEntry) error {
	if err := validateEntry(e); err != nil {
		return fmt.Errorf("semantic: upsert %s: %w", e.ID, err)
	}
	e.Vector = slices.Clone(e.Vector)
	m.mu.Lock()
	m.entries[e.ID] = e
	m.mu.Unlock()
	return nil
}

func (m *MemoryIndex) Get(_ context.Context, id string) (domain.IndexEntry, bool, error) {
	m.mu.RLock()
	e, ok := m.entries[id]
	m.mu.RUnlock()
	if !ok {
		return domain.IndexEntry{}, false, nil
	}
	e.Vector = slices.Clone(e.Vector)
	return e, true, nil
}

func (m *MemoryIndex) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	delete(m.entries, id)
	m.mu.Unlock()
	return nil
}

func (m *MemoryIndex) DeleteMany(_ context.Context, ids []string) error {
	m.mu.Lock()
	for _, id := range ids {
		delete(m.entries, id)
	}
	m.mu.Unlock()
	return nil
}

func (m *MemoryIndex) QueryNearest(ctx context.Context, vec []float32, limit int) ([]Hit, error) {
	if limit <= 0 {
		return []Hit{}, nil
	}
	m.mu.RLock()
	hits := make([]Hit, 0, len(m.entries))
	for id, e := range m.entries {
		hits = append(hits, Hit{ID: id, Distance: embedding.CosineDistance(vec, e.Vector), Metadata: e.Metadata})
	}
	m.mu.RUnlock()

	if err := ctx.Err(); err != nil {
		return nil, domain.NewStoreError("query", "", err)
	}
	slices.SortFunc(hits, func(a, b Hit) int {
		switch {
		case a.Distance < b.Distance:
			return -1
		case a.Distance > b.Distance:
			return 1
		}
		return compareIDs(a.ID, b.ID)
	})
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

func (m *MemoryIndex) EnumerateAll(_ context.Context) ([]domain.IndexEntry, error) {
	m.mu.RLock()
	out := make([]domain.IndexEntry, 0, len(m.entries))
	for _, e := range m.entries {
		e.Vector = slices.Clone(e.Vector)
		out = append(out, e)
	}
	m.mu.RUnlock()
	slices.SortFunc(out, func(a, b domain.IndexEntry) int { return compareIDs(a.ID, b.ID) })
	return out, nil
}

func (m *MemoryIndex) Clear(_ context.Context) error {
	m.mu.Lock()
	m.entries = make(map[string]domain.IndexEntry)
	m.mu.Unlock()
	return nil
}

func (m *MemoryIndex) Count(_ context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries), nil
}

// compareIDs orders numeric ids numerically and everything else lexically.
func compareIDs(a, b string) int {
	if len(a) != len(b) && isDigits(a) && isDigits(b) {
		return len(a) - len(b)
	}
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
