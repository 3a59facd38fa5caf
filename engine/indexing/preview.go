package indexing

import (
	"context"
	"fmt"

	"github.com/m1520n/rag-chatbot/engine/domain"
)

const (
	defaultPerPage = 10
	maxPerPage     = 100
	previewDims    = 5
)

// RawText is a record's fields as stored in the catalog.
type RawText struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Tags        string `json:"tags"`
}

// PreviewItem shows how one record is normalised and embedded.
type PreviewItem struct {
	ID        string                `json:"id"`
	Original  RawText               `json:"original_data"`
	Processed domain.NormalizedText `json:"processed_data"`
	URL       string                `json:"url"`
	Vector    []float32             `json:"embedding_vector"`
	Dims      int                   `json:"dimensions"`
	IsIndexed bool                  `json:"is_indexed"`
	Error     string                `json:"error,omitempty"`
}

// Pagination describes where a page sits in the filtered catalog.
type Pagination struct {
	Page       int  `json:"page"`
	PerPage    int  `json:"per_page"`
	Total      int  `json:"total"`
	TotalPages int  `json:"total_pages"`
	HasNext    bool `json:"has_next"`
	HasPrev    bool `json:"has_prev"`
}

type PreviewPage struct {
	Items      []PreviewItem `json:"items"`
	Pagination Pagination    `json:"pagination"`
}

// Preview embeds one page of active records without writing to the index.
// Pages are 1-based; out of range values are clamped.
func (p *Pipeline) Preview(ctx context.Context, page, perPage int, filters ...domain.CatalogFilter) (PreviewPage, error) {
	if page < 1 {
		page = 1
	}
	switch {
	case perPage < 1:
		perPage = defaultPerPage
	case perPage > maxPerPage:
		perPage = maxPerPage
	}

	total, err := p.catalog.CountActive(ctx, filters...)
	if err != nil {
		return PreviewPage{}, fmt.Errorf("indexing: preview: %w", err)
	}
	recs, err := p.catalog.FetchActivePaginated(ctx, (page-1)*perPage, perPage, filters...)
	if err != nil {
		return PreviewPage{}, fmt.Errorf("indexing: preview: %w", err)
	}

	items := make([]PreviewItem, 0, len(recs))
	for _, rec := range recs {
		items = append(items, p.preview(ctx, rec))
	}
	pages := (total + perPage - 1) / perPage
	return PreviewPage{
		Items: items,
		Pagination: Pagination{
			Page:       page,
			PerPage:    perPage,
			Total:      total,
			TotalPages: pages,
			HasNext:    page < pages,
			HasPrev:    page > 1,
		},
	}, nil
}

// PreviewOne previews a single record whatever its active flag.
func (p *Pipeline) PreviewOne(ctx context.Context, id string) (PreviewItem, error) {
	rec, err := p.catalog.Get(ctx, id)
	if err != nil {
		return PreviewItem{}, fmt.Errorf("indexing: preview %s: %w", id, err)
	}
	return p.preview(ctx, rec), nil
}

func (p *Pipeline) preview(ctx context.Context, rec domain.ProductRecord) PreviewItem {
	item := PreviewItem{
		ID:       rec.ID,
		Original: RawText{Name: rec.Name, Description: rec.Description(), Tags: rec.Tags},
	}
	if _, ok, err := p.index.Get(ctx, rec.ID); err == nil {
		item.IsIndexed = ok
	}
	f, err := p.composer.ComposeRecord(ctx, rec, p.opts.BaseURL)
	if err != nil {
		item.Processed = p.composer.Normalizer().Normalize(rec)
		item.Error = err.Error()
		return item
	}
	item.Processed = f.Text
	item.URL = f.URL
	item.Dims = len(f.Vector)
	item.Vector = f.Vector[:min(previewDims, len(f.Vector))]
	return item
}
