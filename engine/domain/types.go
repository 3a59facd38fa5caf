package domain

import (
	"strings"
	"time"
)

// ProductRecord is a catalog row as read from the catalog source.
type ProductRecord struct {
	ID           string
	Name         string
	Descriptions []string
	Tags         string
	Active       bool
}

// Description joins the non-empty description fields with a single space.
func (r ProductRecord) Description() string {
	parts := make([]string, 0, len(r.Descriptions))
	for _, d := range r.Descriptions {
		if strings.TrimSpace(d) != "" {
			parts = append(parts, d)
		}
	}
	return strings.Join(parts, " ")
}

// NormalizedText holds the cleaned fields of a record plus its category.
type NormalizedText struct {
	Name        string
	Description string
	Tags        string
	Category    Category
}

// Metadata is the payload stored next to every indexed vector.
type Metadata struct {
	Name        string `json:"name"`
	Tags        string `json:"tags"`
	Category    string `json:"category"`
	Description string `json:"description"`
	URL         string `json:"url"`
}

// Validate checks the fields every stored entry must carry. Text fields may be
// empty: a product without a name is still searchable by its tags.
func (m Metadata) Validate() error {
	switch {
	case strings.TrimSpace(m.URL) == "":
		return NewValidationError("url", m.URL, ErrInvalidMetadata)
	case strings.TrimSpace(m.Category) == "":
		return NewValidationError("category", m.Category, ErrInvalidMetadata)
	}
	return nil
}

// FusedEmbedding is the unit-length product vector with the text it came from.
type FusedEmbedding struct {
	Vector []float32
	Text   NormalizedText
	URL    string
}

// Metadata returns the payload to store for this embedding.
func (f FusedEmbedding) Metadata() Metadata {
	return Metadata{
		Name:        f.Text.Name,
		Tags:        f.Text.Tags,
		Category:    string(f.Text.Category),
		Description: f.Text.Description,
		URL:         f.URL,
	}
}

// IndexEntry is one stored vector keyed by the product id.
type IndexEntry struct {
	ID       string
	Vector   []float32
	Metadata Metadata
}

// Product is a search result. Score is the distance (lower is closer).
type Product struct {
	ID          string  `json:"id"`
	Score       float64 `json:"score"`
	Name        string  `json:"name"`
	URL         string  `json:"url"`
	Tags        string  `json:"tags"`
	Category    string  `json:"category"`
	Description string  `json:"description"`
}

// Turn is one message of a conversation.
type Turn struct {
	Role    string    `json:"role"`
	Content string    `json:"content"`
	At      time.Time `json:"at,omitempty"`
}

// Conversation is the prior message history of a chat.
type Conversation []Turn

// IsFollowUp reports whether a query arrives with prior history.
func (c Conversation) IsFollowUp() bool { return len(c) > 0 }

// Last returns at most n of the most recent turns.
func (c Conversation) Last(n int) Conversation {
	if n <= 0 || len(c) <= n {
		return c
	}
	return c[len(c)-n:]
}

// CatalogFilter selects records with a missing field.
type CatalogFilter string

const (
	FilterEmptyDescription CatalogFilter = "empty_description"
	FilterEmptyName        CatalogFilter = "empty_name"
	FilterEmptyTags        CatalogFilter = "empty_tags"
)

// ParseCatalogFilter maps a request value onto a known filter. The bare
// field name ("tags") is accepted as well as the filter name ("empty_tags").
func ParseCatalogFilter(s string) (CatalogFilter, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	if !strings.HasPrefix(s, "empty_") {
		s = "empty_" + s
	}
	switch f := CatalogFilter(s); f {
	case FilterEmptyDescription, FilterEmptyName, FilterEmptyTags:
		return f, true
	}
	return "", false
}
