// Package search ranks products for a query vector and trims the tail with a
// threshold derived from the spread of candidate distances.
package search

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/m1520n/rag-chatbot/engine/domain"
	"github.com/m1520n/rag-chatbot/engine/semantic"
	"github.com/m1520n/rag-chatbot/pkg/fn"
)

// NearestFinder is the read side of a vector index.
type NearestFinder interface {
	QueryNearest(ctx context.Context, vec []float32, limit int) ([]semantic.Hit, error)
}

// QueryEncoder turns free text into a unit query vector.
type QueryEncoder interface {
	EncodeQuery(ctx context.Context, text string) ([]float32, error)
}

// Options configures a Searcher.
type Options struct {
	Thresholds    Thresholds
	Limit         int
	SearchTimeout time.Duration
	// MaxParallel bounds concurrent searches in FanOut.
	MaxParallel int
}

// DefaultOptions returns sensible defaults.
func DefaultOptions() Options {
	return Options{
		Thresholds:    DefaultThresholds(),
		Limit:         10,
		SearchTimeout: 5 * time.Second,
		MaxParallel:   4,
	}
}

// Searcher is read-only and safe for concurrent use.
type Searcher struct {
	index  NearestFinder
	enc    QueryEncoder
	opts   Options
	logger *slog.Logger
}

// New creates a Searcher. Zero option fields take their defaults.
func New(index NearestFinder, enc QueryEncoder, opts Options, logger *slog.Logger) *Searcher {
	def := DefaultOptions()
	if opts.Thresholds == (Thresholds{}) {
		opts.Thresholds = def.Thresholds
	}
	if opts.Limit <= 0 {
		opts.Limit = def.Limit
	}
	if opts.SearchTimeout <= 0 {
		opts.SearchTimeout = def.SearchTimeout
	}
	if opts.MaxParallel <= 0 {
		opts.MaxParallel = def.MaxParallel
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Searcher{index: index, enc: enc, opts: opts, logger: logger}
}

// Search returns the candidates within the adaptive threshold, closest first.
// Store failures are logged and yield no results.
func (s *Searcher) Search(ctx context.Context, vec []float32, conv domain.Conversation, limit int) []domain.Product {
	if limit <= 0 {
		limit = s.opts.Limit
	}
	ctx, cancel := context.WithTimeout(ctx, s.opts.SearchTimeout)
	defer cancel()

	hits, err := s.index.QueryNearest(ctx, vec, limit)
	if err != nil {
		s.logger.Error("search: query nearest failed", "err", err, "store_error", errors.Is(err, domain.ErrVectorStore))
		return []domain.Product{}
	}
	if len(hits) == 0 {
		return []domain.Product{}
	}

	m := s.opts.Thresholds.Multiplier(conv)
	cut := Threshold(fn.Map(hits, func(h semantic.Hit) float64 { return h.Distance }), m)
	kept := fn.Filter(hits, func(h semantic.Hit) bool { return h.Distance <= cut })

	s.logger.Debug("search: threshold applied",
		"candidates", len(hits), "kept", len(kept), "threshold", cut, "multiplier", m)
	return fn.Map(kept, toProduct)
}

// SearchText encodes text and searches with it.
func (s *Searcher) SearchText(ctx context.Context, text string, conv domain.Conversation, limit int) ([]domain.Product, error) {
	vec, err := s.enc.EncodeQuery(ctx, text)
	if err != nil {
		return nil, err
	}
	return s.Search(ctx, vec, conv, limit), nil
}

// FanOut runs one search per phrase and concatenates the results in phrase
// order. A product found by several phrases keeps its first position.
func (s *Searcher) FanOut(ctx context.Context, phrases []string, conv domain.Conversation, limit int) ([]domain.Product, error) {
	results := make([][]domain.Product, len(phrases))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.MaxParallel)
	for i, p := range phrases {
		g.Go(func() error {
			res, err := s.SearchText(gctx, p, conv, limit)
			if errors.Is(err, domain.ErrEmptyQuery) {
				return nil
			}
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var merged []domain.Product
	for _, r := range results {
		merged = append(merged, r...)
	}
	return fn.UniqueBy(merged, func(p domain.Product) string { return p.ID }), nil
}

func toProduct(h semantic.Hit) domain.Product {
	return domain.Product{
		ID:          h.ID,
		Score:       h.Distance,
		Name:        h.Metadata.Name,
		URL:         h.Metadata.URL,
		Tags:        h.Metadata.Tags,
		Category:    h.Metadata.Category,
		Description: h.Metadata.Description,
	}
}
