// Package assistant answers shopper questions from catalog search results
// through a language model.
package assistant

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/m1520n/rag-chatbot/engine/domain"
	"github.com/m1520n/rag-chatbot/pkg/fn"
)

// Searcher runs the adaptive search for one or more phrases.
type Searcher interface {
	FanOut(ctx context.Context, phrases []string, conv domain.Conversation, limit int) ([]domain.Product, error)
}

type Options struct {
	// Seller is the shop name the model speaks for.
	Seller string
	// BaseURL is the product link prefix recognised in earlier replies.
	BaseURL string
	// HistoryTurns bounds how much of the conversation is read.
	HistoryTurns int
	// Limit caps results per searched phrase.
	Limit int
}

func DefaultOptions() Options {
	return Options{
		Seller:       "Aikon Distribution",
		BaseURL:      "https://aikondistribution.com/products",
		HistoryTurns: 10,
		Limit:        10,
	}
}

// Debug explains how a reply was produced.
type Debug struct {
	Query           string           `json:"query"`
	Extracted       Extraction       `json:"extracted_info"`
	ProductsFound   []domain.Product `json:"products_found"`
	AttributesFound []domain.Product `json:"attributes_found"`
	Prompt          string           `json:"prompt,omitempty"`
}

type Response struct {
	Reply string `json:"response"`
	Debug Debug  `json:"debug_info"`
}

type Assistant struct {
	extract Extractor
	gen     Generator
	search  Searcher
	opts    Options
	log     *slog.Logger
}

func New(ex Extractor, gen Generator, search Searcher, opts Options, logger *slog.Logger) *Assistant {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.HistoryTurns <= 0 {
		opts.HistoryTurns = DefaultOptions().HistoryTurns
	}
	return &Assistant{extract: ex, gen: gen, search: search, opts: opts, log: logger}
}

// Reply answers query given the prior conversation. An invalid query is
// returned as a domain.ValidationError.
func (a *Assistant) Reply(ctx context.Context, query string, conv domain.Conversation) (Response, error) {
	if err := domain.ValidateQuery(query); err != nil {
		return Response{}, err
	}
	conv = conv.Last(a.opts.HistoryTurns)
	dbg := Debug{Query: query, ProductsFound: []domain.Product{}, AttributesFound: []domain.Product{}}

	ex, err := a.extract.Extract(ctx, query)
	if err != nil {
		return Response{}, err
	}
	dbg.Extracted = ex
	if ex.Product == "" {
		return Response{Reply: "I couldn't determine the product you're looking for. Could you clarify?", Debug: dbg}, nil
	}

	found, err := a.search.FanOut(ctx, []string{ex.Product}, conv, a.opts.Limit)
	if err != nil {
		return Response{}, fmt.Errorf("assistant: search %q: %w", ex.Product, err)
	}
	if len(found) == 0 {
		return Response{Reply: fmt.Sprintf("Sorry, I couldn't find any %s in our catalog.", ex.Product), Debug: dbg}, nil
	}

	attrs, err := a.attributeMatches(ctx, ex, found, conv)
	if err != nil {
		a.log.Warn("attribute search failed", "product", ex.Product, "error", err)
	}
	combined := fn.UniqueBy(append(found, attrs...), func(p domain.Product) string { return p.ID })
	dbg.ProductsFound = combined
	dbg.AttributesFound = attrs

	h := readHistory(conv, a.opts.BaseURL)
	dbg.Prompt = sellerPrompt(a.opts.Seller, query, combined, h)
	out, err := a.gen.Generate(ctx, dbg.Prompt)
	if err != nil {
		return Response{}, fmt.Errorf("assistant: generate: %w", err)
	}
	a.log.Info("assistant reply",
		"product", ex.Product,
		"products", len(combined),
		"follow_up", isFollowUp(query, h),
	)
	return Response{Reply: stripThink(out), Debug: dbg}, nil
}

// attributeMatches searches each attribute and keeps hits in a category the
// product search already returned.
func (a *Assistant) attributeMatches(ctx context.Context, ex Extraction, found []domain.Product, conv domain.Conversation) ([]domain.Product, error) {
	if len(ex.Attributes) == 0 {
		return []domain.Product{}, nil
	}
	phrases := fn.Map(ex.Attributes, func(attr string) string { return attr + " " + ex.Product })
	hits, err := a.search.FanOut(ctx, phrases, conv, a.opts.Limit)
	if err != nil {
		return []domain.Product{}, err
	}
	cats := map[string]bool{}
	for _, p := range found {
		cats[strings.ToLower(p.Category)] = true
	}
	kept := fn.Filter(hits, func(p domain.Product) bool { return cats[strings.ToLower(p.Category)] })
	if kept == nil {
		kept = []domain.Product{}
	}
	return kept, nil
}
