package assistant

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// Extraction is the structured reading of a shopper's query.
type Extraction struct {
	Product             string   `json:"product"`
	Attributes          []string `json:"attributes"`
	SpecialRequirements []string `json:"special_requirements"`
}

// Extractor pulls the product and its attributes out of a query.
type Extractor interface {
	Extract(ctx context.Context, query string) (Extraction, error)
}

// Generator produces free text from a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

const extractPrompt = `Extract key information from the following user query. Identify:
1. The product category (e.g., 'garage door', 'window')
2. Relevant attributes (e.g., 'color', 'size', 'insulation')
3. Any additional requirements (e.g., 'passive house compatible')

Example query: "I'm looking for garage doors for my passive house. What are the available colors?"

Expected JSON output:
` + "```json" + `
{
  "product": "garage doors",
  "attributes": ["color"],
  "special_requirements": ["passive house compatible"]
}
` + "```" + `

Now analyze the following query:
%s
`

var (
	fencedJSON = regexp.MustCompile("(?s)```(?:json)?\\s*(\\{.*?\\})\\s*```")
	bareJSON   = regexp.MustCompile(`(?s)\{.*\}`)
)

// LLMExtractor asks a Generator for the extraction as JSON.
type LLMExtractor struct {
	gen Generator
}

func NewLLMExtractor(gen Generator) *LLMExtractor {
	return &LLMExtractor{gen: gen}
}

// Extract returns an empty Extraction, not an error, when the model answers
// without usable JSON.
func (e *LLMExtractor) Extract(ctx context.Context, query string) (Extraction, error) {
	out, err := e.gen.Generate(ctx, fmt.Sprintf(extractPrompt, query))
	if err != nil {
		return Extraction{}, fmt.Errorf("assistant: extract: %w", err)
	}
	return parseExtraction(stripThink(out)), nil
}

func parseExtraction(text string) Extraction {
	var raw string
	if m := fencedJSON.FindStringSubmatch(text); m != nil {
		raw = m[1]
	} else if m := bareJSON.FindString(text); m != "" {
		raw = m
	}
	var ex Extraction
	if raw == "" || json.Unmarshal([]byte(raw), &ex) != nil {
		return Extraction{}
	}
	ex.Product = strings.TrimSpace(ex.Product)
	ex.Attributes = compact(ex.Attributes)
	ex.SpecialRequirements = compact(ex.SpecialRequirements)
	return ex
}

func compact(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
