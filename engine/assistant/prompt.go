package assistant

import (
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/m1520n/rag-chatbot/engine/domain"
)

var (
	thinkBlock   = regexp.MustCompile(`(?s)<think>.*?</think>`)
	trailingID   = regexp.MustCompile(`-\d+$`)
	followUpWord = regexp.MustCompile(`(?i)\b(it|this|that|these|those|they|them|the product)\b`)
)

func stripThink(s string) string {
	return strings.TrimSpace(thinkBlock.ReplaceAllString(s, ""))
}

// history is what the prompt needs from earlier turns.
type history struct {
	discussed []string
	lastQuery string
}

// readHistory collects the product links the assistant already gave and the
// latest user question.
func readHistory(conv domain.Conversation, baseURL string) history {
	var h history
	var links *regexp.Regexp
	if baseURL != "" {
		links = regexp.MustCompile(regexp.QuoteMeta(strings.TrimRight(baseURL, "/")) + `/([^)\s]+)`)
	}
	title := cases.Title(language.English)
	seen := map[string]bool{}
	for _, t := range conv {
		switch {
		case t.Role == "user":
			h.lastQuery = t.Content
		case t.Role == "assistant" && links != nil:
			for _, m := range links.FindAllStringSubmatch(t.Content, -1) {
				name := title.String(strings.ReplaceAll(trailingID.ReplaceAllString(m[1], ""), "-", " "))
				if name != "" && !seen[name] {
					seen[name] = true
					h.discussed = append(h.discussed, name)
				}
			}
		}
	}
	return h
}

// isFollowUp reports whether query refers back to something already said.
func isFollowUp(query string, h history) bool {
	return h.lastQuery != "" && followUpWord.MatchString(query)
}

func formatProducts(ps []domain.Product) string {
	var b strings.Builder
	for _, p := range ps {
		fmt.Fprintf(&b, "- %s (%s): %s\n", p.Name, p.Category, p.URL)
		if p.Tags != "" {
			fmt.Fprintf(&b, "  Tags: %s\n", p.Tags)
		}
		if p.Description != "" {
			fmt.Fprintf(&b, "  Description: %s\n", p.Description)
		}
	}
	return b.String()
}

const sellerRules = `RULES:
1. ONLY talk about products that are explicitly provided in the product list below
2. If a product is not in the list, say you don't have information about it
3. NEVER make up or invent product features, specifications, or details
4. When mentioning products, use EXACTLY the same names and links as provided
5. If asked about a product's details, ONLY discuss it if it's in the current product list
6. If you don't have enough information, ask the customer for clarification
7. ALWAYS include the exact product links when mentioning specific products
8. If the user asks about a new product, focus on that product even if different from previous ones
9. Only reference previous products if the user specifically asks about them`

func sellerPrompt(seller, query string, products []domain.Product, h history) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are a professional seller specializing in windows and doors at %s.\n\n", seller)
	b.WriteString(sellerRules)
	b.WriteString("\n\nPrevious context:\n")
	for _, name := range h.discussed {
		fmt.Fprintf(&b, "Previously discussed: %s\n", name)
	}
	if isFollowUp(query, h) {
		fmt.Fprintf(&b, "\nPrevious question: %s\n", h.lastQuery)
	}
	b.WriteString("\nAvailable products for this conversation:\n")
	b.WriteString(formatProducts(products))
	fmt.Fprintf(&b, "\nCurrent question: %q\n", query)
	b.WriteString(`
Remember:
- Focus on answering the current question about products from the list above
- If the user is asking about a new product, don't be biased by previously discussed products
- Only reference previous products if the user specifically asks about them
`)
	return b.String()
}
