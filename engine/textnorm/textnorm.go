// Package textnorm cleans catalog text and derives the category of a product.
package textnorm

import (
	"regexp"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/m1520n/rag-chatbot/engine/domain"
)

var (
	whitespace = regexp.MustCompile(`\s+`)
	slugStrip  = regexp.MustCompile(`[^a-zA-Z0-9\s-]`)
)

// Elements whose content is never catalog text.
var dropped = map[atom.Atom]bool{
	atom.Script:   true,
	atom.Style:    true,
	atom.Noscript: true,
	atom.Svg:      true,
}

// Elements that separate words when rendered.
var blocks = map[atom.Atom]bool{
	atom.P: true, atom.Div: true, atom.Br: true, atom.Hr: true,
	atom.H1: true, atom.H2: true, atom.H3: true, atom.H4: true, atom.H5: true, atom.H6: true,
	atom.Li: true, atom.Ul: true, atom.Ol: true, atom.Tr: true, atom.Td: true, atom.Th: true,
	atom.Blockquote: true, atom.Pre: true, atom.Table: true, atom.Section: true, atom.Article: true,
}

// Clean extracts the text of an HTML fragment: tags and comments go,
// script/style/noscript/svg content goes, entities are decoded once and
// whitespace is collapsed. A '<' that does not open a tag stays text.
func Clean(text string) string {
	z := html.NewTokenizer(strings.NewReader(text))
	var b strings.Builder
	skip := 0
	for {
		tt := z.Next()
		switch tt {
		case html.ErrorToken:
			s := strings.ReplaceAll(b.String(), "\u00a0", " ")
			return strings.TrimSpace(whitespace.ReplaceAllString(s, " "))
		case html.TextToken:
			if skip == 0 {
				b.Write(z.Text())
			}
		case html.StartTagToken, html.EndTagToken, html.SelfClosingTagToken:
			name, _ := z.TagName()
			a := atom.Lookup(name)
			switch {
			case dropped[a] && tt == html.StartTagToken:
				skip++
			case dropped[a] && tt == html.EndTagToken && skip > 0:
				skip--
			case blocks[a] && skip == 0:
				b.WriteByte(' ')
			}
		}
	}
}

// Slug turns text into a lower-case URL path segment.
func Slug(text string) string {
	s := slugStrip.ReplaceAllString(text, "")
	s = strings.ToLower(strings.TrimSpace(s))
	return whitespace.ReplaceAllString(s, "-")
}

// ProductURL builds the canonical product page address: base/slug(name)-id.
func ProductURL(base, name, id string) string {
	return strings.TrimRight(base, "/") + "/" + Slug(Clean(name)) + "-" + id
}

// tagRepeat is how many times an emphasised tag appears in the output.
const tagRepeat = 3

// Normalizer applies cleaning and classification against one category table.
type Normalizer struct {
	table    domain.CategoryTable
	keywords []string
}

// New creates a Normalizer. An empty table falls back to the default one.
func New(table domain.CategoryTable) *Normalizer {
	if len(table) == 0 {
		table = domain.DefaultCategoryTable()
	}
	var kw []string
	for _, k := range table.Keywords() {
		if k = strings.ToLower(strings.TrimSpace(k)); k != "" {
			kw = append(kw, k)
		}
	}
	return &Normalizer{table: table, keywords: kw}
}

// Table returns the category table in use.
func (n *Normalizer) Table() domain.CategoryTable { return n.table }

// EnhanceTags cleans a comma-delimited tag string and repeats every tag that
// mentions a category keyword.
func (n *Normalizer) EnhanceTags(tagText string) string {
	cleaned := Clean(tagText)
	if cleaned == "" {
		return ""
	}
	var out []string
	for _, tok := range strings.Split(cleaned, ",") {
		tok = strings.TrimSpace(tok)
		if tok == "" {
			continue
		}
		reps := 1
		if n.hasKeyword(strings.ToLower(tok)) {
			reps = tagRepeat
		}
		for i := 0; i < reps; i++ {
			out = append(out, tok)
		}
	}
	return strings.Join(out, " ")
}

func (n *Normalizer) hasKeyword(lower string) bool {
	for _, kw := range n.keywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// Classify returns the first category in table order whose keywords occur in
// name or tags, or "other".
func (n *Normalizer) Classify(name, tags string) domain.Category {
	text := strings.ToLower(name + " " + tags)
	for _, rule := range n.table {
		for _, kw := range rule.Keywords {
			if kw != "" && strings.Contains(text, strings.ToLower(kw)) {
				return rule.Category
			}
		}
	}
	return domain.CategoryOther
}

// Normalize derives the cleaned text fields and category of a record.
func (n *Normalizer) Normalize(r domain.ProductRecord) domain.NormalizedText {
	name := Clean(r.Name)
	rawTags := Clean(r.Tags)
	return domain.NormalizedText{
		Name:        name,
		Description: Clean(r.Description()),
		Tags:        n.EnhanceTags(r.Tags),
		Category:    n.Classify(name, rawTags),
	}
}
