package domain

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// Injection patterns: SQL/NoSQL fragments that should never appear in a user query.
var injectionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(DROP|DELETE|INSERT|UPDATE|ALTER|EXEC|UNION)\b.*\b(TABLE|FROM|INTO|SELECT|SET)\b`),
	regexp.MustCompile(`(?i)(--|;)\s*(DROP|DELETE|SELECT)`),
	regexp.MustCompile(`(?i)\$\{.*\}`),            // template injection
	regexp.MustCompile(`(?i)\{\s*"\$[a-z]+"\s*:`), // NoSQL operator injection
}

// MaxQueryLength bounds a free-text query in runes.
const MaxQueryLength = 1000

// ValidateQuery rejects empty, oversized and injection-looking queries.
func ValidateQuery(text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return NewValidationError("query", text, ErrEmptyQuery)
	}
	if utf8.RuneCountInString(text) > MaxQueryLength {
		return NewValidationError("query", truncate(text, 64), ErrQueryTooLong)
	}
	for _, pat := range injectionPatterns {
		if pat.MatchString(text) {
			return NewValidationError("query", text, ErrQueryInjection)
		}
	}
	return nil
}

// truncate cuts s to at most n runes.
func truncate(s string, n int) string {
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}
