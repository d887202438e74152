package domain

import (
	"strings"
	"unicode/utf8"
)

// DefaultMinQueryLength is the shortest query that reaches any source
const DefaultMinQueryLength = 2

// Query is raw user input plus its normalized key
type Query struct {
	Raw string `json:"raw"`
	Key string `json:"key"`
}

// NormalizeKey trims and lower-cases text for cache lookup and equality
func NormalizeKey(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// NewQuery builds a Query from raw input without validating it
func NewQuery(raw string) Query {
	return Query{Raw: raw, Key: NormalizeKey(raw)}
}

// ParseQuery builds a Query and rejects input shorter than minLen runes
// after trimming. A non-positive minLen falls back to DefaultMinQueryLength.
func ParseQuery(raw string, minLen int) (Query, error) {
	if minLen <= 0 {
		minLen = DefaultMinQueryLength
	}
	q := NewQuery(raw)
	if utf8.RuneCountInString(q.Key) < minLen {
		return q, ErrQueryTooShort
	}
	return q, nil
}
