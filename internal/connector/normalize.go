package connector

import (
	"html"
	"strings"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
)

// Character budgets for free-text fields sent downstream.
const (
	PageBodyLimit            = 1500
	EmailSnippetLimit        = 300
	CalendarDescriptionLimit = 500
	CommentBodyLimit         = 500
)

var stripPolicy = bluemonday.StrictPolicy()

// StripMarkup removes every HTML tag, decodes entities and collapses runs of
// whitespace into single spaces.
func StripMarkup(s string) string {
	if s == "" {
		return ""
	}
	// Tags become spaces so adjacent block elements don't fuse words.
	spaced := strings.NewReplacer("<", " <", ">", "> ").Replace(s)
	text := html.UnescapeString(stripPolicy.Sanitize(spaced))
	return strings.Join(strings.Fields(text), " ")
}

// Truncate cuts s to at most limit characters (runes).
func Truncate(s string, limit int) string {
	if limit <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return string(runes[:limit])
}

// FirstNonEmpty returns the first argument that is not blank.
func FirstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
