// Package textutil normalises user supplied text before it is persisted.
package textutil

import (
	"html"
	"strings"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
)

var strict = bluemonday.StrictPolicy()

// NormalizeStringMap trims keys and values, removing entries with empty keys.
func NormalizeStringMap(values map[string]string) map[string]string {
	if len(values) == 0 {
		return nil
	}
	result := make(map[string]string, len(values))
	for key, value := range values {
		trimmedKey := strings.TrimSpace(key)
		if trimmedKey == "" {
			continue
		}
		result[trimmedKey] = strings.TrimSpace(value)
	}
	if len(result) == 0 {
		return nil
	}
	return result
}

// PlainText strips all markup, trims whitespace and truncates to limit runes (0 = unlimited).
func PlainText(value string, limit int) string {
	// Sanitize escapes entities; values are stored as plain text, not HTML.
	cleaned := strings.TrimSpace(html.UnescapeString(strict.Sanitize(value)))
	if limit > 0 && utf8.RuneCountInString(cleaned) > limit {
		runes := []rune(cleaned)
		cleaned = strings.TrimSpace(string(runes[:limit]))
	}
	return cleaned
}
