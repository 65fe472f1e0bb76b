package textutil

import (
	"html"
	"strings"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
)

var strictPolicy = bluemonday.StrictPolicy()

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

// CleanText strips markup from customer supplied free text, collapses whitespace and truncates
// the result to limit runes. A non-positive limit disables truncation.
func CleanText(value string, limit int) string {
	stripped := html.UnescapeString(strictPolicy.Sanitize(value))
	cleaned := strings.Join(strings.Fields(stripped), " ")
	if limit > 0 && utf8.RuneCountInString(cleaned) > limit {
		cleaned = string([]rune(cleaned)[:limit])
	}
	return cleaned
}

// CleanList applies CleanText to every entry and drops the empty ones.
func CleanList(values []string, limit int) []string {
	if len(values) == 0 {
		return nil
	}
	result := make([]string, 0, len(values))
	for _, value := range values {
		if cleaned := CleanText(value, limit); cleaned != "" {
			result = append(result, cleaned)
		}
	}
	if len(result) == 0 {
		return nil
	}
	return result
}
