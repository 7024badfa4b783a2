package utils

import (
	"regexp"
	"strings"
)

var controlChars = regexp.MustCompile(`[\x00-\x08\x0b\x0c\x0e-\x1f\x7f]`)

// SanitizeString removes control characters and surrounding whitespace.
// Tabs and line breaks inside the value are kept.
func SanitizeString(s string) string {
	return strings.TrimSpace(controlChars.ReplaceAllString(s, ""))
}

// SanitizeForm sanitizes every value of a submitted form, dropping fields
// that end up empty
func SanitizeForm(values map[string]string) map[string]string {
	out := make(map[string]string, len(values))
	for k, v := range values {
		key := strings.ToLower(SanitizeString(k))
		val := SanitizeString(v)
		if key == "" || val == "" {
			continue
		}
		out[key] = val
	}
	return out
}
