// Package sanitize scrubs free-text fields before they are persisted or
// used to build storage keys.
package sanitize

import (
	"html"
	"regexp"
	"strings"
	"unicode"

	"github.com/microcosm-cc/bluemonday"
)

var (
	policy       = bluemonday.StrictPolicy()
	multiSpaceRe = regexp.MustCompile(`\s+`)
	keyUnsafeRe  = regexp.MustCompile(`[^a-z0-9-]+`)
)

// Text strips all markup and control characters from s and collapses runs
// of whitespace. Idempotent: sanitizing sanitized text is a no-op.
func Text(s string) string {
	// The policy escapes bare entities; unescape so plain text like "A & B"
	// survives a round trip unchanged.
	s = html.UnescapeString(policy.Sanitize(s))
	s = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, s)
	return strings.TrimSpace(multiSpaceRe.ReplaceAllString(s, " "))
}

// KeyComponent reduces s to a lowercase token safe for use inside a blob
// storage key: letters, digits and dashes only.
func KeyComponent(s string) string {
	s = strings.ToLower(Text(s))
	s = keyUnsafeRe.ReplaceAllString(s, "-")
	return strings.Trim(s, "-")
}
