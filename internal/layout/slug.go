package layout

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// slugFallback replaces slugs that reduce to nothing.
const slugFallback = "page"

var (
	slugSeparators = regexp.MustCompile(`[\s/]+`)
	slugInvalid    = regexp.MustCompile(`[^a-z0-9\-_]`)
	slugDashRuns   = regexp.MustCompile(`-+`)

	// foldAccents decomposes accented letters and strips the combining
	// marks so "Résumé" slugs to "resume" instead of "rsum".
	foldAccents = transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
)

// Slug derives a stable filename fragment from a page title: lowercase,
// runs of whitespace and slashes become single dashes, anything outside
// [a-z0-9-_] is dropped, dash runs collapse, and edge dashes are trimmed.
// Pure and idempotent; the same title always yields the same slug.
func Slug(text string) string {
	if folded, _, err := transform.String(foldAccents, text); err == nil {
		text = folded
	}
	s := strings.ToLower(strings.TrimSpace(text))
	s = slugSeparators.ReplaceAllString(s, "-")
	s = slugInvalid.ReplaceAllString(s, "")
	s = slugDashRuns.ReplaceAllString(s, "-")
	s = strings.Trim(s, "-")
	if s == "" {
		return slugFallback
	}
	return s
}
