package main

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	slugWhitespace = regexp.MustCompile(`\s+`)
	slugNonWord    = regexp.MustCompile(`[^\w-]+`)
	slugDashes     = regexp.MustCompile(`-{2,}`)
)

// slugify lowercases, strips diacritics and reduces s to [a-z0-9_-].
func slugify(s string) string {
	folded, _, err := transform.String(transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC), s)
	if err != nil {
		folded = s
	}
	slug := strings.ToLower(strings.TrimSpace(folded))
	slug = slugWhitespace.ReplaceAllString(slug, "-")
	slug = slugNonWord.ReplaceAllString(slug, "")
	slug = slugDashes.ReplaceAllString(slug, "-")
	return strings.Trim(slug, "-")
}
