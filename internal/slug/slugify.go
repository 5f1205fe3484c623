package slug

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	separatorRuns = regexp.MustCompile(`[^\pL\pN]+`)
	residualRunes = regexp.MustCompile(`[^a-z0-9-]+`)

	transliterator = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
)

// Slugify is the default text-to-slug transform: runs of non-letter/non-digit
// characters become a single separator, the result is transliterated to ASCII,
// lowercased and stripped of anything outside [a-z0-9-]. Input that normalizes
// to nothing yields the Placeholder token.
func Slugify(text string) string {
	text = separatorRuns.ReplaceAllString(text, "-")
	text = strings.Trim(text, "-")

	if transliterated, _, err := transform.String(transliterator, text); err == nil {
		text = transliterated
	}

	text = strings.ToLower(text)
	text = residualRunes.ReplaceAllString(text, "")

	if text == "" {
		return Placeholder
	}
	return text
}
