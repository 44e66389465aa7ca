package segment

import (
	"regexp"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

var (
	// \s alone is ASCII-only in RE2 and misses \v.
	tagStripRe = regexp.MustCompile(`[^\p{L}\p{N}\pZ\s\v\x{85}-]`)
	tagSpaceRe = regexp.MustCompile(`[\pZ\s\v\x{85}]+`)
)

// NormalizeTag maps raw heading text to a tag token:
// "TREATMENT OF BIPOLAR DISORDER" -> "Treatment-Of-Bipolar-Disorder".
func NormalizeTag(text string) string {
	text = strings.TrimSpace(norm.NFC.String(text))
	text = tagStripRe.ReplaceAllString(text, "")
	text = tagSpaceRe.ReplaceAllString(text, "-")
	if text == "" {
		return ""
	}

	// A Caser keeps state between calls, so each normalization gets its own.
	caser := cases.Title(language.Und)
	words := strings.Split(text, "-")
	for i, w := range words {
		words[i] = caser.String(w)
	}
	return strings.Join(words, "-")
}
