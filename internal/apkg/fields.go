package apkg

import (
	"html"
	"strings"

	"github.com/dgallion1/notes2anki/internal/flashcard"
)

// TextToHTML converts newline-separated card text to Anki field HTML. Blank
// lines are dropped, lines that already are table or image markup pass
// through, and everything else is escaped. Lines are joined with <br>.
func TextToHTML(text string) string {
	var out []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "<table") || strings.HasPrefix(line, "<img") {
			out = append(out, line)
			continue
		}
		out = append(out, html.EscapeString(line))
	}
	return strings.Join(out, "<br>")
}

// SubdeckName turns a tag path such as "Topic-A::Sub-B" into the readable
// deck suffix "Topic A::Sub B".
func SubdeckName(tag string) string {
	parts := flashcard.SplitTagPath(tag)
	for i, p := range parts {
		parts[i] = strings.ReplaceAll(p, "-", " ")
	}
	return strings.Join(parts, flashcard.TagSeparator)
}

// DeckNameFor returns the full deck a card is filed under.
func DeckNameFor(root string, c flashcard.Card) string {
	if len(c.Tags) == 0 || c.Tags[0] == "" {
		return root
	}
	return root + flashcard.TagSeparator + SubdeckName(c.Tags[0])
}

// stripHTML reduces field HTML to the text Anki uses for sorting and the
// duplicate checksum.
func stripHTML(s string) string {
	var b strings.Builder
	inTag := false
	for _, r := range s {
		switch {
		case r == '<':
			inTag = true
		case r == '>' && inTag:
			inTag = false
		case !inTag:
			b.WriteRune(r)
		}
	}
	return html.UnescapeString(b.String())
}
