package segment

import (
	"strings"

	"github.com/lucasb-eyer/go-colorful"

	"github.com/dgallion1/notes2anki/internal/flashcard"
)

// Heading levels.
const (
	LevelOuter = 1 // Top-level topic
	LevelInner = 2 // Subtopic
)

// PaletteLevel associates a set of accent colors with a heading level.
type PaletteLevel struct {
	Level  int
	Colors []string
}

// Palette is the ordered list of recognized heading colors. The first level
// containing a color wins.
type Palette struct {
	Levels []PaletteLevel
}

// Reference accent colors used by the study-notes template: orange marks a
// topic, purple a subtopic.
var (
	OrangeColors = []string{"#ff6600", "#e69138", "#ff9900", "#f6b26b", "#ce7e00", "#ff8c00"}
	PurpleColors = []string{"#800080", "#9900ff", "#674ea7", "#8e7cc3", "#7030a0", "#9933ff"}
)

// DefaultPalette returns the orange/purple reference palette.
func DefaultPalette() Palette {
	return NewPalette(OrangeColors, PurpleColors)
}

// NewPalette builds a two-level palette from outer and inner color lists.
func NewPalette(outer, inner []string) Palette {
	return Palette{Levels: []PaletteLevel{
		{Level: LevelOuter, Colors: normalizeColors(outer)},
		{Level: LevelInner, Colors: normalizeColors(inner)},
	}}
}

// Lookup returns the heading level assigned to color, if any.
func (p Palette) Lookup(color string) (int, bool) {
	color = NormalizeColor(color)
	if color == "" {
		return 0, false
	}
	for _, lvl := range p.Levels {
		for _, c := range lvl.Colors {
			if c == color {
				return lvl.Level, true
			}
		}
	}
	return 0, false
}

// NormalizeColor lowercases a color and expands hex forms to #rrggbb.
// Named colors are returned lowercased; empty input stays empty.
func NormalizeColor(color string) string {
	color = strings.ToLower(strings.TrimSpace(color))
	if strings.HasPrefix(color, "#") {
		if c, err := colorful.Hex(color); err == nil {
			return c.Hex()
		}
	}
	return color
}

// IsBlack reports whether color is pure black in any accepted spelling.
func IsBlack(color string) bool {
	color = NormalizeColor(color)
	return color == "#000000" || color == "black"
}

func normalizeColors(colors []string) []string {
	out := make([]string, 0, len(colors))
	for _, c := range colors {
		if n := NormalizeColor(c); n != "" {
			out = append(out, n)
		}
	}
	return out
}

// Classifier decides which paragraphs are headings.
type Classifier struct {
	Palette Palette
}

// NewClassifier returns a classifier using the given palette.
func NewClassifier(p Palette) Classifier {
	return Classifier{Palette: p}
}

// HeadingLevel classifies a paragraph. An explicit heading level always wins;
// black text is never a heading; palette colors map to their level and any
// other accent color is treated as a subtopic.
func (c Classifier) HeadingLevel(p flashcard.Paragraph) (int, bool) {
	if p.HeadingLevel > 0 {
		return p.HeadingLevel, true
	}

	color := NormalizeColor(p.TextColor)
	if color == "" {
		if p.IsHeading {
			return LevelInner, true
		}
		return 0, false
	}
	if IsBlack(color) {
		return 0, false
	}
	if level, ok := c.Palette.Lookup(color); ok {
		return level, true
	}
	return LevelInner, true
}
