package flashcard

import "strings"

// Paragraph is one visually distinct line or block of a source document,
// with the formatting cues the segmenter keys on.
type Paragraph struct {
	Text         string   `json:"text"`
	IsBold       bool     `json:"is_bold"`
	IsHeading    bool     `json:"is_heading"`
	TextColor    string   `json:"text_color,omitempty"`    // Lowercase hex or named color; empty when absent
	HeadingLevel int      `json:"heading_level,omitempty"` // Explicit override; 0 when absent
	IsTable      bool     `json:"is_table"`
	TableHTML    string   `json:"table_html,omitempty"`
	Images       []string `json:"images,omitempty"` // Base64-encoded image blobs
}

// Card is a single question/answer flashcard.
type Card struct {
	Front  string   `json:"front"`
	Back   string   `json:"back"`
	Tags   []string `json:"tags"`   // At most one "outer::inner" tag path
	Images []string `json:"images"` // Answer-side images, in encounter order
}

// TagSeparator joins the outer and inner heading of a tag path.
const TagSeparator = "::"

// JoinTagPath builds a tag path from the active outer and inner headings.
// Empty parts are omitted; both empty yields "".
func JoinTagPath(outer, inner string) string {
	switch {
	case outer != "" && inner != "":
		return outer + TagSeparator + inner
	case outer != "":
		return outer
	default:
		return inner
	}
}

// SplitTagPath returns the components of a tag path.
func SplitTagPath(tag string) []string {
	if tag == "" {
		return nil
	}
	return strings.Split(tag, TagSeparator)
}

// Normalize fills nil slices so the card always serializes as arrays.
func (c *Card) Normalize() {
	if c.Tags == nil {
		c.Tags = []string{}
	}
	if c.Images == nil {
		c.Images = []string{}
	}
}
