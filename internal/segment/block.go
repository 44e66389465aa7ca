package segment

import (
	"strings"

	"github.com/dgallion1/notes2anki/internal/flashcard"
)

// Block is a paragraph reduced to the one role it plays in segmentation.
type Block interface {
	isBlock()
}

// Heading opens a new topic (Level 1) or subtopic (Level 2).
type Heading struct {
	Level int
	Text  string
}

// Question starts a new card.
type Question struct {
	Text string
}

// AnswerLine is one line of answer prose.
type AnswerLine struct {
	Text   string
	Images []string
}

// AnswerTable is pre-rendered table markup, kept verbatim in the answer.
type AnswerTable struct {
	Markup string
	Images []string
}

// ImageBlock carries images with no text of their own.
type ImageBlock struct {
	Images []string
}

// Blank is an empty paragraph with nothing to contribute.
type Blank struct{}

func (Heading) isBlock()     {}
func (Question) isBlock()    {}
func (AnswerLine) isBlock()  {}
func (AnswerTable) isBlock() {}
func (ImageBlock) isBlock()  {}
func (Blank) isBlock()       {}

// Classify reduces a paragraph to a Block. Rules are checked in order:
// table markup, empty text, heading, bold, plain text.
func (c Classifier) Classify(p flashcard.Paragraph) Block {
	if p.IsTable && p.TableHTML != "" {
		return AnswerTable{Markup: p.TableHTML, Images: p.Images}
	}

	text := strings.TrimSpace(p.Text)
	if text == "" {
		if len(p.Images) > 0 {
			return ImageBlock{Images: p.Images}
		}
		return Blank{}
	}

	if level, ok := c.HeadingLevel(p); ok {
		if level != LevelOuter {
			level = LevelInner
		}
		return Heading{Level: level, Text: text}
	}
	if p.IsBold {
		return Question{Text: text}
	}
	return AnswerLine{Text: text, Images: p.Images}
}
