package segment

import (
	"strings"

	"github.com/dgallion1/notes2anki/internal/flashcard"
)

// State is the segmenter's position relative to the current card.
type State int

const (
	Idle       State = iota // No open question
	Collecting              // A question is open and gathering its answer
)

func (s State) String() string {
	if s == Collecting {
		return "collecting"
	}
	return "idle"
}

// TagContext holds the active outer and inner headings. Both persist across
// cards until a new heading replaces them.
type TagContext struct {
	Outer string
	Inner string
}

// Path returns the tag path for cards flushed under this context.
func (t TagContext) Path() string {
	return flashcard.JoinTagPath(t.Outer, t.Inner)
}

// Segmenter groups a stream of paragraphs into cards. It is not safe for
// concurrent use; each document gets its own Segmenter.
type Segmenter struct {
	classifier Classifier
	tags       TagContext

	question string
	lines    []string
	images   []string

	cards []flashcard.Card
}

// New returns an idle segmenter with no active tags.
func New(c Classifier) *Segmenter {
	return &Segmenter{classifier: c}
}

// Segment runs a fresh segmenter over paragraphs and returns the cards.
func Segment(paragraphs []flashcard.Paragraph, c Classifier) []flashcard.Card {
	s := New(c)
	for _, p := range paragraphs {
		s.Feed(p)
	}
	return s.Finish()
}

// State reports whether a question is currently open.
func (s *Segmenter) State() State {
	if s.question != "" {
		return Collecting
	}
	return Idle
}

// Tags returns the active tag context.
func (s *Segmenter) Tags() TagContext {
	return s.tags
}

// Feed classifies p and applies it.
func (s *Segmenter) Feed(p flashcard.Paragraph) {
	s.Apply(s.classifier.Classify(p))
}

// Apply performs the transition for one block.
func (s *Segmenter) Apply(b Block) {
	switch b := b.(type) {
	case AnswerTable:
		s.lines = append(s.lines, b.Markup)
		s.images = append(s.images, b.Images...)

	case ImageBlock:
		s.images = append(s.images, b.Images...)

	case Heading:
		// Cards before the heading keep the tags that were active for them.
		s.flush()
		s.reset()
		tag := NormalizeTag(b.Text)
		if b.Level == LevelOuter {
			s.tags = TagContext{Outer: tag}
		} else {
			s.tags.Inner = tag
		}

	case Question:
		s.flush()
		s.reset()
		s.question = b.Text

	case AnswerLine:
		s.lines = append(s.lines, b.Text)
		s.images = append(s.images, b.Images...)

	case Blank:
	}
}

// Finish flushes the open card, if any, and returns every card emitted so far.
func (s *Segmenter) Finish() []flashcard.Card {
	s.flush()
	s.reset()
	if s.cards == nil {
		return []flashcard.Card{}
	}
	return s.cards
}

func (s *Segmenter) flush() {
	front := strings.TrimSpace(s.question)
	s.question = ""
	if front == "" {
		return
	}

	card := flashcard.Card{
		Front:  front,
		Back:   strings.TrimSpace(strings.Join(s.lines, "\n")),
		Images: s.images,
	}
	if path := s.tags.Path(); path != "" {
		card.Tags = []string{path}
	}
	card.Normalize()
	s.cards = append(s.cards, card)
}

func (s *Segmenter) reset() {
	s.question = ""
	s.lines = nil
	s.images = nil
}
