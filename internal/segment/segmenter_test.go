package segment

import (
	"fmt"
	"reflect"
	"strings"
	"testing"

	"github.com/dgallion1/notes2anki/internal/flashcard"
)

func text(s string) flashcard.Paragraph { return flashcard.Paragraph{Text: s} }
func bold(s string) flashcard.Paragraph { return flashcard.Paragraph{Text: s, IsBold: true} }
func colored(s, color string) flashcard.Paragraph {
	return flashcard.Paragraph{Text: s, TextColor: color}
}

func segmentDefault(paragraphs ...flashcard.Paragraph) []flashcard.Card {
	return Segment(paragraphs, NewClassifier(DefaultPalette()))
}

var bipolarParagraphs = []flashcard.Paragraph{
	colored("TREATMENT OF BIPOLAR DISORDER", "#800080"),
	bold("What are the most effective anti-psychotics for acute mania?"),
	text("-  SGA: risperidone, quetiapine, olanzapine"),
	text("-  haloperidol"),
	bold("Why are antipsychotics given in acute mania?"),
	text("-  used acutely as mood stabilisers take more time to work; can sedate patient + treat psychotic symptoms"),
	text("-  may stop once euthymic and continue with mood stabiliser only"),
	bold("Treatment ladder for maintenance of bipolar disorder"),
	text("1. 1st line/most effective: lithium"),
	text("2. 2nd line: change to valproate OR augmenting SGA (aripiprazole, quetiapine, risperidone)"),
	text("3. 3rd line: change to carbamazepine OR change to another antipsychotic"),
	text("4. 4th line: antipsychotic + two mood stabilisers"),
	bold("How long are mood stabilising drugs continued for mania?"),
	text("-  Used for 6-12 months to prevent relapse"),
	text("-  Can be used longer term (3-5 years or lifelong) if high risk relapse"),
	bold("Outline the principles of treatment of bipolar depression"),
	text("1. Education + CBT"),
	text("2. Drugs – mood stabiliser + ADJUNCT antidepressants (NOT monotherapy as activates mania!!)"),
	text("3. Brain stimulation if severe – ECT, TMS"),
	bold("What are the drugs of choice in preventing bipolar depression?"),
	text("1. Mood stabiliser – lamotrigine (lithium, valproate may also be used)"),
	text("2. SGA – quetiapine, lurasidone, olanzapine"),
	text("·  Use as monotherapy or combination therapy if ineffective"),
	text("·  SSRIs adjunct"),
	bold("State the adverse effects of lithium (LITHIUM)"),
	text("1. Leukocytosis (raised WCC)"),
	text("2. Increased weight"),
	text("3. Tremor and teratogen"),
	bold("Which patients to be careful with when prescribing lithium?"),
	text("-  Pregnant (teratogen) or breastfeeding"),
	text("-  Pre-existing renal dysfunction"),
	bold("Define lithium toxicity and when it occurs"),
	text("-  Lithium toxicity = too much lithium in the body"),
	bold("Symptoms of lithium toxicity"),
	text("-  GIT upset – N/V/D"),
	text("-  AMS - lethargic -> AMS -> seizures -> coma -> death"),
	bold("Treatment lithium toxicity?"),
	text("-  start with saline; dialysis if severe"),
}

var psychoticParagraphs = []flashcard.Paragraph{
	colored("PSYCHOTIC DISORDERS", "#ff6600"),
	colored("INTRO TO PSYCHOTIC DISORDERS", "#800080"),
	bold("Define psychotic disorders"),
	text("- pt loses touch with reality, but consciousness intact"),
	bold("5 features of psychotic disorders?"),
	text("· Delusions"),
	text("· Hallucinations"),
	colored("FIRST EPISODE PSYCHOSIS", "#800080"),
	bold("Define first episode psychosis"),
	text("- 1 week or more of sustained positive symptoms"),
	colored("SCHIZOPHRENIA", "#800080"),
	bold("Define schizophrenia"),
	text("- Chronic disorder with psychosis + negative/cognitive symptoms"),
}

func TestSegment_EmptyInput(t *testing.T) {
	cards := segmentDefault()
	if cards == nil || len(cards) != 0 {
		t.Errorf("expected empty non-nil slice, got %#v", cards)
	}
}

func TestSegment_SingleQuestion(t *testing.T) {
	cards := segmentDefault(bold("What is X?"), text("X is a thing"))
	want := []flashcard.Card{{Front: "What is X?", Back: "X is a thing", Tags: []string{}, Images: []string{}}}
	if !reflect.DeepEqual(cards, want) {
		t.Errorf("expected %+v, got %+v", want, cards)
	}
}

func TestSegment_BipolarNotes(t *testing.T) {
	cards := segmentDefault(bipolarParagraphs...)
	if len(cards) != 11 {
		t.Fatalf("expected 11 cards, got %d", len(cards))
	}
	for i, c := range cards {
		if len(c.Tags) != 1 || c.Tags[0] != "Treatment-Of-Bipolar-Disorder" {
			t.Errorf("card %d: expected tag Treatment-Of-Bipolar-Disorder, got %v", i, c.Tags)
		}
	}

	first := cards[0]
	if first.Front != "What are the most effective anti-psychotics for acute mania?" {
		t.Errorf("unexpected first front %q", first.Front)
	}
	wantBack := "-  SGA: risperidone, quetiapine, olanzapine\n-  haloperidol"
	if first.Back != wantBack {
		t.Errorf("expected back %q, got %q", wantBack, first.Back)
	}

	last := cards[len(cards)-1]
	if last.Front != "Treatment lithium toxicity?" || !strings.Contains(last.Back, "saline") {
		t.Errorf("expected last card to be captured, got %+v", last)
	}

	found := false
	for _, c := range cards {
		if c.Front == "State the adverse effects of lithium (LITHIUM)" {
			found = true
		}
	}
	if !found {
		t.Error("expected imperative bold line to become a question")
	}
}

func TestSegment_NestedTags(t *testing.T) {
	cards := segmentDefault(psychoticParagraphs...)
	want := []string{
		"Psychotic-Disorders::Intro-To-Psychotic-Disorders",
		"Psychotic-Disorders::Intro-To-Psychotic-Disorders",
		"Psychotic-Disorders::First-Episode-Psychosis",
		"Psychotic-Disorders::Schizophrenia",
	}
	if len(cards) != len(want) {
		t.Fatalf("expected %d cards, got %d", len(want), len(cards))
	}
	for i, w := range want {
		if len(cards[i].Tags) != 1 || cards[i].Tags[0] != w {
			t.Errorf("card %d: expected tags [%s], got %v", i, w, cards[i].Tags)
		}
	}
}

func TestSegment_OuterHeadingClearsInner(t *testing.T) {
	cards := segmentDefault(
		colored("TOPIC A", "#ff6600"),
		colored("SUBTOPIC A1", "#800080"),
		bold("Q1?"),
		text("A1"),
		colored("TOPIC B", "#ff6600"),
		bold("Q2?"),
		text("A2"),
	)
	want := []flashcard.Card{
		{Front: "Q1?", Back: "A1", Tags: []string{"Topic-A::Subtopic-A1"}, Images: []string{}},
		{Front: "Q2?", Back: "A2", Tags: []string{"Topic-B"}, Images: []string{}},
	}
	if !reflect.DeepEqual(cards, want) {
		t.Errorf("expected %+v, got %+v", want, cards)
	}
}

func TestSegment_InnerHeadingKeepsOuter(t *testing.T) {
	cards := segmentDefault(
		colored("MAIN TOPIC", "#ff6600"),
		colored("SUB ONE", "#800080"),
		bold("Q1?"),
		text("A1"),
		colored("SUB TWO", "#800080"),
		bold("Q2?"),
		text("A2"),
	)
	if len(cards) != 2 {
		t.Fatalf("expected 2 cards, got %d", len(cards))
	}
	if cards[0].Tags[0] != "Main-Topic::Sub-One" {
		t.Errorf("expected Main-Topic::Sub-One, got %v", cards[0].Tags)
	}
	if cards[1].Tags[0] != "Main-Topic::Sub-Two" {
		t.Errorf("expected Main-Topic::Sub-Two, got %v", cards[1].Tags)
	}
}

func TestSegment_ExplicitHeadingLevels(t *testing.T) {
	cards := segmentDefault(
		flashcard.Paragraph{Text: "Level 1", HeadingLevel: 1},
		flashcard.Paragraph{Text: "Level 2", HeadingLevel: 2},
		bold("Q?"),
		text("A"),
	)
	if len(cards) != 1 || cards[0].Tags[0] != "Level-1::Level-2" {
		t.Errorf("expected one card tagged Level-1::Level-2, got %+v", cards)
	}
}

func TestSegment_HeadingOnly(t *testing.T) {
	cards := segmentDefault(flashcard.Paragraph{Text: "Some Heading", IsHeading: true})
	if len(cards) != 0 {
		t.Errorf("expected no cards, got %+v", cards)
	}
}

func TestSegment_ConsecutiveBoldLines(t *testing.T) {
	cards := segmentDefault(bold("Question one?"), bold("Question two?"), text("Answer to question two"))
	if len(cards) != 2 {
		t.Fatalf("expected 2 cards, got %d", len(cards))
	}
	if cards[0].Front != "Question one?" || cards[0].Back != "" {
		t.Errorf("expected first card with empty back, got %+v", cards[0])
	}
	if cards[1].Front != "Question two?" || cards[1].Back != "Answer to question two" {
		t.Errorf("unexpected second card %+v", cards[1])
	}
}

func TestSegment_BlackTextIsAnswerProse(t *testing.T) {
	cards := segmentDefault(colored("Not a heading", "#000000"), bold("Q?"), text("A"))
	if len(cards) != 1 {
		t.Fatalf("expected 1 card, got %d", len(cards))
	}
	if len(cards[0].Tags) != 0 {
		t.Errorf("expected no tags, got %v", cards[0].Tags)
	}
}

func TestSegment_TableDoesNotFlush(t *testing.T) {
	markup := "<table><tr><th>Drug</th><th>Speed</th></tr><tr><td>Drug A</td><td>Fast</td></tr></table>"
	cards := segmentDefault(
		bold("Compare drugs A and B"),
		text("Some intro text"),
		flashcard.Paragraph{Text: "Drug A | Fast", IsTable: true, TableHTML: markup, IsBold: true},
		bold("Next question?"),
		text("Next answer"),
	)
	if len(cards) != 2 {
		t.Fatalf("expected 2 cards, got %d", len(cards))
	}
	if cards[0].Back != "Some intro text\n"+markup {
		t.Errorf("expected table markup verbatim in back, got %q", cards[0].Back)
	}
}

func TestSegment_TableWithEmptyTextIsCaptured(t *testing.T) {
	cards := segmentDefault(
		bold("Q?"),
		flashcard.Paragraph{IsTable: true, TableHTML: "<table></table>", Images: []string{"tbl"}},
	)
	if len(cards) != 1 || cards[0].Back != "<table></table>" {
		t.Fatalf("expected table captured, got %+v", cards)
	}
	if !reflect.DeepEqual(cards[0].Images, []string{"tbl"}) {
		t.Errorf("expected table images, got %v", cards[0].Images)
	}
}

func TestSegment_TableFlagWithoutMarkupFallsThrough(t *testing.T) {
	cards := segmentDefault(
		bold("Q?"),
		flashcard.Paragraph{Text: "plain row", IsTable: true},
	)
	if len(cards) != 1 || cards[0].Back != "plain row" {
		t.Errorf("expected table without markup to be an answer line, got %+v", cards)
	}
}

func TestSegment_ImagesAccumulateInOrder(t *testing.T) {
	cards := segmentDefault(
		bold("Describe the diagram"),
		flashcard.Paragraph{Text: "Part A", Images: []string{"img1"}},
		flashcard.Paragraph{Images: []string{"img2"}},
		flashcard.Paragraph{Text: "Part B", Images: []string{"img3"}},
	)
	if len(cards) != 1 {
		t.Fatalf("expected 1 card, got %d", len(cards))
	}
	want := []string{"img1", "img2", "img3"}
	if !reflect.DeepEqual(cards[0].Images, want) {
		t.Errorf("expected images %v, got %v", want, cards[0].Images)
	}
	if cards[0].Back != "Part A\nPart B" {
		t.Errorf("expected image-only paragraph to add no text, got %q", cards[0].Back)
	}
}

func TestSegment_AnswerBeforeFirstQuestionIsDropped(t *testing.T) {
	cards := segmentDefault(text("orphan"), bold("Q?"), text("A"))
	if len(cards) != 1 || cards[0].Back != "A" {
		t.Errorf("expected orphan prose to be dropped, got %+v", cards)
	}
}

func TestSegment_EveryFrontNonEmpty(t *testing.T) {
	inputs := [][]flashcard.Paragraph{
		bipolarParagraphs,
		psychoticParagraphs,
		{bold("   "), text("x"), bold(" Q "), {Images: []string{"i"}}},
	}
	for i, in := range inputs {
		for j, c := range segmentDefault(in...) {
			if strings.TrimSpace(c.Front) == "" {
				t.Errorf("input %d card %d: empty front", i, j)
			}
		}
	}
}

func TestSegment_Deterministic(t *testing.T) {
	a := segmentDefault(psychoticParagraphs...)
	b := segmentDefault(psychoticParagraphs...)
	if fmt.Sprintf("%#v", a) != fmt.Sprintf("%#v", b) {
		t.Error("expected identical output for identical input")
	}
}

func TestSegmenter_StateTransitions(t *testing.T) {
	s := New(NewClassifier(DefaultPalette()))
	if s.State() != Idle {
		t.Fatalf("expected idle, got %s", s.State())
	}

	s.Apply(Heading{Level: LevelOuter, Text: "Cardiology"})
	if s.State() != Idle {
		t.Errorf("expected heading to leave segmenter idle, got %s", s.State())
	}
	if s.Tags() != (TagContext{Outer: "Cardiology"}) {
		t.Errorf("unexpected tags %+v", s.Tags())
	}

	s.Apply(Question{Text: "Chambers?"})
	if s.State() != Collecting {
		t.Errorf("expected collecting, got %s", s.State())
	}

	s.Apply(Heading{Level: LevelInner, Text: "Valves"})
	if s.State() != Idle {
		t.Errorf("expected heading to close the question, got %s", s.State())
	}
	if s.Tags().Path() != "Cardiology::Valves" {
		t.Errorf("expected Cardiology::Valves, got %q", s.Tags().Path())
	}

	cards := s.Finish()
	if len(cards) != 1 || cards[0].Tags[0] != "Cardiology" {
		t.Errorf("expected card flushed under pre-heading tags, got %+v", cards)
	}
}

func TestSegmenter_FinishTwiceDoesNotDuplicate(t *testing.T) {
	s := New(NewClassifier(DefaultPalette()))
	s.Feed(bold("Q?"))
	s.Feed(text("A"))
	if n := len(s.Finish()); n != 1 {
		t.Fatalf("expected 1 card, got %d", n)
	}
	if n := len(s.Finish()); n != 1 {
		t.Errorf("expected second Finish to add nothing, got %d", n)
	}
}

func TestSegment_SyntheticPalette(t *testing.T) {
	c := NewClassifier(NewPalette([]string{"#00ff00"}, []string{"#0000ff"}))
	cards := Segment([]flashcard.Paragraph{
		colored("Green", "#0F0"),
		colored("Blue", "#0000FF"),
		bold("Q?"),
		colored("Orange now subtopic", "#ff6600"),
		bold("Q2?"),
	}, c)
	if len(cards) != 2 {
		t.Fatalf("expected 2 cards, got %d", len(cards))
	}
	if cards[0].Tags[0] != "Green::Blue" {
		t.Errorf("expected Green::Blue, got %v", cards[0].Tags)
	}
	if cards[1].Tags[0] != "Green::Orange-Now-Subtopic" {
		t.Errorf("expected Green::Orange-Now-Subtopic, got %v", cards[1].Tags)
	}
}
