package parser

import (
	"strings"
	"testing"
)

func TestJSONParser_Shapes(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  int
	}{
		{"bare array", `[{"text":"Q?","is_bold":true},{"text":"A"}]`, 2},
		{"wrapped", `{"paragraphs":[{"text":"T","text_color":"#ff6600"}]}`, 1},
		{"empty body", "  ", 0},
		{"wrapped without paragraphs", `{}`, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &JSONParser{}
			paras, err := p.Parse(strings.NewReader(tt.input), "in.json")
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if paras == nil {
				t.Fatal("expected non-nil slice")
			}
			if len(paras) != tt.want {
				t.Errorf("expected %d paragraphs, got %d", tt.want, len(paras))
			}
		})
	}
}

func TestJSONParser_Fields(t *testing.T) {
	input := `[{"text":"Img","images":["aGk="],"is_table":true,"table_html":"<table></table>","heading_level":2,"is_heading":true}]`
	p := &JSONParser{}
	paras, err := p.Parse(strings.NewReader(input), "in.json")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got := paras[0]
	if !got.IsTable || got.TableHTML != "<table></table>" || got.HeadingLevel != 2 || !got.IsHeading || len(got.Images) != 1 {
		t.Errorf("unexpected paragraph %+v", got)
	}
}

func TestJSONParser_Invalid(t *testing.T) {
	p := &JSONParser{}
	if _, err := p.Parse(strings.NewReader(`[{"text": 3}]`), "in.json"); err == nil {
		t.Error("expected error for mistyped field")
	}
}
