package parser

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"github.com/dgallion1/notes2anki/internal/flashcard"
)

// JSONParser reads pre-parsed paragraphs, either as a bare array or as
// {"paragraphs": [...]}.
type JSONParser struct{}

func (p *JSONParser) Parse(r io.Reader, filename string) ([]flashcard.Paragraph, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read json: %w", err)
	}
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return []flashcard.Paragraph{}, nil
	}

	var paragraphs []flashcard.Paragraph
	if data[0] == '[' {
		if err := json.Unmarshal(data, &paragraphs); err != nil {
			return nil, fmt.Errorf("parse json paragraphs: %w", err)
		}
	} else {
		var wrapped struct {
			Paragraphs []flashcard.Paragraph `json:"paragraphs"`
		}
		if err := json.Unmarshal(data, &wrapped); err != nil {
			return nil, fmt.Errorf("parse json paragraphs: %w", err)
		}
		paragraphs = wrapped.Paragraphs
	}
	if paragraphs == nil {
		paragraphs = []flashcard.Paragraph{}
	}
	return paragraphs, nil
}
