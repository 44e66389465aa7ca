package parser

import (
	"encoding/base64"
	"fmt"
	"html"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/dgallion1/notes2anki/internal/flashcard"
	"github.com/dgallion1/notes2anki/internal/segment"
	"github.com/fumiama/go-docx"
	"golang.org/x/text/unicode/norm"
)

// DOCXParser handles .docx files. Heading styles become explicit levels
// and run formatting supplies bold and color.
type DOCXParser struct{}

func (p *DOCXParser) Parse(r io.Reader, filename string) ([]flashcard.Paragraph, error) {
	// go-docx needs a ReaderAt+size, so write to temp file.
	tmp, err := os.CreateTemp("", "notes2anki-docx-*.docx")
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	size, err := io.Copy(tmp, r)
	if err != nil {
		tmp.Close()
		return nil, fmt.Errorf("write temp file: %w", err)
	}

	doc, err := docx.Parse(tmp, size)
	tmp.Close()
	if err != nil {
		return nil, fmt.Errorf("parse docx: %w", err)
	}

	paragraphs := []flashcard.Paragraph{}
	for _, item := range doc.Document.Body.Items {
		switch it := item.(type) {
		case *docx.Paragraph:
			para := docxParagraph(doc, it)
			if para.Text == "" && len(para.Images) == 0 {
				continue
			}
			paragraphs = append(paragraphs, para)
		case *docx.Table:
			if para, ok := docxTable(doc, it); ok {
				paragraphs = append(paragraphs, para)
			}
		}
	}
	return paragraphs, nil
}

func docxParagraph(doc *docx.Docx, para *docx.Paragraph) flashcard.Paragraph {
	var buf strings.Builder
	var images []string
	allBold := true
	sawText := false
	color := ""
	uniform := true

	for _, child := range para.Children {
		run, ok := child.(*docx.Run)
		if !ok {
			continue
		}
		runText := docxRunText(run)
		images = append(images, docxRunImages(doc, run)...)
		buf.WriteString(runText)
		if strings.TrimSpace(runText) == "" {
			continue
		}

		props := run.RunProperties
		if props == nil || props.Bold == nil {
			allBold = false
		}
		c := ""
		if props != nil && props.Color != nil {
			c = docxColor(props.Color.Val)
		}
		if c != "" && segment.IsBlack(c) {
			c = ""
		}
		if !sawText {
			color = c
		} else if c != color {
			uniform = false
		}
		sawText = true
	}

	out := flashcard.Paragraph{
		Text:   strings.TrimSpace(norm.NFC.String(buf.String())),
		IsBold: sawText && allBold,
		Images: images,
	}
	if uniform {
		out.TextColor = color
	}
	if level := docxHeadingLevel(para); level > 0 {
		out.HeadingLevel = level
		out.IsHeading = true
	}
	return out
}

func docxRunText(run *docx.Run) string {
	var buf strings.Builder
	for _, rc := range run.Children {
		switch c := rc.(type) {
		case *docx.Text:
			buf.WriteString(c.Text)
		case *docx.Tab:
			buf.WriteByte('\t')
		case *docx.BarterRabbet:
			buf.WriteByte('\n')
		}
	}
	return buf.String()
}

// docxRunImages resolves inline drawings to base64 media payloads.
func docxRunImages(doc *docx.Docx, run *docx.Run) []string {
	var images []string
	for _, rc := range run.Children {
		d, ok := rc.(*docx.Drawing)
		if !ok || d.Inline == nil || d.Inline.Graphic == nil || d.Inline.Graphic.GraphicData == nil {
			continue
		}
		pic := d.Inline.Graphic.GraphicData.Pic
		if pic == nil || pic.BlipFill == nil || pic.BlipFill.Blip.Embed == "" {
			continue
		}
		target, err := doc.ReferTarget(pic.BlipFill.Blip.Embed)
		if err != nil {
			continue
		}
		m := doc.Media(strings.TrimPrefix(target, "media/"))
		if m == nil || len(m.Data) == 0 {
			continue
		}
		images = append(images, base64.StdEncoding.EncodeToString(m.Data))
	}
	return images
}

// docxColor maps a w:color value ("FF6600", "auto") to "#rrggbb".
func docxColor(val string) string {
	val = strings.TrimSpace(val)
	if val == "" || strings.EqualFold(val, "auto") {
		return ""
	}
	if !strings.HasPrefix(val, "#") {
		val = "#" + val
	}
	return strings.ToLower(val)
}

func docxHeadingLevel(para *docx.Paragraph) int {
	if para.Properties == nil || para.Properties.Style == nil {
		return 0
	}
	style := strings.ToLower(strings.ReplaceAll(para.Properties.Style.Val, " ", ""))
	if style == "title" {
		return 1
	}
	if !strings.HasPrefix(style, "heading") {
		return 0
	}
	n, err := strconv.Atoi(strings.TrimPrefix(style, "heading"))
	if err != nil || n < 1 {
		return 0
	}
	if n == 1 {
		return 1
	}
	return 2
}

// docxTable renders a table as HTML markup plus a pipe-separated text form.
func docxTable(doc *docx.Docx, tbl *docx.Table) (flashcard.Paragraph, bool) {
	var markup strings.Builder
	var rows []string
	var images []string

	markup.WriteString("<table>")
	for _, row := range tbl.TableRows {
		markup.WriteString("<tr>")
		var cells []string
		for _, cell := range row.TableCells {
			var parts []string
			for _, cp := range cell.Paragraphs {
				para := docxParagraph(doc, cp)
				images = append(images, para.Images...)
				if para.Text != "" {
					parts = append(parts, para.Text)
				}
			}
			cellText := strings.Join(parts, " ")
			cells = append(cells, cellText)
			markup.WriteString("<td>")
			markup.WriteString(html.EscapeString(cellText))
			markup.WriteString("</td>")
		}
		markup.WriteString("</tr>")
		rows = append(rows, strings.Join(cells, " | "))
	}
	markup.WriteString("</table>")

	if len(tbl.TableRows) == 0 {
		return flashcard.Paragraph{}, false
	}
	return flashcard.Paragraph{
		Text:      strings.Join(rows, "\n"),
		IsTable:   true,
		TableHTML: markup.String(),
		Images:    images,
	}, true
}
