package parser

import (
	"bytes"
	"fmt"
	"io"
	"math"
	"strings"

	pdflib "github.com/ledongthuc/pdf"
	"github.com/lucasb-eyer/go-colorful"
	"golang.org/x/text/unicode/norm"

	"github.com/dgallion1/notes2anki/internal/flashcard"
	"github.com/dgallion1/notes2anki/internal/segment"
)

// PDFParser turns each rendered text line into a paragraph. Bold comes from
// the fonts of the line's spans; headings from a single non-black palette
// color shared by the line. Embedded images become one image-only paragraph
// per page.
type PDFParser struct {
	Palette segment.Palette

	// SkippedImages counts embedded images that could not be decoded by the
	// most recent Parse call.
	SkippedImages int
}

func (p *PDFParser) Parse(r io.Reader, filename string) ([]flashcard.Paragraph, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read pdf: %w", err)
	}

	reader, err := openPDF(data)
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}

	images := pdfImages{data: data, encrypted: reader.Trailer().Key("Encrypt").Kind() != pdflib.Null}
	p.SkippedImages = 0
	paragraphs := []flashcard.Paragraph{}
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}

		lines, err := scanPage(page)
		if err != nil {
			return nil, fmt.Errorf("read page %d: %w", i, err)
		}
		for _, ln := range lines {
			if para, ok := p.lineParagraph(ln); ok {
				paragraphs = append(paragraphs, para)
			}
		}

		pageImgs, skipped := images.page(page)
		p.SkippedImages += skipped
		if len(pageImgs) > 0 {
			paragraphs = append(paragraphs, flashcard.Paragraph{Images: pageImgs})
		}
	}
	return paragraphs, nil
}

func openPDF(data []byte) (reader *pdflib.Reader, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("malformed pdf: %v", rec)
		}
	}()
	return pdflib.NewReader(bytes.NewReader(data), int64(len(data)))
}

// lineParagraph merges the spans of one line. A line is a heading only when
// all its colored spans share one color and that color is in the palette;
// other accent colors are left as plain text.
func (p *PDFParser) lineParagraph(ln *textLine) (flashcard.Paragraph, bool) {
	var parts []string
	allBold := true
	var colors []string

	for _, sp := range ln.spans {
		if strings.TrimSpace(sp.text) == "" {
			continue
		}
		parts = append(parts, sp.text)
		if !sp.bold {
			allBold = false
		}
		if !segment.IsBlack(sp.color) && !containsString(colors, sp.color) {
			colors = append(colors, sp.color)
		}
	}

	text := strings.TrimSpace(norm.NFC.String(strings.Join(parts, "")))
	if text == "" {
		return flashcard.Paragraph{}, false
	}

	para := flashcard.Paragraph{Text: text}
	if len(colors) == 1 {
		if level, ok := p.Palette.Lookup(colors[0]); ok {
			para.TextColor = colors[0]
			para.HeadingLevel = level
			para.IsHeading = true
		}
	}
	para.IsBold = allBold && !para.IsHeading
	return para, true
}

type textSpan struct {
	text  string
	bold  bool
	color string
}

type textLine struct {
	y     float64
	spans []textSpan
}

type fontInfo struct {
	enc  pdflib.TextEncoding
	bold bool
}

type matrix [6]float64

var identity = matrix{1, 0, 0, 1, 0, 0}

// translate returns the matrix for "tx ty Td" applied to m.
func (m matrix) translate(tx, ty float64) matrix {
	m[4] = tx*m[0] + ty*m[2] + m[4]
	m[5] = tx*m[1] + ty*m[3] + m[5]
	return m
}

// pageScanner tracks the subset of graphics and text state needed to
// recover styled lines from a content stream.
type pageScanner struct {
	page  pdflib.Page
	fonts map[string]fontInfo

	font     fontInfo
	fontSize float64
	fill     string
	saved    []string
	tlm      matrix
	leading  float64

	lines []*textLine
}

func scanPage(page pdflib.Page) (lines []*textLine, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("interpret content: %v", rec)
		}
	}()

	s := &pageScanner{
		page:  page,
		fonts: make(map[string]fontInfo),
		fill:  "#000000",
		tlm:   identity,
	}
	contents := page.V.Key("Contents")
	if contents.Kind() == pdflib.Array {
		for i := 0; i < contents.Len(); i++ {
			pdflib.Interpret(contents.Index(i), s.op)
		}
	} else if contents.Kind() == pdflib.Stream {
		pdflib.Interpret(contents, s.op)
	}
	return s.lines, nil
}

func (s *pageScanner) op(stk *pdflib.Stack, op string) {
	n := stk.Len()
	args := make([]pdflib.Value, n)
	for i := n - 1; i >= 0; i-- {
		args[i] = stk.Pop()
	}

	switch op {
	case "q":
		s.saved = append(s.saved, s.fill)
	case "Q":
		if len(s.saved) > 0 {
			s.fill = s.saved[len(s.saved)-1]
			s.saved = s.saved[:len(s.saved)-1]
		}
	case "g", "rg", "k", "sc", "scn":
		if c, ok := fillColor(args); ok {
			s.fill = c
		}
	case "BT":
		s.tlm = identity
	case "Tf":
		if len(args) == 2 {
			s.font = s.lookupFont(args[0].Name())
			s.fontSize = args[1].Float64()
		}
	case "TL":
		if len(args) == 1 {
			s.leading = args[0].Float64()
		}
	case "Td":
		if len(args) == 2 {
			s.tlm = s.tlm.translate(args[0].Float64(), args[1].Float64())
		}
	case "TD":
		if len(args) == 2 {
			s.leading = -args[1].Float64()
			s.tlm = s.tlm.translate(args[0].Float64(), args[1].Float64())
		}
	case "Tm":
		if len(args) == 6 {
			for i := range s.tlm {
				s.tlm[i] = args[i].Float64()
			}
		}
	case "T*":
		s.tlm = s.tlm.translate(0, -s.leading)
	case "Tj":
		if len(args) == 1 {
			s.show(s.decode(args[0].RawString()))
		}
	case "'":
		if len(args) == 1 {
			s.tlm = s.tlm.translate(0, -s.leading)
			s.show(s.decode(args[0].RawString()))
		}
	case "\"":
		if len(args) == 3 {
			s.tlm = s.tlm.translate(0, -s.leading)
			s.show(s.decode(args[2].RawString()))
		}
	case "TJ":
		if len(args) == 1 {
			s.show(s.decodeArray(args[0]))
		}
	}
}

// decodeArray joins a TJ array, turning large negative kerning into a space.
func (s *pageScanner) decodeArray(arr pdflib.Value) string {
	var b strings.Builder
	for i := 0; i < arr.Len(); i++ {
		v := arr.Index(i)
		if v.Kind() == pdflib.String {
			b.WriteString(s.decode(v.RawString()))
			continue
		}
		if v.Float64() < -250 {
			if str := b.String(); str != "" && !strings.HasSuffix(str, " ") {
				b.WriteByte(' ')
			}
		}
	}
	return b.String()
}

func (s *pageScanner) decode(raw string) string {
	if s.font.enc == nil {
		return raw
	}
	return s.font.enc.Decode(raw)
}

func (s *pageScanner) show(text string) {
	if text == "" {
		return
	}
	y := s.tlm[5]
	tol := math.Max(math.Abs(s.fontSize*s.tlm[3])*0.3, 1)

	var line *textLine
	if n := len(s.lines); n > 0 && math.Abs(s.lines[n-1].y-y) <= tol {
		line = s.lines[n-1]
	} else {
		line = &textLine{y: y}
		s.lines = append(s.lines, line)
	}
	line.spans = append(line.spans, textSpan{text: text, bold: s.font.bold, color: s.fill})
}

func (s *pageScanner) lookupFont(name string) fontInfo {
	if f, ok := s.fonts[name]; ok {
		return f
	}
	font := s.page.Font(name)
	info := fontInfo{enc: font.Encoder(), bold: isBoldFont(font)}
	s.fonts[name] = info
	return info
}

var boldFontHints = []string{"bold", "black", "heavy", "demi"}

// boldFontName reports whether a base font name carries a heavy weight.
func boldFontName(name string) bool {
	name = strings.ToLower(name)
	for _, hint := range boldFontHints {
		if strings.Contains(name, hint) {
			return true
		}
	}
	return false
}

func isBoldFont(f pdflib.Font) bool {
	if boldFontName(f.BaseFont()) {
		return true
	}

	desc := f.V.Key("FontDescriptor")
	if desc.IsNull() {
		if d := f.V.Key("DescendantFonts"); d.Kind() == pdflib.Array && d.Len() > 0 {
			desc = d.Index(0).Key("FontDescriptor")
		}
	}
	if desc.Key("FontWeight").Float64() >= 600 {
		return true
	}
	const forceBold = 1 << 18
	return desc.Key("Flags").Int64()&forceBold != 0
}

// fillColor converts gray, RGB, or CMYK operands to a #rrggbb string.
func fillColor(args []pdflib.Value) (string, bool) {
	var comps []float64
	for _, a := range args {
		if a.Kind() != pdflib.Integer && a.Kind() != pdflib.Real {
			continue
		}
		comps = append(comps, a.Float64())
	}

	var c colorful.Color
	switch len(comps) {
	case 1:
		c = colorful.Color{R: comps[0], G: comps[0], B: comps[0]}
	case 3:
		c = colorful.Color{R: comps[0], G: comps[1], B: comps[2]}
	case 4:
		k := comps[3]
		c = colorful.Color{
			R: (1 - comps[0]) * (1 - k),
			G: (1 - comps[1]) * (1 - k),
			B: (1 - comps[2]) * (1 - k),
		}
	default:
		return "", false
	}
	return c.Clamped().Hex(), true
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
