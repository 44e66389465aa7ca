package parser

import (
	"bytes"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	east "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/text"
	"golang.org/x/text/unicode/norm"

	"github.com/dgallion1/notes2anki/internal/flashcard"
	"github.com/dgallion1/notes2anki/internal/segment"
)

// MarkdownParser handles Markdown files using goldmark. "#" headings are
// topics, deeper headings subtopics, and a paragraph made entirely of
// strong emphasis is a question.
type MarkdownParser struct{}

func (p *MarkdownParser) Parse(r io.Reader, filename string) ([]flashcard.Paragraph, error) {
	src, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read markdown: %w", err)
	}

	md := goldmark.New(goldmark.WithExtensions(extension.Table))
	doc := md.Parser().Parse(text.NewReader(src))

	w := &mdWalker{md: md, src: src, paragraphs: []flashcard.Paragraph{}}
	for n := doc.FirstChild(); n != nil; n = n.NextSibling() {
		if err := w.block(n); err != nil {
			return nil, err
		}
	}
	return w.paragraphs, nil
}

type mdWalker struct {
	md         goldmark.Markdown
	src        []byte
	paragraphs []flashcard.Paragraph
}

func (w *mdWalker) block(n ast.Node) error {
	switch node := n.(type) {
	case *ast.Heading:
		para := w.inline(node, "")
		if para.Text == "" {
			return nil
		}
		para.IsBold = false
		para.IsHeading = true
		para.HeadingLevel = segment.LevelInner
		if node.Level == 1 {
			para.HeadingLevel = segment.LevelOuter
		}
		w.add(para)
	case *ast.Paragraph, *ast.TextBlock:
		w.add(w.inline(node, ""))
	case *ast.List:
		num := node.Start
		for item := node.FirstChild(); item != nil; item = item.NextSibling() {
			marker := "- "
			if node.IsOrdered() {
				marker = strconv.Itoa(num) + ". "
				num++
			}
			if err := w.listItem(item, marker); err != nil {
				return err
			}
		}
	case *ast.Blockquote:
		for c := node.FirstChild(); c != nil; c = c.NextSibling() {
			if err := w.block(c); err != nil {
				return err
			}
		}
	case *ast.FencedCodeBlock, *ast.CodeBlock:
		w.add(flashcard.Paragraph{Text: strings.TrimSpace(string(blockLines(node, w.src)))})
	case *east.Table:
		var buf bytes.Buffer
		if err := w.md.Renderer().Render(&buf, w.src, node); err != nil {
			return fmt.Errorf("render markdown table: %w", err)
		}
		w.add(flashcard.Paragraph{
			Text:      w.tableText(node),
			IsTable:   true,
			TableHTML: strings.TrimSpace(buf.String()),
			Images:    w.images(node),
		})
	}
	return nil
}

// listItem emits the item's first text block with its marker and recurses
// into nested blocks.
func (w *mdWalker) listItem(item ast.Node, marker string) error {
	first := true
	for c := item.FirstChild(); c != nil; c = c.NextSibling() {
		switch c.(type) {
		case *ast.Paragraph, *ast.TextBlock:
			prefix := ""
			if first {
				prefix = marker
			}
			w.add(w.inline(c, prefix))
			first = false
		default:
			if err := w.block(c); err != nil {
				return err
			}
		}
	}
	return nil
}

func (w *mdWalker) add(p flashcard.Paragraph) {
	if p.Text == "" && len(p.Images) == 0 && !p.IsTable {
		return
	}
	w.paragraphs = append(w.paragraphs, p)
}

// inline flattens a block's inline children. A paragraph is bold when every
// non-blank text run sits inside strong emphasis.
func (w *mdWalker) inline(n ast.Node, prefix string) flashcard.Paragraph {
	var buf strings.Builder
	var images []string
	allBold := true
	sawText := false

	write := func(s string, bold bool) {
		buf.WriteString(s)
		if strings.TrimSpace(s) == "" {
			return
		}
		sawText = true
		if !bold {
			allBold = false
		}
	}

	var visit func(ast.Node, bool)
	visit = func(n ast.Node, bold bool) {
		switch node := n.(type) {
		case *ast.Text:
			write(string(node.Value(w.src)), bold)
			if node.HardLineBreak() {
				buf.WriteByte('\n')
			} else if node.SoftLineBreak() {
				buf.WriteByte(' ')
			}
			return
		case *ast.String:
			write(string(node.Value), bold)
			return
		case *ast.AutoLink:
			write(string(node.Label(w.src)), bold)
			return
		case *ast.Image:
			if src, ok := dataURIImage(string(node.Destination)); ok {
				images = append(images, src)
			}
			return
		case *ast.RawHTML:
			return
		case *ast.Emphasis:
			if node.Level >= 2 {
				bold = true
			}
		}
		for c := n.FirstChild(); c != nil; c = c.NextSibling() {
			visit(c, bold)
		}
	}
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		visit(c, false)
	}

	body := strings.TrimSpace(norm.NFC.String(buf.String()))
	if body != "" {
		body = prefix + body
	}
	return flashcard.Paragraph{
		Text:   body,
		IsBold: sawText && allBold && prefix == "",
		Images: images,
	}
}

func (w *mdWalker) tableText(tbl ast.Node) string {
	var rows []string
	for row := tbl.FirstChild(); row != nil; row = row.NextSibling() {
		var cells []string
		for cell := row.FirstChild(); cell != nil; cell = cell.NextSibling() {
			cells = append(cells, w.inline(cell, "").Text)
		}
		rows = append(rows, strings.Join(cells, " | "))
	}
	return strings.Join(rows, "\n")
}

func (w *mdWalker) images(n ast.Node) []string {
	var images []string
	_ = ast.Walk(n, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if img, ok := n.(*ast.Image); ok && entering {
			if src, ok := dataURIImage(string(img.Destination)); ok {
				images = append(images, src)
			}
		}
		return ast.WalkContinue, nil
	})
	return images
}

func blockLines(n ast.Node, src []byte) []byte {
	var buf bytes.Buffer
	lines := n.Lines()
	for i := 0; i < lines.Len(); i++ {
		line := lines.At(i)
		buf.Write(line.Value(src))
	}
	return buf.Bytes()
}
