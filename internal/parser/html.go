package parser

import (
	"bytes"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"

	"github.com/lucasb-eyer/go-colorful"
	"golang.org/x/net/html"
	"golang.org/x/text/unicode/norm"

	"github.com/dgallion1/notes2anki/internal/flashcard"
	"github.com/dgallion1/notes2anki/internal/segment"
)

// HTMLParser handles HTML exports of rich-text notes. Heading tags set
// explicit levels; bold and color come from markup, inline styles and
// simple class rules in <style> blocks.
type HTMLParser struct{}

// runStyle is the inherited inline formatting at a text node.
type runStyle struct {
	bold  bool
	color string
}

// classRule is the subset of a CSS class rule the loader understands.
type classRule struct {
	bold     bool
	boldSet  bool
	color    string
	colorSet bool
}

func (p *HTMLParser) Parse(r io.Reader, filename string) ([]flashcard.Paragraph, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	w := &htmlWalker{
		classes:    parseClassRules(collectStyleSheets(doc)),
		paragraphs: []flashcard.Paragraph{},
	}
	root := findBody(doc)
	if root == nil {
		root = doc
	}
	w.walk(root, runStyle{})
	return w.paragraphs, nil
}

type htmlWalker struct {
	classes    map[string]classRule
	paragraphs []flashcard.Paragraph
}

func (w *htmlWalker) walk(n *html.Node, inherited runStyle) {
	if n.Type != html.ElementNode {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			w.walk(c, inherited)
		}
		return
	}

	style := w.styleFor(n, inherited)
	switch n.Data {
	case "script", "style", "nav", "footer", "header", "head":
		return
	case "h1", "h2", "h3", "h4", "h5", "h6":
		para := w.block(n, style)
		if para.Text == "" && len(para.Images) == 0 {
			return
		}
		para.IsHeading = true
		para.HeadingLevel = segment.LevelInner
		if n.Data == "h1" {
			para.HeadingLevel = segment.LevelOuter
		}
		para.IsBold = false
		w.paragraphs = append(w.paragraphs, para)
		return
	case "p", "div", "li", "blockquote", "pre", "dt", "dd":
		if hasBlockChild(n) {
			break
		}
		para := w.block(n, style)
		if para.Text == "" && len(para.Images) == 0 {
			return
		}
		if n.Data == "li" && para.Text != "" {
			para.Text = "- " + para.Text
		}
		w.paragraphs = append(w.paragraphs, para)
		return
	case "table":
		if para, ok := w.table(n); ok {
			w.paragraphs = append(w.paragraphs, para)
		}
		return
	case "img":
		if src, ok := dataURIImage(attr(n, "src")); ok {
			w.paragraphs = append(w.paragraphs, flashcard.Paragraph{Images: []string{src}})
		}
		return
	}

	for c := n.FirstChild; c != nil; c = c.NextSibling {
		w.walk(c, style)
	}
}

// block flattens an element's inline content into one paragraph.
func (w *htmlWalker) block(n *html.Node, style runStyle) flashcard.Paragraph {
	var buf strings.Builder
	var images []string
	shared := ""
	uniform := true
	allBold := true
	sawText := false

	var visit func(*html.Node, runStyle)
	visit = func(n *html.Node, s runStyle) {
		switch n.Type {
		case html.TextNode:
			buf.WriteString(n.Data)
			if strings.TrimSpace(n.Data) == "" {
				return
			}
			if !s.bold {
				allBold = false
			}
			c := s.color
			if c != "" && segment.IsBlack(c) {
				c = ""
			}
			if !sawText {
				shared = c
			} else if c != shared {
				uniform = false
			}
			sawText = true
			return
		case html.ElementNode:
			switch n.Data {
			case "br":
				buf.WriteByte('\n')
				return
			case "img":
				if src, ok := dataURIImage(attr(n, "src")); ok {
					images = append(images, src)
				}
				return
			case "script", "style":
				return
			}
			s = w.styleFor(n, s)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			visit(c, s)
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		visit(c, style)
	}

	para := flashcard.Paragraph{
		Text:   collapseSpaces(norm.NFC.String(buf.String())),
		IsBold: sawText && allBold,
		Images: images,
	}
	// A color only styles the paragraph when every text run carries it.
	if sawText && uniform {
		para.TextColor = shared
	}
	return para
}

func (w *htmlWalker) table(n *html.Node) (flashcard.Paragraph, bool) {
	var markup bytes.Buffer
	if err := html.Render(&markup, n); err != nil {
		return flashcard.Paragraph{}, false
	}

	var rows []string
	var images []string
	var visit func(*html.Node)
	visit = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "tr":
				var cells []string
				for c := n.FirstChild; c != nil; c = c.NextSibling {
					if c.Type == html.ElementNode && (c.Data == "td" || c.Data == "th") {
						cells = append(cells, collapseSpaces(textContent(c)))
					}
				}
				rows = append(rows, strings.Join(cells, " | "))
			case "img":
				if src, ok := dataURIImage(attr(n, "src")); ok {
					images = append(images, src)
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			visit(c)
		}
	}
	visit(n)

	return flashcard.Paragraph{
		Text:      strings.Join(rows, "\n"),
		IsTable:   true,
		TableHTML: markup.String(),
		Images:    images,
	}, true
}

// styleFor applies an element's tag, classes and inline style on top of the
// inherited formatting.
func (w *htmlWalker) styleFor(n *html.Node, s runStyle) runStyle {
	switch n.Data {
	case "b", "strong":
		s.bold = true
	case "font":
		if c := cssColor(attr(n, "color")); c != "" {
			s.color = c
		}
	}
	for _, class := range strings.Fields(attr(n, "class")) {
		rule, ok := w.classes[class]
		if !ok {
			continue
		}
		if rule.boldSet {
			s.bold = rule.bold
		}
		if rule.colorSet {
			s.color = rule.color
		}
	}
	rule := parseDeclarations(attr(n, "style"))
	if rule.boldSet {
		s.bold = rule.bold
	}
	if rule.colorSet {
		s.color = rule.color
	}
	return s
}

var classRulePattern = regexp.MustCompile(`\.([A-Za-z0-9_-]+)\s*\{([^}]*)\}`)

// parseClassRules extracts ".name { ... }" rules. Selectors other than a
// bare class are ignored.
func parseClassRules(css string) map[string]classRule {
	rules := map[string]classRule{}
	for _, m := range classRulePattern.FindAllStringSubmatch(css, -1) {
		rule := parseDeclarations(m[2])
		prev := rules[m[1]]
		if rule.boldSet {
			prev.bold, prev.boldSet = rule.bold, true
		}
		if rule.colorSet {
			prev.color, prev.colorSet = rule.color, true
		}
		rules[m[1]] = prev
	}
	return rules
}

func parseDeclarations(decls string) classRule {
	var rule classRule
	for _, decl := range strings.Split(decls, ";") {
		name, value, ok := strings.Cut(decl, ":")
		if !ok {
			continue
		}
		name = strings.ToLower(strings.TrimSpace(name))
		value = strings.ToLower(strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(value), "!important")))
		switch name {
		case "font-weight":
			rule.boldSet = true
			rule.bold = isBoldWeight(value)
		case "color":
			if c := cssColor(value); c != "" {
				rule.colorSet = true
				rule.color = c
			}
		}
	}
	return rule
}

func isBoldWeight(v string) bool {
	switch v {
	case "bold", "bolder":
		return true
	}
	n, err := strconv.Atoi(v)
	return err == nil && n >= 600
}

var rgbPattern = regexp.MustCompile(`^rgba?\(\s*(\d+)\s*,\s*(\d+)\s*,\s*(\d+)`)

// cssColor normalizes a CSS color to "#rrggbb" where possible; named colors
// pass through lowercased.
func cssColor(v string) string {
	v = strings.ToLower(strings.TrimSpace(v))
	if v == "" || v == "inherit" || v == "initial" || v == "currentcolor" {
		return ""
	}
	if strings.HasPrefix(v, "#") {
		return segment.NormalizeColor(v)
	}
	if m := rgbPattern.FindStringSubmatch(v); m != nil {
		var rgb [3]float64
		for i := range rgb {
			n, _ := strconv.Atoi(m[i+1])
			rgb[i] = float64(min(n, 255)) / 255
		}
		return colorful.Color{R: rgb[0], G: rgb[1], B: rgb[2]}.Hex()
	}
	return v
}

func collectStyleSheets(n *html.Node) string {
	var buf strings.Builder
	var visit func(*html.Node)
	visit = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "style" {
			buf.WriteString(textContent(n))
			buf.WriteByte('\n')
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			visit(c)
		}
	}
	visit(n)
	return buf.String()
}

func hasBlockChild(n *html.Node) bool {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != html.ElementNode {
			continue
		}
		switch c.Data {
		case "p", "table", "ul", "ol", "div", "h1", "h2", "h3", "h4", "h5", "h6", "blockquote":
			return true
		}
	}
	return false
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

// collapseSpaces trims each line and collapses runs of spaces within it.
func collapseSpaces(s string) string {
	lines := strings.Split(s, "\n")
	out := lines[:0]
	for _, line := range lines {
		line = strings.Join(strings.Fields(line), " ")
		if line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}

func textContent(n *html.Node) string {
	var buf strings.Builder
	var extract func(*html.Node)
	extract = func(n *html.Node) {
		if n.Type == html.TextNode {
			buf.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			extract(c)
		}
	}
	extract(n)
	return strings.TrimSpace(buf.String())
}

func findBody(n *html.Node) *html.Node {
	if n.Type == html.ElementNode && n.Data == "body" {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if b := findBody(c); b != nil {
			return b
		}
	}
	return nil
}
