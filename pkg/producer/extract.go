package producer

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf16"

	"github.com/entrhq/translator/pkg/task"
	"golang.org/x/net/html"
)

// MinTextLength is the shortest block text worth translating, in UTF-16
// code units.
const MinTextLength = 5

// keyPrefixLength is how much of the text goes into a block key.
const keyPrefixLength = 20

// Candidate is a translatable leaf block found in a page.
type Candidate struct {
	Tag  string
	Text string
}

// Page is the result of scanning a document.
type Page struct {
	Title      string
	Candidates []Candidate
}

// Extract parses an HTML document and returns its translatable blocks in
// document order.
//
// A block is a p, h1-h6, li, td or blockquote element that does not itself
// contain another block element. Content inside script, style, noscript,
// iframe, nav, footer and svg is ignored, as are elements marked hidden.
func Extract(r io.Reader) (*Page, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	page := &Page{Title: extractTitle(doc)}
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			tag := strings.ToLower(n.Data)
			if isSkippedElement(tag) || isHidden(n) {
				return
			}
			if isBlockTag(tag) && !containsBlock(n) {
				text := normalizeText(innerText(n))
				if task.TextLength(text) >= MinTextLength {
					page.Candidates = append(page.Candidates, Candidate{Tag: strings.ToUpper(tag), Text: text})
				}
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return page, nil
}

// Key returns the structural fingerprint of a block: the upper-case tag,
// the text length and the first characters of the text without whitespace,
// e.g. "P:42:Thequickbrownfoxjum". Lengths count UTF-16 code units so keys
// match those computed by browser-side consumers.
func Key(tag, text string) string {
	units := utf16.Encode([]rune(text))
	prefix := units
	if len(prefix) > keyPrefixLength {
		prefix = prefix[:keyPrefixLength]
	}
	head := strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, string(utf16.Decode(prefix)))
	return strings.ToUpper(tag) + ":" + strconv.Itoa(len(units)) + ":" + head
}

// isBlockTag returns true for the elements that become Blocks.
func isBlockTag(tagName string) bool {
	switch tagName {
	case "p", "h1", "h2", "h3", "h4", "h5", "h6", "li", "td", "blockquote":
		return true
	}
	return false
}

// isSkippedElement returns true for subtrees that never hold page text.
func isSkippedElement(tagName string) bool {
	skipped := map[string]bool{
		"head":     true,
		"script":   true,
		"style":    true,
		"noscript": true,
		"iframe":   true,
		"template": true,
		"nav":      true,
		"footer":   true,
		"svg":      true,
		"path":     true,
	}
	return skipped[tagName]
}

// isHidden reports elements a browser would not render.
func isHidden(n *html.Node) bool {
	for _, attr := range n.Attr {
		switch strings.ToLower(attr.Key) {
		case "hidden":
			return true
		case "aria-hidden":
			if attr.Val == "true" {
				return true
			}
		case "style":
			style := strings.ToLower(strings.ReplaceAll(attr.Val, " ", ""))
			if strings.Contains(style, "display:none") || strings.Contains(style, "visibility:hidden") {
				return true
			}
		}
	}
	return false
}

// containsBlock reports whether any visible descendant is a block tag.
func containsBlock(n *html.Node) bool {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != html.ElementNode {
			continue
		}
		tag := strings.ToLower(c.Data)
		if isSkippedElement(tag) || isHidden(c) {
			continue
		}
		if isBlockTag(tag) || containsBlock(c) {
			return true
		}
	}
	return false
}

// innerText approximates the rendered text of n.
func innerText(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			b.WriteString(n.Data)
			return
		case html.ElementNode:
			tag := strings.ToLower(n.Data)
			if isSkippedElement(tag) || isHidden(n) {
				return
			}
			if tag == "br" {
				b.WriteString("\n")
				return
			}
			if isBreakingElement(tag) {
				b.WriteString("\n")
				defer b.WriteString("\n")
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}

// isBreakingElement returns true for elements rendered on their own line.
func isBreakingElement(tagName string) bool {
	switch tagName {
	case "div", "section", "article", "header", "main", "aside", "ul", "ol", "table", "tr", "pre", "figure", "figcaption":
		return true
	}
	return false
}

// normalizeText trims and collapses whitespace runs to single spaces.
func normalizeText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// extractTitle extracts the page title from the document
func extractTitle(doc *html.Node) string {
	var title string
	var traverse func(*html.Node)
	traverse = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "title" {
			if n.FirstChild != nil && n.FirstChild.Type == html.TextNode {
				title = strings.TrimSpace(n.FirstChild.Data)
			}
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			traverse(c)
			if title != "" {
				return
			}
		}
	}
	traverse(doc)
	return title
}
