// Package htmldoc is the DOM boundary for post bodies: a tolerant fragment
// parser, text-node traversal for link placement and anchor extraction.
package htmldoc

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// GeneratedAttr marks anchors written by the injector.
const GeneratedAttr = "data-linksync"

// ErrDetachedNode is returned when wrapping a text node that is no longer in the tree.
var ErrDetachedNode = errors.New("text node is not attached to the document")

// Anchor is an <a href> element found in a document.
type Anchor struct {
	Href      string
	Text      string
	Rel       string
	Generated bool
}

// RelValues splits the rel attribute into lowercase tokens.
func (a Anchor) RelValues() []string {
	return strings.Fields(strings.ToLower(a.Rel))
}

// TextNode is a text node eligible for link placement. Offset is the byte
// position of the node's first character within the document's raw text.
type TextNode struct {
	Text   string
	Offset int
	node   *html.Node
}

// Document is a parsed, mutable post body.
type Document interface {
	Anchors() []Anchor
	// TextNodes returns text outside anchors and outside excluded tags, in document order.
	TextNodes(excludedTags []string) []TextNode
	// TextLength is the byte length of all visible text, anchors included.
	TextLength() int
	// PlainText is the visible text with whitespace collapsed.
	PlainText() string
	// WrapText replaces text[start:end] of n with an anchor carrying attrs.
	WrapText(n TextNode, start, end int, attrs []html.Attribute) error
	Render() (string, error)
}

// Parser turns a body into a Document.
type Parser interface {
	Parse(body string) (Document, error)
}

// HTMLParser parses bodies as HTML fragments in a <body> context.
type HTMLParser struct{}

// NewParser returns the default tolerant parser.
func NewParser() HTMLParser {
	return HTMLParser{}
}

// Parse never rejects malformed markup; it only fails on reader errors.
func (HTMLParser) Parse(body string) (Document, error) {
	bodyCtx := &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}
	nodes, err := html.ParseFragment(strings.NewReader(body), bodyCtx)
	if err != nil {
		return nil, fmt.Errorf("parse html fragment: %w", err)
	}

	root := &html.Node{Type: html.ElementNode, Data: "div", DataAtom: atom.Div}
	for _, n := range nodes {
		root.AppendChild(n)
	}
	return &fragment{root: root}, nil
}

type fragment struct {
	root *html.Node
}

var invisibleTags = map[string]bool{"script": true, "style": true, "noscript": true, "template": true}

func (f *fragment) Anchors() []Anchor {
	var anchors []Anchor
	goquery.NewDocumentFromNode(f.root).Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		rel, _ := s.Attr("rel")
		_, generated := s.Attr(GeneratedAttr)
		anchors = append(anchors, Anchor{
			Href:      strings.TrimSpace(href),
			Text:      strings.TrimSpace(s.Text()),
			Rel:       rel,
			Generated: generated,
		})
	})
	return anchors
}

func (f *fragment) TextNodes(excludedTags []string) []TextNode {
	excluded := make(map[string]bool, len(excludedTags))
	for _, t := range excludedTags {
		excluded[strings.ToLower(t)] = true
	}

	var nodes []TextNode
	f.walkText(func(n *html.Node, offset int) {
		if !hasAncestor(n, func(p *html.Node) bool {
			return p.DataAtom == atom.A || excluded[p.Data]
		}) {
			nodes = append(nodes, TextNode{Text: n.Data, Offset: offset, node: n})
		}
	})
	return nodes
}

func (f *fragment) TextLength() int {
	total := 0
	f.walkText(func(n *html.Node, _ int) {
		total += len(n.Data)
	})
	return total
}

func (f *fragment) PlainText() string {
	var parts []string
	f.walkText(func(n *html.Node, _ int) {
		parts = append(parts, n.Data)
	})
	return strings.Join(strings.Fields(strings.Join(parts, " ")), " ")
}

// walkText visits visible text nodes in document order with their raw offset.
func (f *fragment) walkText(visit func(n *html.Node, offset int)) {
	offset := 0
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && invisibleTags[n.Data] {
			return
		}
		if n.Type == html.TextNode {
			visit(n, offset)
			offset += len(n.Data)
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(f.root)
}

func hasAncestor(n *html.Node, match func(*html.Node) bool) bool {
	for p := n.Parent; p != nil; p = p.Parent {
		if p.Type == html.ElementNode && match(p) {
			return true
		}
	}
	return false
}

func (f *fragment) WrapText(n TextNode, start, end int, attrs []html.Attribute) error {
	node := n.node
	if node == nil || node.Parent == nil {
		return ErrDetachedNode
	}
	if start < 0 || end > len(node.Data) || start >= end {
		return fmt.Errorf("wrap range [%d:%d] outside text of length %d", start, end, len(node.Data))
	}

	parent := node.Parent
	text := node.Data

	if start > 0 {
		parent.InsertBefore(&html.Node{Type: html.TextNode, Data: text[:start]}, node)
	}

	anchor := &html.Node{Type: html.ElementNode, Data: "a", DataAtom: atom.A, Attr: attrs}
	anchor.AppendChild(&html.Node{Type: html.TextNode, Data: text[start:end]})
	parent.InsertBefore(anchor, node)

	if end < len(text) {
		parent.InsertBefore(&html.Node{Type: html.TextNode, Data: text[end:]}, node)
	}

	parent.RemoveChild(node)
	return nil
}

func (f *fragment) Render() (string, error) {
	var buf bytes.Buffer
	for c := f.root.FirstChild; c != nil; c = c.NextSibling {
		if err := html.Render(&buf, c); err != nil {
			return "", fmt.Errorf("render html: %w", err)
		}
	}
	return buf.String(), nil
}
