package parser

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"golang.org/x/net/html"

	"github.com/dgallion1/quizpack/internal/doctree"
)

// HTMLParser handles HTML files. Headings, paragraphs, list items, table
// cells and block quotes each become one block; <br> becomes "\n".
type HTMLParser struct{}

func (p *HTMLParser) Extract(ctx context.Context, r io.Reader, filename string) (*doctree.Extraction, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, doctree.Extractionf("parse html %s: %v", filename, err)
	}

	ext := &doctree.Extraction{}
	var walk func(*html.Node) error
	walk = func(n *html.Node) error {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "script", "style", "nav", "footer", "head":
				return nil
			case "h1", "h2", "h3", "h4", "h5", "h6", "p", "li", "td", "th", "blockquote", "pre":
				if err := ctx.Err(); err != nil {
					return err
				}
				ext.AddBlock(textContent(n))
				return nil
			case "ol":
				return walkOrdered(ctx, n, ext)
			case "hr":
				ext.AddBlock("")
				return nil
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if err := walk(c); err != nil {
				return err
			}
		}
		return nil
	}

	root := findBody(doc)
	if root == nil {
		root = doc
	}
	if err := walk(root); err != nil {
		return nil, fmt.Errorf("extract %s: %w", filename, err)
	}
	return ext, nil
}

// walkOrdered emits ordered list items with their numbers.
func walkOrdered(ctx context.Context, ol *html.Node, ext *doctree.Extraction) error {
	num := 1
	for _, a := range ol.Attr {
		if a.Key == "start" {
			if n, err := strconv.Atoi(strings.TrimSpace(a.Val)); err == nil {
				num = n
			}
		}
	}
	for c := ol.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != html.ElementNode || c.Data != "li" {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		ext.AddBlock(fmt.Sprintf("%d. %s", num, textContent(c)))
		num++
	}
	return nil
}

func textContent(n *html.Node) string {
	var buf strings.Builder
	var extract func(*html.Node)
	extract = func(n *html.Node) {
		switch {
		case n.Type == html.TextNode:
			buf.WriteString(n.Data)
		case n.Type == html.ElementNode && n.Data == "br":
			buf.WriteByte('\n')
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			extract(c)
		}
	}
	extract(n)
	lines := strings.Split(buf.String(), "\n")
	for i, l := range lines {
		lines[i] = strings.Join(strings.Fields(l), " ")
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
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
