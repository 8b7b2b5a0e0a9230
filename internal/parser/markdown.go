package parser

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"

	"github.com/dgallion1/quizpack/internal/doctree"
)

// MarkdownParser handles Markdown files using goldmark. Every top-level
// block and every list item is one block; ordered list items keep their
// number so numbered questions survive.
type MarkdownParser struct{}

func (p *MarkdownParser) Extract(ctx context.Context, r io.Reader, filename string) (*doctree.Extraction, error) {
	src, err := io.ReadAll(r)
	if err != nil {
		return nil, doctree.Extractionf("read %s: %v", filename, err)
	}

	md := goldmark.New()
	doc := md.Parser().Parse(text.NewReader(src))

	ext := &doctree.Extraction{}
	var walk func(n ast.Node) error
	walk = func(n ast.Node) error {
		for c := n.FirstChild(); c != nil; c = c.NextSibling() {
			if err := ctx.Err(); err != nil {
				return err
			}
			switch node := c.(type) {
			case *ast.List:
				num := node.Start
				for item := node.FirstChild(); item != nil; item = item.NextSibling() {
					t := extractText(item, src)
					if node.IsOrdered() {
						t = fmt.Sprintf("%d. %s", num, t)
						num++
					}
					ext.AddBlock(t)
				}
			case *ast.Blockquote:
				if err := walk(node); err != nil {
					return err
				}
			case *ast.ThematicBreak:
				ext.AddBlock("")
			default:
				ext.AddBlock(extractText(c, src))
			}
		}
		return nil
	}
	if err := walk(doc); err != nil {
		return nil, fmt.Errorf("extract %s: %w", filename, err)
	}
	return ext, nil
}

// extractText gets the text content of a goldmark AST node. Line breaks
// inside a paragraph are kept as "\n".
func extractText(n ast.Node, src []byte) string {
	var buf bytes.Buffer
	if n.Type() == ast.TypeBlock && !n.HasChildren() {
		lines := n.Lines()
		for i := 0; i < lines.Len(); i++ {
			line := lines.At(i)
			buf.Write(line.Value(src))
		}
	}
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		switch t := c.(type) {
		case *ast.Text:
			buf.Write(t.Value(src))
			if t.HardLineBreak() || t.SoftLineBreak() {
				buf.WriteByte('\n')
			}
		default:
			if c.Type() == ast.TypeBlock && buf.Len() > 0 {
				buf.WriteByte('\n')
			}
			buf.WriteString(extractText(c, src))
		}
	}
	return strings.TrimSpace(buf.String())
}
