package parser

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"strings"

	"github.com/fumiama/go-docx"

	"github.com/dgallion1/quizpack/internal/doctree"
)

// DOCXParser handles .docx files. Each w:p becomes one block; table cells
// contribute their paragraphs in reading order.
type DOCXParser struct{}

func (p *DOCXParser) Extract(ctx context.Context, r io.Reader, filename string) (*doctree.Extraction, error) {
	// go-docx needs a ReaderAt+size, so write to temp file.
	tmp, err := os.CreateTemp("", "quizpack-docx-*.docx")
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)
	defer tmp.Close()

	size, err := io.Copy(tmp, r)
	if err != nil {
		return nil, fmt.Errorf("write temp file: %w", err)
	}

	doc, err := parseDocx(tmp, size)
	if err != nil {
		return nil, doctree.Extractionf("parse docx %s: %v", filename, err)
	}

	w := &docxWalker{ctx: ctx, doc: doc, ext: &doctree.Extraction{}}
	for _, item := range doc.Document.Body.Items {
		if err := w.item(item); err != nil {
			return nil, fmt.Errorf("extract %s: %w", filename, err)
		}
	}
	return w.ext, nil
}

// parseDocx recovers from panics inside the XML decoder so a corrupt file
// surfaces as an error.
func parseDocx(r io.ReaderAt, size int64) (doc *docx.Docx, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("corrupt document: %v", p)
		}
	}()
	return docx.Parse(r, size)
}

type docxWalker struct {
	ctx context.Context
	doc *docx.Docx
	ext *doctree.Extraction
}

func (w *docxWalker) item(item any) error {
	switch v := item.(type) {
	case *docx.Paragraph:
		if err := w.ctx.Err(); err != nil {
			return err
		}
		text, refs := w.paragraph(v)
		w.ext.AddBlock(text, refs...)
	case *docx.Table:
		for _, row := range v.TableRows {
			for _, cell := range row.TableCells {
				for _, para := range cell.Paragraphs {
					if err := w.item(para); err != nil {
						return err
					}
				}
				for _, tbl := range cell.Tables {
					if err := w.item(tbl); err != nil {
						return err
					}
				}
			}
		}
	}
	return nil
}

// paragraph returns the text of para with w:br as "\n" and tabs as spaces,
// plus a reference for every embedded picture.
func (w *docxWalker) paragraph(para *docx.Paragraph) (string, []doctree.AssetReference) {
	var (
		buf  strings.Builder
		refs []doctree.AssetReference
	)
	var run func(r *docx.Run)
	run = func(r *docx.Run) {
		for _, rc := range r.Children {
			switch c := rc.(type) {
			case *docx.Text:
				buf.WriteString(c.Text)
			case *docx.Tab:
				buf.WriteByte(' ')
			case *docx.BarterRabbet:
				buf.WriteByte('\n')
			case *docx.Drawing:
				if ref, ok := w.drawing(c); ok {
					refs = append(refs, ref)
				}
			}
		}
	}
	for _, child := range para.Children {
		switch c := child.(type) {
		case *docx.Run:
			run(c)
		case *docx.Hyperlink:
			run(&c.Run)
		}
	}
	return strings.TrimSpace(buf.String()), refs
}

// drawing resolves the r:embed id of an inline or anchored picture to the
// bytes under word/media.
func (w *docxWalker) drawing(d *docx.Drawing) (doctree.AssetReference, bool) {
	var g *docx.AGraphic
	switch {
	case d.Inline != nil:
		g = d.Inline.Graphic
	case d.Anchor != nil:
		g = d.Anchor.Graphic
	}
	if g == nil || g.GraphicData == nil || g.GraphicData.Pic == nil || g.GraphicData.Pic.BlipFill == nil {
		return doctree.AssetReference{}, false
	}
	id := g.GraphicData.Pic.BlipFill.Blip.Embed
	target, err := w.doc.ReferTarget(id)
	if err != nil {
		return doctree.AssetReference{}, false
	}
	name := path.Base(target)
	m := w.doc.Media(name)
	if m == nil {
		return doctree.AssetReference{}, false
	}
	if _, seen := w.ext.Assets[name]; seen {
		return doctree.AssetReference{ID: id, FileName: name}, true
	}
	return w.ext.AddAsset(id, name, m.Data), true
}
