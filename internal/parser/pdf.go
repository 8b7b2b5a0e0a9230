package parser

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	pdflib "github.com/ledongthuc/pdf"

	"github.com/dgallion1/quizpack/internal/doctree"
)

// PDFParser handles PDF files. It tries the Go library first, then falls
// back to pdftotext if enabled. Every text line is one block.
type PDFParser struct {
	FallbackPdftotext bool
}

func (p *PDFParser) Extract(ctx context.Context, r io.Reader, filename string) (*doctree.Extraction, error) {
	// ledongthuc/pdf opens by path, so write to a temp file.
	tmp, err := os.CreateTemp("", "quizpack-pdf-*.pdf")
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		return nil, fmt.Errorf("write temp file: %w", err)
	}
	tmp.Close()

	text, err := extractPDFText(ctx, tmpPath)
	if err != nil && ctx.Err() == nil && p.FallbackPdftotext {
		text, err = extractPdftotext(ctx, tmpPath)
	}
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("extract %s: %w", filename, ctx.Err())
		}
		return nil, doctree.Extractionf("extract pdf text %s: %v", filename, err)
	}

	ext := &doctree.Extraction{}
	for _, page := range strings.Split(text, "\f") {
		for _, line := range strings.Split(page, "\n") {
			ext.AddBlock(strings.TrimRight(line, " \r"))
		}
	}
	return ext, nil
}

func extractPDFText(ctx context.Context, path string) (text string, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("corrupt pdf: %v", p)
		}
	}()
	f, reader, err := pdflib.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	var buf strings.Builder
	numPages := reader.NumPage()
	for i := 1; i <= numPages; i++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		pageText, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		if i > 1 {
			buf.WriteString("\f") // Form feed as page separator.
		}
		buf.WriteString(pageText)
	}
	return buf.String(), nil
}

func extractPdftotext(ctx context.Context, path string) (string, error) {
	cmd := exec.CommandContext(ctx, "pdftotext", "-layout", path, "-")
	out, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("pdftotext: %w", err)
	}
	return string(out), nil
}
