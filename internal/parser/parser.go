// Package parser extracts ordered text blocks from documents. It does not
// interpret the text: every paragraph becomes one block and the heuristic
// parser decides what the blocks mean.
package parser

import (
	"context"
	"io"
	"path/filepath"
	"strings"

	"github.com/dgallion1/quizpack/internal/doctree"
)

// Extractor converts raw document bytes into blocks.
type Extractor interface {
	Extract(ctx context.Context, r io.Reader, filename string) (*doctree.Extraction, error)
}

// Options tunes the extractors returned by ForFile.
type Options struct {
	// PDFFallback runs pdftotext when the Go PDF reader fails.
	PDFFallback bool
}

// SupportedExtensions lists document extensions this package can read.
var SupportedExtensions = map[string]bool{
	".txt":      true,
	".md":       true,
	".markdown": true,
	".html":     true,
	".htm":      true,
	".pdf":      true,
	".docx":     true,
}

// ForFile returns the extractor for a filename. Unknown extensions are an
// extraction error.
func ForFile(filename string, opts Options) (Extractor, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	switch ext {
	case ".txt":
		return &TextParser{}, nil
	case ".md", ".markdown":
		return &MarkdownParser{}, nil
	case ".html", ".htm":
		return &HTMLParser{}, nil
	case ".pdf":
		return &PDFParser{FallbackPdftotext: opts.PDFFallback}, nil
	case ".docx":
		return &DOCXParser{}, nil
	default:
		return nil, doctree.Extractionf("unsupported file extension: %q", ext)
	}
}

// IsSupportedExtension checks if a file extension is supported.
func IsSupportedExtension(filename string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	return SupportedExtensions[ext]
}
