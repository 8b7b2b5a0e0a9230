package parser

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/dgallion1/quizpack/internal/doctree"
)

// TextParser handles plain text files. Every line is one block, blank
// lines included.
type TextParser struct{}

func (p *TextParser) Extract(ctx context.Context, r io.Reader, filename string) (*doctree.Extraction, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	ext := &doctree.Extraction{}
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("extract %s: %w", filename, err)
		}
		ext.AddBlock(strings.TrimRight(scanner.Text(), "\r"))
	}
	if err := scanner.Err(); err != nil {
		return nil, doctree.Extractionf("read %s: %v", filename, err)
	}
	return ext, nil
}
