package parser

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/dgallion1/quizpack/internal/doctree"
)

func TestPDF_CorruptInput(t *testing.T) {
	p := &PDFParser{}
	_, err := p.Extract(context.Background(), strings.NewReader("%PDF-1.4 not really"), "broken.pdf")
	if !errors.Is(err, doctree.ErrExtraction) {
		t.Errorf("expected ErrExtraction, got %v", err)
	}
}

func TestPDF_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p := &PDFParser{FallbackPdftotext: true}
	_, err := p.Extract(ctx, strings.NewReader("%PDF-1.4 not really"), "broken.pdf")
	if err == nil {
		t.Fatal("expected error for cancelled context")
	}
	if errors.Is(err, doctree.ErrExtraction) {
		t.Errorf("expected cancellation rather than extraction error, got %v", err)
	}
}
