package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"

	"github.com/dgallion1/quizpack/internal/archive"
	"github.com/dgallion1/quizpack/internal/assets"
	"github.com/dgallion1/quizpack/internal/doctree"
	"github.com/dgallion1/quizpack/internal/heuristic"
	"github.com/dgallion1/quizpack/internal/parser"
)

// Parser routes an uploaded file to the archive extractor or to a block
// extractor followed by the heuristic parser. Media land in Work.
type Parser struct {
	Work    *assets.Store
	Options parser.Options
	Logger  *slog.Logger
}

// Parse turns one file into a ParseResult. written lists the working
// assets the call created; the caller removes them once they are no
// longer needed. On error nothing is left behind.
func (p *Parser) Parse(ctx context.Context, filename string, data []byte) (res *doctree.ParseResult, written []string, err error) {
	log := p.Logger
	if log == nil {
		log = slog.Default()
	}
	r := bytes.NewReader(data)

	if archive.IsArchive(filename) {
		x := &archive.Extractor{Store: p.Work, Logger: log}
		res, err = x.Extract(ctx, r, r.Size())
		if err != nil {
			return nil, nil, fmt.Errorf("extract archive %s: %w", filename, err)
		}
		return res, AssetNames(res), nil
	}

	ex, err := parser.ForFile(filename, p.Options)
	if err != nil {
		return nil, nil, err
	}
	ext, err := ex.Extract(ctx, r, filename)
	if err != nil {
		return nil, nil, fmt.Errorf("extract %s: %w", filename, err)
	}
	written, err = p.Work.PersistExtraction(ext)
	if err != nil {
		p.Work.Remove(written...)
		return nil, nil, fmt.Errorf("persist assets: %w", err)
	}
	res, err = heuristic.Parse(ctx, ext)
	if err != nil {
		p.Work.Remove(written...)
		return nil, nil, err
	}
	log.Debug("document parsed",
		"filename", filename,
		"blocks", len(ext.Blocks),
		"tours", len(res.Tours),
		"confidence", res.Confidence,
	)
	return res, written, nil
}

// AssetNames lists the stored asset names referenced by res.
func AssetNames(res *doctree.ParseResult) []string {
	var names []string
	for i := range res.Tours {
		for _, q := range res.Tours[i].AllQuestions() {
			for _, name := range []string{q.HandoutAssetFileName, q.CommentAssetFileName} {
				if name != "" {
					names = append(names, name)
				}
			}
		}
	}
	return names
}
