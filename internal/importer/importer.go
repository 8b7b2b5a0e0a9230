// Package importer materializes a ParseResult as a persisted package graph
// in a single transaction.
package importer

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gorm.io/gorm"

	"github.com/dgallion1/quizpack/internal/assets"
	"github.com/dgallion1/quizpack/internal/doctree"
	"github.com/dgallion1/quizpack/internal/renumber"
	"github.com/dgallion1/quizpack/internal/store"
)

// Importer writes packages. Work is the folder extraction wrote assets to;
// Media is the published media folder, served under MediaBaseURL.
type Importer struct {
	DB           *gorm.DB
	Work         *assets.Store
	Media        *assets.Store
	MediaBaseURL string
	Logger       *slog.Logger
}

// Result is the outcome of one import.
type Result struct {
	Package  *store.Package
	Warnings []string
}

// Import persists res for ownerID. Either the whole graph is written or
// nothing is: on failure the transaction rolls back and media copied
// during the attempt are removed.
func (im *Importer) Import(ctx context.Context, res *doctree.ParseResult, ownerID string) (*Result, error) {
	if res == nil || len(res.Tours) == 0 {
		return nil, fmt.Errorf("import: %w: no tours", doctree.ErrExtraction)
	}
	log := im.Logger
	if log == nil {
		log = slog.Default()
	}

	run := &importRun{
		im:       im,
		ctx:      ctx,
		authors:  make(map[string]*store.Author),
		lower:    cases.Lower(language.Ukrainian),
		warnings: append([]string(nil), res.Warnings...),
	}
	var pkg *store.Package
	err := im.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		run.tx = tx
		var err error
		pkg, err = run.build(res, ownerID)
		if err != nil {
			return err
		}
		renumber.Apply(pkg)
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := tx.Create(pkg).Error; err != nil {
			return fmt.Errorf("save package: %w", err)
		}
		return nil
	})
	if err != nil {
		im.Media.Remove(run.copied...)
		return nil, fmt.Errorf("import: %w", err)
	}

	log.Info("package imported",
		"package_id", pkg.ID,
		"owner_id", ownerID,
		"tours", len(pkg.Tours),
		"questions", pkg.TotalQuestions,
		"media", len(run.copied),
		"warnings", len(run.warnings),
	)
	return &Result{Package: pkg, Warnings: run.warnings}, nil
}

// importRun carries the state of one Import call.
type importRun struct {
	im       *Importer
	ctx      context.Context
	tx       *gorm.DB
	authors  map[string]*store.Author
	lower    cases.Caser
	copied   []string
	warnings []string
}

func (r *importRun) warnf(format string, args ...any) {
	r.warnings = append(r.warnings, fmt.Sprintf(format, args...))
}

func (r *importRun) build(res *doctree.ParseResult, ownerID string) (*store.Package, error) {
	pkg := &store.Package{
		ID:            store.NewID(),
		OwnerID:       ownerID,
		Title:         strings.TrimSpace(res.Title),
		Description:   res.Description,
		Preamble:      res.Preamble,
		SourceURL:     res.SourceURL,
		PlayedFrom:    res.PlayedFrom,
		PlayedTo:      res.PlayedTo,
		SharedEditors: res.SharedEditors,
		NumberingMode: res.NumberingMode,
	}
	if pkg.NumberingMode == "" {
		pkg.NumberingMode = doctree.NumberingGlobal
	}

	var err error
	if res.SharedEditors {
		if pkg.Editors, err = r.resolveAuthors(res.PackageEditors); err != nil {
			return nil, err
		}
	}
	if pkg.Tags, err = r.resolveTags(res.Tags); err != nil {
		return nil, err
	}

	for i := range res.Tours {
		tour, err := r.tour(pkg.ID, &res.Tours[i], i)
		if err != nil {
			return nil, err
		}
		pkg.Tours = append(pkg.Tours, tour)
	}
	return pkg, nil
}

func (r *importRun) tour(packageID string, dto *doctree.TourDto, order int) (*store.Tour, error) {
	t := &store.Tour{
		ID:         store.NewID(),
		PackageID:  packageID,
		Number:     dto.Number,
		Type:       dto.Type,
		OrderIndex: order,
		Preamble:   dto.Preamble,
		Comment:    dto.Comment,
	}
	if !t.Type.Valid() {
		t.Type = doctree.TourRegular
	}
	var err error
	if t.Editors, err = r.resolveAuthors(dto.Editors); err != nil {
		return nil, err
	}

	// Question order is dense across the tour, block boundaries included.
	next := 0
	add := func(qs []doctree.QuestionDto, blockID *string) error {
		for i := range qs {
			if err := r.ctx.Err(); err != nil {
				return err
			}
			q, err := r.question(t, &qs[i], blockID, next)
			if err != nil {
				return err
			}
			t.Questions = append(t.Questions, q)
			next++
		}
		return nil
	}

	if len(dto.Blocks) > 0 {
		for j := range dto.Blocks {
			bd := &dto.Blocks[j]
			b := &store.Block{ID: store.NewID(), TourID: t.ID, Name: bd.Name, OrderIndex: j, Preamble: bd.Preamble}
			if b.Editors, err = r.resolveAuthors(bd.Editors); err != nil {
				return nil, err
			}
			t.Blocks = append(t.Blocks, b)
			if err := add(bd.Questions, &b.ID); err != nil {
				return nil, err
			}
		}
		return t, nil
	}
	if err := add(dto.Questions, nil); err != nil {
		return nil, err
	}
	return t, nil
}

func (r *importRun) question(t *store.Tour, dto *doctree.QuestionDto, blockID *string, order int) (*store.Question, error) {
	q := &store.Question{
		ID:               store.NewID(),
		TourID:           t.ID,
		BlockID:          blockID,
		Number:           dto.Number,
		OrderIndex:       order,
		Text:             dto.Text,
		Answer:           dto.Answer,
		AcceptedAnswers:  dto.AcceptedAnswers,
		RejectedAnswers:  dto.RejectedAnswers,
		Comment:          dto.Comment,
		Source:           dto.Source,
		HostInstructions: dto.HostInstructions,
		HandoutText:      dto.HandoutText,
	}
	var err error
	if q.Authors, err = r.resolveAuthors(dto.Authors); err != nil {
		return nil, err
	}
	where := fmt.Sprintf("tour %s question %s", t.Number, dto.Number)
	if q.HandoutAssetFileName, q.HandoutAssetURL, err = r.media(where+" handout", dto.HandoutAssetFileName, dto.HandoutAssetURL); err != nil {
		return nil, err
	}
	if q.CommentAssetFileName, q.CommentAssetURL, err = r.media(where+" comment", dto.CommentAssetFileName, dto.CommentAssetURL); err != nil {
		return nil, err
	}
	return q, nil
}

// media publishes one attachment slot. A file in the working folder always
// wins; the remote URL is linked only when there is no usable local file.
func (r *importRun) media(where, fileName, rawURL string) (name, url string, err error) {
	if fileName == "" {
		return "", rawURL, nil
	}
	if !r.im.Work.Exists(fileName) {
		if rawURL == "" {
			r.warnf("%s: asset %s not found", where, fileName)
		} else {
			r.warnf("%s: asset %s not found, linking %s", where, fileName, rawURL)
		}
		return "", rawURL, nil
	}
	copied, err := r.im.Media.Import(r.im.Work, fileName)
	if err != nil {
		return "", "", fmt.Errorf("%s: publish %s: %w", where, fileName, err)
	}
	r.copied = append(r.copied, copied)
	return copied, r.mediaURL(copied), nil
}

func (r *importRun) mediaURL(name string) string {
	base := strings.TrimRight(r.im.MediaBaseURL, "/")
	if base == "" {
		return name
	}
	return base + "/" + name
}

// resolveAuthors get-or-creates one Author per distinct non-empty name.
func (r *importRun) resolveAuthors(names []string) ([]*store.Author, error) {
	var out []*store.Author
	seen := make(map[string]bool, len(names))
	for _, n := range names {
		n = strings.Join(strings.Fields(n), " ")
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		a, ok := r.authors[n]
		if !ok {
			var err error
			if a, err = store.GetOrCreateAuthor(r.tx, n); err != nil {
				return nil, fmt.Errorf("author %q: %w", n, err)
			}
			r.authors[n] = a
		}
		out = append(out, a)
	}
	return out, nil
}

// resolveTags get-or-creates tags, skipping blank names. Tags match
// case-insensitively and keep the spelling they were first stored with.
func (r *importRun) resolveTags(names []string) ([]*store.Tag, error) {
	var out []*store.Tag
	seen := make(map[string]bool, len(names))
	for _, n := range names {
		n = strings.Join(strings.Fields(n), " ")
		key := r.lower.String(n)
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		tag, err := store.GetOrCreateTag(r.tx, n, key)
		if err != nil {
			return nil, fmt.Errorf("tag %q: %w", n, err)
		}
		out = append(out, tag)
	}
	return out, nil
}
