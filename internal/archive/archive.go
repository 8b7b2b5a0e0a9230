// Package archive reads self-describing package archives: a zip file with a
// manifest.json and an optional assets/ folder. The manifest maps directly
// onto a ParseResult, so this path never guesses and always reports
// confidence 1.
package archive

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/dgallion1/quizpack/internal/assets"
	"github.com/dgallion1/quizpack/internal/doctree"
)

const maxManifestBytes = 16 << 20

// Extractor turns archives into ParseResults, writing media into Store.
type Extractor struct {
	Store  *assets.Store
	Logger *slog.Logger
}

// IsArchive reports whether filename names a package archive.
func IsArchive(filename string) bool {
	switch strings.ToLower(path.Ext(filename)) {
	case ".qpz", ".zip":
		return true
	}
	return false
}

// extraction is the state of one Extract call.
type extraction struct {
	ctx     context.Context
	store   *assets.Store
	log     *slog.Logger
	files   map[string]*zip.File
	root    string // "" or "<folder>/"
	res     *doctree.ParseResult
	written []string
}

// Extract reads the archive in r. Fatal problems (unreadable zip, missing or
// malformed manifest, no tours) return an error wrapping
// doctree.ErrExtraction. On any error, assets written so far are removed.
func (x *Extractor) Extract(ctx context.Context, r io.ReaderAt, size int64) (*doctree.ParseResult, error) {
	zr, err := zip.NewReader(r, size)
	if err != nil {
		return nil, doctree.Extractionf("open archive: %v", err)
	}
	log := x.Logger
	if log == nil {
		log = slog.Default()
	}
	e := &extraction{
		ctx:   ctx,
		store: x.Store,
		log:   log,
		files: make(map[string]*zip.File, len(zr.File)),
		res:   &doctree.ParseResult{Confidence: 1},
	}
	for _, f := range zr.File {
		e.files[strings.TrimPrefix(f.Name, "./")] = f
	}

	m, err := e.readManifest()
	if err != nil {
		return nil, err
	}
	if len(m.Tours) == 0 {
		return nil, doctree.Extractionf("manifest has no tours")
	}
	if err := e.build(m); err != nil {
		x.Store.Remove(e.written...)
		return nil, err
	}
	log.Info("archive extracted",
		"tours", len(e.res.Tours),
		"questions", e.res.TotalQuestions,
		"assets", len(e.written),
		"warnings", len(e.res.Warnings),
	)
	return e.res, nil
}

// readManifest finds the manifest at the root or inside a single top-level
// folder.
func (e *extraction) readManifest() (*manifest, error) {
	f, ok := e.files[ManifestName]
	if !ok {
		var candidates []string
		for name := range e.files {
			dir, base := path.Split(name)
			if base == ManifestName && strings.Count(dir, "/") == 1 {
				candidates = append(candidates, dir)
			}
		}
		if len(candidates) != 1 {
			return nil, doctree.Extractionf("archive has no %s", ManifestName)
		}
		e.root = candidates[0]
		f = e.files[e.root+ManifestName]
	}

	rc, err := f.Open()
	if err != nil {
		return nil, doctree.Extractionf("open manifest: %v", err)
	}
	defer rc.Close()
	b, err := io.ReadAll(io.LimitReader(rc, maxManifestBytes+1))
	if err != nil {
		return nil, doctree.Extractionf("read manifest: %v", err)
	}
	if len(b) > maxManifestBytes {
		return nil, doctree.Extractionf("manifest larger than %d bytes", maxManifestBytes)
	}
	m, err := parseManifest(b)
	if err != nil {
		return nil, doctree.Extractionf("%v", err)
	}
	return m, nil
}

func (e *extraction) build(m *manifest) error {
	res := e.res
	if m.FormatVersion == "" {
		res.Warnf("manifest has no formatVersion, assuming %s", FormatVersion)
	} else if m.FormatVersion != FormatVersion {
		res.Warnf("manifest formatVersion %s is not supported version %s", m.FormatVersion, FormatVersion)
	}
	res.Title = string(m.Title)
	if res.Title == "" {
		res.Warnf("missing package title")
	}
	res.Description = strings.TrimSpace(m.Description)
	res.Preamble = strings.TrimSpace(m.Preamble)
	res.SourceURL = strings.TrimSpace(m.SourceURL)
	res.PlayedFrom = e.date("playedFrom", m.PlayedFrom)
	res.PlayedTo = e.date("playedTo", m.PlayedTo)

	mode, ok := doctree.ParseNumberingMode(strings.TrimSpace(m.NumberingMode))
	if !ok {
		res.Warnf("unknown numberingMode %q, using %s", m.NumberingMode, mode)
	}
	res.NumberingMode = mode

	res.Tags = m.Tags
	res.PackageEditors = m.Editors
	res.SharedEditors = m.SharedEditors
	if m.SharedEditors && len(m.Editors) == 0 {
		res.Warnf("sharedEditors is set but the package lists no editors, using tour editors")
		res.SharedEditors = false
	}

	regular := 0
	for i, mt := range m.Tours {
		tour, err := e.tour(i, mt, &regular)
		if err != nil {
			return err
		}
		res.Tours = append(res.Tours, tour)
	}
	if err := e.ctx.Err(); err != nil {
		return fmt.Errorf("archive extraction cancelled: %w", err)
	}
	res.CountQuestions()
	res.UnionEditors()
	return nil
}

func (e *extraction) tour(i int, mt manifestTour, regular *int) (doctree.TourDto, error) {
	t := doctree.TourDto{
		Type:       doctree.TourRegular,
		OrderIndex: i,
		Preamble:   strings.TrimSpace(mt.Preamble),
		Comment:    strings.TrimSpace(mt.Comment),
		Editors:    mt.Editors,
	}
	switch {
	case mt.IsWarmup:
		if mt.IsShootout {
			e.res.Warnf("tour %d is marked both warmup and shootout, treating it as warmup", i+1)
		}
		t.Type, t.Number = doctree.TourWarmup, "0"
	case mt.IsShootout:
		t.Type, t.Number = doctree.TourShootout, doctree.ShootoutNumber
	default:
		*regular++
		t.Number = string(mt.Number)
		if t.Number == "" {
			t.Number = fmt.Sprint(*regular)
		}
	}

	order := 0
	if len(mt.Blocks) > 0 {
		if len(mt.Questions) > 0 {
			e.res.Warnf("tour %s has both blocks and questions, using blocks", t.Number)
		}
		for j, mb := range mt.Blocks {
			b := doctree.BlockDto{
				Name:       strings.TrimSpace(mb.Name),
				OrderIndex: j,
				Preamble:   strings.TrimSpace(mb.Preamble),
				Editors:    mb.Editors,
			}
			for _, mq := range mb.Questions {
				q, err := e.question(t.Number, mq, order)
				if err != nil {
					return t, err
				}
				b.Questions = append(b.Questions, q)
				order++
			}
			t.Blocks = append(t.Blocks, b)
		}
	} else {
		for _, mq := range mt.Questions {
			q, err := e.question(t.Number, mq, order)
			if err != nil {
				return t, err
			}
			t.Questions = append(t.Questions, q)
			order++
		}
	}
	if order == 0 {
		e.res.Warnf("tour %s has no questions", t.Number)
	}
	return t, nil
}

func (e *extraction) question(tour string, mq manifestQuestion, order int) (doctree.QuestionDto, error) {
	if err := e.ctx.Err(); err != nil {
		return doctree.QuestionDto{}, fmt.Errorf("archive extraction cancelled: %w", err)
	}
	q := doctree.QuestionDto{
		Number:           string(mq.Number),
		OrderIndex:       order,
		Text:             strings.TrimSpace(mq.Text),
		Answer:           strings.TrimSpace(mq.Answer),
		AcceptedAnswers:  string(mq.AcceptedAnswers),
		RejectedAnswers:  string(mq.RejectedAnswers),
		Comment:          strings.TrimSpace(mq.Comment),
		Source:           strings.TrimSpace(mq.Source),
		Authors:          mq.Authors,
		HostInstructions: strings.TrimSpace(mq.HostInstructions),
		HandoutText:      strings.TrimSpace(mq.HandoutText),
	}
	if q.Number == "" {
		q.Number = fmt.Sprint(order + 1)
	}
	where := fmt.Sprintf("tour %s question %s", tour, q.Number)
	if q.Text == "" {
		e.res.Warnf("%s: missing question text", where)
	}
	if q.Answer == "" {
		e.res.Warnf("%s: missing answer", where)
	}
	var err error
	if q.HandoutAssetFileName, err = e.media(where+" handout", mq.HandoutAssetFileName, mq.HandoutAssetURL); err != nil {
		return q, err
	}
	if q.CommentAssetFileName, err = e.media(where+" comment", mq.CommentAssetFileName, mq.CommentAssetURL); err != nil {
		return q, err
	}
	return q, nil
}

// media resolves one attachment slot: embedded file, then remote URL, then
// nothing. Both sources end up as a stored file name. Only cancellation is
// an error; other failures become warnings.
func (e *extraction) media(where, fileName, rawURL string) (string, error) {
	fileName, rawURL = strings.TrimSpace(fileName), strings.TrimSpace(rawURL)
	if fileName != "" {
		name, err := e.copyLocal(fileName)
		if err == nil {
			return name, nil
		}
		if rawURL == "" {
			e.res.Warnf("%s: %v", where, err)
			return "", nil
		}
		e.log.Debug("local asset unavailable, trying url", "asset", fileName, "error", err)
	}
	if rawURL == "" {
		return "", nil
	}
	name, err := e.store.Download(e.ctx, rawURL)
	if err != nil {
		if cerr := e.ctx.Err(); cerr != nil {
			return "", fmt.Errorf("archive extraction cancelled: %w", cerr)
		}
		e.res.Warnf("%s: download failed: %v", where, err)
		return "", nil
	}
	e.written = append(e.written, name)
	return name, nil
}

func (e *extraction) copyLocal(fileName string) (string, error) {
	clean := path.Clean(strings.TrimPrefix(fileName, "assets/"))
	if strings.HasPrefix(clean, "../") || clean == ".." {
		return "", fmt.Errorf("asset %s escapes the assets folder", fileName)
	}
	f, ok := e.files[e.root+"assets/"+clean]
	if !ok {
		return "", fmt.Errorf("asset %s not found in archive", fileName)
	}
	rc, err := f.Open()
	if err != nil {
		return "", fmt.Errorf("open asset %s: %w", fileName, err)
	}
	defer rc.Close()
	name, err := e.store.SaveReader(clean, rc)
	if err != nil {
		return "", fmt.Errorf("copy asset %s: %w", fileName, err)
	}
	e.written = append(e.written, name)
	return name, nil
}

func (e *extraction) date(field, s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	for _, layout := range []string{"2006-01-02", time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			return &t
		}
	}
	e.res.Warnf("invalid %s date %q", field, s)
	return nil
}
