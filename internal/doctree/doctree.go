// Package doctree holds the intermediate representations shared by the
// extractors, the heuristic parser and the importer.
package doctree

import (
	"errors"
	"fmt"
	"time"
)

// ErrExtraction marks fatal extraction failures: the document could not be
// opened, the archive has no manifest, or no tours were found.
var ErrExtraction = errors.New("extraction failed")

// Extractionf wraps a formatted message with ErrExtraction.
func Extractionf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrExtraction, fmt.Sprintf(format, args...))
}

// AssetReference points at an embedded image or media object.
type AssetReference struct {
	ID       string `json:"id,omitempty"` // relationship id inside the source document
	FileName string `json:"file_name"`    // key into Extraction.Assets
}

// DocBlock is one paragraph of extracted text. Index order is the only
// structural signal the parser receives.
type DocBlock struct {
	Index  int              `json:"index"`
	Text   string           `json:"text"`
	Assets []AssetReference `json:"assets,omitempty"`
}

// Extraction is the output of a block extractor.
type Extraction struct {
	Blocks []DocBlock
	Assets map[string][]byte // asset bytes keyed by AssetReference.FileName
}

// AddBlock appends a block with the next index.
func (e *Extraction) AddBlock(text string, assets ...AssetReference) {
	e.Blocks = append(e.Blocks, DocBlock{Index: len(e.Blocks), Text: text, Assets: assets})
}

// AddAsset stores data under name and returns the reference.
func (e *Extraction) AddAsset(id, name string, data []byte) AssetReference {
	if e.Assets == nil {
		e.Assets = make(map[string][]byte)
	}
	e.Assets[name] = data
	return AssetReference{ID: id, FileName: name}
}

// TourType classifies a tour.
type TourType string

const (
	TourRegular  TourType = "regular"
	TourWarmup   TourType = "warmup"
	TourShootout TourType = "shootout"
)

// ShootoutNumber is the display number of a shootout tour.
const ShootoutNumber = "П"

// Valid reports whether t is a known tour type.
func (t TourType) Valid() bool {
	switch t {
	case TourRegular, TourWarmup, TourShootout:
		return true
	}
	return false
}

// NumberingMode governs question display numbers.
type NumberingMode string

const (
	NumberingGlobal  NumberingMode = "Global"
	NumberingPerTour NumberingMode = "PerTour"
	NumberingManual  NumberingMode = "Manual"
)

// ParseNumberingMode maps a manifest value onto a mode. Empty input yields
// Global; unknown input yields Global and ok=false.
func ParseNumberingMode(s string) (NumberingMode, bool) {
	switch NumberingMode(s) {
	case "":
		return NumberingGlobal, true
	case NumberingGlobal, NumberingPerTour, NumberingManual:
		return NumberingMode(s), true
	}
	return NumberingGlobal, false
}

// ParseResult is the structured result produced by both extraction paths.
type ParseResult struct {
	Title          string        `json:"title" yaml:"title"`
	Description    string        `json:"description,omitempty" yaml:"description,omitempty"`
	Preamble       string        `json:"preamble,omitempty" yaml:"preamble,omitempty"`
	SourceURL      string        `json:"source_url,omitempty" yaml:"source_url,omitempty"`
	PlayedFrom     *time.Time    `json:"played_from,omitempty" yaml:"played_from,omitempty"`
	PlayedTo       *time.Time    `json:"played_to,omitempty" yaml:"played_to,omitempty"`
	Editors        []string      `json:"editors" yaml:"editors"`
	SharedEditors  bool          `json:"shared_editors" yaml:"shared_editors"`
	PackageEditors []string      `json:"package_editors" yaml:"package_editors"`
	Tags           []string      `json:"tags" yaml:"tags"`
	NumberingMode  NumberingMode `json:"numbering_mode" yaml:"numbering_mode"`
	Tours          []TourDto     `json:"tours" yaml:"tours"`
	TotalQuestions int           `json:"total_questions" yaml:"total_questions"`
	Confidence     float64       `json:"confidence" yaml:"confidence"`
	Warnings       []string      `json:"warnings" yaml:"warnings"`
}

// Warnf appends a formatted warning.
func (r *ParseResult) Warnf(format string, args ...any) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

// CountQuestions recomputes TotalQuestions from the tours.
func (r *ParseResult) CountQuestions() int {
	n := 0
	for i := range r.Tours {
		n += len(r.Tours[i].AllQuestions())
	}
	r.TotalQuestions = n
	return n
}

// UnionEditors sets Editors to the package, tour and block editors in that
// order, without duplicates.
func (r *ParseResult) UnionEditors() {
	seen := make(map[string]bool)
	r.Editors = nil
	add := func(list []string) {
		for _, n := range list {
			if n != "" && !seen[n] {
				seen[n] = true
				r.Editors = append(r.Editors, n)
			}
		}
	}
	add(r.PackageEditors)
	for _, t := range r.Tours {
		add(t.Editors)
		for _, b := range t.Blocks {
			add(b.Editors)
		}
	}
}

// TourDto is one tour of a ParseResult.
type TourDto struct {
	Number     string        `json:"number" yaml:"number"`
	Type       TourType      `json:"type" yaml:"type"`
	OrderIndex int           `json:"order_index" yaml:"order_index"`
	Preamble   string        `json:"preamble,omitempty" yaml:"preamble,omitempty"`
	Comment    string        `json:"comment,omitempty" yaml:"comment,omitempty"`
	Editors    []string      `json:"editors,omitempty" yaml:"editors,omitempty"`
	Questions  []QuestionDto `json:"questions,omitempty" yaml:"questions,omitempty"`
	Blocks     []BlockDto    `json:"blocks,omitempty" yaml:"blocks,omitempty"`
}

// AllQuestions returns the tour's questions in tour order. Blocks win over
// the flat list when both are present.
func (t *TourDto) AllQuestions() []QuestionDto {
	if len(t.Blocks) == 0 {
		return t.Questions
	}
	var out []QuestionDto
	for _, b := range t.Blocks {
		out = append(out, b.Questions...)
	}
	return out
}

// BlockDto is an optional grouping of questions inside a tour.
type BlockDto struct {
	Name       string        `json:"name" yaml:"name"`
	OrderIndex int           `json:"order_index" yaml:"order_index"`
	Preamble   string        `json:"preamble,omitempty" yaml:"preamble,omitempty"`
	Editors    []string      `json:"editors,omitempty" yaml:"editors,omitempty"`
	Questions  []QuestionDto `json:"questions" yaml:"questions"`
}

// QuestionDto is one question. For each media slot at most one of the
// file name and URL is set, the file name taking precedence.
type QuestionDto struct {
	Number               string   `json:"number" yaml:"number"`
	OrderIndex           int      `json:"order_index" yaml:"order_index"`
	Text                 string   `json:"text" yaml:"text"`
	Answer               string   `json:"answer" yaml:"answer"`
	AcceptedAnswers      string   `json:"accepted_answers,omitempty" yaml:"accepted_answers,omitempty"`
	RejectedAnswers      string   `json:"rejected_answers,omitempty" yaml:"rejected_answers,omitempty"`
	Comment              string   `json:"comment,omitempty" yaml:"comment,omitempty"`
	Source               string   `json:"source,omitempty" yaml:"source,omitempty"`
	Authors              []string `json:"authors,omitempty" yaml:"authors,omitempty"`
	HostInstructions     string   `json:"host_instructions,omitempty" yaml:"host_instructions,omitempty"`
	HandoutText          string   `json:"handout_text,omitempty" yaml:"handout_text,omitempty"`
	HandoutAssetFileName string   `json:"handout_asset_file_name,omitempty" yaml:"handout_asset_file_name,omitempty"`
	HandoutAssetURL      string   `json:"handout_asset_url,omitempty" yaml:"handout_asset_url,omitempty"`
	CommentAssetFileName string   `json:"comment_asset_file_name,omitempty" yaml:"comment_asset_file_name,omitempty"`
	CommentAssetURL      string   `json:"comment_asset_url,omitempty" yaml:"comment_asset_url,omitempty"`
}

// Complete reports whether the question has both text and answer.
func (q *QuestionDto) Complete() bool {
	return q.Text != "" && q.Answer != ""
}
