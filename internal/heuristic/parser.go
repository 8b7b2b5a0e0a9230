// Package heuristic turns the flat block sequence of a document into a
// structured package. It is a single pass over the blocks: every line is
// classified against a static pattern table and the parser applies the
// matching transition to its open field.
package heuristic

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/dgallion1/quizpack/internal/doctree"
	"github.com/dgallion1/quizpack/internal/names"
	"golang.org/x/text/unicode/norm"
)

// Field is the field that continuation lines are appended to.
type Field int

const (
	FieldNone Field = iota
	FieldText
	FieldAnswer
	FieldAccepted
	FieldRejected
	FieldComment
	FieldSource
	FieldAuthors
	FieldHostInstructions
	FieldHandout
)

func (f Field) String() string {
	switch f {
	case FieldText:
		return "text"
	case FieldAnswer:
		return "answer"
	case FieldAccepted:
		return "accepted"
	case FieldRejected:
		return "rejected"
	case FieldComment:
		return "comment"
	case FieldSource:
		return "source"
	case FieldAuthors:
		return "authors"
	case FieldHostInstructions:
		return "host_instructions"
	case FieldHandout:
		return "handout"
	}
	return "none"
}

type section int

const (
	sectionHeader section = iota
	sectionTour
	sectionQuestion
)

var labelFields = map[kind]Field{
	kindAnswer:   FieldAnswer,
	kindAccepted: FieldAccepted,
	kindRejected: FieldRejected,
	kindComment:  FieldComment,
	kindSource:   FieldSource,
	kindHandout:  FieldHandout,
}

var spaceReplacer = strings.NewReplacer("\u00a0", " ", "\u202f", " ", "\u2007", " ", "\t", " ", "\r", "")

// parser is the mutable state of one Parse call.
type parser struct {
	res     *doctree.ParseResult
	section section
	field   Field

	tour     *doctree.TourDto
	question *doctree.QuestionDto

	lastNumber  int // number of the last question opened in the current tour
	priorGlobal int // questions in finished non-warmup tours
	sawGlobal   bool
	sawPerTour  bool
}

// Parse classifies the blocks of ext into a ParseResult. It never fails on
// bad input: a document with nothing recognizable yields zero tours and
// confidence 0. The only error is cancellation of ctx.
func Parse(ctx context.Context, ext *doctree.Extraction) (*doctree.ParseResult, error) {
	p := &parser{res: &doctree.ParseResult{}}
	if ext == nil {
		ext = &doctree.Extraction{}
	}
	for _, block := range ext.Blocks {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("parse cancelled at block %d: %w", block.Index, err)
		}
		text := norm.NFC.String(spaceReplacer.Replace(block.Text))
		for _, line := range strings.Split(text, "\n") {
			p.line(line)
		}
		if len(block.Assets) > 0 {
			p.attachAssets(block)
		}
	}
	p.finish()
	return p.res, nil
}

func (p *parser) expectation() expectation {
	e := expectation{inTour: p.tour != nil, next: p.lastNumber + 1}
	if p.tour != nil && p.tour.Type != doctree.TourWarmup && p.lastNumber == 0 && p.priorGlobal > 0 {
		e.global = p.priorGlobal + 1
	}
	return e
}

func (p *parser) line(line string) {
	c := classify(line, p.expectation())
	switch c.kind {
	case kindBlank:
	case kindWarmup:
		p.startTour(doctree.TourWarmup, "0", "")
	case kindShootout:
		p.startTour(doctree.TourShootout, doctree.ShootoutNumber, "")
	case kindTour:
		p.startTour(doctree.TourRegular, strconv.Itoa(c.number), c.value)
	case kindBlock:
		if p.tour == nil {
			p.appendText(strings.TrimSpace(line))
			return
		}
		p.startBlock(c.value)
	case kindQuestion:
		p.startQuestion(c)
	case kindHost:
		if p.question == nil {
			p.appendText(strings.TrimSpace(line))
			return
		}
		p.question.HostInstructions = join(p.question.HostInstructions, c.host)
		p.field = FieldHostInstructions
		if c.rest != "" {
			p.field = FieldText
			p.appendText(c.rest)
		}
	case kindAuthor:
		if p.question == nil {
			p.appendText(strings.TrimSpace(line))
			return
		}
		p.field = FieldAuthors
		p.appendText(c.value)
	case kindEditor:
		p.addEditors(c.value)
	case kindTags:
		if p.section != sectionHeader {
			p.appendText(strings.TrimSpace(line))
			return
		}
		p.res.Tags = append(p.res.Tags, splitTags(c.value)...)
		p.field = FieldNone
	case kindAnswer, kindAccepted, kindRejected, kindComment, kindSource, kindHandout:
		f := labelFields[c.kind]
		if p.question == nil {
			if f == FieldComment && p.tour != nil {
				p.field = FieldComment
				p.appendText(c.value)
				return
			}
			p.appendText(strings.TrimSpace(line))
			return
		}
		p.field = f
		p.appendText(c.value)
	default:
		p.appendText(c.value)
	}
}

func (p *parser) startTour(t doctree.TourType, number, preamble string) {
	p.closeTour()
	p.tour = &doctree.TourDto{Number: number, Type: t, Preamble: preamble}
	p.section = sectionTour
	p.field = FieldNone
	p.lastNumber = 0
}

// startBlock opens a block in the current tour. Questions that were
// collected before the first block move into an unnamed leading block.
func (p *parser) startBlock(name string) {
	p.closeQuestion()
	if len(p.tour.Blocks) == 0 && len(p.tour.Questions) > 0 {
		p.tour.Blocks = append(p.tour.Blocks, doctree.BlockDto{Questions: p.tour.Questions})
		p.tour.Questions = nil
	}
	p.tour.Blocks = append(p.tour.Blocks, doctree.BlockDto{Name: name})
	p.section = sectionTour
	p.field = FieldNone
}

func (p *parser) startQuestion(c classification) {
	p.closeQuestion()
	e := p.expectation()
	if e.global > 0 && p.tour.Type == doctree.TourRegular {
		if c.number == e.global {
			p.sawGlobal = true
		} else {
			p.sawPerTour = true
		}
	}
	p.lastNumber = c.number
	p.question = &doctree.QuestionDto{
		Number:           strconv.Itoa(c.number),
		Text:             c.value,
		HostInstructions: c.host,
	}
	p.section = sectionQuestion
	p.field = FieldText
}

func (p *parser) closeQuestion() {
	if p.question == nil {
		return
	}
	q := *p.question
	p.question = nil
	if n := len(p.tour.Blocks); n > 0 {
		p.tour.Blocks[n-1].Questions = append(p.tour.Blocks[n-1].Questions, q)
		return
	}
	p.tour.Questions = append(p.tour.Questions, q)
}

func (p *parser) closeTour() {
	if p.tour == nil {
		return
	}
	p.closeQuestion()
	if p.tour.Type != doctree.TourWarmup {
		p.priorGlobal += len(p.tour.AllQuestions())
	}
	p.res.Tours = append(p.res.Tours, *p.tour)
	p.tour = nil
}

func (p *parser) currentBlock() *doctree.BlockDto {
	if p.tour == nil || len(p.tour.Blocks) == 0 {
		return nil
	}
	return &p.tour.Blocks[len(p.tour.Blocks)-1]
}

// addEditors routes an editor credit to the package header, the open block
// or the current tour.
func (p *parser) addEditors(value string) {
	list := names.Normalize(value)
	switch {
	case p.section == sectionHeader:
		p.res.PackageEditors = append(p.res.PackageEditors, list...)
		p.res.SharedEditors = true
	case p.currentBlock() != nil:
		b := p.currentBlock()
		b.Editors = append(b.Editors, list...)
	default:
		p.tour.Editors = append(p.tour.Editors, list...)
	}
	if p.section != sectionQuestion {
		p.field = FieldNone
	}
}

// appendText adds s to whatever is open.
func (p *parser) appendText(s string) {
	if s == "" {
		return
	}
	switch p.section {
	case sectionHeader:
		if p.res.Title == "" {
			p.res.Title = s
			return
		}
		p.res.Preamble = join(p.res.Preamble, s)
	case sectionTour:
		if p.field == FieldComment {
			p.tour.Comment = join(p.tour.Comment, s)
			return
		}
		if b := p.currentBlock(); b != nil {
			b.Preamble = join(b.Preamble, s)
			return
		}
		p.tour.Preamble = join(p.tour.Preamble, s)
	case sectionQuestion:
		p.appendQuestion(s)
	}
}

func (p *parser) appendQuestion(s string) {
	q := p.question
	switch p.field {
	case FieldAnswer:
		q.Answer = join(q.Answer, s)
	case FieldAccepted:
		q.AcceptedAnswers = join(q.AcceptedAnswers, s)
	case FieldRejected:
		q.RejectedAnswers = join(q.RejectedAnswers, s)
	case FieldComment:
		q.Comment = join(q.Comment, s)
	case FieldSource:
		q.Source = join(q.Source, s)
	case FieldAuthors:
		q.Authors = append(q.Authors, names.Normalize(s)...)
	case FieldHostInstructions:
		q.HostInstructions = join(q.HostInstructions, s)
	case FieldHandout:
		q.HandoutText = join(q.HandoutText, s)
	default:
		q.Text = join(q.Text, s)
	}
}

// attachAssets hangs the first asset of a block on the open question: the
// comment slot while the comment is open, the handout slot otherwise.
func (p *parser) attachAssets(block doctree.DocBlock) {
	first, rest := block.Assets[0], block.Assets[1:]
	for _, a := range rest {
		p.res.Warnf("block %d: asset %s not attached, only one image per block is used", block.Index, a.FileName)
	}
	q := p.question
	if q == nil {
		p.res.Warnf("block %d: asset %s not attached to any question", block.Index, first.FileName)
		return
	}
	slots := []*string{&q.HandoutAssetFileName, &q.CommentAssetFileName}
	if p.field == FieldComment {
		slots[0], slots[1] = slots[1], slots[0]
	}
	for _, slot := range slots {
		if *slot == "" {
			*slot = first.FileName
			return
		}
	}
	p.res.Warnf("question %s: asset %s not attached, both media slots are taken", q.Number, first.FileName)
}

func (p *parser) finish() {
	p.closeTour()
	res := p.res
	if res.Title == "" {
		res.Warnf("missing package title")
	}
	complete := 0
	for i := range res.Tours {
		t := &res.Tours[i]
		t.OrderIndex = i
		order := 0
		number := func(qs []doctree.QuestionDto) {
			for j := range qs {
				qs[j].OrderIndex = order
				order++
				if qs[j].Text == "" {
					res.Warnf("tour %s question %s: missing question text", t.Number, qs[j].Number)
				}
				if qs[j].Answer == "" {
					res.Warnf("tour %s question %s: missing answer", t.Number, qs[j].Number)
				}
				if qs[j].Complete() {
					complete++
				}
			}
		}
		if len(t.Blocks) > 0 {
			for j := range t.Blocks {
				t.Blocks[j].OrderIndex = j
				number(t.Blocks[j].Questions)
			}
		} else {
			number(t.Questions)
		}
		if order == 0 {
			res.Warnf("tour %s has no questions", t.Number)
		}
	}

	res.NumberingMode = doctree.NumberingGlobal
	if p.sawPerTour && !p.sawGlobal {
		res.NumberingMode = doctree.NumberingPerTour
	}
	res.UnionEditors()
	res.Confidence = confidence(len(res.Tours), res.CountQuestions(), complete)
}

// confidence is 0 without tours, 0.1 with tours but no questions, and
// otherwise grows linearly with the share of complete questions up to 1.
func confidence(tours, total, complete int) float64 {
	switch {
	case tours == 0:
		return 0
	case total == 0:
		return 0.1
	case complete == total:
		return 1
	}
	return 0.1 + 0.9*float64(complete)/float64(total)
}

func splitTags(s string) []string {
	var out []string
	for _, t := range strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ';' || r == '#' }) {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func join(existing, s string) string {
	s = strings.TrimSpace(s)
	if existing == "" {
		return s
	}
	if s == "" {
		return existing
	}
	return existing + "\n" + s
}
