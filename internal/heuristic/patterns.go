package heuristic

import (
	"regexp"
	"strconv"
	"strings"
)

// kind is what a single line means to the parser.
type kind int

const (
	kindBlank kind = iota
	kindText
	kindWarmup
	kindShootout
	kindTour
	kindBlock
	kindQuestion
	kindAnswer
	kindAccepted
	kindRejected
	kindComment
	kindSource
	kindAuthor
	kindEditor
	kindTags
	kindHost
	kindHandout
)

// classification is the result of matching one line.
type classification struct {
	kind   kind
	number int    // tour or question number
	value  string // label value, question text, block name
	host   string // host instruction, standalone or inline before question text
	rest   string // text following a standalone host instruction
}

// labelSuffix accepts "Label", "Label: value" and "Label . value".
const labelSuffix = `(?:\s*[:.]\s*(.*)|\s*)$`

func label(words string) *regexp.Regexp {
	return regexp.MustCompile(`(?i)^\s*(?:` + words + `)` + labelSuffix)
}

// tourPatterns are tried first. The dashed variants cover "— Тур 2 —".
var (
	warmupRe   = regexp.MustCompile(`(?i)^[-–—\s]*(?:розминка|разминка|warm-?up)[-–—.:\s]*(?:\(.*\))?$`)
	shootoutRe = regexp.MustCompile(`(?i)^[-–—\s]*(?:перестрілка|перестрелка|shoot-?out)[-–—.:\s]*(?:\(.*\))?$`)
	tourRe     = regexp.MustCompile(`(?i)^[-–—\s]*(?:тур|tour)\s*(?:№\s*)?(\d{1,3})[-–—.:\s]*(.*?)[-–—\s]*$`)
	tourSuffRe = regexp.MustCompile(`(?i)^[-–—\s]*(\d{1,3})\s*(?:-?(?:й|ий|th|st|nd|rd))?\s+(?:тур|tour)[-–—.:\s]*(.*?)[-–—\s]*$`)
	blockRe    = regexp.MustCompile(`(?i)^\s*(?:блок|block)\s+(\S{1,20}?)[.:]?\s*$`)
	hostRe     = regexp.MustCompile(`(?i)^\s*\[\s*(?:ведучому|ведучим|для\s+ведучого|ведущему|для\s+ведущего|host|for\s+the\s+host)\s*[:.]?\s*(.*?)\s*\]\s*(.*)$`)
	questionRe = regexp.MustCompile(`(?i)^\s*(?:(?:питання|запитання|вопрос|question)\s*№?\s*)?(\d{1,3})\s*[.):]\s*(.*)$`)
	labeledQRe = regexp.MustCompile(`(?i)^\s*(?:питання|запитання|вопрос|question)\s*№?\s*(\d{1,3})\s+(.*)$`)
	bareNumRe  = regexp.MustCompile(`^\s*(\d{1,3})\s*$`)
	editorRe   = label(`редактор(?:и|ка|ки|ы)?|редакція|редакция|editors?`)
	tagsRe     = label(`теги|тэги|tags`)
	answerRe   = label(`відповідь|відп|ответ|answer`)
	rejectedRe = label(`незалік|не\s*залік|не\s+зараховується|не\s+зараховувати|незач[её]т|не\s+засчитывается|не\s+принимается|rejected|reject`)
	acceptedRe = label(`залік|зараховується|зараховувати|зач[её]т|засчитывается|принимается|accepted|accept`)
	commentRe  = label(`коментар(?:і)?|комментари[йи]|comments?`)
	sourceRe   = label(`джерел[оа]|источник(?:и)?|sources?`)
	authorRe   = label(`автор(?:и|ка|ки|ы)?(?:\s+питання|\s+вопроса)?|authors?`)
	handoutRe  = label(`роздатка|роздатковий\s+матеріал|роздатковий|раздатка|раздаточный\s+материал|handout`)
)

// labelPatterns is the ordered table of field labels. Rejected alternates
// come before accepted ones so "не зараховується" is never read as a pass.
var labelPatterns = []struct {
	kind kind
	re   *regexp.Regexp
}{
	{kindAnswer, answerRe},
	{kindRejected, rejectedRe},
	{kindAccepted, acceptedRe},
	{kindComment, commentRe},
	{kindSource, sourceRe},
	{kindAuthor, authorRe},
	{kindEditor, editorRe},
	{kindTags, tagsRe},
	{kindHandout, handoutRe},
}

// expectation tells classify which question numbers may open a question.
type expectation struct {
	inTour bool
	next   int // next sequential number within the tour
	global int // package-wide continuation allowed for a tour's first question; 0 if none
}

func (e expectation) accepts(n int) bool {
	if !e.inTour {
		return false
	}
	return n == e.next || (e.global > 0 && n == e.global)
}

// classify maps one line to a classification. It holds no state: the
// expectation carries everything it needs to know about the parser.
func classify(line string, exp expectation) classification {
	if strings.TrimSpace(line) == "" {
		return classification{kind: kindBlank}
	}
	if warmupRe.MatchString(line) {
		return classification{kind: kindWarmup}
	}
	if shootoutRe.MatchString(line) {
		return classification{kind: kindShootout}
	}
	if m := tourRe.FindStringSubmatch(line); m != nil {
		n, _ := strconv.Atoi(m[1])
		return classification{kind: kindTour, number: n, value: strings.TrimSpace(m[2])}
	}
	if m := tourSuffRe.FindStringSubmatch(line); m != nil {
		n, _ := strconv.Atoi(m[1])
		return classification{kind: kindTour, number: n, value: strings.TrimSpace(m[2])}
	}
	if m := blockRe.FindStringSubmatch(line); m != nil {
		return classification{kind: kindBlock, value: m[1]}
	}
	if c, ok := classifyQuestion(line, exp); ok {
		return c
	}
	if m := hostRe.FindStringSubmatch(line); m != nil {
		return classification{kind: kindHost, host: strings.TrimSpace(m[1]), rest: strings.TrimSpace(m[2])}
	}
	for _, p := range labelPatterns {
		if m := p.re.FindStringSubmatch(line); m != nil {
			return classification{kind: p.kind, value: strings.TrimSpace(m[1])}
		}
	}
	return classification{kind: kindText, value: strings.TrimSpace(line)}
}

func classifyQuestion(line string, exp expectation) (classification, bool) {
	var m []string
	for _, re := range []*regexp.Regexp{questionRe, labeledQRe, bareNumRe} {
		if m = re.FindStringSubmatch(line); m != nil {
			break
		}
	}
	if m == nil {
		return classification{}, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil || !exp.accepts(n) {
		return classification{}, false
	}
	c := classification{kind: kindQuestion, number: n}
	if len(m) > 2 {
		c.value = strings.TrimSpace(m[2])
	}
	if hm := hostRe.FindStringSubmatch(c.value); hm != nil {
		c.host = strings.TrimSpace(hm[1])
		c.value = strings.TrimSpace(hm[2])
	}
	return c, true
}
