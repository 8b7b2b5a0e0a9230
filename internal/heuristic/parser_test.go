package heuristic

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/dgallion1/quizpack/internal/doctree"
)

func blocks(lines ...string) *doctree.Extraction {
	ext := &doctree.Extraction{}
	for i, l := range lines {
		ext.Blocks = append(ext.Blocks, doctree.DocBlock{Index: i, Text: l})
	}
	return ext
}

func mustParse(t *testing.T, ext *doctree.Extraction) *doctree.ParseResult {
	t.Helper()
	res, err := Parse(context.Background(), ext)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return res
}

func hasWarning(res *doctree.ParseResult, substr string) bool {
	for _, w := range res.Warnings {
		if strings.Contains(w, substr) {
			return true
		}
	}
	return false
}

func TestParse_MinimalTour(t *testing.T) {
	res := mustParse(t, blocks("ТУР 1", "1. Питання", "Відповідь: Київ"))

	if len(res.Tours) != 1 {
		t.Fatalf("expected 1 tour, got %d", len(res.Tours))
	}
	tour := res.Tours[0]
	if tour.Number != "1" || tour.Type != doctree.TourRegular {
		t.Errorf("expected regular tour 1, got %q (%s)", tour.Number, tour.Type)
	}
	if len(tour.Questions) != 1 {
		t.Fatalf("expected 1 question, got %d", len(tour.Questions))
	}
	q := tour.Questions[0]
	if q.Number != "1" || q.Text != "Питання" || q.Answer != "Київ" {
		t.Errorf("unexpected question: %+v", q)
	}
	if res.Confidence < 0.9 {
		t.Errorf("expected confidence >= 0.9, got %f", res.Confidence)
	}
	if res.TotalQuestions != 1 {
		t.Errorf("expected 1 total question, got %d", res.TotalQuestions)
	}
	if !hasWarning(res, "missing package title") {
		t.Errorf("expected missing title warning, got %v", res.Warnings)
	}
}

func TestParse_NonSequentialNumberIsText(t *testing.T) {
	res := mustParse(t, blocks(
		"Тур 1",
		"1. Скільки?",
		"3. це не питання",
		"Відповідь: 2",
		"2. Друге",
		"Відповідь: так",
	))
	qs := res.Tours[0].Questions
	if len(qs) != 2 {
		t.Fatalf("expected 2 questions, got %d", len(qs))
	}
	if qs[0].Text != "Скільки?\n3. це не питання" {
		t.Errorf("expected continuation kept, got %q", qs[0].Text)
	}
	if qs[1].Number != "2" || qs[1].Answer != "так" {
		t.Errorf("unexpected second question: %+v", qs[1])
	}
}

func TestParse_Header(t *testing.T) {
	res := mustParse(t, blocks(
		"Кубок Весни 2024",
		"",
		"Редактори: Іван Петренко, Олена Коваль",
		"Теги: історія, географія",
		"Вступне слово",
		"Тур 1",
		"1. Питання",
		"Відповідь: так",
	))
	if res.Title != "Кубок Весни 2024" {
		t.Errorf("expected title, got %q", res.Title)
	}
	wantEditors := []string{"Іван Петренко", "Олена Коваль"}
	if !reflect.DeepEqual(res.PackageEditors, wantEditors) {
		t.Errorf("package editors = %q, want %q", res.PackageEditors, wantEditors)
	}
	if !reflect.DeepEqual(res.Editors, wantEditors) {
		t.Errorf("editors = %q, want %q", res.Editors, wantEditors)
	}
	if !res.SharedEditors {
		t.Error("expected shared editors for header credit")
	}
	if !reflect.DeepEqual(res.Tags, []string{"історія", "географія"}) {
		t.Errorf("unexpected tags %q", res.Tags)
	}
	if res.Preamble != "Вступне слово" {
		t.Errorf("expected preamble, got %q", res.Preamble)
	}
	if hasWarning(res, "missing package title") {
		t.Error("did not expect a title warning")
	}
}

func TestParse_TourPreambleAndEditors(t *testing.T) {
	res := mustParse(t, blocks(
		"Назва",
		"— Тур 2 —",
		"Редактор: Петра Шевченка",
		"Тур присвячено морю.",
		"1. Питання",
		"Відповідь: так",
	))
	tour := res.Tours[0]
	if tour.Number != "2" {
		t.Errorf("expected tour number 2, got %q", tour.Number)
	}
	if tour.Preamble != "Тур присвячено морю." {
		t.Errorf("expected tour preamble, got %q", tour.Preamble)
	}
	if len(tour.Editors) != 1 || tour.Editors[0] != "Петра Шевченка" {
		t.Errorf("expected main editor kept as written, got %q", tour.Editors)
	}
	if res.SharedEditors {
		t.Error("tour editors must not set shared editors")
	}
}

func TestParse_NumberingModeDetection(t *testing.T) {
	global := mustParse(t, blocks(
		"Тур 1", "1. A", "Відповідь: a", "2. B", "Відповідь: b",
		"Тур 2", "3. C", "Відповідь: c",
	))
	if global.NumberingMode != doctree.NumberingGlobal {
		t.Errorf("expected Global, got %s", global.NumberingMode)
	}
	if got := global.Tours[1].Questions[0].Number; got != "3" {
		t.Errorf("expected continued number 3, got %q", got)
	}

	perTour := mustParse(t, blocks(
		"Тур 1", "1. A", "Відповідь: a", "2. B", "Відповідь: b",
		"2 тур", "1. C", "Відповідь: c",
	))
	if perTour.NumberingMode != doctree.NumberingPerTour {
		t.Errorf("expected PerTour, got %s", perTour.NumberingMode)
	}
	if len(perTour.Tours) != 2 || perTour.Tours[1].Number != "2" {
		t.Fatalf("expected second tour numbered 2, got %+v", perTour.Tours)
	}
}

func TestParse_BareNumberTakesNextBlock(t *testing.T) {
	res := mustParse(t, blocks("Тур 1", "1", "", "Текст питання", "Відповідь: так"))
	q := res.Tours[0].Questions[0]
	if q.Text != "Текст питання" {
		t.Errorf("expected text from following block, got %q", q.Text)
	}
}

func TestParse_WarmupAndShootout(t *testing.T) {
	res := mustParse(t, blocks(
		"Розминка",
		"1. W", "Відповідь: w",
		"Тур 1",
		"1. A", "Відповідь: a",
		"Перестрілка",
		"1. S", "Відповідь: s",
	))
	if len(res.Tours) != 3 {
		t.Fatalf("expected 3 tours, got %d", len(res.Tours))
	}
	want := []struct {
		number string
		typ    doctree.TourType
	}{
		{"0", doctree.TourWarmup},
		{"1", doctree.TourRegular},
		{doctree.ShootoutNumber, doctree.TourShootout},
	}
	for i, w := range want {
		if res.Tours[i].Number != w.number || res.Tours[i].Type != w.typ {
			t.Errorf("tour[%d]: expected %q/%s, got %q/%s", i, w.number, w.typ, res.Tours[i].Number, res.Tours[i].Type)
		}
		if res.Tours[i].OrderIndex != i {
			t.Errorf("tour[%d]: expected order index %d, got %d", i, i, res.Tours[i].OrderIndex)
		}
	}
	if res.NumberingMode != doctree.NumberingGlobal {
		t.Errorf("shootout restart must not switch mode, got %s", res.NumberingMode)
	}
}

func TestParse_QuestionFields(t *testing.T) {
	res := mustParse(t, blocks(
		"Тур 1",
		"1. [Ведучому: читати повільно] Текст",
		"другий рядок",
		"Відповідь: Київ",
		"Залік: Київ-місто",
		"Незалік: Львів",
		"Коментар: столиця",
		"Джерело: https://uk.wikipedia.org/wiki/Київ",
		"Автор: Іван Петренко в редакції Станіслава Мерляна",
	))
	q := res.Tours[0].Questions[0]
	if q.HostInstructions != "читати повільно" {
		t.Errorf("host instructions = %q", q.HostInstructions)
	}
	if q.Text != "Текст\nдругий рядок" {
		t.Errorf("text = %q", q.Text)
	}
	if q.AcceptedAnswers != "Київ-місто" {
		t.Errorf("accepted = %q", q.AcceptedAnswers)
	}
	if q.RejectedAnswers != "Львів" {
		t.Errorf("rejected = %q", q.RejectedAnswers)
	}
	if q.Comment != "столиця" {
		t.Errorf("comment = %q", q.Comment)
	}
	if q.Source != "https://uk.wikipedia.org/wiki/Київ" {
		t.Errorf("source = %q", q.Source)
	}
	wantAuthors := []string{"Іван Петренко", "Станіслав Мерлян"}
	if !reflect.DeepEqual(q.Authors, wantAuthors) {
		t.Errorf("authors = %q, want %q", q.Authors, wantAuthors)
	}
}

func TestParse_SoftBreaksSplitLines(t *testing.T) {
	res := mustParse(t, blocks("Тур 1", "1. Питання\nВідповідь: Київ"))
	q := res.Tours[0].Questions[0]
	if q.Text != "Питання" || q.Answer != "Київ" {
		t.Errorf("unexpected question %+v", q)
	}
}

func TestParse_Assets(t *testing.T) {
	ext := blocks("Тур 1", "1. Подивіться на фото", "Відповідь: кіт", "Коментар: ось оригінал")
	ext.Blocks[0].Assets = []doctree.AssetReference{{ID: "rId4", FileName: "stray.png"}}
	ext.Blocks[1].Assets = []doctree.AssetReference{{ID: "rId5", FileName: "handout.png"}}
	ext.Blocks[3].Assets = []doctree.AssetReference{{ID: "rId6", FileName: "comment.png"}}

	res := mustParse(t, ext)
	q := res.Tours[0].Questions[0]
	if q.HandoutAssetFileName != "handout.png" {
		t.Errorf("handout asset = %q", q.HandoutAssetFileName)
	}
	if q.CommentAssetFileName != "comment.png" {
		t.Errorf("comment asset = %q", q.CommentAssetFileName)
	}
	if !hasWarning(res, "stray.png") {
		t.Errorf("expected warning for unattached asset, got %v", res.Warnings)
	}
}

func TestParse_Blocks(t *testing.T) {
	res := mustParse(t, blocks(
		"Тур 1",
		"1. A", "Відповідь: a",
		"Блок Б",
		"Редактор: Олена Коваль",
		"2. B", "Відповідь: b",
		"3. C", "Відповідь: c",
	))
	tour := res.Tours[0]
	if len(tour.Blocks) != 2 {
		t.Fatalf("expected 2 blocks, got %d", len(tour.Blocks))
	}
	if tour.Blocks[0].Name != "" || len(tour.Blocks[0].Questions) != 1 {
		t.Errorf("expected leading unnamed block with 1 question, got %+v", tour.Blocks[0])
	}
	b := tour.Blocks[1]
	if b.Name != "Б" || b.OrderIndex != 1 || len(b.Questions) != 2 {
		t.Errorf("unexpected second block %+v", b)
	}
	if len(b.Editors) != 1 || b.Editors[0] != "Олена Коваль" {
		t.Errorf("expected block editor, got %q", b.Editors)
	}
	var order []int
	for _, q := range tour.AllQuestions() {
		order = append(order, q.OrderIndex)
	}
	if !reflect.DeepEqual(order, []int{0, 1, 2}) {
		t.Errorf("expected tour-wide order [0 1 2], got %v", order)
	}
	if len(tour.Questions) != 0 {
		t.Errorf("expected flat list emptied, got %d", len(tour.Questions))
	}
}

func TestParse_ConfidenceDecreases(t *testing.T) {
	full := mustParse(t, blocks("Тур 1", "1. A", "Відповідь: a", "2. B", "Відповідь: b"))
	oneMissing := mustParse(t, blocks("Тур 1", "1. A", "Відповідь: a", "2. B"))
	bothMissing := mustParse(t, blocks("Тур 1", "1. A", "2. B"))

	if full.Confidence != 1.0 {
		t.Errorf("expected 1.0, got %f", full.Confidence)
	}
	if !(full.Confidence > oneMissing.Confidence && oneMissing.Confidence > bothMissing.Confidence) {
		t.Errorf("expected strictly decreasing confidence: %f, %f, %f",
			full.Confidence, oneMissing.Confidence, bothMissing.Confidence)
	}
	if bothMissing.Confidence <= 0 {
		t.Errorf("expected positive confidence with tours, got %f", bothMissing.Confidence)
	}
	if !hasWarning(oneMissing, "question 2: missing answer") {
		t.Errorf("expected missing answer warning, got %v", oneMissing.Warnings)
	}
}

func TestParse_NothingRecognizable(t *testing.T) {
	res := mustParse(t, blocks("Просто текст", "ще трохи тексту"))
	if len(res.Tours) != 0 || res.Confidence != 0 {
		t.Errorf("expected zero tours and confidence 0, got %d tours, %f", len(res.Tours), res.Confidence)
	}

	empty := mustParse(t, blocks("Назва", "Тур 1"))
	if empty.Confidence != 0.1 {
		t.Errorf("expected 0.1 for tours without questions, got %f", empty.Confidence)
	}
	if !hasWarning(empty, "tour 1 has no questions") {
		t.Errorf("expected empty tour warning, got %v", empty.Warnings)
	}
}

func TestParse_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Parse(ctx, blocks("Тур 1"))
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestClassify_Labels(t *testing.T) {
	inTour := expectation{inTour: true, next: 1}
	cases := []struct {
		line  string
		kind  kind
		value string
	}{
		{"Відповідь: Київ", kindAnswer, "Київ"},
		{"  ОТВЕТ :  Москва ", kindAnswer, "Москва"},
		{"Answer: Paris", kindAnswer, "Paris"},
		{"Не зараховується: Львів", kindRejected, "Львів"},
		{"Залік: Київ-місто", kindAccepted, "Київ-місто"},
		{"Зачёт: Питер", kindAccepted, "Питер"},
		{"Коментар:", kindComment, ""},
		{"Источник: книга", kindSource, "книга"},
		{"Автори: А, Б", kindAuthor, "А, Б"},
		{"Роздатка: фото", kindHandout, "фото"},
		{"Answer the phone", kindText, "Answer the phone"},
		{"5. п'ятий пункт", kindText, "5. п'ятий пункт"},
		{"Блок 2", kindBlock, "2"},
		{"Warm-up", kindWarmup, ""},
		{"Перестрілка", kindShootout, ""},
	}
	for _, tc := range cases {
		c := classify(tc.line, inTour)
		if c.kind != tc.kind || c.value != tc.value {
			t.Errorf("classify(%q) = %d/%q, want %d/%q", tc.line, c.kind, c.value, tc.kind, tc.value)
		}
	}
}

func TestClassify_QuestionNeedsTour(t *testing.T) {
	if c := classify("1. Питання", expectation{}); c.kind == kindQuestion {
		t.Error("question outside a tour must not be recognized")
	}
	c := classify("Питання 1 Текст", expectation{inTour: true, next: 1})
	if c.kind != kindQuestion || c.value != "Текст" {
		t.Errorf("expected labeled question, got %d/%q", c.kind, c.value)
	}
}
