package renumber

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"gorm.io/gorm"

	"github.com/dgallion1/quizpack/internal/doctree"
	"github.com/dgallion1/quizpack/internal/store"
)

func newService(t *testing.T) (*Service, *gorm.DB) {
	t.Helper()
	db, err := store.Open(store.Options{Driver: "sqlite", DSN: filepath.Join(t.TempDir(), "renumber.db")})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { store.Close(db) })
	return NewService(db, nil), db
}

// seed creates a Global package with two regular tours of two questions.
func seed(t *testing.T, db *gorm.DB) *store.Package {
	t.Helper()
	pkg := &store.Package{ID: store.NewID(), OwnerID: "o", Title: "p", NumberingMode: doctree.NumberingGlobal}
	for i := 0; i < 2; i++ {
		tr := &store.Tour{ID: store.NewID(), PackageID: pkg.ID, Type: doctree.TourRegular, OrderIndex: i}
		for j := 0; j < 2; j++ {
			tr.Questions = append(tr.Questions, &store.Question{ID: store.NewID(), TourID: tr.ID, OrderIndex: j, Text: "q", Answer: "a"})
		}
		pkg.Tours = append(pkg.Tours, tr)
	}
	Apply(pkg)
	if err := db.Create(pkg).Error; err != nil {
		t.Fatalf("create: %v", err)
	}
	return pkg
}

func allNumbers(pkg *store.Package) []string {
	var out []string
	for _, tr := range pkg.Tours {
		out = append(out, numbers(tr)...)
	}
	return out
}

func TestService_AddTourAndQuestions(t *testing.T) {
	svc, db := newService(t)
	ctx := context.Background()
	pkg := seed(t, db)

	warm, err := svc.AddTour(ctx, pkg.ID, doctree.TourWarmup, "розминка")
	if err != nil {
		t.Fatalf("add tour: %v", err)
	}
	if _, err := svc.AddQuestion(ctx, warm.ID, NewQuestion{Text: "w", Answer: "a"}); err != nil {
		t.Fatalf("add question: %v", err)
	}

	got, err := store.LoadPackage(ctx, db, pkg.ID)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.Tours[0].ID != warm.ID || got.Tours[0].Number != "0" {
		t.Errorf("expected warmup first with number 0, got %s %s", got.Tours[0].ID, got.Tours[0].Number)
	}
	if !equal(allNumbers(got), []string{"1", "1", "2", "3", "4"}) {
		t.Errorf("unexpected numbers %v", allNumbers(got))
	}
	if got.TotalQuestions != 5 {
		t.Errorf("expected 5 questions, got %d", got.TotalQuestions)
	}
}

func TestService_MoveAndDelete(t *testing.T) {
	svc, db := newService(t)
	ctx := context.Background()
	pkg := seed(t, db)
	first, second := pkg.Tours[0], pkg.Tours[1]

	got, err := svc.MoveTour(ctx, second.ID, 0)
	if err != nil {
		t.Fatalf("move tour: %v", err)
	}
	if got.Tours[0].ID != second.ID || got.Tours[0].Number != "1" {
		t.Errorf("expected moved tour first and numbered 1, got %+v", got.Tours[0])
	}

	moving := first.Questions[1]
	got, err = svc.MoveQuestion(ctx, moving.ID, QuestionTarget{TourID: second.ID, Index: 0})
	if err != nil {
		t.Fatalf("move question: %v", err)
	}
	if got.Tours[0].Questions[0].ID != moving.ID || len(got.Tours[0].Questions) != 3 {
		t.Errorf("expected moved question at the head of the first tour")
	}
	if !equal(allNumbers(got), []string{"1", "2", "3", "4"}) {
		t.Errorf("unexpected numbers %v", allNumbers(got))
	}

	got, err = svc.DeleteQuestion(ctx, moving.ID)
	if err != nil {
		t.Fatalf("delete question: %v", err)
	}
	if got.TotalQuestions != 3 {
		t.Errorf("expected 3 questions, got %d", got.TotalQuestions)
	}

	got, err = svc.DeleteTour(ctx, second.ID)
	if err != nil {
		t.Fatalf("delete tour: %v", err)
	}
	if len(got.Tours) != 1 || got.Tours[0].Number != "1" || got.TotalQuestions != 1 {
		t.Errorf("unexpected package after delete: %d tours, %d questions", len(got.Tours), got.TotalQuestions)
	}
	var n int64
	db.Model(&store.Question{}).Count(&n)
	if n != 1 {
		t.Errorf("expected deleted tour's questions gone, %d left", n)
	}
}

func TestService_Blocks(t *testing.T) {
	svc, db := newService(t)
	ctx := context.Background()
	pkg := seed(t, db)
	tr := pkg.Tours[1]

	blocks := []*store.Block{
		{ID: store.NewID(), TourID: tr.ID, Name: "А", OrderIndex: 0},
		{ID: store.NewID(), TourID: tr.ID, Name: "Б", OrderIndex: 1},
	}
	if err := db.Create(&blocks).Error; err != nil {
		t.Fatalf("create blocks: %v", err)
	}
	for i, q := range tr.Questions {
		db.Model(q).Update("block_id", blocks[i].ID)
	}

	got, err := svc.MoveBlock(ctx, blocks[1].ID, 0)
	if err != nil {
		t.Fatalf("move block: %v", err)
	}
	qs := got.Tours[1].Questions
	if *qs[0].BlockID != blocks[1].ID || qs[0].Number != "3" {
		t.Errorf("expected block Б question first numbered 3, got %v %s", *qs[0].BlockID, qs[0].Number)
	}

	added, err := svc.AddQuestion(ctx, tr.ID, NewQuestion{BlockID: &blocks[1].ID, Text: "new"})
	if err != nil {
		t.Fatalf("add question: %v", err)
	}
	got, err = svc.Renumber(ctx, pkg.ID)
	if err != nil {
		t.Fatalf("renumber: %v", err)
	}
	if got.Tours[1].Questions[1].ID != added.ID {
		t.Error("expected new question at the end of its block")
	}

	got, err = svc.DeleteBlock(ctx, blocks[1].ID)
	if err != nil {
		t.Fatalf("delete block: %v", err)
	}
	qs = got.Tours[1].Questions
	if len(qs) != 3 || qs[0].BlockID == nil || qs[2].BlockID != nil {
		t.Errorf("expected block questions kept without block after the remaining block")
	}

	other := store.NewID()
	if _, err := svc.AddQuestion(ctx, tr.ID, NewQuestion{BlockID: &other}); !errors.Is(err, ErrInvalid) {
		t.Errorf("expected ErrInvalid for foreign block, got %v", err)
	}
}

func TestService_NumberingModeAndType(t *testing.T) {
	svc, db := newService(t)
	ctx := context.Background()
	pkg := seed(t, db)

	got, err := svc.SetNumberingMode(ctx, pkg.ID, doctree.NumberingPerTour)
	if err != nil {
		t.Fatalf("set mode: %v", err)
	}
	if !equal(allNumbers(got), []string{"1", "2", "1", "2"}) {
		t.Errorf("unexpected per tour numbers %v", allNumbers(got))
	}
	if _, err := svc.SetNumberingMode(ctx, pkg.ID, "Roman"); !errors.Is(err, ErrInvalid) {
		t.Errorf("expected ErrInvalid, got %v", err)
	}

	got, err = svc.SetTourType(ctx, pkg.Tours[0].ID, doctree.TourShootout)
	if err != nil {
		t.Fatalf("set type: %v", err)
	}
	last := got.Tours[1]
	if last.ID != pkg.Tours[0].ID || last.Number != doctree.ShootoutNumber || last.OrderIndex != 1 {
		t.Errorf("expected shootout last, got %+v", last)
	}

	if _, err := svc.Renumber(ctx, "missing"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if _, err := svc.MoveTour(ctx, "missing", 0); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestService_ConcurrentEditsSerialize(t *testing.T) {
	svc, db := newService(t)
	ctx := context.Background()
	pkg := seed(t, db)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.AddQuestion(ctx, pkg.Tours[0].ID, NewQuestion{Text: "c"}); err != nil {
				t.Errorf("add question: %v", err)
			}
		}()
	}
	wg.Wait()

	got, err := store.LoadPackage(ctx, db, pkg.ID)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.TotalQuestions != 12 {
		t.Errorf("expected 12 questions, got %d", got.TotalQuestions)
	}
	for i, q := range got.Tours[0].Questions {
		if q.OrderIndex != i {
			t.Errorf("question %d has order index %d", i, q.OrderIndex)
		}
	}
	if len(svc.locks) != 0 {
		t.Errorf("expected package locks released, %d left", len(svc.locks))
	}
}
