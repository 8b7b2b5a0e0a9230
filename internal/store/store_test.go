package store

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"gorm.io/gorm"

	"github.com/dgallion1/quizpack/internal/doctree"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := Open(Options{Driver: "sqlite", DSN: filepath.Join(t.TempDir(), "quizpack.db")})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { Close(db) })
	return db
}

func TestOpen_UnknownDriver(t *testing.T) {
	if _, err := Open(Options{Driver: "oracle"}); err == nil {
		t.Error("expected error for unknown driver")
	}
}

func TestGetOrCreateAuthor_Idempotent(t *testing.T) {
	db := openTestDB(t)
	a, err := GetOrCreateAuthor(db, "Іван Петренко")
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	b, err := GetOrCreateAuthor(db, "Іван Петренко")
	if err != nil {
		t.Fatalf("second: %v", err)
	}
	if a.ID != b.ID {
		t.Errorf("expected same id, got %s and %s", a.ID, b.ID)
	}
	var n int64
	db.Model(&Author{}).Count(&n)
	if n != 1 {
		t.Errorf("expected 1 author row, got %d", n)
	}
}

func TestGetOrCreate_ConcurrentInsertFallsBackToExisting(t *testing.T) {
	db := openTestDB(t)
	err := db.Transaction(func(tx *gorm.DB) error {
		var winner *Tag
		got, err := getOrCreate(tx, "name_key", "історія", func() *Tag {
			// Another writer inserts the same key between select and insert.
			winner = &Tag{ID: NewID(), Name: "Історія", NameKey: "історія"}
			if err := tx.Create(winner).Error; err != nil {
				t.Fatalf("competing insert: %v", err)
			}
			return &Tag{ID: NewID(), Name: "історія", NameKey: "історія"}
		})
		if err != nil {
			return err
		}
		if got.ID != winner.ID {
			t.Errorf("expected existing row %s, got %s", winner.ID, got.ID)
		}
		// The transaction is still usable after the rolled back savepoint.
		_, err = GetOrCreateTag(tx, "географія", "географія")
		return err
	})
	if err != nil {
		t.Fatalf("transaction: %v", err)
	}
	var n int64
	db.Model(&Tag{}).Count(&n)
	if n != 2 {
		t.Errorf("expected 2 tags, got %d", n)
	}
}

func TestGetOrCreateTag_MatchesKeyKeepsSpelling(t *testing.T) {
	db := openTestDB(t)
	first, err := GetOrCreateTag(db, "ЧГК", "чгк")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	second, err := GetOrCreateTag(db, "чгк", "чгк")
	if err != nil {
		t.Fatalf("reuse: %v", err)
	}
	if second.ID != first.ID || second.Name != "ЧГК" {
		t.Errorf("expected existing tag ЧГК, got %+v", second)
	}
}

func seedPackage(t *testing.T, db *gorm.DB) *Package {
	t.Helper()
	pkg := &Package{ID: NewID(), OwnerID: "owner", Title: "Кубок", NumberingMode: doctree.NumberingGlobal}
	if err := db.Create(pkg).Error; err != nil {
		t.Fatalf("create package: %v", err)
	}
	for i := 2; i >= 0; i-- {
		tour := &Tour{ID: NewID(), PackageID: pkg.ID, Number: fmt.Sprint(i + 1), Type: doctree.TourRegular, OrderIndex: i}
		if err := db.Create(tour).Error; err != nil {
			t.Fatalf("create tour: %v", err)
		}
		for j := 1; j >= 0; j-- {
			q := &Question{ID: NewID(), TourID: tour.ID, Number: fmt.Sprint(j + 1), OrderIndex: j, Text: "q", Answer: "a"}
			if err := db.Create(q).Error; err != nil {
				t.Fatalf("create question: %v", err)
			}
		}
	}
	return pkg
}

func TestLoadPackage_Sorted(t *testing.T) {
	db := openTestDB(t)
	pkg := seedPackage(t, db)

	got, err := LoadPackage(context.Background(), db, pkg.ID)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(got.Tours) != 3 {
		t.Fatalf("expected 3 tours, got %d", len(got.Tours))
	}
	for i, tour := range got.Tours {
		if tour.OrderIndex != i {
			t.Errorf("tour %d: order index %d", i, tour.OrderIndex)
		}
		for j, q := range tour.Questions {
			if q.OrderIndex != j {
				t.Errorf("tour %d question %d: order index %d", i, j, q.OrderIndex)
			}
		}
	}

	if _, err := LoadPackage(context.Background(), db, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestSaveOrdering(t *testing.T) {
	db := openTestDB(t)
	pkg := seedPackage(t, db)
	ctx := context.Background()

	got, err := LoadPackage(ctx, db, pkg.ID)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	got.Tours[2].Type = doctree.TourShootout
	got.Tours[2].Number = doctree.ShootoutNumber
	got.Tours[0].Questions[0].Number = "42"
	got.TotalQuestions = 6
	if err := SaveOrdering(db, got); err != nil {
		t.Fatalf("save: %v", err)
	}

	again, err := LoadPackage(ctx, db, pkg.ID)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if again.Tours[2].Type != doctree.TourShootout || again.Tours[2].Number != doctree.ShootoutNumber {
		t.Errorf("tour not saved: %+v", again.Tours[2])
	}
	if again.Tours[0].Questions[0].Number != "42" || again.TotalQuestions != 6 {
		t.Errorf("question or total not saved")
	}
}

func TestIsTransient(t *testing.T) {
	cases := map[error]bool{
		nil:                                    false,
		errors.New("database is locked"):       true,
		errors.New("SQLITE_BUSY"):              true,
		errors.New("dial: connection refused"): true,
		errors.New("syntax error"):             false,
	}
	for err, want := range cases {
		if got := IsTransient(err); got != want {
			t.Errorf("IsTransient(%v) = %v, want %v", err, got, want)
		}
	}
	if !IsDuplicateKey(fmt.Errorf("insert: %w", gorm.ErrDuplicatedKey)) {
		t.Error("expected wrapped ErrDuplicatedKey to be a duplicate")
	}
}
