package renumber

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"sync"

	"gorm.io/gorm"

	"github.com/dgallion1/quizpack/internal/doctree"
	"github.com/dgallion1/quizpack/internal/store"
)

// Service applies structural edits to persisted packages. Every edit loads
// the package graph inside a transaction, mutates it, runs Apply and
// flushes the ordering columns. Edits to one package are serialized; edits
// to different packages run independently.
type Service struct {
	db  *gorm.DB
	log *slog.Logger

	mu    sync.Mutex
	locks map[string]*packageLock
}

type packageLock struct {
	mu   sync.Mutex
	refs int
}

// NewService creates a Service.
func NewService(db *gorm.DB, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{db: db, log: logger, locks: make(map[string]*packageLock)}
}

// lock acquires the lock for one package and returns its release func.
func (s *Service) lock(packageID string) func() {
	s.mu.Lock()
	l, ok := s.locks[packageID]
	if !ok {
		l = &packageLock{}
		s.locks[packageID] = l
	}
	l.refs++
	s.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		s.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(s.locks, packageID)
		}
		s.mu.Unlock()
	}
}

// edit runs fn against the loaded graph of packageID and persists the
// renumbered result.
func (s *Service) edit(ctx context.Context, packageID, op string, fn func(tx *gorm.DB, pkg *store.Package) error) (*store.Package, error) {
	unlock := s.lock(packageID)
	defer unlock()

	var out *store.Package
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		pkg, err := store.LoadPackage(ctx, tx, packageID)
		if err != nil {
			return err
		}
		if err := fn(tx, pkg); err != nil {
			return err
		}
		Apply(pkg)
		if err := store.SaveOrdering(tx, pkg); err != nil {
			return err
		}
		out = pkg
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	s.log.Info("package renumbered", "op", op, "package_id", packageID, "tours", len(out.Tours), "questions", out.TotalQuestions)
	return out, nil
}

// Renumber reapplies ordering and numbering without any other change.
func (s *Service) Renumber(ctx context.Context, packageID string) (*store.Package, error) {
	return s.edit(ctx, packageID, "renumber", func(*gorm.DB, *store.Package) error { return nil })
}

// SetNumberingMode switches the package numbering policy.
func (s *Service) SetNumberingMode(ctx context.Context, packageID string, mode doctree.NumberingMode) (*store.Package, error) {
	if _, ok := doctree.ParseNumberingMode(string(mode)); !ok || mode == "" {
		return nil, fmt.Errorf("%w: unknown numbering mode %q", ErrInvalid, mode)
	}
	return s.edit(ctx, packageID, "set numbering mode", func(_ *gorm.DB, pkg *store.Package) error {
		pkg.NumberingMode = mode
		return nil
	})
}

// SetTourType changes a tour's type, demoting the previous holder.
func (s *Service) SetTourType(ctx context.Context, tourID string, typ doctree.TourType) (*store.Package, error) {
	packageID, err := s.packageOfTour(ctx, tourID)
	if err != nil {
		return nil, err
	}
	return s.edit(ctx, packageID, "set tour type", func(_ *gorm.DB, pkg *store.Package) error {
		return setTourType(pkg, tourID, typ)
	})
}

// MoveTour moves a tour to index among the package's tours. Warmup and
// shootout positions still win.
func (s *Service) MoveTour(ctx context.Context, tourID string, index int) (*store.Package, error) {
	packageID, err := s.packageOfTour(ctx, tourID)
	if err != nil {
		return nil, err
	}
	return s.edit(ctx, packageID, "move tour", func(_ *gorm.DB, pkg *store.Package) error {
		i := slices.IndexFunc(pkg.Tours, func(t *store.Tour) bool { return t.ID == tourID })
		if i < 0 {
			return fmt.Errorf("tour %s: %w", tourID, store.ErrNotFound)
		}
		pkg.Tours = moveTo(pkg.Tours, i, index)
		for j, t := range pkg.Tours {
			t.OrderIndex = j
		}
		return nil
	})
}

// AddTour appends a new empty tour of type typ.
func (s *Service) AddTour(ctx context.Context, packageID string, typ doctree.TourType, preamble string) (*store.Tour, error) {
	if typ == "" {
		typ = doctree.TourRegular
	}
	tour := &store.Tour{ID: store.NewID(), PackageID: packageID, Type: doctree.TourRegular, Preamble: preamble}
	_, err := s.edit(ctx, packageID, "add tour", func(tx *gorm.DB, pkg *store.Package) error {
		tour.OrderIndex = len(pkg.Tours)
		if err := tx.Create(tour).Error; err != nil {
			return fmt.Errorf("create tour: %w", err)
		}
		pkg.Tours = append(pkg.Tours, tour)
		return setTourType(pkg, tour.ID, typ)
	})
	if err != nil {
		return nil, err
	}
	return tour, nil
}

// DeleteTour removes a tour with its blocks and questions.
func (s *Service) DeleteTour(ctx context.Context, tourID string) (*store.Package, error) {
	packageID, err := s.packageOfTour(ctx, tourID)
	if err != nil {
		return nil, err
	}
	return s.edit(ctx, packageID, "delete tour", func(tx *gorm.DB, pkg *store.Package) error {
		i := slices.IndexFunc(pkg.Tours, func(t *store.Tour) bool { return t.ID == tourID })
		if i < 0 {
			return fmt.Errorf("tour %s: %w", tourID, store.ErrNotFound)
		}
		t := pkg.Tours[i]
		for _, q := range t.Questions {
			if err := deleteQuestionRow(tx, q); err != nil {
				return err
			}
		}
		for _, b := range t.Blocks {
			if err := tx.Select("Editors").Delete(b).Error; err != nil {
				return fmt.Errorf("delete block %s: %w", b.ID, err)
			}
		}
		if err := tx.Select("Editors").Delete(t).Error; err != nil {
			return fmt.Errorf("delete tour %s: %w", t.ID, err)
		}
		pkg.Tours = slices.Delete(pkg.Tours, i, i+1)
		return nil
	})
}

// MoveBlock moves a block to index among its tour's blocks.
func (s *Service) MoveBlock(ctx context.Context, blockID string, index int) (*store.Package, error) {
	packageID, tourID, err := s.packageOfBlock(ctx, blockID)
	if err != nil {
		return nil, err
	}
	return s.edit(ctx, packageID, "move block", func(_ *gorm.DB, pkg *store.Package) error {
		t := findTour(pkg, tourID)
		if t == nil {
			return fmt.Errorf("tour %s: %w", tourID, store.ErrNotFound)
		}
		i := slices.IndexFunc(t.Blocks, func(b *store.Block) bool { return b.ID == blockID })
		if i < 0 {
			return fmt.Errorf("block %s: %w", blockID, store.ErrNotFound)
		}
		t.Blocks = moveTo(t.Blocks, i, index)
		for j, b := range t.Blocks {
			b.OrderIndex = j
		}
		return nil
	})
}

// DeleteBlock removes a block. Its questions stay in the tour without a
// block and sort after the remaining blocks.
func (s *Service) DeleteBlock(ctx context.Context, blockID string) (*store.Package, error) {
	packageID, tourID, err := s.packageOfBlock(ctx, blockID)
	if err != nil {
		return nil, err
	}
	return s.edit(ctx, packageID, "delete block", func(tx *gorm.DB, pkg *store.Package) error {
		t := findTour(pkg, tourID)
		if t == nil {
			return fmt.Errorf("tour %s: %w", tourID, store.ErrNotFound)
		}
		i := slices.IndexFunc(t.Blocks, func(b *store.Block) bool { return b.ID == blockID })
		if i < 0 {
			return fmt.Errorf("block %s: %w", blockID, store.ErrNotFound)
		}
		for _, q := range t.Questions {
			if q.BlockID != nil && *q.BlockID == blockID {
				q.BlockID = nil
			}
		}
		if err := tx.Model(&store.Question{}).Where("block_id = ?", blockID).Update("block_id", nil).Error; err != nil {
			return fmt.Errorf("detach questions: %w", err)
		}
		if err := tx.Select("Editors").Delete(t.Blocks[i]).Error; err != nil {
			return fmt.Errorf("delete block %s: %w", blockID, err)
		}
		t.Blocks = slices.Delete(t.Blocks, i, i+1)
		return nil
	})
}

// NewQuestion holds the fields of a question added through AddQuestion.
type NewQuestion struct {
	BlockID *string
	Text    string
	Answer  string
}

// AddQuestion appends a question to the end of a tour, or to the end of a
// block when BlockID is set.
func (s *Service) AddQuestion(ctx context.Context, tourID string, in NewQuestion) (*store.Question, error) {
	packageID, err := s.packageOfTour(ctx, tourID)
	if err != nil {
		return nil, err
	}
	q := &store.Question{ID: store.NewID(), TourID: tourID, BlockID: in.BlockID, Text: in.Text, Answer: in.Answer}
	_, err = s.edit(ctx, packageID, "add question", func(tx *gorm.DB, pkg *store.Package) error {
		t := findTour(pkg, tourID)
		if t == nil {
			return fmt.Errorf("tour %s: %w", tourID, store.ErrNotFound)
		}
		if in.BlockID != nil && !hasBlock(t, *in.BlockID) {
			return fmt.Errorf("%w: block %s is not in tour %s", ErrInvalid, *in.BlockID, tourID)
		}
		q.OrderIndex = len(t.Questions)
		q.Number = strconv.Itoa(len(t.Questions) + 1)
		if err := tx.Create(q).Error; err != nil {
			return fmt.Errorf("create question: %w", err)
		}
		t.Questions = append(t.Questions, q)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return q, nil
}

// QuestionTarget is the destination of MoveQuestion. Index is the position
// inside the destination block, or among block-less questions when BlockID
// is nil.
type QuestionTarget struct {
	TourID  string
	BlockID *string
	Index   int
}

// MoveQuestion moves a question within its package.
func (s *Service) MoveQuestion(ctx context.Context, questionID string, to QuestionTarget) (*store.Package, error) {
	var q store.Question
	if err := s.db.WithContext(ctx).Select("id", "tour_id").Take(&q, "id = ?", questionID).Error; err != nil {
		return nil, notFound("question", questionID, err)
	}
	packageID, err := s.packageOfTour(ctx, q.TourID)
	if err != nil {
		return nil, err
	}
	if to.TourID == "" {
		to.TourID = q.TourID
	}
	return s.edit(ctx, packageID, "move question", func(_ *gorm.DB, pkg *store.Package) error {
		src, dst := findTour(pkg, q.TourID), findTour(pkg, to.TourID)
		if src == nil {
			return fmt.Errorf("tour %s: %w", q.TourID, store.ErrNotFound)
		}
		if dst == nil {
			return fmt.Errorf("%w: tour %s is not in package %s", ErrInvalid, to.TourID, packageID)
		}
		if to.BlockID != nil && !hasBlock(dst, *to.BlockID) {
			return fmt.Errorf("%w: block %s is not in tour %s", ErrInvalid, *to.BlockID, dst.ID)
		}
		i := slices.IndexFunc(src.Questions, func(x *store.Question) bool { return x.ID == questionID })
		if i < 0 {
			return fmt.Errorf("question %s: %w", questionID, store.ErrNotFound)
		}
		moved := src.Questions[i]
		src.Questions = slices.Delete(src.Questions, i, i+1)
		moved.TourID, moved.BlockID = dst.ID, to.BlockID
		insertQuestion(dst, moved, to.Index)
		return nil
	})
}

// insertQuestion places q at position index among the questions of dst
// that share its block, then rewrites dst's OrderIndex values.
func insertQuestion(dst *store.Tour, q *store.Question, index int) {
	orderQuestions(dst)
	out := make([]*store.Question, 0, len(dst.Questions)+1)
	pos, inserted := 0, false
	for _, x := range dst.Questions {
		if sameBlock(x.BlockID, q.BlockID) {
			if pos == max(index, 0) {
				out = append(out, q)
				inserted = true
			}
			pos++
		}
		out = append(out, x)
	}
	if !inserted {
		out = append(out, q)
	}
	for i, x := range out {
		x.OrderIndex = i
	}
	dst.Questions = out
}

// DeleteQuestion removes a question.
func (s *Service) DeleteQuestion(ctx context.Context, questionID string) (*store.Package, error) {
	var q store.Question
	if err := s.db.WithContext(ctx).Select("id", "tour_id").Take(&q, "id = ?", questionID).Error; err != nil {
		return nil, notFound("question", questionID, err)
	}
	packageID, err := s.packageOfTour(ctx, q.TourID)
	if err != nil {
		return nil, err
	}
	return s.edit(ctx, packageID, "delete question", func(tx *gorm.DB, pkg *store.Package) error {
		t := findTour(pkg, q.TourID)
		if t == nil {
			return fmt.Errorf("tour %s: %w", q.TourID, store.ErrNotFound)
		}
		i := slices.IndexFunc(t.Questions, func(x *store.Question) bool { return x.ID == questionID })
		if i < 0 {
			return fmt.Errorf("question %s: %w", questionID, store.ErrNotFound)
		}
		if err := deleteQuestionRow(tx, t.Questions[i]); err != nil {
			return err
		}
		t.Questions = slices.Delete(t.Questions, i, i+1)
		return nil
	})
}

func deleteQuestionRow(tx *gorm.DB, q *store.Question) error {
	if err := tx.Select("Authors").Delete(q).Error; err != nil {
		return fmt.Errorf("delete question %s: %w", q.ID, err)
	}
	return nil
}

func (s *Service) packageOfTour(ctx context.Context, tourID string) (string, error) {
	var t store.Tour
	if err := s.db.WithContext(ctx).Select("id", "package_id").Take(&t, "id = ?", tourID).Error; err != nil {
		return "", notFound("tour", tourID, err)
	}
	return t.PackageID, nil
}

func (s *Service) packageOfBlock(ctx context.Context, blockID string) (packageID, tourID string, err error) {
	var b store.Block
	if err := s.db.WithContext(ctx).Select("id", "tour_id").Take(&b, "id = ?", blockID).Error; err != nil {
		return "", "", notFound("block", blockID, err)
	}
	packageID, err = s.packageOfTour(ctx, b.TourID)
	return packageID, b.TourID, err
}

func notFound(kind, id string, err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%s %s: %w", kind, id, store.ErrNotFound)
	}
	return fmt.Errorf("lookup %s %s: %w", kind, id, err)
}

func hasBlock(t *store.Tour, blockID string) bool {
	return slices.ContainsFunc(t.Blocks, func(b *store.Block) bool { return b.ID == blockID })
}

func sameBlock(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
