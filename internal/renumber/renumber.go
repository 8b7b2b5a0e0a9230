// Package renumber keeps tour order, question order and display numbers of
// a persisted package consistent. Apply is a pure function over the
// in-memory graph; Service wraps it with loading, locking and the flush.
package renumber

import (
	"errors"
	"fmt"
	"slices"
	"strconv"

	"github.com/dgallion1/quizpack/internal/doctree"
	"github.com/dgallion1/quizpack/internal/store"
)

// ErrInvalid is returned for edits that would break the package structure.
var ErrInvalid = errors.New("invalid edit")

// Apply reorders and renumbers pkg in place:
//
//   - the first warmup tour moves to the front and the first shootout tour
//     to the back; any other warmup or shootout is demoted to regular,
//   - tours are numbered "0" (warmup), 1..n (regular) and ShootoutNumber,
//   - questions are ordered by block, then by position inside the block,
//     with block-less questions last, and OrderIndex becomes dense,
//   - question numbers follow pkg.NumberingMode; warmup questions always
//     count from 1 and Manual leaves numbers alone.
//
// Apply is idempotent.
func Apply(pkg *store.Package) {
	sortByOrder(pkg.Tours, func(t *store.Tour) int { return t.OrderIndex })

	var warmup, shootout *store.Tour
	regular := make([]*store.Tour, 0, len(pkg.Tours))
	for _, t := range pkg.Tours {
		switch {
		case t.Type == doctree.TourWarmup && warmup == nil:
			warmup = t
			continue
		case t.Type == doctree.TourShootout && shootout == nil:
			shootout = t
			continue
		}
		t.Type = doctree.TourRegular
		regular = append(regular, t)
	}

	tours := make([]*store.Tour, 0, len(pkg.Tours))
	if warmup != nil {
		warmup.Number = "0"
		tours = append(tours, warmup)
	}
	for i, t := range regular {
		t.Number = strconv.Itoa(i + 1)
		tours = append(tours, t)
	}
	if shootout != nil {
		shootout.Number = doctree.ShootoutNumber
		tours = append(tours, shootout)
	}

	total, counter := 0, 0
	for i, t := range tours {
		t.OrderIndex = i
		orderQuestions(t)
		total += len(t.Questions)

		switch {
		case t.Type == doctree.TourWarmup, pkg.NumberingMode == doctree.NumberingPerTour:
			for j, q := range t.Questions {
				q.Number = strconv.Itoa(j + 1)
			}
		case pkg.NumberingMode == doctree.NumberingManual:
		default:
			for _, q := range t.Questions {
				counter++
				q.Number = strconv.Itoa(counter)
			}
		}
	}
	pkg.Tours = tours
	pkg.TotalQuestions = total
}

// orderQuestions sorts blocks and questions of t and rewrites their
// OrderIndex values as dense sequences.
func orderQuestions(t *store.Tour) {
	sortByOrder(t.Blocks, func(b *store.Block) int { return b.OrderIndex })
	rank := make(map[string]int, len(t.Blocks))
	for i, b := range t.Blocks {
		b.OrderIndex = i
		rank[b.ID] = i
	}
	orphan := len(t.Blocks)
	blockRank := func(q *store.Question) int {
		if q.BlockID == nil {
			return orphan
		}
		if r, ok := rank[*q.BlockID]; ok {
			return r
		}
		return orphan
	}
	slices.SortStableFunc(t.Questions, func(a, b *store.Question) int {
		if ra, rb := blockRank(a), blockRank(b); ra != rb {
			return ra - rb
		}
		return a.OrderIndex - b.OrderIndex
	})
	for i, q := range t.Questions {
		if q.BlockID != nil && blockRank(q) == orphan {
			q.BlockID = nil
		}
		q.OrderIndex = i
	}
}

func sortByOrder[T any](s []T, key func(T) int) {
	slices.SortStableFunc(s, func(a, b T) int { return key(a) - key(b) })
}

// SetTourType changes the type of one tour. Promoting a tour to warmup or
// shootout demotes the current holder of that type. The package is
// renumbered afterwards.
func SetTourType(pkg *store.Package, tourID string, typ doctree.TourType) error {
	if err := setTourType(pkg, tourID, typ); err != nil {
		return err
	}
	Apply(pkg)
	return nil
}

func setTourType(pkg *store.Package, tourID string, typ doctree.TourType) error {
	if !typ.Valid() {
		return fmt.Errorf("%w: unknown tour type %q", ErrInvalid, typ)
	}
	target := findTour(pkg, tourID)
	if target == nil {
		return fmt.Errorf("tour %s: %w", tourID, store.ErrNotFound)
	}
	if typ != doctree.TourRegular {
		for _, t := range pkg.Tours {
			if t != target && t.Type == typ {
				t.Type = doctree.TourRegular
			}
		}
	}
	target.Type = typ
	return nil
}

func findTour(pkg *store.Package, id string) *store.Tour {
	for _, t := range pkg.Tours {
		if t.ID == id {
			return t
		}
	}
	return nil
}

// moveTo removes item i from s and reinserts it at index, clamped to the
// slice bounds.
func moveTo[T any](s []T, i, index int) []T {
	item := s[i]
	s = slices.Delete(s, i, i+1)
	index = max(0, min(index, len(s)))
	return slices.Insert(s, index, item)
}
