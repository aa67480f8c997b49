package memory

import (
	"context"
	"slices"
	"time"

	"github.com/and161185/lendkeeper/internal/errs"
	"github.com/and161185/lendkeeper/internal/model"
)

// BorrowRepo implements repository.BorrowRepository in memory.
type BorrowRepo struct{ s *Store }

// GetRecord loads a single borrow view.
func (r *BorrowRepo) GetRecord(_ context.Context, id int64) (*model.BorrowRecord, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	b, ok := r.s.borrows[id]
	if !ok {
		return nil, errs.ErrNotFound
	}
	rec := r.s.record(b)
	return &rec, nil
}

// ListAll returns every borrow ordered by ID.
func (r *BorrowRepo) ListAll(_ context.Context) ([]model.BorrowRecord, error) {
	return r.filter(func(*model.Borrow) bool { return true }), nil
}

// ListByUser returns one user's borrows ordered by ID.
func (r *BorrowRepo) ListByUser(_ context.Context, userID int64) ([]model.BorrowRecord, error) {
	return r.filter(func(b *model.Borrow) bool { return b.UserID == userID }), nil
}

// ListOpenBefore returns open borrows with borrow date strictly before threshold.
func (r *BorrowRepo) ListOpenBefore(_ context.Context, threshold time.Time) ([]model.BorrowRecord, error) {
	out := r.filter(func(b *model.Borrow) bool { return b.Open() && b.BorrowDate.Before(threshold) })
	slices.SortStableFunc(out, func(a, b model.BorrowRecord) int { return a.BorrowDate.Compare(b.BorrowDate) })
	return out, nil
}

func (r *BorrowRepo) filter(keep func(*model.Borrow) bool) []model.BorrowRecord {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := make([]model.BorrowRecord, 0)
	for _, b := range r.s.borrows {
		if keep(b) {
			out = append(out, r.s.record(b))
		}
	}
	sortByID(out, func(rec model.BorrowRecord) int64 { return rec.ID })
	return out
}
