package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/and161185/lendkeeper/internal/errs"
	"github.com/and161185/lendkeeper/internal/model"
	"github.com/and161185/lendkeeper/internal/repository"
)

var _ repository.LendingStore = (*Store)(nil)

// InTx runs fn with row locks held until it returns. Writes are staged and applied
// atomically at commit; an error from fn or from commit validation discards them.
func (s *Store) InTx(ctx context.Context, fn func(tx repository.LendingTx) error) error {
	tx := &memTx{s: s}
	defer tx.release()

	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return tx.commit()
}

type stagedOp struct {
	check func() error
	apply func()
}

type memTx struct {
	s       *Store
	unlocks []func()
	books   map[int64]bool
	borrows map[int64]bool
	ops     []stagedOp
}

var _ repository.LendingTx = (*memTx)(nil)

func (t *memTx) LockBook(_ context.Context, id int64) (*model.Book, error) {
	if !t.books[id] {
		t.unlocks = append(t.unlocks, t.s.bookLocks.Lock(id))
		if t.books == nil {
			t.books = map[int64]bool{}
		}
		t.books[id] = true
	}
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	b, ok := t.s.books[id]
	if !ok {
		return nil, errs.ErrNotFound
	}
	return cloneBook(b), nil
}

func (t *memTx) LockBorrow(_ context.Context, id int64) (*model.Borrow, error) {
	if !t.borrows[id] {
		t.unlocks = append(t.unlocks, t.s.borrowLocks.Lock(id))
		if t.borrows == nil {
			t.borrows = map[int64]bool{}
		}
		t.borrows[id] = true
	}
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	b, ok := t.s.borrows[id]
	if !ok {
		return nil, errs.ErrNotFound
	}
	return cloneBorrow(b), nil
}

func (t *memTx) SetBookAvailable(_ context.Context, id int64, available bool) error {
	t.stage(func() error {
		if _, ok := t.s.books[id]; !ok {
			return errs.ErrNotFound
		}
		return nil
	}, func() {
		t.s.books[id].Available = available
	})
	return nil
}

func (t *memTx) InsertBorrow(_ context.Context, b *model.Borrow) error {
	t.s.mu.Lock()
	t.s.borrowSeq++
	b.ID = t.s.borrowSeq
	t.s.mu.Unlock()

	row := cloneBorrow(b)
	row.Returned = false
	row.ReturnDate = nil
	t.stage(func() error {
		if _, ok := t.s.users[row.UserID]; !ok {
			return fmt.Errorf("borrow user %d: %w", row.UserID, errs.ErrNotFound)
		}
		if _, ok := t.s.books[row.BookID]; !ok {
			return fmt.Errorf("borrow book %d: %w", row.BookID, errs.ErrNotFound)
		}
		for _, x := range t.s.borrows {
			if x.BookID == row.BookID && x.Open() {
				return errs.ErrBookUnavailable
			}
		}
		return nil
	}, func() {
		t.s.borrows[row.ID] = row
	})
	return nil
}

func (t *memTx) MarkReturned(_ context.Context, id int64, returnDate time.Time) error {
	t.stage(func() error {
		b, ok := t.s.borrows[id]
		if !ok {
			return errs.ErrNotFound
		}
		if b.Returned {
			return errs.ErrAlreadyReturned
		}
		return nil
	}, func() {
		b := t.s.borrows[id]
		d := returnDate
		b.ReturnDate = &d
		b.Returned = true
	})
	return nil
}

func (t *memTx) DeleteBorrow(_ context.Context, id int64) error {
	t.stage(func() error {
		if _, ok := t.s.borrows[id]; !ok {
			return errs.ErrNotFound
		}
		return nil
	}, func() {
		delete(t.s.borrows, id)
	})
	return nil
}

func (t *memTx) stage(check func() error, apply func()) {
	t.ops = append(t.ops, stagedOp{check: check, apply: apply})
}

// commit validates every staged op and then applies them all under the store lock.
// Checks see the state before any op of this transaction is applied.
func (t *memTx) commit() error {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	for _, op := range t.ops {
		if err := op.check(); err != nil {
			return err
		}
	}
	for _, op := range t.ops {
		op.apply()
	}
	return nil
}

func (t *memTx) release() {
	for i := len(t.unlocks) - 1; i >= 0; i-- {
		t.unlocks[i]()
	}
	t.unlocks = nil
}
