package repository

import (
	"context"
	"time"

	"github.com/and161185/lendkeeper/internal/model"
)

// BorrowRepository provides read access to borrow records.
type BorrowRepository interface {
	// GetRecord loads a single borrow view.
	GetRecord(ctx context.Context, id int64) (*model.BorrowRecord, error)
	// ListAll returns every borrow ordered by ID.
	ListAll(ctx context.Context) ([]model.BorrowRecord, error)
	// ListByUser returns the borrows of one user ordered by ID.
	ListByUser(ctx context.Context, userID int64) ([]model.BorrowRecord, error)
	// ListOpenBefore returns open borrows with borrow date strictly before threshold.
	ListOpenBefore(ctx context.Context, threshold time.Time) ([]model.BorrowRecord, error)
}

// LendingStore runs lending state changes atomically.
type LendingStore interface {
	// InTx runs fn in one transaction. Any error from fn rolls everything back.
	// fn may be invoked more than once when the backend retries a transient conflict.
	InTx(ctx context.Context, fn func(tx LendingTx) error) error
}

// LendingTx is the set of row-level operations available inside InTx.
// Rows are locked borrow first, then book.
type LendingTx interface {
	// LockBook loads and locks a book until the transaction ends.
	LockBook(ctx context.Context, id int64) (*model.Book, error)
	// SetBookAvailable flips the availability flag.
	SetBookAvailable(ctx context.Context, id int64, available bool) error
	// InsertBorrow creates an open borrow and fills its ID.
	InsertBorrow(ctx context.Context, b *model.Borrow) error
	// LockBorrow loads and locks a borrow until the transaction ends.
	LockBorrow(ctx context.Context, id int64) (*model.Borrow, error)
	// MarkReturned closes a borrow on returnDate.
	MarkReturned(ctx context.Context, id int64, returnDate time.Time) error
	// DeleteBorrow removes a borrow.
	DeleteBorrow(ctx context.Context, id int64) error
}
