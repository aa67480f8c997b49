package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/and161185/lendkeeper/internal/errs"
	"github.com/and161185/lendkeeper/internal/model"
	"github.com/and161185/lendkeeper/internal/repository"
	"github.com/jackc/pgx/v5"
	"github.com/sethvargo/go-retry"
)

// LendingStore implements repository.LendingStore on PostgreSQL row locks.
type LendingStore struct {
	db         *DB
	maxRetries uint64
	backoff    time.Duration
}

// NewLendingStore constructs a lending store that retries serialization failures and deadlocks.
func NewLendingStore(db *DB) *LendingStore {
	return &LendingStore{db: db, maxRetries: 3, backoff: 20 * time.Millisecond}
}

// InTx runs fn in a transaction and retries it on transient conflicts.
func (s *LendingStore) InTx(ctx context.Context, fn func(tx repository.LendingTx) error) error {
	b := retry.WithMaxRetries(s.maxRetries, retry.NewExponential(s.backoff))
	return retry.Do(ctx, b, func(ctx context.Context) error {
		err := s.runTx(ctx, fn)
		if isRetryable(err) {
			return retry.RetryableError(err)
		}
		return err
	})
}

func (s *LendingStore) runTx(ctx context.Context, fn func(tx repository.LendingTx) error) (err error) {
	tx, err := s.db.Pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
			return
		}
		if e := tx.Commit(ctx); e != nil {
			err = e
		}
	}()
	return fn(&lendingTx{tx: tx})
}

type lendingTx struct{ tx pgx.Tx }

var _ repository.LendingTx = (*lendingTx)(nil)

func (t *lendingTx) LockBook(ctx context.Context, id int64) (*model.Book, error) {
	const q = `SELECT ` + bookColumns + ` FROM books WHERE id=$1 FOR UPDATE`
	return scanBook(t.tx.QueryRow(ctx, q, id))
}

func (t *lendingTx) SetBookAvailable(ctx context.Context, id int64, available bool) error {
	const q = `UPDATE books SET available=$2 WHERE id=$1`
	tag, err := t.tx.Exec(ctx, q, id, available)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}

func (t *lendingTx) InsertBorrow(ctx context.Context, b *model.Borrow) error {
	const q = `
INSERT INTO borrows (user_id, book_id, borrow_date, requested_return_date, returned)
VALUES ($1, $2, $3, $4, false)
RETURNING id`
	err := t.tx.QueryRow(ctx, q, b.UserID, b.BookID, b.BorrowDate, b.RequestedReturnDate).Scan(&b.ID)
	if isUniqueViolation(err) {
		// partial unique index on open borrows per book
		return fmt.Errorf("insert borrow: %w", errs.ErrBookUnavailable)
	}
	return err
}

func (t *lendingTx) LockBorrow(ctx context.Context, id int64) (*model.Borrow, error) {
	const q = `
SELECT id, user_id, book_id, borrow_date, requested_return_date, return_date, returned
FROM borrows WHERE id=$1 FOR UPDATE`
	var b model.Borrow
	err := t.tx.QueryRow(ctx, q, id).Scan(&b.ID, &b.UserID, &b.BookID, &b.BorrowDate,
		&b.RequestedReturnDate, &b.ReturnDate, &b.Returned)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	return &b, nil
}

func (t *lendingTx) MarkReturned(ctx context.Context, id int64, returnDate time.Time) error {
	const q = `UPDATE borrows SET returned=true, return_date=$2 WHERE id=$1 AND NOT returned`
	tag, err := t.tx.Exec(ctx, q, id, returnDate)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrAlreadyReturned
	}
	return nil
}

func (t *lendingTx) DeleteBorrow(ctx context.Context, id int64) error {
	const q = `DELETE FROM borrows WHERE id=$1`
	tag, err := t.tx.Exec(ctx, q, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}
