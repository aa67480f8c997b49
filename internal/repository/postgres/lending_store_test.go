package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/and161185/lendkeeper/internal/errs"
	"github.com/and161185/lendkeeper/internal/model"
	"github.com/and161185/lendkeeper/internal/repository"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/require"
)

var (
	txOpts     = pgx.TxOptions{IsoLevel: pgx.ReadCommitted}
	borrowCols = []string{"id", "user_id", "book_id", "borrow_date", "requested_return_date", "return_date", "returned"}
)

func newStore(t *testing.T) (*LendingStore, pgxmock.PgxPoolIface) {
	t.Helper()
	db, mock := newDB(t)
	s := NewLendingStore(db)
	s.backoff = time.Millisecond
	return s, mock
}

func TestLendingStore_Borrow_Commit(t *testing.T) {
	s, mock := newStore(t)
	defer mock.Close()
	day := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectBeginTx(txOpts)
	mock.ExpectQuery(`FROM books WHERE id=\$1 FOR UPDATE`).
		WithArgs(int64(1)).
		WillReturnRows(pgxmock.NewRows(bookCols).AddRow(int64(1), "Dune", "Herbert", "111", (*time.Time)(nil), "", true))
	mock.ExpectExec(`UPDATE books SET available=\$2 WHERE id=\$1`).
		WithArgs(int64(1), false).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectQuery(`INSERT INTO borrows \(user_id, book_id, borrow_date, requested_return_date, returned\)`).
		WithArgs(int64(9), int64(1), day, (*time.Time)(nil)).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(42)))
	mock.ExpectCommit()

	var borrowID int64
	err := s.InTx(context.Background(), func(tx repository.LendingTx) error {
		ctx := context.Background()
		b, err := tx.LockBook(ctx, 1)
		if err != nil {
			return err
		}
		if !b.Available {
			return errs.ErrBookUnavailable
		}
		if err := tx.SetBookAvailable(ctx, 1, false); err != nil {
			return err
		}
		br := model.Borrow{UserID: 9, BookID: 1, BorrowDate: day}
		if err := tx.InsertBorrow(ctx, &br); err != nil {
			return err
		}
		borrowID = br.ID
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, int64(42), borrowID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLendingStore_Rollback_OnFnError(t *testing.T) {
	s, mock := newStore(t)
	defer mock.Close()

	mock.ExpectBeginTx(txOpts)
	mock.ExpectQuery(`FROM books WHERE id=\$1 FOR UPDATE`).
		WithArgs(int64(1)).
		WillReturnRows(pgxmock.NewRows(bookCols).AddRow(int64(1), "Dune", "Herbert", "111", (*time.Time)(nil), "", false))
	mock.ExpectRollback()

	err := s.InTx(context.Background(), func(tx repository.LendingTx) error {
		b, err := tx.LockBook(context.Background(), 1)
		if err != nil {
			return err
		}
		if !b.Available {
			return errs.ErrBookUnavailable
		}
		return nil
	})
	require.ErrorIs(t, err, errs.ErrBookUnavailable)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLendingStore_RetriesSerializationFailure(t *testing.T) {
	s, mock := newStore(t)
	defer mock.Close()

	mock.ExpectBeginTx(txOpts)
	mock.ExpectExec(`UPDATE books SET available`).
		WithArgs(int64(1), true).
		WillReturnError(&pgconn.PgError{Code: "40001"})
	mock.ExpectRollback()
	mock.ExpectBeginTx(txOpts)
	mock.ExpectExec(`UPDATE books SET available`).
		WithArgs(int64(1), true).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	calls := 0
	err := s.InTx(context.Background(), func(tx repository.LendingTx) error {
		calls++
		return tx.SetBookAvailable(context.Background(), 1, true)
	})
	require.NoError(t, err)
	require.Equal(t, 2, calls)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLendingStore_DoesNotRetryOtherErrors(t *testing.T) {
	s, mock := newStore(t)
	defer mock.Close()

	boom := errors.New("boom")
	mock.ExpectBeginTx(txOpts)
	mock.ExpectRollback()

	calls := 0
	err := s.InTx(context.Background(), func(repository.LendingTx) error {
		calls++
		return boom
	})
	require.ErrorIs(t, err, boom)
	require.Equal(t, 1, calls)
}

func TestLendingStore_GivesUpAfterMaxRetries(t *testing.T) {
	s, mock := newStore(t)
	defer mock.Close()
	s.maxRetries = 1

	for i := 0; i < 2; i++ {
		mock.ExpectBeginTx(txOpts)
		mock.ExpectRollback()
	}
	deadlock := &pgconn.PgError{Code: "40P01"}
	err := s.InTx(context.Background(), func(repository.LendingTx) error { return deadlock })

	var pg *pgconn.PgError
	require.ErrorAs(t, err, &pg)
	require.Equal(t, "40P01", pg.Code)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLendingTx_ReturnAndDelete(t *testing.T) {
	s, mock := newStore(t)
	defer mock.Close()
	day := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	back := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)

	mock.ExpectBeginTx(txOpts)
	mock.ExpectQuery(`FROM borrows WHERE id=\$1 FOR UPDATE`).
		WithArgs(int64(5)).
		WillReturnRows(pgxmock.NewRows(borrowCols).AddRow(int64(5), int64(9), int64(1), day, (*time.Time)(nil), (*time.Time)(nil), false))
	mock.ExpectExec(`UPDATE borrows SET returned=true, return_date=\$2 WHERE id=\$1 AND NOT returned`).
		WithArgs(int64(5), back).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(`DELETE FROM borrows WHERE id=\$1`).
		WithArgs(int64(5)).
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectCommit()

	err := s.InTx(context.Background(), func(tx repository.LendingTx) error {
		ctx := context.Background()
		br, err := tx.LockBorrow(ctx, 5)
		if err != nil {
			return err
		}
		require.Equal(t, int64(9), br.UserID)
		require.True(t, br.Open())
		if err := tx.MarkReturned(ctx, 5, back); err != nil {
			return err
		}
		return tx.DeleteBorrow(ctx, 5)
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLendingTx_NotFound(t *testing.T) {
	s, mock := newStore(t)
	defer mock.Close()

	mock.ExpectBeginTx(txOpts)
	mock.ExpectQuery(`FROM borrows WHERE id=\$1 FOR UPDATE`).
		WithArgs(int64(404)).
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectRollback()

	err := s.InTx(context.Background(), func(tx repository.LendingTx) error {
		_, err := tx.LockBorrow(context.Background(), 404)
		return err
	})
	require.ErrorIs(t, err, errs.ErrNotFound)
}

func TestLendingTx_InsertBorrow_OpenBorrowIndex(t *testing.T) {
	s, mock := newStore(t)
	defer mock.Close()
	day := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectBeginTx(txOpts)
	mock.ExpectQuery(`INSERT INTO borrows`).
		WithArgs(int64(9), int64(1), day, (*time.Time)(nil)).
		WillReturnError(&pgconn.PgError{Code: "23505"})
	mock.ExpectRollback()

	err := s.InTx(context.Background(), func(tx repository.LendingTx) error {
		return tx.InsertBorrow(context.Background(), &model.Borrow{UserID: 9, BookID: 1, BorrowDate: day})
	})
	require.ErrorIs(t, err, errs.ErrBookUnavailable)
}
