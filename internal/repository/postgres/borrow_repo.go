package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/and161185/lendkeeper/internal/errs"
	"github.com/and161185/lendkeeper/internal/model"
	"github.com/jackc/pgx/v5"
)

// BorrowRepo implements BorrowRepository using PostgreSQL.
type BorrowRepo struct{ db *DB }

// NewBorrowRepo constructs a borrow repository.
func NewBorrowRepo(db *DB) *BorrowRepo { return &BorrowRepo{db: db} }

const recordSelect = `
SELECT br.id, br.book_id, u.username, b.title, br.borrow_date, br.requested_return_date, br.return_date, br.returned
FROM borrows br
JOIN users u ON u.id = br.user_id
JOIN books b ON b.id = br.book_id`

// GetRecord loads one borrow view by ID.
func (r *BorrowRepo) GetRecord(ctx context.Context, id int64) (*model.BorrowRecord, error) {
	const q = recordSelect + ` WHERE br.id=$1`
	rec, err := scanRecord(r.db.Pool.QueryRow(ctx, q, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errs.ErrNotFound
	}
	return rec, err
}

// ListAll returns every borrow.
func (r *BorrowRepo) ListAll(ctx context.Context) ([]model.BorrowRecord, error) {
	const q = recordSelect + ` ORDER BY br.id`
	return r.query(ctx, q)
}

// ListByUser returns the borrows of a single user.
func (r *BorrowRepo) ListByUser(ctx context.Context, userID int64) ([]model.BorrowRecord, error) {
	const q = recordSelect + ` WHERE br.user_id=$1 ORDER BY br.id`
	return r.query(ctx, q, userID)
}

// ListOpenBefore returns open borrows started strictly before threshold, oldest first.
func (r *BorrowRepo) ListOpenBefore(ctx context.Context, threshold time.Time) ([]model.BorrowRecord, error) {
	const q = recordSelect + ` WHERE NOT br.returned AND br.borrow_date < $1 ORDER BY br.borrow_date, br.id`
	return r.query(ctx, q, threshold)
}

func (r *BorrowRepo) query(ctx context.Context, q string, args ...any) ([]model.BorrowRecord, error) {
	rows, err := r.db.Pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.BorrowRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

func scanRecord(row pgx.Row) (*model.BorrowRecord, error) {
	var rec model.BorrowRecord
	err := row.Scan(&rec.ID, &rec.BookID, &rec.Username, &rec.BookTitle,
		&rec.BorrowDate, &rec.RequestedReturnDate, &rec.ReturnDate, &rec.Returned)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}
