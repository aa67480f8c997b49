package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/and161185/lendkeeper/internal/errs"
	"github.com/and161185/lendkeeper/internal/model"
	"github.com/jackc/pgx/v5"
)

// BookRepo implements BookRepository using PostgreSQL.
type BookRepo struct{ db *DB }

// NewBookRepo constructs a book repository.
func NewBookRepo(db *DB) *BookRepo { return &BookRepo{db: db} }

const bookColumns = `id, title, author, isbn, publication_date, genre, available`

// Create inserts an available book.
func (r *BookRepo) Create(ctx context.Context, b *model.Book) error {
	const q = `
INSERT INTO books (title, author, isbn, publication_date, genre, available)
VALUES ($1, $2, $3, $4, $5, true)
RETURNING id`
	err := r.db.Pool.QueryRow(ctx, q, b.Title, b.Author, b.ISBN, b.PublicationDate, b.Genre).Scan(&b.ID)
	if isUniqueViolation(err) {
		return errs.ErrAlreadyExists
	}
	if err != nil {
		return err
	}
	b.Available = true
	return nil
}

// Update stores descriptive fields and leaves availability alone.
func (r *BookRepo) Update(ctx context.Context, b *model.Book) error {
	const q = `
UPDATE books SET title=$2, author=$3, isbn=$4, publication_date=$5, genre=$6
WHERE id=$1
RETURNING available`
	err := r.db.Pool.QueryRow(ctx, q, b.ID, b.Title, b.Author, b.ISBN, b.PublicationDate, b.Genre).Scan(&b.Available)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, pgx.ErrNoRows):
		return errs.ErrNotFound
	case isUniqueViolation(err):
		return errs.ErrAlreadyExists
	default:
		return err
	}
}

// Delete removes an available book. Its returned borrows are removed by cascade.
func (r *BookRepo) Delete(ctx context.Context, id int64) error {
	const del = `DELETE FROM books WHERE id=$1 AND available RETURNING id`
	var deleted int64
	err := r.db.Pool.QueryRow(ctx, del, id).Scan(&deleted)
	if err == nil {
		return nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return err
	}

	const exists = `SELECT EXISTS (SELECT 1 FROM books WHERE id=$1)`
	var ok bool
	if err := r.db.Pool.QueryRow(ctx, exists, id).Scan(&ok); err != nil {
		return err
	}
	if !ok {
		return errs.ErrNotFound
	}
	return fmt.Errorf("delete book %d: %w", id, errs.ErrBookUnavailable)
}

// GetByID selects a book by ID.
func (r *BookRepo) GetByID(ctx context.Context, id int64) (*model.Book, error) {
	const q = `SELECT ` + bookColumns + ` FROM books WHERE id=$1`
	return scanBook(r.db.Pool.QueryRow(ctx, q, id))
}

// GetByISBN selects a book by ISBN.
func (r *BookRepo) GetByISBN(ctx context.Context, isbn string) (*model.Book, error) {
	const q = `SELECT ` + bookColumns + ` FROM books WHERE isbn=$1`
	return scanBook(r.db.Pool.QueryRow(ctx, q, isbn))
}

// List returns the whole catalog.
func (r *BookRepo) List(ctx context.Context) ([]model.Book, error) {
	const q = `SELECT ` + bookColumns + ` FROM books ORDER BY id`
	return r.query(ctx, q)
}

// Search matches keyword against title and author, ignoring case.
func (r *BookRepo) Search(ctx context.Context, keyword string) ([]model.Book, error) {
	const q = `SELECT ` + bookColumns + ` FROM books
WHERE title ILIKE $1 OR author ILIKE $1
ORDER BY id`
	return r.query(ctx, q, likePattern(keyword))
}

func (r *BookRepo) query(ctx context.Context, q string, args ...any) ([]model.Book, error) {
	rows, err := r.db.Pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Book
	for rows.Next() {
		b, err := scanBook(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *b)
	}
	return out, rows.Err()
}

func scanBook(row pgx.Row) (*model.Book, error) {
	var b model.Book
	if err := row.Scan(&b.ID, &b.Title, &b.Author, &b.ISBN, &b.PublicationDate, &b.Genre, &b.Available); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	return &b, nil
}
