package memory

import (
	"context"
	"fmt"
	"strings"

	"github.com/and161185/lendkeeper/internal/errs"
	"github.com/and161185/lendkeeper/internal/model"
)

// BookRepo implements repository.BookRepository in memory.
type BookRepo struct{ s *Store }

// Create inserts an available book with a unique ISBN.
func (r *BookRepo) Create(_ context.Context, b *model.Book) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.isbnTaken(b.ISBN, 0) {
		return errs.ErrAlreadyExists
	}
	r.s.bookSeq++
	b.ID = r.s.bookSeq
	b.Available = true
	r.s.books[b.ID] = cloneBook(b)
	return nil
}

// Update stores descriptive fields and reports the stored availability back in b.
func (r *BookRepo) Update(_ context.Context, b *model.Book) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cur, ok := r.s.books[b.ID]
	if !ok {
		return errs.ErrNotFound
	}
	if r.isbnTaken(b.ISBN, b.ID) {
		return errs.ErrAlreadyExists
	}
	cur.Title = b.Title
	cur.Author = b.Author
	cur.ISBN = b.ISBN
	cur.PublicationDate = cloneTime(b.PublicationDate)
	cur.Genre = b.Genre
	b.Available = cur.Available
	return nil
}

// Delete removes an available book and its borrow history. It waits for any
// lending transaction that holds the book.
func (r *BookRepo) Delete(_ context.Context, id int64) error {
	unlock := r.s.bookLocks.Lock(id)
	defer unlock()

	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	b, ok := r.s.books[id]
	if !ok {
		return errs.ErrNotFound
	}
	if !b.Available {
		return fmt.Errorf("delete book %d: %w", id, errs.ErrBookUnavailable)
	}
	for bid, br := range r.s.borrows {
		if br.BookID == id {
			delete(r.s.borrows, bid)
		}
	}
	delete(r.s.books, id)
	return nil
}

// GetByID loads a book by ID.
func (r *BookRepo) GetByID(_ context.Context, id int64) (*model.Book, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	b, ok := r.s.books[id]
	if !ok {
		return nil, errs.ErrNotFound
	}
	return cloneBook(b), nil
}

// GetByISBN loads a book by ISBN.
func (r *BookRepo) GetByISBN(_ context.Context, isbn string) (*model.Book, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, b := range r.s.books {
		if b.ISBN == isbn {
			return cloneBook(b), nil
		}
	}
	return nil, errs.ErrNotFound
}

// List returns all books ordered by ID.
func (r *BookRepo) List(_ context.Context) ([]model.Book, error) {
	return r.filter(func(*model.Book) bool { return true }), nil
}

// Search matches keyword against title and author, ignoring case.
func (r *BookRepo) Search(_ context.Context, keyword string) ([]model.Book, error) {
	kw := strings.ToLower(keyword)
	return r.filter(func(b *model.Book) bool {
		return strings.Contains(strings.ToLower(b.Title), kw) || strings.Contains(strings.ToLower(b.Author), kw)
	}), nil
}

func (r *BookRepo) filter(keep func(*model.Book) bool) []model.Book {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := make([]model.Book, 0, len(r.s.books))
	for _, b := range r.s.books {
		if keep(b) {
			out = append(out, *cloneBook(b))
		}
	}
	sortByID(out, func(b model.Book) int64 { return b.ID })
	return out
}

func (r *BookRepo) isbnTaken(isbn string, except int64) bool {
	for _, b := range r.s.books {
		if b.ISBN == isbn && b.ID != except {
			return true
		}
	}
	return false
}
