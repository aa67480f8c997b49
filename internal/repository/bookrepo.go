package repository

import (
	"context"

	"github.com/and161185/lendkeeper/internal/model"
)

// BookRepository provides catalog access. Availability is owned by LendingStore.
type BookRepository interface {
	// Create inserts an available book and fills its ID.
	Create(ctx context.Context, b *model.Book) error
	// Update stores descriptive fields. Availability is never changed here.
	Update(ctx context.Context, b *model.Book) error
	// Delete removes a book that is not lent out, along with its borrow history.
	Delete(ctx context.Context, id int64) error
	// GetByID loads a book by ID.
	GetByID(ctx context.Context, id int64) (*model.Book, error)
	// GetByISBN loads a book by ISBN.
	GetByISBN(ctx context.Context, isbn string) (*model.Book, error)
	// List returns all books ordered by ID.
	List(ctx context.Context) ([]model.Book, error)
	// Search returns books whose title or author contains keyword, case-insensitively.
	Search(ctx context.Context, keyword string) ([]model.Book, error)
}
