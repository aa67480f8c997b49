package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/and161185/lendkeeper/internal/errs"
	"github.com/and161185/lendkeeper/internal/model"
	"github.com/and161185/lendkeeper/internal/repository"
)

// BookInput carries the descriptive fields of a book.
type BookInput struct {
	Title           string
	Author          string
	ISBN            string
	PublicationDate *time.Time
	Genre           string
}

func (in BookInput) book(id int64) (*model.Book, error) {
	b := &model.Book{
		ID:     id,
		Title:  strings.TrimSpace(in.Title),
		Author: strings.TrimSpace(in.Author),
		ISBN:   strings.TrimSpace(in.ISBN),
		Genre:  strings.TrimSpace(in.Genre),
	}
	if b.Title == "" || b.Author == "" || b.ISBN == "" {
		return nil, fmt.Errorf("book: title, author and isbn are required: %w", errs.ErrInvalidInput)
	}
	if in.PublicationDate != nil {
		d := model.Day(*in.PublicationDate)
		b.PublicationDate = &d
	}
	return b, nil
}

// CatalogService manages books. It never changes availability.
type CatalogService interface {
	Create(ctx context.Context, in BookInput) (model.Book, error)
	Update(ctx context.Context, id int64, in BookInput) (model.Book, error)
	Delete(ctx context.Context, id int64) error
	Get(ctx context.Context, id int64) (model.Book, error)
	List(ctx context.Context) ([]model.Book, error)
	Search(ctx context.Context, keyword string) ([]model.Book, error)
}

type CatalogServiceImpl struct {
	books repository.BookRepository
	log   *zap.Logger
}

// NewCatalogService constructs CatalogService.
func NewCatalogService(books repository.BookRepository, log *zap.Logger) *CatalogServiceImpl {
	if log == nil {
		log = zap.NewNop()
	}
	return &CatalogServiceImpl{books: books, log: log}
}

// Create adds an available book. ISBNs are unique.
func (s *CatalogServiceImpl) Create(ctx context.Context, in BookInput) (model.Book, error) {
	b, err := in.book(0)
	if err != nil {
		return model.Book{}, err
	}
	if err := s.books.Create(ctx, b); err != nil {
		return model.Book{}, fmt.Errorf("create book isbn %s: %w", b.ISBN, err)
	}
	s.log.Info("book created", zap.Int64("book_id", b.ID), zap.String("isbn", b.ISBN))
	return *b, nil
}

// Update replaces the descriptive fields and returns the stored book.
func (s *CatalogServiceImpl) Update(ctx context.Context, id int64, in BookInput) (model.Book, error) {
	if id <= 0 {
		return model.Book{}, fmt.Errorf("book id %d: %w", id, errs.ErrInvalidInput)
	}
	b, err := in.book(id)
	if err != nil {
		return model.Book{}, err
	}
	if err := s.books.Update(ctx, b); err != nil {
		return model.Book{}, fmt.Errorf("update book %d: %w", id, err)
	}
	s.log.Info("book updated", zap.Int64("book_id", id))
	return *b, nil
}

// Delete removes a book that is on the shelf, with its borrow history.
func (s *CatalogServiceImpl) Delete(ctx context.Context, id int64) error {
	if id <= 0 {
		return fmt.Errorf("book id %d: %w", id, errs.ErrInvalidInput)
	}
	if err := s.books.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete book %d: %w", id, err)
	}
	s.log.Info("book deleted", zap.Int64("book_id", id))
	return nil
}

func (s *CatalogServiceImpl) Get(ctx context.Context, id int64) (model.Book, error) {
	if id <= 0 {
		return model.Book{}, fmt.Errorf("book id %d: %w", id, errs.ErrInvalidInput)
	}
	b, err := s.books.GetByID(ctx, id)
	if err != nil {
		return model.Book{}, fmt.Errorf("book %d: %w", id, err)
	}
	return *b, nil
}

func (s *CatalogServiceImpl) List(ctx context.Context) ([]model.Book, error) {
	return s.books.List(ctx)
}

// Search matches title or author. An empty keyword lists everything.
func (s *CatalogServiceImpl) Search(ctx context.Context, keyword string) ([]model.Book, error) {
	kw := strings.TrimSpace(keyword)
	if kw == "" {
		return s.books.List(ctx)
	}
	return s.books.Search(ctx, kw)
}
