package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/and161185/lendkeeper/internal/errs"
	"github.com/and161185/lendkeeper/internal/model"
	"github.com/and161185/lendkeeper/internal/repository"
)

// Publisher receives availability changes after they are committed.
type Publisher interface {
	Publish(ev model.AvailabilityEvent)
}

// BorrowInput describes a borrow request.
type BorrowInput struct {
	BookID              int64
	BorrowDate          time.Time
	RequestedReturnDate *time.Time
}

// LendingService moves books between the shelf and patrons.
type LendingService interface {
	// Borrow lends an available book to username.
	Borrow(ctx context.Context, username string, in BorrowInput) (model.BorrowRecord, error)
	// Return closes a borrow owned by username, dated today.
	Return(ctx context.Context, username string, borrowID int64) (model.BorrowRecord, error)
	// DeleteBorrow removes a borrow record. An open one puts the book back on the shelf.
	DeleteBorrow(ctx context.Context, borrowID int64) error
	// ListAll returns every borrow.
	ListAll(ctx context.Context) ([]model.BorrowRecord, error)
	// ListForUser returns the borrow history of username.
	ListForUser(ctx context.Context, username string) ([]model.BorrowRecord, error)
}

// UserFinder resolves usernames.
type UserFinder interface {
	GetByUsername(ctx context.Context, username string) (*model.User, error)
}

type LendingServiceImpl struct {
	users   UserFinder
	borrows repository.BorrowRepository
	store   repository.LendingStore
	events  Publisher
	log     *zap.Logger
	now     func() time.Time
}

// LendingOption customizes LendingServiceImpl.
type LendingOption func(*LendingServiceImpl)

// WithClock replaces time.Now for return dates.
func WithClock(now func() time.Time) LendingOption {
	return func(s *LendingServiceImpl) { s.now = now }
}

// NewLendingService constructs LendingService. events may be nil.
func NewLendingService(users UserFinder, borrows repository.BorrowRepository, store repository.LendingStore,
	events Publisher, log *zap.Logger, opts ...LendingOption) *LendingServiceImpl {
	if log == nil {
		log = zap.NewNop()
	}
	s := &LendingServiceImpl{users: users, borrows: borrows, store: store, events: events, log: log, now: time.Now}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Borrow locks the book, checks it is on the shelf, marks it lent and opens a borrow, all in one transaction.
func (s *LendingServiceImpl) Borrow(ctx context.Context, username string, in BorrowInput) (model.BorrowRecord, error) {
	if in.BookID <= 0 || in.BorrowDate.IsZero() {
		return model.BorrowRecord{}, fmt.Errorf("borrow: book id and borrow date are required: %w", errs.ErrInvalidInput)
	}
	u, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		return model.BorrowRecord{}, fmt.Errorf("borrow: user %q: %w", username, err)
	}

	br := model.Borrow{UserID: u.ID, BookID: in.BookID, BorrowDate: model.Day(in.BorrowDate)}
	if in.RequestedReturnDate != nil {
		d := model.Day(*in.RequestedReturnDate)
		br.RequestedReturnDate = &d
	}

	var title string
	err = s.store.InTx(ctx, func(tx repository.LendingTx) error {
		b, err := tx.LockBook(ctx, in.BookID)
		if err != nil {
			return fmt.Errorf("book %d: %w", in.BookID, err)
		}
		if !b.Available {
			return fmt.Errorf("book %d: %w", in.BookID, errs.ErrBookUnavailable)
		}
		if err := tx.SetBookAvailable(ctx, b.ID, false); err != nil {
			return err
		}
		br.ID = 0
		if err := tx.InsertBorrow(ctx, &br); err != nil {
			return err
		}
		title = b.Title
		return nil
	})
	if err != nil {
		return model.BorrowRecord{}, fmt.Errorf("borrow: %w", err)
	}

	s.publish(in.BookID, false)
	s.log.Info("book borrowed",
		zap.Int64("borrow_id", br.ID), zap.Int64("book_id", in.BookID), zap.String("username", username))
	return model.BorrowRecord{
		ID:                  br.ID,
		BookID:              br.BookID,
		Username:            u.Username,
		BookTitle:           title,
		BorrowDate:          br.BorrowDate,
		RequestedReturnDate: br.RequestedReturnDate,
	}, nil
}

// Return closes the caller's own open borrow and puts the book back on the shelf.
func (s *LendingServiceImpl) Return(ctx context.Context, username string, borrowID int64) (model.BorrowRecord, error) {
	u, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		return model.BorrowRecord{}, fmt.Errorf("return: user %q: %w", username, err)
	}
	if borrowID <= 0 {
		return model.BorrowRecord{}, fmt.Errorf("return: borrow %d: %w", borrowID, errs.ErrNotFound)
	}

	var rec model.BorrowRecord
	err = s.store.InTx(ctx, func(tx repository.LendingTx) error {
		br, err := tx.LockBorrow(ctx, borrowID)
		if err != nil {
			return fmt.Errorf("borrow %d: %w", borrowID, err)
		}
		if br.Returned {
			return fmt.Errorf("borrow %d: %w", borrowID, errs.ErrAlreadyReturned)
		}
		if br.UserID != u.ID {
			return fmt.Errorf("borrow %d belongs to another user: %w", borrowID, errs.ErrForbidden)
		}
		b, err := tx.LockBook(ctx, br.BookID)
		if err != nil {
			return fmt.Errorf("book %d: %w", br.BookID, err)
		}
		today := model.Day(s.now())
		if err := tx.MarkReturned(ctx, br.ID, today); err != nil {
			return err
		}
		if err := tx.SetBookAvailable(ctx, b.ID, true); err != nil {
			return err
		}
		rec = model.BorrowRecord{
			ID:                  br.ID,
			BookID:              br.BookID,
			Username:            u.Username,
			BookTitle:           b.Title,
			BorrowDate:          br.BorrowDate,
			RequestedReturnDate: br.RequestedReturnDate,
			ReturnDate:          &today,
			Returned:            true,
		}
		return nil
	})
	if err != nil {
		return model.BorrowRecord{}, fmt.Errorf("return: %w", err)
	}

	s.publish(rec.BookID, true)
	s.log.Info("book returned",
		zap.Int64("borrow_id", rec.ID), zap.Int64("book_id", rec.BookID), zap.String("username", username))
	return rec, nil
}

// DeleteBorrow removes a borrow. Deleting an open borrow makes the book available again;
// deleting a closed one leaves the book as it is.
func (s *LendingServiceImpl) DeleteBorrow(ctx context.Context, borrowID int64) error {
	if borrowID <= 0 {
		return fmt.Errorf("delete borrow: id %d: %w", borrowID, errs.ErrInvalidInput)
	}

	var (
		bookID int64
		freed  bool
	)
	err := s.store.InTx(ctx, func(tx repository.LendingTx) error {
		br, err := tx.LockBorrow(ctx, borrowID)
		if err != nil {
			return fmt.Errorf("borrow %d: %w", borrowID, err)
		}
		b, err := tx.LockBook(ctx, br.BookID)
		if err != nil {
			return fmt.Errorf("book %d: %w", br.BookID, err)
		}
		bookID = b.ID
		freed = br.Open() && !b.Available
		if freed {
			if err := tx.SetBookAvailable(ctx, b.ID, true); err != nil {
				return err
			}
		}
		return tx.DeleteBorrow(ctx, br.ID)
	})
	if err != nil {
		return fmt.Errorf("delete borrow: %w", err)
	}

	if freed {
		s.publish(bookID, true)
	}
	s.log.Info("borrow deleted", zap.Int64("borrow_id", borrowID), zap.Int64("book_id", bookID), zap.Bool("freed", freed))
	return nil
}

// ListAll returns every borrow record.
func (s *LendingServiceImpl) ListAll(ctx context.Context) ([]model.BorrowRecord, error) {
	return s.borrows.ListAll(ctx)
}

// ListForUser returns the borrows of one user; an unknown user is ErrNotFound.
func (s *LendingServiceImpl) ListForUser(ctx context.Context, username string) ([]model.BorrowRecord, error) {
	u, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("history: user %q: %w", username, err)
	}
	return s.borrows.ListByUser(ctx, u.ID)
}

func (s *LendingServiceImpl) publish(bookID int64, available bool) {
	if s.events == nil {
		return
	}
	s.events.Publish(model.AvailabilityEvent{BookID: bookID, Available: available})
}
