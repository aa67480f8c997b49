// Package memory is an in-process implementation of the repository interfaces.
// Book and borrow rows are locked per ID for the lifetime of a lending transaction,
// so concurrent borrows of one book are serialized while different books never contend.
package memory

import (
	"cmp"
	"slices"
	"sync"
	"time"

	"github.com/and161185/lendkeeper/internal/model"
)

// Store holds all tables. Use Users, Books and Borrows for the per-table repositories;
// Store itself implements repository.LendingStore.
type Store struct {
	mu      sync.RWMutex
	users   map[int64]*model.User
	books   map[int64]*model.Book
	borrows map[int64]*model.Borrow

	userSeq, bookSeq, borrowSeq int64

	bookLocks   keyedMutex
	borrowLocks keyedMutex

	now func() time.Time
}

// New constructs an empty store.
func New() *Store {
	return &Store{
		users:   map[int64]*model.User{},
		books:   map[int64]*model.Book{},
		borrows: map[int64]*model.Borrow{},
		now:     time.Now,
	}
}

// Users returns the user repository view.
func (s *Store) Users() *UserRepo { return &UserRepo{s: s} }

// Books returns the book repository view.
func (s *Store) Books() *BookRepo { return &BookRepo{s: s} }

// Borrows returns the borrow repository view.
func (s *Store) Borrows() *BorrowRepo { return &BorrowRepo{s: s} }

// record builds the joined view. Caller holds s.mu.
func (s *Store) record(b *model.Borrow) model.BorrowRecord {
	rec := model.BorrowRecord{
		ID:                  b.ID,
		BookID:              b.BookID,
		BorrowDate:          b.BorrowDate,
		RequestedReturnDate: cloneTime(b.RequestedReturnDate),
		ReturnDate:          cloneTime(b.ReturnDate),
		Returned:            b.Returned,
	}
	if u, ok := s.users[b.UserID]; ok {
		rec.Username = u.Username
	}
	if bk, ok := s.books[b.BookID]; ok {
		rec.BookTitle = bk.Title
	}
	return rec
}

func sortByID[T any](xs []T, id func(T) int64) {
	slices.SortFunc(xs, func(a, b T) int { return cmp.Compare(id(a), id(b)) })
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}

func cloneBook(b *model.Book) *model.Book {
	c := *b
	c.PublicationDate = cloneTime(b.PublicationDate)
	return &c
}

func cloneBorrow(b *model.Borrow) *model.Borrow {
	c := *b
	c.RequestedReturnDate = cloneTime(b.RequestedReturnDate)
	c.ReturnDate = cloneTime(b.ReturnDate)
	return &c
}

func cloneUser(u *model.User) *model.User {
	c := *u
	c.PwdHash = append([]byte(nil), u.PwdHash...)
	return &c
}

// keyedMutex hands out one mutex per ID and forgets it once nobody holds or waits for it.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[int64]*keyLock
}

type keyLock struct {
	mu   sync.Mutex
	refs int
}

// Lock blocks until id is free and returns the matching unlock func.
func (k *keyedMutex) Lock(id int64) func() {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = map[int64]*keyLock{}
	}
	l, ok := k.locks[id]
	if !ok {
		l = &keyLock{}
		k.locks[id] = l
	}
	l.refs++
	k.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, id)
		}
		k.mu.Unlock()
	}
}
