// Package model defines domain entities used by services and repositories.
package model

import "time"

// BorrowPeriodDays is the fixed lending period after which an open borrow is overdue.
const BorrowPeriodDays = 14

// Role is the access role of a user.
type Role string

// Known roles.
const (
	RolePatron    Role = "PATRON"
	RoleLibrarian Role = "LIBRARIAN"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	return r == RolePatron || r == RoleLibrarian
}

// Tokens collects an issued access token and its expiry.
type Tokens struct {
	AccessToken string
	ExpiresAt   time.Time // access token expiry (for diagnostics)
}

// User represents an account stored on the server. Passwords are stored as salted Argon2id hashes only.
type User struct {
	ID          int64  // PK
	Username    string // unique, immutable
	PwdHash     []byte // salt || Argon2id(password, salt)
	Name        string
	ContactInfo string
	Role        Role
	CreatedAt   time.Time
}

// Book is a single catalog entry with exactly one lendable copy.
type Book struct {
	ID              int64
	Title           string
	Author          string
	ISBN            string // unique
	PublicationDate *time.Time
	Genre           string
	Available       bool // flipped by lending only
}

// Borrow is a lending record. ReturnDate is set iff Returned.
type Borrow struct {
	ID                  int64
	UserID              int64
	BookID              int64
	BorrowDate          time.Time
	RequestedReturnDate *time.Time // as supplied by the borrower, not validated
	ReturnDate          *time.Time // actual return day
	Returned            bool
}

// Open reports whether the borrow has not been returned yet.
func (b Borrow) Open() bool { return !b.Returned }

// BorrowRecord is the read view of a borrow joined with its user and book.
type BorrowRecord struct {
	ID                  int64
	BookID              int64
	Username            string
	BookTitle           string
	BorrowDate          time.Time
	RequestedReturnDate *time.Time
	ReturnDate          *time.Time
	Returned            bool
}

// OverdueEntry is a single line of the overdue report.
type OverdueEntry struct {
	BorrowID   int64
	BookTitle  string
	Username   string
	BorrowDate time.Time
	DueDate    time.Time
}

// AvailabilityEvent signals a change of a book's availability. It is not persisted.
type AvailabilityEvent struct {
	BookID    int64
	Available bool
}

// Day truncates t to its calendar day, expressed as UTC midnight.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DueDate returns the day a borrow started on borrowDate becomes due.
func DueDate(borrowDate time.Time) time.Time {
	return Day(borrowDate).AddDate(0, 0, BorrowPeriodDays)
}
